package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/hydronet/hydronet/internal/model"
)

// ListActiveSchedules returns every active schedule joined with its
// registration's topic. Schedules whose serial matches no registration are
// skipped: they cannot be actuated.
func (s *Store) ListActiveSchedules(ctx context.Context) ([]model.ActiveSchedule, error) {
	var scheds []model.Schedule
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&scheds).Error; err != nil {
		return nil, err
	}
	if len(scheds) == 0 {
		return nil, nil
	}

	serials := make([]string, 0, len(scheds))
	for _, sc := range scheds {
		serials = append(serials, sc.RegistrationSerial)
	}
	var regs []model.Registration
	if err := s.db.WithContext(ctx).Where("serial_number IN ?", serials).Find(&regs).Error; err != nil {
		return nil, err
	}
	topicBySerial := make(map[string]string, len(regs))
	for _, r := range regs {
		topicBySerial[r.SerialNumber] = r.Topic
	}

	out := make([]model.ActiveSchedule, 0, len(scheds))
	for _, sc := range scheds {
		topic, ok := topicBySerial[sc.RegistrationSerial]
		if !ok {
			continue
		}
		out = append(out, model.ActiveSchedule{Schedule: sc, Topic: topic})
	}
	return out, nil
}

func (s *Store) CreateSchedule(ctx context.Context, sched *model.Schedule) error {
	return s.db.WithContext(ctx).Create(sched).Error
}

func (s *Store) UpdateSchedule(ctx context.Context, sched *model.Schedule) error {
	res := s.db.WithContext(ctx).Model(&model.Schedule{}).
		Where("id = ?", sched.ID).
		Updates(map[string]any{
			"registration_serial": sched.RegistrationSerial,
			"days":                sched.Days,
			"start_minute":        sched.StartMinute,
			"end_minute":          sched.EndMinute,
			"active":              sched.Active,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("schedule %q: %w", sched.ID, ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&model.Schedule{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("schedule %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) SetScheduleActive(ctx context.Context, id string, active bool) error {
	res := s.db.WithContext(ctx).Model(&model.Schedule{}).
		Where("id = ?", id).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("schedule %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) SchedulesForSerial(ctx context.Context, serial string) ([]model.Schedule, error) {
	var out []model.Schedule
	err := s.db.WithContext(ctx).Where("registration_serial = ?", serial).Order("id").Find(&out).Error
	return out, err
}

func (s *Store) FindSchedule(ctx context.Context, id string) (model.Schedule, error) {
	var sched model.Schedule
	err := s.db.WithContext(ctx).First(&sched, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Schedule{}, fmt.Errorf("schedule %q: %w", id, ErrNotFound)
	}
	return sched, err
}
