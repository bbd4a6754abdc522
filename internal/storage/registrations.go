package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hydronet/hydronet/internal/model"
)

func (s *Store) FindRegistrationBySerial(ctx context.Context, serial string) (model.Registration, error) {
	var reg model.Registration
	err := s.db.WithContext(ctx).Where("serial_number = ?", serial).First(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Registration{}, fmt.Errorf("registration %q: %w", serial, ErrNotFound)
	}
	return reg, err
}

// ParameterKeysFor builds the payload-key → parameter-id map for one device
// template. The ingestor calls it once per message inside the transaction.
func (s *Store) ParameterKeysFor(ctx context.Context, templateID string) (map[string]string, error) {
	type row struct {
		ID  string
		Key string
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("parameters").
		Select("parameters.id AS id, parameters.param_key AS key").
		Joins("JOIN template_parameters tp ON tp.parameter_id = parameters.id").
		Where("tp.device_template_id = ?", templateID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.ID
	}
	return out, nil
}

func (s *Store) UpsertParameterValue(ctx context.Context, registrationID, parameterID, value string) error {
	pv := model.ParameterValue{
		RegistrationID: registrationID,
		ParameterID:    parameterID,
		Value:          value,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "registration_id"}, {Name: "parameter_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&pv).Error
}

func (s *Store) TouchRegistration(ctx context.Context, registrationID string, seenAt time.Time) error {
	return s.db.WithContext(ctx).Model(&model.Registration{}).
		Where("id = ?", registrationID).
		Updates(map[string]any{
			"last_seen_at": seenAt,
			"status":       model.StatusOnline,
		}).Error
}

// SweepStale flips online registrations that have gone quiet to offline and
// returns how many rows changed. Registrations already offline are left
// untouched.
func (s *Store) SweepStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Registration{}).
		Where("status = ? AND last_seen_at < ?", model.StatusOnline, olderThan).
		Update("status", model.StatusOffline)
	return res.RowsAffected, res.Error
}

// CreateRegistration inserts the registration and seeds one ParameterValue
// row per template parameter with its initial value, atomically.
func (s *Store) CreateRegistration(ctx context.Context, reg *model.Registration) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(reg).Error; err != nil {
			return err
		}
		var assoc []model.TemplateParameter
		if err := tx.Where("device_template_id = ?", reg.DeviceTemplateID).Find(&assoc).Error; err != nil {
			return err
		}
		for _, a := range assoc {
			pv := model.ParameterValue{
				RegistrationID: reg.ID,
				ParameterID:    a.ParameterID,
				Value:          a.InitialValue,
			}
			if err := tx.Create(&pv).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListRegistrations(ctx context.Context) ([]model.Registration, error) {
	var regs []model.Registration
	err := s.db.WithContext(ctx).Order("created_at").Find(&regs).Error
	return regs, err
}

// ParameterReading is a current value joined with its parameter metadata,
// the shape the read API returns.
type ParameterReading struct {
	Name  string `json:"name"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Store) ParameterValuesFor(ctx context.Context, registrationID string) ([]ParameterReading, error) {
	var out []ParameterReading
	err := s.db.WithContext(ctx).
		Table("parameter_values").
		Select("parameters.name AS name, parameters.param_key AS key, parameter_values.value AS value").
		Joins("JOIN parameters ON parameters.id = parameter_values.parameter_id").
		Where("parameter_values.registration_id = ?", registrationID).
		Order("parameters.param_key").
		Scan(&out).Error
	return out, err
}

func (s *Store) PushTokenFor(ctx context.Context, ownerID string) (string, error) {
	var tok model.OwnerToken
	err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("push token for owner %q: %w", ownerID, ErrNotFound)
	}
	return tok.Token, err
}

func (s *Store) InvalidatePushToken(ctx context.Context, ownerID string) error {
	return s.db.WithContext(ctx).Delete(&model.OwnerToken{}, "owner_id = ?", ownerID).Error
}
