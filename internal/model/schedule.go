package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hydronet/hydronet/internal/schedule"
)

// Schedule is a recurring actuation window for one registration. Times and
// days are always stored normalized to UTC; the write API converts from the
// user's local time on the way in and back on the way out.
type Schedule struct {
	ID                 string           `gorm:"primaryKey" json:"id"`
	RegistrationSerial string           `gorm:"index" json:"registration_serial"`
	Days               schedule.DaySet  `gorm:"column:days" json:"days"`
	StartMinute        int              `json:"start_minute"`
	EndMinute          int              `json:"end_minute"`
	Active             bool             `gorm:"index" json:"active"`
}

func (s *Schedule) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Window returns the schedule's UTC window for the engine and the API.
func (s *Schedule) Window() schedule.Window {
	return schedule.Window{Start: s.StartMinute, End: s.EndMinute, Days: s.Days}
}

// ActiveSchedule is a schedule joined with its registration's topic, the
// shape the actuation engine reads once per tick.
type ActiveSchedule struct {
	Schedule
	Topic string `json:"topic"`
}
