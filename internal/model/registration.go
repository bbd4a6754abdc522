package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Registration binds a physical device to an owner and its bus topic.
// LastSeenAt and Status are touched by the ingestor on every inbound
// message; the liveness sweep flips Status back to offline when a device
// goes quiet.
type Registration struct {
	ID               string    `gorm:"primaryKey" json:"id"`
	OwnerID          string    `gorm:"index" json:"owner_id"`
	DeviceTemplateID string    `json:"device_template_id"`
	Topic            string    `json:"topic"`
	SerialNumber     string    `gorm:"uniqueIndex" json:"serial_number"`
	Name             string    `json:"name"`
	CreatedAt        time.Time `json:"created_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	Status           string    `json:"status"`
}

func (r *Registration) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusOffline
	}
	return nil
}

// ParameterValue is the live current value of one parameter for one
// registration. Exactly one row exists per (registration, template
// parameter); rows are seeded from the template's initial values when the
// registration is created and overwritten by matching telemetry fields.
type ParameterValue struct {
	RegistrationID string `gorm:"primaryKey" json:"registration_id"`
	ParameterID    string `gorm:"primaryKey" json:"parameter_id"`
	Value          string `json:"value"`
}

// OwnerToken is the push-notification token for a registration owner.
// Dispatch invalidates it when the push gateway reports it stale.
type OwnerToken struct {
	OwnerID string `gorm:"primaryKey" json:"owner_id"`
	Token   string `json:"token"`
}
