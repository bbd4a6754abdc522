package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeviceTemplate is a catalog entry for one device class (series/model
// abbreviation) and owns the set of parameters that class exposes.
// Immutable after creation.
type DeviceTemplate struct {
	ID     string `gorm:"primaryKey" json:"id"`
	Series string `gorm:"index" json:"series"`
	Abbrev string `json:"abbrev"`
	Name   string `json:"name"`
}

func (t *DeviceTemplate) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Parameter is a named field a device class reports or accepts. Key is the
// field name expected inside a telemetry payload (e.g. "ph", "bomba").
type Parameter struct {
	ID   string `gorm:"primaryKey" json:"id"`
	Name string `json:"name"`
	Key  string `gorm:"column:param_key;index" json:"key"`
}

func (p *Parameter) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// TemplateParameter is the template↔parameter association plus the value a
// fresh registration starts with.
type TemplateParameter struct {
	DeviceTemplateID string `gorm:"primaryKey" json:"device_template_id"`
	ParameterID      string `gorm:"primaryKey" json:"parameter_id"`
	InitialValue     string `json:"initial_value"`
}
