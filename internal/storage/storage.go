// Package storage is the persistence layer: a postgres-backed store for the
// device catalog, registrations, live parameter values and schedules.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hydronet/hydronet/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Open connects to postgres, retrying with exponential backoff so the
// service survives a database that comes up after it does.
func Open(dsn string) (*gorm.DB, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	var db *gorm.DB
	err := backoff.Retry(func() error {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			logrus.WithError(err).Warn("storage: postgres connect failed, retrying")
		}
		return err
	}, bo)
	if err != nil {
		return nil, fmt.Errorf("could not open postgres after retries: %w", err)
	}
	return db, nil
}

// AutoMigrate creates or updates the schema for all domain models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.DeviceTemplate{},
		&model.Parameter{},
		&model.TemplateParameter{},
		&model.Registration{},
		&model.ParameterValue{},
		&model.OwnerToken{},
		&model.Schedule{},
	)
}

// Store wraps a gorm handle. All methods honour the context's deadline.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// IngestStore is the slice of the store the telemetry ingestor consumes.
type IngestStore interface {
	FindRegistrationBySerial(ctx context.Context, serial string) (model.Registration, error)
	ParameterKeysFor(ctx context.Context, templateID string) (map[string]string, error)
	UpsertParameterValue(ctx context.Context, registrationID, parameterID, value string) error
	TouchRegistration(ctx context.Context, registrationID string, seenAt time.Time) error
	Transact(ctx context.Context, fn func(tx IngestStore) error) error
	SweepStale(ctx context.Context, olderThan time.Time) (int64, error)
	PushTokenFor(ctx context.Context, ownerID string) (string, error)
	InvalidatePushToken(ctx context.Context, ownerID string) error
}

// Transact runs fn inside one database transaction; any error rolls the
// whole transaction back.
func (s *Store) Transact(ctx context.Context, fn func(tx IngestStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}
