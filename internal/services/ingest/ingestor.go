// Package ingest implements the telemetry ingestor: it maps inbound device
// messages onto catalog parameters and persists the updated values in one
// transaction per message.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hydronet/hydronet/internal/model"
	"github.com/hydronet/hydronet/internal/storage"
	"github.com/hydronet/hydronet/pkg/dedup"
)

// Ingestion error taxonomy. Every error is terminal for its message: the
// bus is at-most-once, so messages are logged and dropped, never retried.
var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUnknownDevice    = errors.New("unknown device")
	ErrStore            = errors.New("store failure")
)

const defaultStoreTimeout = 5 * time.Second

// defaultDedupTTL bounds how long a redelivered message is suppressed. It
// must stay well below defaultLivenessThreshold: a device in steady state
// repeats identical payloads, and suppressing them for longer would starve
// the liveness touch and flip a healthy device offline.
const defaultDedupTTL = 30 * time.Second

// Ingestor consumes telemetry messages. Handlers for distinct messages may
// run concurrently; per-row consistency is left to the store's transaction
// isolation.
type Ingestor struct {
	store    storage.IngestStore
	notifier Notifier
	history  *HistoryWriter
	deduper  *dedup.Deduper
	timeout  time.Duration
	now      func() time.Time
	log      *logrus.Entry
}

func NewIngestor(store storage.IngestStore, notifier Notifier, history *HistoryWriter, log *logrus.Entry) (*Ingestor, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ingestor{
		store:    store,
		notifier: notifier,
		history:  history,
		deduper:  dedup.New(defaultDedupTTL, 20000),
		timeout:  defaultStoreTimeout,
		now:      time.Now,
		log:      log,
	}, nil
}

// HandleMessage is the bus-facing entry point. It drops QoS1 redeliveries,
// runs Ingest and swallows its error after logging: there is no caller to
// surface it to.
func (i *Ingestor) HandleMessage(topic string, payload []byte) error {
	if !i.deduper.ShouldProcess(dedup.Key(topic, payload)) {
		ingestTotal.WithLabelValues("duplicate").Inc()
		return nil
	}
	if err := i.Ingest(topic, payload); err != nil {
		i.log.WithFields(logrus.Fields{"topic": topic}).WithError(err).Warn("ingest: message dropped")
	}
	return nil
}

// Ingest resolves the registration addressed by topic, upserts every known
// payload field's parameter value and marks the registration online, all in
// one transaction. Unknown payload fields are skipped. After commit it
// dispatches the owner notification and the history write; neither can undo
// the persisted telemetry.
func (i *Ingestor) Ingest(topic string, payload []byte) error {
	serial, err := serialFromTopic(topic)
	if err != nil {
		ingestTotal.WithLabelValues("malformed").Inc()
		return err
	}
	fields, err := parsePayload(payload)
	if err != nil {
		ingestTotal.WithLabelValues("malformed").Inc()
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	now := i.now().UTC()
	var reg model.Registration
	applied := make(map[string]string, len(fields))

	err = i.store.Transact(ctx, func(tx storage.IngestStore) error {
		var err error
		reg, err = tx.FindRegistrationBySerial(ctx, serial)
		if err != nil {
			return err
		}
		keys, err := tx.ParameterKeysFor(ctx, reg.DeviceTemplateID)
		if err != nil {
			return err
		}
		for name, raw := range fields {
			id, ok := keys[name]
			if !ok {
				continue
			}
			value := formatScalar(raw)
			if err := tx.UpsertParameterValue(ctx, reg.ID, id, value); err != nil {
				return err
			}
			applied[name] = value
		}
		return tx.TouchRegistration(ctx, reg.ID, now)
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ingestTotal.WithLabelValues("unknown_device").Inc()
			return fmt.Errorf("%w: serial %q", ErrUnknownDevice, serial)
		}
		ingestTotal.WithLabelValues("store_error").Inc()
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	ingestTotal.WithLabelValues("applied").Inc()
	fieldsApplied.Add(float64(len(applied)))

	i.history.Record(serial, applied, now)
	i.notify(reg, payload)
	return nil
}

// notify dispatches the raw message to the registration owner. Failures are
// logged only; the telemetry is already committed.
func (i *Ingestor) notify(reg model.Registration, payload []byte) {
	if i.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()
	if err := i.notifier.Notify(ctx, reg.OwnerID, payload); err != nil {
		notifyFailures.Inc()
		i.log.WithFields(logrus.Fields{"owner": reg.OwnerID, "serial": reg.SerialNumber}).
			WithError(err).Warn("ingest: notification dispatch failed")
	}
}

// serialFromTopic extracts the device serial from the <series>/<abbrev>/<serial>
// addressing shape.
func serialFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || strings.TrimSpace(parts[2]) == "" {
		return "", fmt.Errorf("%w: topic %q", ErrMalformedPayload, topic)
	}
	return parts[2], nil
}

// parsePayload decodes a flat JSON object. Anything else (arrays, scalars,
// invalid JSON) is malformed.
func parsePayload(payload []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return fields, nil
}

// formatScalar renders a decoded JSON scalar to the store's string value
// column. Nested values are kept as compact JSON rather than rejected:
// unknown shapes are tolerated, not fatal.
func formatScalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
