// Package scheduler implements the schedule actuation engine: a minute
// ticker that matches the current UTC time against stored schedule windows
// and publishes pump/valve commands at window boundaries.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hydronet/hydronet/internal/model"
	"github.com/hydronet/hydronet/internal/model/messages"
	"github.com/hydronet/hydronet/pkg/mqtt"
)

// Source supplies the schedules to evaluate, joined with their topics.
type Source interface {
	ListActiveSchedules(ctx context.Context) ([]model.ActiveSchedule, error)
}

const defaultStoreTimeout = 5 * time.Second

// Engine drives actuation off the wall clock. Ticks are strictly
// sequential: if a tick is still running when the next minute fires, the
// new tick is skipped rather than run concurrently.
type Engine struct {
	source    Source
	publisher mqtt.IPublisher
	interval  time.Duration
	inFlight  atomic.Bool
	log       *logrus.Entry
}

func NewEngine(source Source, publisher mqtt.IPublisher, log *logrus.Entry) (*Engine, error) {
	if source == nil {
		return nil, errors.New("schedule source is nil")
	}
	if publisher == nil {
		return nil, errors.New("publisher is nil")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		source:    source,
		publisher: publisher,
		interval:  time.Minute,
		log:       log,
	}, nil
}

// Run blocks until ctx is cancelled, evaluating once per interval. The
// first tick is aligned to the next minute boundary so exact-minute
// matching sees every boundary exactly once.
func (e *Engine) Run(ctx context.Context) {
	now := time.Now().UTC()
	align := now.Truncate(e.interval).Add(e.interval).Sub(now)
	select {
	case <-ctx.Done():
		return
	case <-time.After(align):
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.tick(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			e.tick(ctx, t.UTC())
		}
	}
}

// tick runs one evaluation pass: read schedules, match, publish. Failures
// are terminal for this tick only.
func (e *Engine) tick(ctx context.Context, now time.Time) {
	if !e.inFlight.CompareAndSwap(false, true) {
		ticksSkipped.Inc()
		e.log.WithField("at", now.Format(time.RFC3339)).Warn("scheduler: previous tick still running, skipping")
		return
	}
	defer e.inFlight.Store(false)

	started := time.Now()
	defer func() { tickDuration.Observe(time.Since(started).Seconds()) }()

	opCtx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()

	schedules, err := e.source.ListActiveSchedules(opCtx)
	if err != nil {
		e.log.WithError(err).Error("scheduler: schedule read failed, tick abandoned")
		return
	}

	for _, cmd := range Tick(now, schedules) {
		state := "on"
		if cmd.Payload.Pump == messages.PumpOff {
			state = "off"
		}
		// Fire and forget: a lost command is not retried and must not
		// affect the rest of this tick.
		if err := e.publisher.Publish(cmd.Topic, 0, false, cmd.Body()); err != nil {
			e.log.WithField("topic", cmd.Topic).WithError(err).Warn("scheduler: command publish failed")
			continue
		}
		commandsEmitted.WithLabelValues(state).Inc()
		e.log.WithFields(logrus.Fields{"topic": cmd.Topic, "state": state}).Info("scheduler: command published")
	}
}

// Tick is the pure matching pass: given the current UTC time and the active
// schedules, it returns the commands due at this exact minute. A schedule
// fires its "on" command when now's minute equals its start and its "off"
// command when it equals its end, on a matching UTC weekday. Zero-duration
// windows (start == end) never fire. Multiple schedules are evaluated
// independently; coinciding boundaries each emit their command.
func Tick(now time.Time, schedules []model.ActiveSchedule) []messages.ActuationCommand {
	now = now.UTC()
	minute := now.Hour()*60 + now.Minute()
	day := now.Weekday()

	var out []messages.ActuationCommand
	for _, s := range schedules {
		if s.StartMinute == s.EndMinute {
			continue
		}
		if !s.Days.Has(day) {
			continue
		}
		switch minute {
		case s.StartMinute:
			out = append(out, messages.TurnOn(s.Topic))
		case s.EndMinute:
			out = append(out, messages.TurnOff(s.Topic))
		}
	}
	return out
}
