package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/hydronet/hydronet/internal/model"
)

func TestSweepUsesThresholdCutoff(t *testing.T) {
	st := newFakeStore()
	now := time.Date(2026, 8, 24, 13, 0, 0, 0, time.UTC)
	for _, id := range []string{"reg-1", "reg-2", "reg-3"} {
		st.statuses[id] = model.StatusOnline
		st.touched[id] = now.Add(-10 * time.Minute)
	}
	sw := NewSweeper(st, 5*time.Minute, time.Minute, logrus.NewEntry(logrus.New()))
	sw.now = func() time.Time { return now }

	n := sw.Sweep(context.Background())

	assert.Equal(t, int64(3), n)
	assert.Equal(t, now.Add(-5*time.Minute), st.sweepCutoff)
}

func TestSweepOnlyFlipsQuietOnlineRows(t *testing.T) {
	st := newFakeStore()
	now := time.Date(2026, 8, 24, 13, 0, 0, 0, time.UTC)
	st.statuses["reg-quiet"] = model.StatusOnline
	st.touched["reg-quiet"] = now.Add(-10 * time.Minute)
	st.statuses["reg-fresh"] = model.StatusOnline
	st.touched["reg-fresh"] = now.Add(-time.Minute)
	st.statuses["reg-gone"] = model.StatusOffline
	st.touched["reg-gone"] = now.Add(-2 * time.Hour)
	sw := NewSweeper(st, 5*time.Minute, time.Minute, logrus.NewEntry(logrus.New()))
	sw.now = func() time.Time { return now }

	n := sw.Sweep(context.Background())

	assert.Equal(t, int64(1), n)
	assert.Equal(t, model.StatusOffline, st.statuses["reg-quiet"])
	assert.Equal(t, model.StatusOnline, st.statuses["reg-fresh"], "a recently seen device stays online")
	assert.Equal(t, model.StatusOffline, st.statuses["reg-gone"], "an offline device is never re-flipped or counted")
}

func TestSweepErrorIsNonFatal(t *testing.T) {
	st := newFakeStore()
	st.sweepErr = errors.New("store down")
	sw := NewSweeper(st, 5*time.Minute, time.Minute, logrus.NewEntry(logrus.New()))

	assert.Zero(t, sw.Sweep(context.Background()))
}

func TestSweeperDefaults(t *testing.T) {
	sw := NewSweeper(newFakeStore(), 0, 0, nil)

	assert.Equal(t, 5*time.Minute, sw.threshold)
	assert.Equal(t, time.Minute, sw.interval)
}
