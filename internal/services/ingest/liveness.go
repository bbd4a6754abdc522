package ingest

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hydronet/hydronet/internal/storage"
)

const defaultLivenessThreshold = 5 * time.Minute

// Sweeper periodically flips registrations that have gone quiet from online
// to offline. It runs on its own cadence, independent of message arrival,
// and never touches registrations already offline.
type Sweeper struct {
	store     storage.IngestStore
	threshold time.Duration
	interval  time.Duration
	now       func() time.Time
	log       *logrus.Entry
}

func NewSweeper(store storage.IngestStore, threshold, interval time.Duration, log *logrus.Entry) *Sweeper {
	if threshold <= 0 {
		threshold = defaultLivenessThreshold
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sweeper{
		store:     store,
		threshold: threshold,
		interval:  interval,
		now:       time.Now,
		log:       log,
	}
}

// Run blocks until ctx is cancelled. Sweep failures are logged and the next
// interval tries again.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass and returns how many registrations went offline.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	opCtx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()

	n, err := s.store.SweepStale(opCtx, s.now().UTC().Add(-s.threshold))
	if err != nil {
		s.log.WithError(err).Warn("liveness: sweep failed")
		return 0
	}
	if n > 0 {
		sweepOffline.Add(float64(n))
		s.log.WithField("count", n).Info("liveness: registrations marked offline")
	}
	return n
}
