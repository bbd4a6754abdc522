package ingest

import (
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"
)

// HistoryWriter mirrors applied telemetry into InfluxDB as a time series.
// Writes are batched and asynchronous; the live ParameterValue table stays
// the source of truth and a failed history write is log-only. A nil
// *HistoryWriter is valid and records nothing.
type HistoryWriter struct {
	api     api.WriteAPI
	mu      sync.RWMutex
	lastErr time.Time
}

func NewHistoryWriter(w api.WriteAPI) *HistoryWriter {
	hw := &HistoryWriter{
		api:     w,
		lastErr: time.Now().Add(-24 * time.Hour),
	}
	go func() {
		for err := range w.Errors() {
			if err != nil {
				hw.mu.Lock()
				hw.lastErr = time.Now()
				hw.mu.Unlock()
				logrus.WithError(err).Warn("history: influx write error")
			}
		}
	}()
	return hw
}

// Record queues one point per applied parameter.
func (w *HistoryWriter) Record(serial string, applied map[string]string, at time.Time) {
	if w == nil {
		return
	}
	for key, value := range applied {
		p := influxdb2.NewPointWithMeasurement("telemetry").
			AddTag("serial", serial).
			AddTag("parameter", key).
			AddField("value", value).
			SetTime(at)
		w.api.WritePoint(p)
	}
}

// LastErrorAge reports how long the writer has gone without a write error;
// the health endpoint uses it.
func (w *HistoryWriter) LastErrorAge() time.Duration {
	if w == nil {
		return 99999 * time.Hour
	}
	w.mu.RLock()
	t := w.lastErr
	w.mu.RUnlock()
	return time.Since(t)
}
