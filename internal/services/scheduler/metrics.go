package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hydronet_scheduler_commands_total",
		Help: "Actuation commands published, by desired state.",
	}, []string{"state"})

	ticksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hydronet_scheduler_ticks_skipped_total",
		Help: "Ticks skipped because the previous tick was still running.",
	})

	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hydronet_scheduler_tick_duration_seconds",
		Help:    "Wall time of one evaluation pass.",
		Buckets: prometheus.DefBuckets,
	})
)
