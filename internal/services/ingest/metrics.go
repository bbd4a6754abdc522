package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hydronet_ingest_messages_total",
		Help: "Inbound telemetry messages by outcome.",
	}, []string{"outcome"})

	fieldsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hydronet_ingest_fields_applied_total",
		Help: "Parameter values updated from telemetry fields.",
	})

	notifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hydronet_ingest_notify_failures_total",
		Help: "Owner notification dispatches that failed.",
	})

	sweepOffline = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hydronet_liveness_offline_total",
		Help: "Registrations flipped online to offline by the liveness sweep.",
	})
)
