package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hydronet/hydronet/internal/config"
	"github.com/hydronet/hydronet/internal/services/ingest"
	"github.com/hydronet/hydronet/internal/storage"
	"github.com/hydronet/hydronet/pkg/mqtt"
)

func main() {
	cfg := config.Load("ingest-service")

	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	}
	log := logrus.WithField("svc", "ingest")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === Store ===
	db, err := storage.Open(cfg.DatabaseDSN)
	if err != nil {
		log.WithError(err).Fatal("postgres connection error")
	}
	if err := storage.AutoMigrate(db); err != nil {
		log.WithError(err).Fatal("migration error")
	}
	store := storage.New(db)

	// === Broker ===
	client, err := mqtt.Connect(&mqtt.BrokerConfig{
		Host:     cfg.BrokerHost,
		Port:     cfg.BrokerPort,
		User:     cfg.BrokerUser,
		Password: cfg.BrokerPassword,
		ClientID: cfg.ClientID,
	}, ctx)
	if err != nil {
		log.WithError(err).Fatal("mqtt connection error")
	}
	defer mqtt.Close(client)

	// === Telemetry history (optional) ===
	var history *ingest.HistoryWriter
	if cfg.InfluxToken != "" {
		influx := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		defer influx.Close()
		history = ingest.NewHistoryWriter(influx.WriteAPI(cfg.InfluxOrg, cfg.InfluxBucket))
	}

	// === Notifier (optional) ===
	var notifier ingest.Notifier
	if cfg.PushGatewayURL != "" {
		notifier = ingest.NewPushNotifier(cfg.PushGatewayURL, store, log)
	}

	ingestor, err := ingest.NewIngestor(store, notifier, history, log)
	if err != nil {
		log.WithError(err).Fatal("ingestor init error")
	}

	// Telemetry arrives at QoS1; the ingestor dedups redeliveries itself.
	sub := mqtt.NewSubscriber(client, cfg.TelemetryPattern, 1, ingestor.HandleMessage)
	go sub.Run(ctx)

	sweeper := ingest.NewSweeper(store, cfg.LivenessThreshold, cfg.SweepInterval, log)
	go sweeper.Run(ctx)

	// === HTTP (health + metrics) ===
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !client.IsConnectionOpen() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.HTTPPort).Info("http listening")
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server error")
		}
	}()

	// === Wait for signal ===
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = hs.Shutdown(shCtx)
	cancel()
}
