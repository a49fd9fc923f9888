package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jin09/BulkMail/internal/api"
	"github.com/jin09/BulkMail/internal/config"
	"github.com/jin09/BulkMail/internal/db"
	"github.com/jin09/BulkMail/internal/dispatch"
	"github.com/jin09/BulkMail/internal/health"
	"github.com/jin09/BulkMail/internal/logging"
	"github.com/jin09/BulkMail/internal/metrics"
	"github.com/jin09/BulkMail/internal/results"
	"github.com/jin09/BulkMail/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	logger := logging.New("bulkmail-api")

	shutdown, err := tracing.InitTracing(ctx, "bulkmail-api")
	if err != nil {
		logger.Plain().WithError(err).Fatal("tracing init failed")
	}
	defer shutdown()

	store, ping, closeStore := buildStore(ctx, cfg, logger)
	defer closeStore()

	producer, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq producer creation failed")
	}
	defer producer.Stop()

	// Prom metrics on a sidecar mux so the public API surface stays small
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(":9090", mux); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Error("metrics server failed")
		}
	}()

	dispatcher := dispatch.NewDispatcher(producer, store, cfg.NSQ.TasksTopic, logger)
	aggregator := dispatch.NewAggregator(store)
	srv := api.NewServer(dispatcher, aggregator, ping, logger)

	logger.Plain().WithFields(map[string]any{
		"addr":  cfg.HTTPPort,
		"store": cfg.StoreBackend,
		"topic": cfg.NSQ.TasksTopic,
	}).Info("api service started")

	if err := srv.ListenAndServe(ctx, cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
		logger.Plain().WithError(err).Fatal("api server failed")
	}
	logger.Plain().Info("api service stopped")
}

// buildStore returns the configured result store, its health check and a
// close func.
func buildStore(ctx context.Context, cfg config.Config, logger *logging.Logger) (results.Store, health.CheckFunc, func()) {
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := db.Connect(ctx, cfg.DSN(), 10)
		if err != nil {
			logger.Plain().WithError(err).Fatal("db connect failed")
		}
		store := results.NewPostgresStore(pool)
		return store, store.Ping, pool.Close
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := results.NewRedisStore(client, cfg.Redis.ResultTTL)
		return store, store.Ping, func() { _ = client.Close() }
	default:
		logger.Plain().WithField("backend", cfg.StoreBackend).Fatal("unknown store backend")
		return nil, nil, nil
	}
}
