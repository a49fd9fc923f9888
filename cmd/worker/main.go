package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jin09/BulkMail/internal/config"
	"github.com/jin09/BulkMail/internal/db"
	"github.com/jin09/BulkMail/internal/health"
	"github.com/jin09/BulkMail/internal/logging"
	"github.com/jin09/BulkMail/internal/mail"
	"github.com/jin09/BulkMail/internal/metrics"
	"github.com/jin09/BulkMail/internal/results"
	"github.com/jin09/BulkMail/internal/task"
	"github.com/jin09/BulkMail/internal/tracing"
	"github.com/jin09/BulkMail/internal/worker"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("bulkmail-worker")

	shutdown, err := tracing.InitTracing(ctx, "bulkmail-worker")
	if err != nil {
		logger.Plain().WithError(err).Fatal("tracing init failed")
	}
	defer shutdown()

	store, ping, closeStore := buildStore(ctx, cfg, logger)
	defer closeStore()

	sender := buildSender(cfg, logger)

	// Prom metrics
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	// HTTP health/metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(ping))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	// DLQ producer
	dlqProducer, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq producer for DLQ creation failed")
	}
	defer dlqProducer.Stop()

	retry := task.RetryPolicy{
		MaxAttempts: cfg.Worker.MaxAttempts,
		Backoff:     cfg.Worker.BackoffSchedule,
		JitterPct:   cfg.Worker.JitterPercent,
	}
	exec := task.NewExecutor(sender, store, retry, logger)
	handler := worker.NewHandler(exec, store, dlqProducer, cfg.NSQ.DLQTopic, logger)

	// NSQ consumer
	conf := nsq.NewConfig()
	conf.MaxInFlight = cfg.Worker.MaxInFlight
	consumer, err := nsq.NewConsumer(cfg.NSQ.TasksTopic, cfg.NSQ.WorkerChannel, conf)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
	}
	consumer.AddConcurrentHandlers(handler, cfg.Worker.Concurrency)

	startBacklogMonitor(cfg)

	// Connecting directly to NSQD forces channel creation, instead of the
	// channel being lazily created on first publish
	if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to nsqd failed")
	}
	if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to lookupd failed")
	}

	logger.Plain().WithFields(map[string]any{
		"topic":       cfg.NSQ.TasksTopic,
		"channel":     cfg.NSQ.WorkerChannel,
		"concurrency": cfg.Worker.Concurrency,
	}).Info("worker service started")

	// Graceful stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down worker service")
	consumer.Stop()
	<-consumer.StopChan
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker service stopped")
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

// buildSender returns the configured outbound transport.
func buildSender(cfg config.Config, logger *logging.Logger) mail.Sender {
	switch cfg.Transport.Kind {
	case "smtp":
		s := mail.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.User, cfg.SMTP.Pass)
		s.TLSMode = cfg.SMTP.TLSMode
		return s
	case "http":
		return mail.NewHTTPSender(cfg.Transport.ProviderURL, cfg.Transport.APIKey, cfg.Transport.Timeout)
	case "sim":
		return mail.NewSimSender(cfg.Transport.SimSuccessRate, cfg.Transport.SimLatency)
	default:
		logger.Plain().WithField("transport", cfg.Transport.Kind).Fatal("unknown mail transport")
		return nil
	}
}

// startBacklogMonitor polls nsqd stats and exports the task channel depth.
func startBacklogMonitor(cfg config.Config) {
	go func() {
		logger := logging.New("bulkmail-worker-monitor")
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		httpClient := &http.Client{Timeout: 5 * time.Second}

		for range ticker.C {
			nsqdHTTPAddr := strings.Replace(cfg.NSQ.NsqdTCPAddr, ":4150", ":4151", 1)
			resp, err := httpClient.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdHTTPAddr))
			if err != nil {
				logger.Plain().WithError(err).Error("failed to get NSQ stats")
				continue
			}

			var stats struct {
				Topics []struct {
					Name     string `json:"topic_name"`
					Channels []struct {
						Name  string `json:"channel_name"`
						Depth int64  `json:"depth"`
					} `json:"channels"`
				} `json:"topics"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
				resp.Body.Close()
				logger.Plain().WithError(err).Error("failed to decode NSQ stats")
				continue
			}
			resp.Body.Close()

			for _, topic := range stats.Topics {
				if topic.Name != cfg.NSQ.TasksTopic {
					continue
				}
				for _, channel := range topic.Channels {
					if channel.Name == cfg.NSQ.WorkerChannel {
						metrics.UpdateBacklog(float64(channel.Depth))
					}
				}
			}
		}
	}()
}
