package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type Redis struct {
	Addr     string // e.g. redis:6379
	Password string
	DB       int
	// ResultTTL bounds how long finished batches stay readable. Zero keeps
	// them until evicted externally.
	ResultTTL time.Duration
}

type NSQ struct {
	NsqdTCPAddr    string // e.g. nsqd:4150
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	TasksTopic     string // topic carrying delivery task envelopes
	DLQTopic       string // dead-letter topic for undecodable envelopes
	WorkerChannel  string // NSQ channel name for workers
}

type Worker struct {
	MaxAttempts     int             // per-task send attempts, first try included
	BackoffSchedule []time.Duration // delay before attempt N+1
	JitterPercent   float64         // backoff jitter (0.0-1.0)
	Concurrency     int             // concurrent handlers per worker process
	MaxInFlight     int             // NSQ max in-flight messages
	HTTPPort        string          // worker metrics/health port
}

type SMTP struct {
	Host    string
	Port    int
	From    string
	User    string
	Pass    string
	TLSMode string // "auto" | "starttls" | "ssl" | "none"
}

type Transport struct {
	Kind           string // "smtp" | "http" | "sim"
	ProviderURL    string // http transport: provider send endpoint
	APIKey         string
	Timeout        time.Duration
	SimSuccessRate float64 // sim transport: probability a send succeeds
	SimLatency     time.Duration
}

type Sink struct {
	FailFirstN      int    // number of sends to reject before accepting
	ResponseDelayMS int    // simulated provider latency
	Port            string // listen port
}

type Config struct {
	AppName      string
	HTTPPort     string // :8080
	StoreBackend string // "redis" | "postgres"
	DB           DB
	Redis        Redis
	NSQ          NSQ
	Worker       Worker
	SMTP         SMTP
	Transport    Transport
	Sink         Sink
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseBackoffSchedule(schedule string) []time.Duration {
	def := []time.Duration{1 * time.Second, 5 * time.Second, 25 * time.Second}
	if schedule == "" {
		return def
	}

	parts := strings.Split(schedule, ",")
	durations := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if d, err := time.ParseDuration(part); err == nil {
			durations = append(durations, d)
		}
	}
	if len(durations) == 0 {
		return def
	}
	return durations
}

func FromEnv() Config {
	return Config{
		AppName:      getenv("APP_NAME", "bulkmail"),
		HTTPPort:     getenv("HTTP_PORT", ":8080"),
		StoreBackend: getenv("STORE_BACKEND", "redis"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "bulkmail"),
		},
		Redis: Redis{
			Addr:      getenv("REDIS_ADDR", "redis:6379"),
			Password:  getenv("REDIS_PASSWORD", ""),
			DB:        getenvInt("REDIS_DB", 0),
			ResultTTL: getenvDuration("RESULT_TTL", 0),
		},
		NSQ: NSQ{
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			TasksTopic:     getenv("NSQ_TASKS_TOPIC", "mail_tasks"),
			DLQTopic:       getenv("NSQ_DLQ_TOPIC", "mail_tasks_dlq"),
			WorkerChannel:  getenv("NSQ_WORKER_CHANNEL", "senders"),
		},
		Worker: Worker{
			MaxAttempts:     getenvInt("MAX_ATTEMPTS", 4),
			BackoffSchedule: parseBackoffSchedule(getenv("BACKOFF_SCHEDULE", "")),
			JitterPercent:   getenvFloat("BACKOFF_JITTER_PCT", 0.25),
			Concurrency:     getenvInt("WORKER_CONCURRENCY", 8),
			MaxInFlight:     getenvInt("NSQ_MAX_IN_FLIGHT", 64),
			HTTPPort:        ":" + getenv("WORKER_HTTP_PORT", "8083"),
		},
		SMTP: SMTP{
			Host:    getenv("SMTP_HOST", "localhost"),
			Port:    getenvInt("SMTP_PORT", 587),
			From:    getenv("SMTP_FROM", "no-reply@bulkmail.local"),
			User:    getenv("SMTP_USER", ""),
			Pass:    getenv("SMTP_PASS", ""),
			TLSMode: getenv("SMTP_TLS_MODE", "auto"),
		},
		Transport: Transport{
			Kind:           getenv("MAIL_TRANSPORT", "smtp"),
			ProviderURL:    getenv("MAIL_PROVIDER_URL", "http://mail-sink:8081/send"),
			APIKey:         getenv("MAIL_PROVIDER_API_KEY", ""),
			Timeout:        getenvDuration("MAIL_PROVIDER_TIMEOUT", 15*time.Second),
			SimSuccessRate: getenvFloat("SIM_SUCCESS_RATE", 0.9),
			SimLatency:     getenvDuration("SIM_LATENCY", 20*time.Millisecond),
		},
		Sink: Sink{
			FailFirstN:      getenvInt("FAIL_FIRST_N", 0),
			ResponseDelayMS: getenvInt("RESPONSE_DELAY_MS", 0),
			Port:            getenv("MAIL_SINK_PORT", ":8081"),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
