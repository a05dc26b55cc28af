// Package config provides application configuration loaded from environment
// variables with defaults and validation. It covers both processes: the API
// server (HTTP, hub, cache, queue producer) and the worker (queue consumer).
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// QueueConfig defines the durable message queue wiring (NATS JetStream).
type QueueConfig struct {
	URL        string // NATS_URL
	Stream     string // QUEUE_STREAM
	Subject    string // QUEUE_SUBJECT
	DeadLetter string // QUEUE_DLQ_SUBJECT
	Durable    string // QUEUE_DURABLE (consumer name)
}

// ConsumerConfig tunes the background persist loop in the worker.
type ConsumerConfig struct {
	RetryDelay    time.Duration // delay before a transient failure is redelivered
	MaxDeliver    int           // broker redelivery cap before dead-letter
	GracePeriod   time.Duration // time an in-flight message gets on shutdown
	FetchInterval time.Duration // poll interval when the queue is empty
}

// CacheConfig holds cache backend and TTL settings. The TTLs are the accepted
// staleness windows for membership and username lookups.
type CacheConfig struct {
	RedisURL      string        // REDIS_URL; empty selects the in-process cache
	MembershipTTL time.Duration // default 5m
	ProfileTTL    time.Duration // default 1h
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	APIBasePath   string
	DBPath        string // SQLite path
	MaxContentLen int    // max message content runes
	HubSendBuffer int    // per-connection outbound buffer

	Cache    CacheConfig
	Queue    QueueConfig
	Consumer ConsumerConfig

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS       CORSConfig
	EnableHSTS bool
	HSTSMaxAge time.Duration

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		APIBasePath:   normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
		DBPath:        getenv("DB_PATH", "localchat.db"),
		MaxContentLen: getint("MAX_CONTENT_LEN", 4000),
		HubSendBuffer: getint("HUB_SEND_BUFFER", 64),

		Cache: CacheConfig{
			RedisURL:      getenv("REDIS_URL", ""),
			MembershipTTL: getdur("MEMBERSHIP_CACHE_TTL", 5*time.Minute),
			ProfileTTL:    getdur("PROFILE_CACHE_TTL", time.Hour),
		},

		Queue: QueueConfig{
			URL:        getenv("NATS_URL", "nats://localhost:4222"),
			Stream:     getenv("QUEUE_STREAM", "CHAT"),
			Subject:    getenv("QUEUE_SUBJECT", "chat.messages"),
			DeadLetter: getenv("QUEUE_DLQ_SUBJECT", "chat.messages.dlq"),
			Durable:    getenv("QUEUE_DURABLE", "message-processor"),
		},

		Consumer: ConsumerConfig{
			RetryDelay:    getdur("CONSUMER_RETRY_DELAY", 5*time.Second),
			MaxDeliver:    getint("CONSUMER_MAX_DELIVER", 5),
			GracePeriod:   getdur("CONSUMER_GRACE_PERIOD", 15*time.Second),
			FetchInterval: getdur("CONSUMER_FETCH_INTERVAL", time.Second),
		},

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		EnableHSTS: getbool("ENABLE_HSTS", false),
		HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "localchat-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.MaxContentLen <= 0 {
		return cfg, errors.New("MAX_CONTENT_LEN must be > 0")
	}
	if cfg.HubSendBuffer <= 0 {
		return cfg, errors.New("HUB_SEND_BUFFER must be > 0")
	}
	if cfg.Cache.MembershipTTL <= 0 || cfg.Cache.ProfileTTL <= 0 {
		return cfg, errors.New("cache TTLs must be positive durations")
	}
	if strings.TrimSpace(cfg.Queue.Stream) == "" || strings.TrimSpace(cfg.Queue.Subject) == "" {
		return cfg, errors.New("QUEUE_STREAM and QUEUE_SUBJECT must not be empty")
	}
	if strings.TrimSpace(cfg.Queue.DeadLetter) == "" {
		return cfg, errors.New("QUEUE_DLQ_SUBJECT must not be empty")
	}
	if cfg.Consumer.RetryDelay <= 0 || cfg.Consumer.GracePeriod <= 0 || cfg.Consumer.FetchInterval <= 0 {
		return cfg, errors.New("consumer durations must be positive")
	}
	if cfg.Consumer.MaxDeliver < 1 {
		return cfg, errors.New("CONSUMER_MAX_DELIVER must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
