package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/ulule/limiter/v3"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	CatalogPath         string
	CatalogLanguage     string
	CatalogDefaultLimit int
	CatalogMaxLimit     int

	// RateSources holds raw "name=url" entries; empty means the built-in list.
	RateSources         []string
	RateRefreshInterval time.Duration
	RateRequestTimeout  time.Duration
	RateRetryAttempts   int
	RateRetryBase       time.Duration
	RateRetryJitter     float64
	RateRefreshLimit    string

	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration

	SessionTTL       time.Duration
	LockTTL          time.Duration
	LockRetryBackoff time.Duration
	IdempotencyTTL   time.Duration

	ShutdownTimeout    time.Duration
	HTTPMaxBodyBytes   int64
	HealthRedisTimeout time.Duration

	AppVersion       string
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsEnabled   bool
	MetricsBuckets   string
	TracingEnabled   bool
	TracingExporter  string
	OTLPEndpoint     string
	TracingRatio     float64

	SecurityHeaders bool
	SecurityHSTS    bool
	PprofEnabled    bool
	PprofUser       string
	PprofPass       string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CatalogPath:         valueOrDefault(k.String("CATALOG_PATH"), "data/products.json"),
		CatalogLanguage:     valueOrDefault(k.String("CATALOG_LANGUAGE"), "en"),
		CatalogDefaultLimit: parseInt(k.String("CATALOG_DEFAULT_LIMIT"), 50),
		CatalogMaxLimit:     parseInt(k.String("CATALOG_MAX_LIMIT"), 500),

		RateSources:         splitAndTrim(k.String("RATES_SOURCES")),
		RateRefreshInterval: parseDuration(k.String("RATES_REFRESH_INTERVAL"), "120s"),
		RateRequestTimeout:  parseDuration(k.String("RATES_REQUEST_TIMEOUT"), "0s"),
		RateRetryAttempts:   parseInt(k.String("RATES_RETRY_MAX_ATTEMPTS"), 1),
		RateRetryBase:       parseDuration(k.String("RATES_RETRY_BASE"), "200ms"),
		RateRetryJitter:     parseFloat(k.String("RATES_RETRY_JITTER"), 0.2),
		RateRefreshLimit:    valueOrDefault(k.String("RATES_REFRESH_LIMIT"), "10-M"),

		CircuitMinRequests:  parseInt(k.String("CIRCUIT_RATES_MIN_REQ"), 5),
		CircuitFailureRatio: parseFloat(k.String("CIRCUIT_RATES_FAILURE_RATE"), 0.6),
		CircuitOpenFor:      parseDuration(k.String("CIRCUIT_RATES_OPEN_FOR"), "30s"),

		SessionTTL:       parseDuration(k.String("SESSION_TTL"), "24h"),
		LockTTL:          parseDuration(k.String("LOCK_TTL"), "5s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "25ms"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),

		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "10s"),
		HTTPMaxBodyBytes:   int64(parseInt(k.String("HTTP_MAX_BODY_BYTES"), 16<<10)),
		HealthRedisTimeout: time.Duration(parseInt(k.String("HEALTH_READY_REDIS_TIMEOUT_MS"), 300)) * time.Millisecond,

		AppVersion:       strings.TrimSpace(k.String("APP_VERSION")),
		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "pharma"),
		MetricsEnabled:   parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
		MetricsBuckets:   strings.TrimSpace(k.String("OBS_METRICS_BUCKETS_MS")),
		TracingEnabled:   parseBool(k.String("OBS_ENABLE_TRACING"), true),
		TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingRatio:     parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),

		SecurityHeaders: parseBool(k.String("SECURITY_HEADERS_ENABLED"), true),
		SecurityHSTS:    parseBool(k.String("SECURITY_HSTS_ENABLED"), false),
		PprofEnabled:    parseBool(k.String("OBS_ENABLE_PPROF"), false),
		PprofUser:       strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:       strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
	}

	if cfg.CatalogDefaultLimit <= 0 {
		return nil, errors.New("CATALOG_DEFAULT_LIMIT must be positive")
	}
	if cfg.CatalogMaxLimit < cfg.CatalogDefaultLimit {
		return nil, errors.New("CATALOG_MAX_LIMIT must not be below CATALOG_DEFAULT_LIMIT")
	}
	if cfg.RateRefreshInterval <= 0 {
		return nil, errors.New("RATES_REFRESH_INTERVAL must be positive")
	}
	if cfg.HTTPMaxBodyBytes <= 0 {
		return nil, errors.New("HTTP_MAX_BODY_BYTES must be positive")
	}
	if _, err := limiter.NewRateFromFormatted(cfg.RateRefreshLimit); err != nil {
		return nil, fmt.Errorf("RATES_REFRESH_LIMIT: %w", err)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// RedisEnabled reports whether a Redis backend was configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
