// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	OverflowDropOldest = "drop_oldest"
	OverflowReject     = "reject"

	StoreDriverPostgres   = "postgres"
	StoreDriverClickHouse = "clickhouse"

	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

type Config struct {
	Port    string
	GinMode string

	Redis    RedisConfig
	Queue    QueueConfig
	Store    StoreConfig
	Postgres PostgresConfig
	CH       ClickHouseConfig
	Worker   WorkerConfig
	HTTP     HTTPConfig
	Log      LogConfig
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

type QueueConfig struct {
	Key            string
	MaxLen         int64
	OverflowPolicy string
}

type StoreConfig struct {
	Driver string
}

type PostgresConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns DATABASE_URL when set, otherwise a URL built from the parts.
func (c PostgresConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

type WorkerConfig struct {
	PopTimeout    time.Duration
	WriteTimeout  time.Duration
	BackoffPolicy string
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	MetricsPort   string
}

type HTTPConfig struct {
	MaxBodyBytes    int64
	RateLimitMax    int64
	RateLimitWindow time.Duration
	StatsAPIKey     string
	JWTSecret       string
	AllowedOrigins  []string
	// TrustedProxies may set X-Forwarded-For; empty trusts none.
	TrustedProxies []string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads the environment. Every malformed value is reported.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		Port:    p.str("PORT", "3000"),
		GinMode: p.str("GIN_MODE", ""),
		Redis: RedisConfig{
			Host:     p.str("REDIS_HOST", "127.0.0.1"),
			Port:     p.int("REDIS_PORT", 6379),
			Password: p.str("REDIS_PASSWORD", ""),
			DB:       p.int("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Key:            p.str("QUEUE_KEY", "events:queue"),
			MaxLen:         p.int64("QUEUE_MAX_LEN", 1000000),
			OverflowPolicy: strings.ToLower(p.str("QUEUE_OVERFLOW_POLICY", OverflowDropOldest)),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(p.str("STORE_DRIVER", StoreDriverPostgres)),
		},
		Postgres: PostgresConfig{
			URL:      p.str("DATABASE_URL", ""),
			Host:     p.str("PGHOST", "localhost"),
			Port:     p.int("PGPORT", 5432),
			User:     p.str("PGUSER", "analytics"),
			Password: p.str("PGPASSWORD", "analytics-pass"),
			Database: p.str("PGDATABASE", "analytics_db"),
			SSLMode:  p.str("PGSSLMODE", "disable"),
		},
		CH: ClickHouseConfig{
			Host:     p.str("CLICKHOUSE_HOST", "localhost"),
			Port:     p.int("CLICKHOUSE_NATIVE_PORT", 9000),
			Database: p.str("CLICKHOUSE_DB_NAME", "analytics_db"),
			Username: p.str("CLICKHOUSE_USERNAME", "default"),
			Password: p.str("CLICKHOUSE_PASSWORD", ""),
		},
		Worker: WorkerConfig{
			PopTimeout:    p.duration("POP_TIMEOUT", 5*time.Second),
			WriteTimeout:  p.duration("WRITE_TIMEOUT", 10*time.Second),
			BackoffPolicy: strings.ToLower(p.str("BACKOFF_POLICY", BackoffFixed)),
			BackoffBase:   p.duration("BACKOFF_BASE", time.Second),
			BackoffMax:    p.duration("BACKOFF_MAX", 30*time.Second),
			MetricsPort:   p.str("WORKER_METRICS_PORT", "9091"),
		},
		HTTP: HTTPConfig{
			MaxBodyBytes:    p.int64("MAX_BODY_BYTES", 1<<20),
			RateLimitMax:    p.int64("RATE_LIMIT_MAX", 200),
			RateLimitWindow: p.duration("RATE_LIMIT_WINDOW", 10*time.Second),
			StatsAPIKey:     p.str("STATS_API_KEY", ""),
			JWTSecret:       p.str("JWT_SECRET_KEY", ""),
			AllowedOrigins:  p.list("CORS_ALLOWED_ORIGINS"),
			TrustedProxies:  p.list("TRUSTED_PROXIES"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(p.str("LOG_LEVEL", "info")),
			Format: strings.ToLower(p.str("LOG_FORMAT", "json")),
		},
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Queue.OverflowPolicy {
	case OverflowDropOldest, OverflowReject:
	default:
		errs = append(errs, fmt.Errorf("invalid QUEUE_OVERFLOW_POLICY %q (must be %s or %s)", c.Queue.OverflowPolicy, OverflowDropOldest, OverflowReject))
	}
	if c.Queue.MaxLen <= 0 {
		errs = append(errs, fmt.Errorf("QUEUE_MAX_LEN must be positive, got %d", c.Queue.MaxLen))
	}
	if c.Queue.Key == "" {
		errs = append(errs, errors.New("QUEUE_KEY must not be empty"))
	}

	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverClickHouse:
	default:
		errs = append(errs, fmt.Errorf("invalid STORE_DRIVER %q (must be %s or %s)", c.Store.Driver, StoreDriverPostgres, StoreDriverClickHouse))
	}

	switch c.Worker.BackoffPolicy {
	case BackoffFixed, BackoffExponential:
	default:
		errs = append(errs, fmt.Errorf("invalid BACKOFF_POLICY %q (must be %s or %s)", c.Worker.BackoffPolicy, BackoffFixed, BackoffExponential))
	}
	if c.Worker.PopTimeout < time.Second {
		// BLPOP timeouts below one second are rounded up by the client.
		errs = append(errs, fmt.Errorf("POP_TIMEOUT must be at least 1s, got %s", c.Worker.PopTimeout))
	}
	if c.Worker.BackoffBase <= 0 || c.Worker.BackoffMax < c.Worker.BackoffBase {
		errs = append(errs, fmt.Errorf("BACKOFF_BASE must be positive and not exceed BACKOFF_MAX"))
	}

	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.HTTP.MaxBodyBytes))
	}
	if c.HTTP.RateLimitMax < 0 || c.HTTP.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be >= 0 and RATE_LIMIT_WINDOW positive"))
	}

	return errors.Join(errs...)
}

// IsRelease reports whether gin should run in release mode.
func (c *Config) IsRelease() bool { return c.GinMode == "release" }

type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) int64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) list(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
