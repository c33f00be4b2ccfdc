// Package config handles application configuration via environment variables.
// It uses kelseyhightower/envconfig for parsing and provides sensible defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
// Values are loaded from environment variables with the prefix "APP".
// Every field also falls back to its bare name, so DB_HOST works as well as
// APP_DB_HOST.
type Config struct {
	// Server configuration (embedded to flatten env vars)
	Server ServerConfig

	// Database configuration (embedded to flatten env vars)
	Database DatabaseConfig

	// Logging configuration (embedded to flatten env vars)
	Log LogConfig

	// Metrics configuration
	Metrics MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// ServiceName is reported by the liveness endpoint (default: product-service)
	ServiceName string `envconfig:"SERVICE_NAME" default:"product-service"`

	// Port is the HTTP server port (default: 3002)
	Port int `envconfig:"PORT" default:"3002"`

	// Host is the HTTP server host (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// ReadTimeout is the maximum duration for reading the entire request (default: 10s)
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`

	// WriteTimeout is the maximum duration before timing out writes of the response (default: 30s)
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`

	// ShutdownTimeout is the maximum duration to wait for active connections to finish (default: 30s)
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
// It is read-only once loaded; the db layer never mutates it.
type DatabaseConfig struct {
	// Host is the database host (default: localhost)
	Host string `envconfig:"DB_HOST" default:"localhost"`

	// Port is the database port (default: 5432)
	Port int `envconfig:"DB_PORT" default:"5432"`

	// User is the database user (default: postgres)
	User string `envconfig:"DB_USER" default:"postgres"`

	// Password is the database password (required in production)
	Password string `envconfig:"DB_PASSWORD" default:"password"`

	// Name is the database name (default: product_db)
	Name string `envconfig:"DB_NAME" default:"product_db"`

	// SSL is the explicit transport security override: false, require, verify.
	// Empty means auto-detect from the host.
	SSL string `envconfig:"DB_SSL"`

	// PoolMax bounds active+idle connections (default: 20)
	PoolMax int `envconfig:"DB_POOL_MAX" default:"20"`

	// IdleTimeout closes connections idle for longer than this (default: 30s)
	IdleTimeout time.Duration `envconfig:"DB_IDLE_TIMEOUT" default:"30s"`

	// ConnectTimeout bounds both dialing and waiting for a free connection (default: 2s)
	ConnectTimeout time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"2s"`

	// StatementTimeout applies to statements whose context carries no deadline (default: 30s)
	StatementTimeout time.Duration `envconfig:"DB_STATEMENT_TIMEOUT" default:"30s"`

	// MaxRetries is the number of scheduled reconnection probes before giving up (default: 5)
	MaxRetries int `envconfig:"DB_MAX_RETRIES" default:"5"`

	// RetryBaseDelay is the first reconnection delay (default: 1s)
	RetryBaseDelay time.Duration `envconfig:"DB_RETRY_BASE_DELAY" default:"1s"`

	// RetryMaxDelay caps the reconnection delay (default: 10s)
	RetryMaxDelay time.Duration `envconfig:"DB_RETRY_MAX_DELAY" default:"10s"`

	// ShutdownGrace is how long Shutdown waits for borrowed connections (default: 10s)
	ShutdownGrace time.Duration `envconfig:"DB_SHUTDOWN_GRACE" default:"10s"`

	// Migrate runs the embedded schema migrations on startup (default: false)
	Migrate bool `envconfig:"DB_MIGRATE" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is the log level: debug, info, warn, error (default: info)
	Level string `envconfig:"LOG_LEVEL" default:"info"`

	// Format is the log format: json, text, plain (default: json)
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled exposes GET /metrics (default: true)
	Enabled bool `envconfig:"METRICS_ENABLED" default:"true"`

	// Namespace prefixes every metric name (default: product_service)
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"product_service"`
}

// ErrInvalidConfig is the base of every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// FieldError reports one invalid configuration value.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Field, e.Message)
}

// Unwrap returns ErrInvalidConfig for errors.Is support.
func (e *FieldError) Unwrap() error {
	return ErrInvalidConfig
}

// Validate checks that the connection parameters can produce a working pool.
// Failures are fatal at startup and never retried.
func (c *DatabaseConfig) Validate() error {
	var errs []error
	check := func(ok bool, field, msg string) {
		if !ok {
			errs = append(errs, &FieldError{Field: field, Message: msg})
		}
	}

	check(strings.TrimSpace(c.Host) != "", "DB_HOST", "must not be empty")
	check(c.Port > 0 && c.Port <= 65535, "DB_PORT", "must be between 1 and 65535")
	check(strings.TrimSpace(c.Name) != "", "DB_NAME", "must not be empty")
	check(strings.TrimSpace(c.User) != "", "DB_USER", "must not be empty")
	check(c.PoolMax >= 1, "DB_POOL_MAX", "must be at least 1")
	check(c.IdleTimeout > 0, "DB_IDLE_TIMEOUT", "must be positive")
	check(c.ConnectTimeout > 0, "DB_CONNECT_TIMEOUT", "must be positive")
	check(c.StatementTimeout > 0, "DB_STATEMENT_TIMEOUT", "must be positive")
	check(c.MaxRetries >= 0, "DB_MAX_RETRIES", "must not be negative")
	check(c.RetryBaseDelay > 0, "DB_RETRY_BASE_DELAY", "must be positive")
	check(c.RetryMaxDelay >= c.RetryBaseDelay, "DB_RETRY_MAX_DELAY", "must not be lower than DB_RETRY_BASE_DELAY")

	return errors.Join(errs...)
}

// DSN returns the PostgreSQL connection string.
// sslmode is supplied by the caller because it is resolved from the host.
func (c *DatabaseConfig) DSN(sslMode string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from environment variables.
// It returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	var cfg Config

	// Load each config section separately to flatten env var names
	// This allows env vars like APP_PORT instead of APP_SERVER_PORT
	if err := envconfig.Process("APP", &cfg.Server); err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}
	if err := envconfig.Process("APP", &cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}
	if err := envconfig.Process("APP", &cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to load log config: %w", err)
	}
	if err := envconfig.Process("APP", &cfg.Metrics); err != nil {
		return nil, fmt.Errorf("failed to load metrics config: %w", err)
	}

	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
