// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Upload   UploadConfig
	Auth     AuthConfig
	Webhook  WebhookConfig
	Worker   WorkerConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 5000)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"5000"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RedisConfig holds broker connection settings for the import queue.
// The broker is optional: when it is unreachable the queue manager
// degrades to synchronous inline imports for the process lifetime.
type RedisConfig struct {
	// Addr is the Redis host:port used by the import queue (default: localhost:6379)
	Addr string `env:"REDIS_ADDR" default:"localhost:6379"`

	// Password is the Redis password, if any
	Password string `env:"REDIS_PASSWORD"`

	// DB is the Redis database number (default: 0)
	DB int `env:"REDIS_DB" default:"0"`

	// ProbeTimeout bounds the reachability check performed once at
	// queue initialization (default: 1s)
	ProbeTimeout time.Duration `env:"REDIS_PROBE_TIMEOUT" default:"1s"`
}

// UploadConfig holds file upload settings.
type UploadConfig struct {
	// Dir is the directory where uploaded files are stored (default: uploads)
	Dir string `env:"UPLOAD_DIR" default:"uploads"`

	// MaxCSVBytes is the maximum allowed CSV file size (default: 100MB)
	MaxCSVBytes int64 `env:"UPLOAD_MAX_CSV_BYTES" default:"104857600"`

	// MaxDocumentBytes is the maximum allowed document file size (default: 50MB)
	MaxDocumentBytes int64 `env:"UPLOAD_MAX_DOCUMENT_BYTES" default:"52428800"`

	// MaxConcurrent is the maximum number of parallel uploads (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// JWTSecret signs and verifies bearer tokens (required)
	JWTSecret string `env:"JWT_SECRET" required:"true"`

	// TokenTTL is how long issued tokens remain valid (default: 168h)
	TokenTTL time.Duration `env:"AUTH_TOKEN_TTL" default:"168h"`
}

// WebhookConfig holds outbound webhook delivery settings.
type WebhookConfig struct {
	// Timeout is the per-endpoint delivery timeout (default: 10s)
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" default:"10s"`
}

// WorkerConfig holds import worker settings (cmd/worker only).
type WorkerConfig struct {
	// Concurrency is the number of tasks processed in parallel (default: 4)
	Concurrency int `env:"WORKER_CONCURRENCY" default:"4"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
