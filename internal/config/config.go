// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Bitrix   BitrixConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
	Portal   PortalConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 2m,
	// exports against a slow portal can take a while)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"2m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 2m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"2m"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// BitrixConfig holds Bitrix24 REST connection settings.
type BitrixConfig struct {
	// WebhookURL is the inbound webhook base, e.g.
	// https://example.bitrix24.ru/rest/1/abcdef123456 (required)
	WebhookURL string `env:"BITRIX_WEBHOOK_URL" required:"true"`

	// RequestTimeout is the per-request HTTP timeout (default: 30s)
	RequestTimeout time.Duration `env:"BITRIX_REQUEST_TIMEOUT" default:"30s"`

	// RequestsPerSecond throttles outbound REST calls. Bitrix24 enforces
	// roughly 2 rps per webhook (default: 2)
	RequestsPerSecond float64 `env:"BITRIX_REQUESTS_PER_SECOND" default:"2"`

	// BatchSize is the number of commands per batch call. Bitrix caps a
	// single batch at 50 commands (default: 50)
	BatchSize int `env:"BITRIX_BATCH_SIZE" default:"50"`
}

// UploadConfig holds contact file upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed upload size in bytes (default: 10MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"10485760"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// PortalConfig holds settings specific to the embedded portal pages.
type PortalConfig struct {
	// PublicBaseURL is the externally reachable base URL used to build
	// shareable product links (default: http://localhost:8080)
	PublicBaseURL string `env:"PORTAL_PUBLIC_BASE_URL" default:"http://localhost:8080"`

	// MapAPIKey is the JS geocoding API key injected into the map page
	MapAPIKey string `env:"PORTAL_MAP_API_KEY"`

	// FrameAncestors lists origins allowed to embed the portal in an
	// iframe, comma-separated. Empty allows any ancestor; the app is
	// designed to run inside the Bitrix24 frame.
	FrameAncestors []string `env:"PORTAL_FRAME_ANCESTORS"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}
