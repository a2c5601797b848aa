package config

import (
	"context"
	"time"
)

// ListenerConfig holds the network settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the thread service.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode, the X-User-ID header is accepted as the caller identity.
	Mode string

	// Store backend type: "redis" or "memory".
	StoreType string

	// Redis
	RedisURL string

	// KeyPrefix namespaces every key written by the store engine so multiple
	// deployments can share one Redis database.
	KeyPrefix string

	// Default page size when a list request omits the limit parameter.
	DefaultPageLimit int
	// Upper bound applied to caller-supplied limits.
	MaxPageLimit int

	// OIDC
	OIDCIssuer       string
	OIDCDiscoveryURL string // Internal URL for OIDC discovery (when issuer URL is not reachable)

	// APIKeys maps static API key values to user IDs
	// (THREAD_SERVICE_API_KEYS_<USER_ID>=<key>).
	APIKeys map[string]string // key value → userID

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly
	// provided. When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for /health, /ready and
	// /metrics. Disabled by default to suppress probe noise from the access log.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:             ModeProd,
		StoreType:        "redis",
		KeyPrefix:        "chatkit",
		DefaultPageLimit: 20,
		MaxPageLimit:     100,
		Listener: ListenerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
		},
		MaxBodySize:  1 * 1024 * 1024, // 1 MB
		DrainTimeout: 30,
	}
}
