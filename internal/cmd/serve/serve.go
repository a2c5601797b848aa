package serve

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/thread-service/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/thread-service/internal/plugin/route/system"
	_ "github.com/chirino/thread-service/internal/plugin/store/memory"
	_ "github.com/chirino/thread-service/internal/plugin/store/redis"
)

// Command returns the serve sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var readHeaderTimeoutSecs int = 5
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the thread service HTTP server",
		Flags: flags(&cfg, &readHeaderTimeoutSecs),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.ApplyAPIKeysFromEnv()
			cfg.Listener.ReadHeaderTimeout = time.Duration(readHeaderTimeoutSecs) * time.Second
			cfg.ManagementListener.ReadHeaderTimeout = cfg.Listener.ReadHeaderTimeout
			cfg.ManagementListenerEnabled = cmd.IsSet("management-port")
			return run(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config, readHeaderTimeoutSecs *int) []cli.Flag {
	return []cli.Flag{

		// ── Server ────────────────────────────────────────────────
		&cli.IntFlag{
			Name:        "port",
			Category:    "Server:",
			Sources:     cli.EnvVars("THREAD_SERVICE_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.IntFlag{
			Name:        "management-port",
			Category:    "Server:",
			Sources:     cli.EnvVars("THREAD_SERVICE_MANAGEMENT_PORT"),
			Destination: &cfg.ManagementListener.Port,
			Value:       cfg.ManagementListener.Port,
			Usage:       "Dedicated port for health and metrics; when unset, served on the main port",
		},
		&cli.IntFlag{
			Name:        "read-header-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("THREAD_SERVICE_READ_HEADER_TIMEOUT_SECONDS"),
			Destination: readHeaderTimeoutSecs,
			Value:       *readHeaderTimeoutSecs,
			Usage:       "HTTP read header timeout in seconds",
		},
		&cli.BoolFlag{
			Name:        "management-access-log",
			Category:    "Server:",
			Sources:     cli.EnvVars("THREAD_SERVICE_MANAGEMENT_ACCESS_LOG"),
			Destination: &cfg.ManagementAccessLog,
			Usage:       "Enable HTTP access logging for management endpoints (/health, /ready, /metrics)",
		},
		&cli.IntFlag{
			Name:        "drain-timeout-seconds",
			Category:    "Server:",
			Sources:     cli.EnvVars("THREAD_SERVICE_DRAIN_TIMEOUT_SECONDS"),
			Destination: &cfg.DrainTimeout,
			Value:       cfg.DrainTimeout,
			Usage:       "Seconds to wait for in-flight requests during shutdown",
		},
		&cli.Int64Flag{
			Name:        "max-body-size",
			Category:    "Server:",
			Sources:     cli.EnvVars("THREAD_SERVICE_MAX_BODY_SIZE"),
			Destination: &cfg.MaxBodySize,
			Value:       cfg.MaxBodySize,
			Usage:       "Maximum request body size in bytes",
		},
		&cli.BoolFlag{
			Name:        "cors",
			Category:    "Server:",
			Sources:     cli.EnvVars("THREAD_SERVICE_CORS"),
			Destination: &cfg.CORSEnabled,
			Usage:       "Enable CORS handling",
		},
		&cli.StringFlag{
			Name:        "cors-origins",
			Category:    "Server:",
			Sources:     cli.EnvVars("THREAD_SERVICE_CORS_ORIGINS"),
			Destination: &cfg.CORSOrigins,
			Usage:       "Comma-separated allowed CORS origins; empty allows any origin",
		},

		// ── Storage ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "store",
			Category:    "Storage:",
			Sources:     cli.EnvVars("THREAD_SERVICE_STORE"),
			Destination: &cfg.StoreType,
			Value:       cfg.StoreType,
			Usage:       "Store backend: redis or memory",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Storage:",
			Sources:     cli.EnvVars("THREAD_SERVICE_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis connection URL (e.g. redis://localhost:6379/0)",
		},
		&cli.StringFlag{
			Name:        "key-prefix",
			Category:    "Storage:",
			Sources:     cli.EnvVars("THREAD_SERVICE_KEY_PREFIX"),
			Destination: &cfg.KeyPrefix,
			Value:       cfg.KeyPrefix,
			Usage:       "Prefix applied to every key written by the store",
		},
		&cli.IntFlag{
			Name:        "default-page-limit",
			Category:    "Storage:",
			Sources:     cli.EnvVars("THREAD_SERVICE_DEFAULT_PAGE_LIMIT"),
			Destination: &cfg.DefaultPageLimit,
			Value:       cfg.DefaultPageLimit,
			Usage:       "Page size when a list request omits limit",
		},
		&cli.IntFlag{
			Name:        "max-page-limit",
			Category:    "Storage:",
			Sources:     cli.EnvVars("THREAD_SERVICE_MAX_PAGE_LIMIT"),
			Destination: &cfg.MaxPageLimit,
			Value:       cfg.MaxPageLimit,
			Usage:       "Upper bound applied to caller-supplied limits",
		},

		// ── Security ──────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "mode",
			Category:    "Security:",
			Sources:     cli.EnvVars("THREAD_SERVICE_MODE"),
			Destination: &cfg.Mode,
			Value:       cfg.Mode,
			Usage:       "prod or testing; testing accepts the X-User-ID header",
		},
		&cli.StringFlag{
			Name:        "oidc-issuer",
			Category:    "Security:",
			Sources:     cli.EnvVars("THREAD_SERVICE_OIDC_ISSUER"),
			Destination: &cfg.OIDCIssuer,
			Usage:       "OIDC issuer URL for bearer token verification",
		},
		&cli.StringFlag{
			Name:        "oidc-discovery-url",
			Category:    "Security:",
			Sources:     cli.EnvVars("THREAD_SERVICE_OIDC_DISCOVERY_URL"),
			Destination: &cfg.OIDCDiscoveryURL,
			Usage:       "Internal URL for OIDC discovery when the issuer URL is not reachable",
		},

		// ── Monitoring ────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("THREAD_SERVICE_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=thread-service",
			Usage:       "Comma-separated key=value pairs added as constant labels to all Prometheus metrics. Supports ${VAR} expansion.",
		},
	}
}

func run(ctx context.Context, cfg config.Config) error {
	srv, err := StartServer(ctx, &cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("Shutdown error", "err", err)
	}
	log.Info("Server stopped")
	return nil
}

func maxBodySizeMiddleware(maxBodySize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		c.Next()
	}
}
