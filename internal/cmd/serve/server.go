package serve

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/chirino/thread-service/internal/config"
	routesystem "github.com/chirino/thread-service/internal/plugin/route/system"
	"github.com/chirino/thread-service/internal/plugin/route/threads"
	storemetrics "github.com/chirino/thread-service/internal/plugin/store/metrics"
	registryroute "github.com/chirino/thread-service/internal/registry/route"
	registrystore "github.com/chirino/thread-service/internal/registry/store"
	"github.com/chirino/thread-service/internal/security"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.ThreadStore
	Router          *gin.Engine
	Port            int
	httpServer      *http.Server
	closeManagement func(context.Context) error
}

// Shutdown drains in-flight requests and closes the store connection.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	err := s.httpServer.Shutdown(ctx)
	if closeErr := s.Store.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// StartServer initializes all subsystems and starts the HTTP listener.
// Use cfg.Listener.Port=0 for a random port; the bound port is Server.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting thread service",
		"port", cfg.Listener.Port,
		"store", cfg.StoreType,
		"mode", cfg.Mode,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.StoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Create shared token resolver and auth middleware, then mount the API.
	resolver := security.NewTokenResolver(cfg)
	auth := security.AuthMiddleware(resolver)
	threads.MountRoutes(router, store, cfg, auth)

	// Mount management route plugins. With a dedicated management port they
	// run on their own bare engine; otherwise on the main router.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(mgmtRouter); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
		closeManagement, err = startManagementServer(cfg.ManagementListener, mgmtRouter)
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
	} else {
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(router); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Listener.Port))
	if err != nil {
		return nil, fmt.Errorf("listen failed: %w", err)
	}
	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.Listener.ReadHeaderTimeout,
	}
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", "err", err)
		}
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	log.Info("Server listening", "port", port)

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Router:          router,
		Port:            port,
		httpServer:      httpServer,
		closeManagement: closeManagement,
	}, nil
}

// startManagementServer starts a dedicated HTTP-only server for management
// endpoints (health, metrics). Returns a shutdown function.
func startManagementServer(cfg config.ListenerConfig, handler http.Handler) (func(context.Context) error, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("management listen failed: %w", err)
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("management server failed", "err", err)
		}
	}()
	log.Info("Management server listening", "addr", listener.Addr())
	return server.Shutdown, nil
}
