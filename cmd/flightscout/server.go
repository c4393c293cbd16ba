// Package main wires together the fan-out orchestrator's shared, long-lived
// dependencies (session provider, browser adapter, vision models, captcha
// delegation, metrics, hot-reloadable config) behind an HTTP/SSE surface.
// Grounded on cmd/agentflow/server.go's Server struct and start/shutdown
// sequencing, adapted from a chat-completion API to a flight-search one.
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/flightscout/orchestrator/api/handlers"
	"github.com/flightscout/orchestrator/config"
	"github.com/flightscout/orchestrator/internal/captcha"
	"github.com/flightscout/orchestrator/internal/metrics"
	"github.com/flightscout/orchestrator/internal/reliability"
	"github.com/flightscout/orchestrator/internal/server"
	"github.com/flightscout/orchestrator/internal/sessionprovider"
	"github.com/flightscout/orchestrator/internal/telemetry"
	"github.com/flightscout/orchestrator/internal/usercache"
	"github.com/flightscout/orchestrator/internal/visionmodel"
	"github.com/flightscout/orchestrator/types"
)

// Server is the flight-search orchestrator's process: one HTTP listener for
// the search/SSE/config API, one metrics listener, and the shared
// dependencies every incoming search request builds a fresh worker fleet
// from.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	otel       *telemetry.Providers

	ctx    context.Context
	cancel context.CancelFunc

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler  *handlers.HealthHandler
	searchHandler  *handlers.SearchHandler
	signalHandler  *handlers.CaptchaSignalHandler

	metricsCollector *metrics.Collector

	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	sessionClient *sessionprovider.Client
	breaker       *reliability.Breaker
	proxyHealth   *reliability.ProxyHealth
	signaler      *captcha.Signaler
	userCache     usercache.Store
	redisStore    *usercache.RedisStore

	wg sync.WaitGroup
}

// NewServer creates a Server. otel may be nil when telemetry initialization
// failed or was disabled; Shutdown treats it as optional.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		otel:       otel,
	}
}

// Start brings up every shared dependency, registers routes, and starts both
// listeners. It returns once both are accepting connections.
func (s *Server) Start() error {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.metricsCollector = metrics.NewCollector("flightscout", s.logger)

	if err := s.initDependencies(); err != nil {
		return fmt.Errorf("failed to init dependencies: %w", err)
	}

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// initDependencies wires the long-lived components every search request's
// per-request worker fleet is built from: the session provider client (and
// its shared circuit breaker), the captcha signaler, and the optional
// per-user context cache.
func (s *Server) initDependencies() error {
	s.breaker = reliability.NewBreaker("session-provider", reliability.DefaultBreakerConfig(), s.logger, s.metricsCollector)

	provCfg := sessionprovider.DefaultConfig()
	provCfg.BaseURL = s.cfg.Provider.BaseURL
	provCfg.ProjectID = s.cfg.Provider.ProjectID
	provCfg.APIKey = s.cfg.Provider.APIKey
	if s.cfg.Provider.CountryCode != "" {
		provCfg.CountryCode = s.cfg.Provider.CountryCode
	}
	if s.cfg.Provider.ViewportWidth > 0 {
		provCfg.ViewportWidth = s.cfg.Provider.ViewportWidth
	}
	if s.cfg.Provider.ViewportHeight > 0 {
		provCfg.ViewportHeight = s.cfg.Provider.ViewportHeight
	}
	if s.cfg.Proxy.HasExternalProxy() {
		provCfg.ExternalProxy = &sessionprovider.ProxyCreds{
			Host:     s.cfg.Proxy.Host,
			Port:     s.cfg.Proxy.Port,
			Username: s.cfg.Proxy.User,
			Password: s.cfg.Proxy.Password,
		}
	}
	s.sessionClient = sessionprovider.NewClient(provCfg, s.breaker, s.logger, s.metricsCollector)

	if provCfg.BaseURL != "" {
		s.proxyHealth = reliability.NewProxyHealth(provCfg.BaseURL, s.logger)
	}

	s.signaler = captcha.NewSignaler()

	if s.cfg.Redis.Addr != "" {
		store, err := usercache.NewRedisStore(usercache.RedisConfig{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("connect user context cache: %w", err)
		}
		s.redisStore = store
		s.userCache = usercache.Instrument(store, "redis", s.metricsCollector)
	} else {
		s.userCache = usercache.Instrument(usercache.NewInMemoryStore(0), "memory", s.metricsCollector)
	}

	return nil
}

// initHandlers constructs the HTTP handlers from the shared dependencies.
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(sessionProviderHealthCheck{s.proxyHealth})
	if s.redisStore != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("usercache", s.redisStore.Ping))
	}

	visionModel := visionmodel.Instrument(
		visionmodel.NewAnthropicModel(s.cfg.LLM.APIKey, s.cfg.LLM.Model, s.cfg.LLM.RateLimitRPS, s.logger),
		"anthropic", s.cfg.LLM.Model, s.metricsCollector,
	)

	searchDeps := handlers.SearchDependencies{
		Sessions:    sessionProviderAdapter{s.sessionClient},
		VisionModel: visionModel,
		Signaler:    s.signaler,
		UserCache:   s.userCache,
		Metrics:     s.metricsCollector,
		Logger:      s.logger,
		Orchestrator: config.OrchestratorConfig{
			ConcurrencyLimit: s.cfg.Orchestrator.ConcurrencyLimit,
			MaxWorkerRetries: s.cfg.Orchestrator.MaxWorkerRetries,
			RetryMode:        s.cfg.Orchestrator.RetryMode,
		},
		Worker: config.WorkerConfig{
			DeadlineMS:     s.cfg.Worker.DeadlineMS,
			MaxIterExtract: s.cfg.Worker.MaxIterExtract,
		},
		Captcha:        s.cfg.Captcha,
		ViewportWidth:  s.cfg.Provider.ViewportWidth,
		ViewportHeight: s.cfg.Provider.ViewportHeight,
	}
	var err error
	s.searchHandler, err = handlers.NewSearchHandler(searchDeps)
	if err != nil {
		return fmt.Errorf("init search handler: %w", err)
	}

	s.signalHandler = handlers.NewCaptchaSignalHandler(s.signaler, s.logger)

	s.logger.Info("handlers initialized")
	return nil
}

// initHotReloadManager mirrors cmd/agentflow/server.go's config-management
// wiring unchanged: the runtime config API and hot reload are ambient
// concerns independent of the domain this server exposes.
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}
	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("configuration reloaded")
		s.cfg = newConfig
	})

	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)

	return nil
}

// startHTTPServer registers routes and brings up the main listener.
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("/api/v1/search", s.searchHandler.HandleSearch)
	mux.HandleFunc("/api/v1/search/stream", s.searchHandler.HandleSearchStream)
	mux.HandleFunc("/api/v1/captcha/signal", s.signalHandler.HandleSignal)

	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
		s.logger.Info("configuration API registered")
	}

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	handler := Chain(mux,
		Recovery(s.logger),
		RequestLogger(s.logger),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(s.ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, true, s.logger),
		SecurityHeaders(),
		RequestID(),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     120 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// startMetricsServer brings up the Prometheus scrape listener.
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a shutdown signal arrives, then drains.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown cancels the server context, then stops the hot reload manager, the
// HTTP listener, the metrics listener, the user cache and telemetry, in that
// order.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown...")

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("hot reload manager shutdown error", zap.Error(err))
		}
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}

	if s.redisStore != nil {
		if err := s.redisStore.Close(); err != nil {
			s.logger.Error("user cache shutdown error", zap.Error(err))
		}
	}

	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()

	s.logger.Info("graceful shutdown completed")
}

// sessionProviderHealthCheck adapts reliability.ProxyHealth's bool-returning
// Check into the handlers.HealthCheck error-returning contract.
type sessionProviderHealthCheck struct {
	probe *reliability.ProxyHealth
}

func (c sessionProviderHealthCheck) Name() string { return "session_provider" }

func (c sessionProviderHealthCheck) Check(ctx context.Context) error {
	if c.probe == nil {
		return nil
	}
	if !c.probe.Check(ctx) {
		return fmt.Errorf("session provider endpoint unreachable")
	}
	return nil
}

// sessionProviderAdapter narrows sessionprovider.Client's pointer-returning
// CreateSession to the value-returning shape worker.SessionProvider expects.
type sessionProviderAdapter struct {
	client *sessionprovider.Client
}

func (a sessionProviderAdapter) CreateSession(ctx context.Context) (types.SessionHandle, error) {
	handle, err := a.client.CreateSession(ctx)
	if err != nil {
		return types.SessionHandle{}, err
	}
	return *handle, nil
}

func (a sessionProviderAdapter) CloseSession(ctx context.Context, sessionID string) {
	a.client.CloseSession(ctx, sessionID)
}
