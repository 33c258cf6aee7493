package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/crossframe/internal/api/http"
	"github.com/GriffinCanCode/crossframe/internal/api/middleware"
	"github.com/GriffinCanCode/crossframe/internal/infrastructure/config"
	"github.com/GriffinCanCode/crossframe/internal/infrastructure/logging"
	"github.com/GriffinCanCode/crossframe/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/crossframe/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/crossframe/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/crossframe/internal/messaging"
	"github.com/GriffinCanCode/crossframe/internal/page"
	"github.com/GriffinCanCode/crossframe/internal/proxy"
	"github.com/GriffinCanCode/crossframe/internal/sandbox"
	"github.com/GriffinCanCode/crossframe/internal/windowsync"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and the page it serves
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	page        *page.Page
	interceptor *proxy.Interceptor
	logger      *logging.Logger
	config      *config.Config
	metrics     *monitoring.Metrics
	registry    *prometheus.Registry
	tracer      *tracing.Tracer
}

// NewServer loads the configured page and builds the router
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	sc, err := loadScenario(cfg.Page)
	if err != nil {
		return nil, err
	}
	return New(cfg, sc, logger)
}

// New builds a server for sc
func New(cfg *config.Config, sc page.Scenario, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	logger.Info("Initializing crossframe server",
		zap.String("port", cfg.Server.Port),
		zap.Duration("sync_timeout", cfg.Sync.MessageTimeout),
		zap.Int("sync_attempts", cfg.Sync.MaxAttempts),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)
	tracer := tracing.New(logger.Component("trace"))

	pg, err := page.New(sc, page.Config{
		Sync: windowsync.Config{
			MessageTimeout: cfg.Sync.MessageTimeout,
			MaxAttempts:    cfg.Sync.MaxAttempts,
			Logger:         logger.Component("windowsync"),
		},
		Runtime: sandbox.DefaultRuntimeConfig(),
		Logger:  logger.Component("page"),
		Metrics: metrics,
	})
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to load page: %w", err)
	}

	interceptor := proxy.New(proxyConfig(cfg.Proxy, logger, metrics), logger.Component("proxy"), metrics)
	bridge := messaging.NewBridge(pg.Bus(), logger.Component("bridge"), metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limit := middleware.DefaultRateLimitConfig()
		limit.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limit.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limit))
	}

	handlers := apihttp.NewHandlers(pg, bridge, interceptor.Breakers(), logger.Component("api"))

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", monitoring.Handler(registry))

	// Proxied traffic
	router.Any("/xhr", interceptor.Handle)
	router.GET("/ws", handlers.Socket)

	// Control API
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.Server.CORSOrigins
	api := router.Group("/page", middleware.CORS(corsCfg))
	api.GET("", handlers.ListWindows)
	api.POST("/cookie", handlers.SetCookie)
	api.POST("/eval", handlers.Eval)
	api.POST("/frames", handlers.AppendFrame)
	api.DELETE("/frames/:name", handlers.RemoveFrame)
	// preflights only reach the group middleware through a route
	for _, path := range []string{"", "/cookie", "/eval", "/frames", "/frames/:name"} {
		api.OPTIONS(path, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	}

	logger.Info("Server initialized successfully", zap.String("session", pg.SessionID().String()))

	return &Server{
		router:      router,
		page:        pg,
		interceptor: interceptor,
		logger:      logger,
		config:      cfg,
		metrics:     metrics,
		registry:    registry,
		tracer:      tracer,
	}, nil
}

func loadScenario(cfg config.PageConfig) (page.Scenario, error) {
	if cfg.Scenario == "" {
		return page.Scenario{Top: page.FrameSpec{Name: "top", Origin: cfg.Origin}}, nil
	}
	sc, err := page.LoadScenario(cfg.Scenario, cfg.Origin)
	if err != nil {
		return page.Scenario{}, fmt.Errorf("failed to load page scenario: %w", err)
	}
	return sc, nil
}

func proxyConfig(cfg config.ProxyConfig, logger *logging.Logger, metrics *monitoring.Metrics) proxy.Config {
	breakerLog := logger.Component("breaker")
	failures := cfg.BreakerFailures

	return proxy.Config{
		UpstreamTimeout: cfg.UpstreamTimeout,
		RetryMax:        cfg.RetryMax,
		RetryWaitMin:    cfg.RetryWaitMin,
		RetryWaitMax:    cfg.RetryWaitMax,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		Breaker: resilience.Settings{
			Timeout: cfg.BreakerTimeout,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to resilience.State) {
				breakerLog.Warn("upstream breaker state changed",
					zap.String("origin", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to))
				metrics.SetBreakerState(name, int(to))
			},
		},
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler { return s.router }

// Page returns the served page
func (s *Server) Page() *page.Page { return s.page }

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts down the HTTP server and tears down the page
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
			s.logger.Error("Failed to shut down HTTP server", zap.Error(shutdownErr))
			err = fmt.Errorf("failed to shut down HTTP server: %w", shutdownErr)
		}
	}

	s.page.Close()
	s.tracer.Close()
	_ = s.logger.Sync()
	return err
}
