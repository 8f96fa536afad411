package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/membrane/internal/api/http"
	"github.com/GriffinCanCode/membrane/internal/api/middleware"
	"github.com/GriffinCanCode/membrane/internal/api/ws"
	"github.com/GriffinCanCode/membrane/internal/infrastructure/config"
	"github.com/GriffinCanCode/membrane/internal/infrastructure/logging"
	"github.com/GriffinCanCode/membrane/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/membrane/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/membrane/internal/sandbox"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *nethttp.Server
	pool       *sandbox.ReloadablePool
	programs   *sandbox.ProgramCache
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer

	reloadMu sync.Mutex
	ctx      context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)

	logger.Info("Initializing membrane server",
		zap.String("port", cfg.Server.Port),
		zap.Int("pool_size", cfg.Sandbox.PoolSize),
		zap.Duration("timeout", cfg.Sandbox.Timeout),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)
	tracer := tracing.New("membrane", logger.Logger)

	ctx, stop := context.WithCancel(context.Background())
	s := &Server{
		ctx:      ctx,
		stop:     stop,
		programs: sandbox.NewProgramCache(cfg.Sandbox.ProgramCacheSize),
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		tracer:   tracer,
	}

	pool, err := s.newPool(ctx)
	if err != nil {
		stop()
		tracer.Close()
		return nil, fmt.Errorf("failed to create sandbox pool: %w", err)
	}
	s.pool = sandbox.NewReloadablePool(pool)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	// Decoded bodies are what the limit applies to
	router.Use(middleware.Decompress())
	router.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	handlers := http.NewHandlers(s.pool, metrics, tracer, logger.Logger, cfg.Sandbox.MaxScriptBytes)
	wsHandler := ws.NewHandler(s.pool, logger.Logger, cfg.Sandbox.MaxScriptBytes, cfg.Sandbox.Timeout)

	// Public endpoints
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/")
	if cfg.Server.APIKeyHash != "" {
		logger.Info("API key authentication enabled")
		api.Use(middleware.APIKey(cfg.Server.APIKeyHash))
	}

	// Guest execution
	api.POST("/execute", handlers.Execute)
	api.POST("/execute/file", handlers.ExecuteFile)
	api.GET("/execute/stream", wsHandler.HandleConnection)

	// Introspection
	api.GET("/sandbox/stats", handlers.PoolStats)
	api.GET("/metrics/json", handlers.Metrics)

	s.router = router
	s.httpServer = &nethttp.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() nethttp.Handler {
	return s.router
}

// Pool returns the pool serving executions
func (s *Server) Pool() *sandbox.ReloadablePool {
	return s.pool
}

func (s *Server) newPool(ctx context.Context) (*sandbox.Pool, error) {
	sc, err := SandboxConfig(ctx, s.config, s.programs, s.logger.Logger)
	if err != nil {
		return nil, err
	}
	pool, err := sandbox.NewPool(sc, s.config.Sandbox.PoolSize,
		sandbox.WithPoolLogger(s.logger.Logger),
		sandbox.WithRuntimeOptions(
			sandbox.WithLogger(s.logger.Logger),
			sandbox.WithMetrics(s.metrics),
		),
	)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Sandbox pool created",
		zap.String("policy", s.config.Sandbox.PolicyFile),
		zap.String("fingerprint", PolicyFingerprint(sc.Policy)),
		zap.Bool("bridge", sc.Bridge != nil))
	return pool, nil
}

// Reload rebuilds the sandbox pool from the policy file and host scripts
// and swaps it in. In-flight executions finish on the old pool. On error
// the current pool keeps serving.
func (s *Server) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	pool, err := s.newPool(ctx)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return s.pool.Swap(pool)
}

// Run starts the HTTP server and, when enabled, the policy watcher. It
// returns once the server stops.
func (s *Server) Run() error {
	if s.config.Sandbox.WatchPolicy {
		reloader, err := NewReloader(s, s.logger.Logger, s.config.Sandbox.PolicyFile, s.config.Sandbox.HostScriptDir)
		switch {
		case errors.Is(err, ErrNothingToWatch):
		case err != nil:
			s.logger.Warn("Policy watching disabled", zap.Error(err))
		default:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				reloader.Run(s.ctx)
			}()
		}
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	s.stop()
	s.wg.Wait()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Error("HTTP shutdown incomplete", zap.Error(err))
	}

	if cerr := s.pool.Close(); cerr != nil {
		s.logger.Error("Failed to close sandbox pool", zap.Error(cerr))
		err = errors.Join(err, cerr)
	}
	s.tracer.Close()

	_ = s.logger.Sync()
	return err
}
