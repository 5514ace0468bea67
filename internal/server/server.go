package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/synapse/internal/api/http"
	"github.com/GriffinCanCode/synapse/internal/api/middleware"
	"github.com/GriffinCanCode/synapse/internal/api/ws"
	"github.com/GriffinCanCode/synapse/internal/domain/agent"
	"github.com/GriffinCanCode/synapse/internal/domain/grid"
	"github.com/GriffinCanCode/synapse/internal/domain/status"
	"github.com/GriffinCanCode/synapse/internal/domain/terminal"
	"github.com/GriffinCanCode/synapse/internal/infrastructure/config"
	"github.com/GriffinCanCode/synapse/internal/infrastructure/logging"
	"github.com/GriffinCanCode/synapse/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/synapse/internal/infrastructure/telemetry"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server wraps the HTTP server and dependencies
type Server struct {
	config    *config.Config
	logger    *logging.Logger
	registry  *prometheus.Registry
	metrics   *monitoring.Metrics
	terminals *terminal.Manager
	grid      *grid.Grid
	agents    *agent.Supervisor
	sampler   *telemetry.Sampler
	collector *status.Collector
	router    *gin.Engine

	httpServer *http.Server
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// New creates a server and every component it serves. Agents from the
// configured manifest are registered, and started when marked for it.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	logger.Info("Initializing Synapse server",
		zap.String("port", cfg.Server.Port),
		zap.String("shell", cfg.Terminal.Shell),
		zap.Int("max_agents", cfg.Agent.MaxConcurrent),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	terminals := terminal.NewManager(terminal.Options{
		Shell:        cfg.Terminal.Shell,
		Rows:         cfg.Terminal.Rows,
		Cols:         cfg.Terminal.Cols,
		DisplayLines: cfg.Terminal.DisplayLines,
		Scrollback:   cfg.Terminal.Scrollback,
	}, logger.Component("terminal")).WithMetrics(metrics)

	g := grid.New(terminals, logger.Component("grid"))

	agents := agent.NewSupervisor(agent.Options{
		MaxConcurrent: cfg.Agent.MaxConcurrent,
		OutputLines:   cfg.Agent.OutputLines,
	}, logger.Component("agent")).WithMetrics(metrics)

	if cfg.Agent.Manifest != "" {
		manifest, err := agent.LoadManifest(cfg.Agent.Manifest)
		if err != nil {
			return nil, fmt.Errorf("load agent manifest: %w", err)
		}
		ids, err := agents.Apply(manifest, cfg.Agent.AutoStart)
		if err != nil {
			logger.Warn("Some agents failed to start", zap.Error(err))
		}
		logger.Info("Agent manifest applied",
			zap.String("path", cfg.Agent.Manifest),
			zap.Int("agents", len(ids)),
			zap.Int("running", agents.ActiveCount()),
		)
	}

	// Telemetry is optional; without procfs the status bar reports zeros.
	var usage status.Telemetry
	sampler, err := telemetry.NewSampler(cfg.Telemetry.ProcPath, logger.Component("telemetry"))
	if err != nil {
		logger.Warn("Host telemetry unavailable", zap.Error(err))
	} else {
		usage = sampler
	}
	collector := status.NewCollector(g, agents, usage, logger.Component("status"))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger.Component("http")))
	router.Use(monitoring.Middleware(metrics))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.Server.AllowOrigins
	router.Use(middleware.CORS(corsCfg))

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

	apihttp.NewHandlers(g, terminals, agents, collector, metrics, logger.Component("api")).Register(router)
	ws.NewHandler(terminals, metrics, logger.Component("ws")).Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	logger.Info("Server initialized successfully")

	return &Server{
		config:    cfg,
		logger:    logger,
		registry:  registry,
		metrics:   metrics,
		terminals: terminals,
		grid:      g,
		agents:    agents,
		sampler:   sampler,
		collector: collector,
		router:    router,
	}, nil
}

// Handler returns the HTTP handler with all routes mounted
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start launches the background loops. They stop when ctx is done or on
// Shutdown.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reapLoop(ctx, s.config.Agent.ReapInterval)
	}()

	if s.sampler != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.sampler.Run(ctx, s.config.Telemetry.Interval, s.metrics)
		}()
	}
}

// Run serves HTTP until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests, stops every running agent, and closes
// every terminal session
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	s.closeOnce.Do(func() {
		s.logger.Info("Shutting down server...")

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()

		if err := s.agents.StopAll(); err != nil {
			s.logger.Error("Failed to stop agents", zap.Error(err))
			errs = append(errs, err)
		}
		if err := s.terminals.CloseAll(ctx); err != nil {
			s.logger.Error("Failed to close terminals", zap.Error(err))
			errs = append(errs, err)
		}

		s.logger.Info("Server stopped")
		_ = s.logger.Sync()
	})
	return errors.Join(errs...)
}

// reapLoop folds exited agents back to stopped and drops closed panes
func (s *Server) reapLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Server) tick() {
	if reaped := s.agents.Reap(); len(reaped) > 0 {
		s.logger.Debug("Reaped agents", zap.Int("count", len(reaped)))
	}
	if pruned := s.grid.Prune(); len(pruned) > 0 {
		s.logger.Debug("Pruned closed terminals", zap.Int("count", len(pruned)))
	}
}
