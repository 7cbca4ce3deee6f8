// Package api serves the playground over HTTP: the editor-facing REST
// endpoints, the realtime websocket and the operational endpoints.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/playground/internal/bundler"
	"github.com/fluxbase-eu/playground/internal/config"
	"github.com/fluxbase-eu/playground/internal/middleware"
	"github.com/fluxbase-eu/playground/internal/observability"
	"github.com/fluxbase-eu/playground/internal/pipeline"
	"github.com/fluxbase-eu/playground/internal/realtime"
)

// Playground is the running pipeline. *pipeline.Orchestrator implements it.
type Playground interface {
	realtime.Session
	UpdateOptions(update pipeline.OptionsUpdate) error
	Settle(ctx context.Context) (*pipeline.Snapshot, error)
}

// ServerDeps are the components the server exposes. Playground and Compiler
// are required.
type ServerDeps struct {
	Playground Playground
	// Compiler and Bundler serve the stateless compile and analysis endpoints
	Compiler pipeline.Compiler
	Bundler  *bundler.Pipeline
	Realtime *realtime.Manager
	Metrics  *observability.Metrics
}

// Server represents the HTTP server
type Server struct {
	app             *fiber.App
	config          *config.Config
	playground      Playground
	compiler        pipeline.Compiler
	bundler         *bundler.Pipeline
	realtimeManager *realtime.Manager
	realtimeHandler *realtime.RealtimeHandler
	metrics         *observability.Metrics
	tracer          *observability.Tracer
	startTime       time.Time
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, deps ServerDeps) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "Playground",
		AppName:               "Playground " + observability.ServiceVersion,
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	tracerCfg := observability.TracerConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	}
	tracer, err := observability.NewTracer(context.Background(), tracerCfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize OpenTelemetry tracer, tracing will be disabled")
	}

	bun := deps.Bundler
	if bun == nil {
		bun = bundler.NewPipeline(bundler.WithMetrics(deps.Metrics))
	}

	server := &Server{
		app:             app,
		config:          cfg,
		playground:      deps.Playground,
		compiler:        deps.Compiler,
		bundler:         bun,
		realtimeManager: deps.Realtime,
		metrics:         deps.Metrics,
		tracer:          tracer,
		startTime:       time.Now(),
	}

	if deps.Realtime != nil && cfg.Realtime.Enabled {
		server.realtimeHandler = realtime.NewRealtimeHandler(deps.Realtime, deps.Playground, realtime.HandlerConfig{
			PingInterval:     cfg.Realtime.PingInterval,
			MessageSizeLimit: cfg.Realtime.MessageSizeLimit,
			ReadBufferSize:   cfg.Realtime.ReadBufferSize,
			WriteBufferSize:  cfg.Realtime.WriteBufferSize,
		})
	}

	server.setupMiddlewares()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddlewares() {
	// Request ID middleware - must be first for tracing
	log.Debug().Msg("Adding requestid middleware")
	s.app.Use(requestid.New())

	if s.config.Tracing.Enabled && s.tracer != nil && s.tracer.IsEnabled() {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.TracingMiddleware(middleware.TracingConfig{
			Enabled:     true,
			ServiceName: s.config.Tracing.ServiceName,
			SkipPaths:   []string{"/health", s.config.Metrics.Path, "/ws"},
		}))
	}

	logCfg := middleware.DefaultStructuredLoggerConfig()
	logCfg.SkipPaths = []string{"/health", s.config.Metrics.Path}
	logCfg.LogRequestBody = s.config.Debug
	s.app.Use(middleware.StructuredLogger(logCfg))

	log.Debug().Msg("Adding recover middleware")
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	log.Debug().Str("origins", s.config.Server.CORSOrigins).Msg("Adding CORS middleware")
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.config.Server.CORSOrigins,
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Request-ID",
	}))

	if s.metrics != nil && s.config.Metrics.Enabled {
		s.app.Use(s.metrics.MetricsMiddleware())
	}
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	if s.metrics != nil && s.config.Metrics.Enabled {
		s.app.Get(s.config.Metrics.Path, s.metrics.Handler())
	}

	if s.realtimeHandler != nil {
		s.app.Get("/ws", s.realtimeHandler.HandleWebSocket)
	}

	v1 := s.app.Group("/api/v1")

	pg := v1.Group("/playground")
	pg.Get("/", s.handleGetSnapshot)
	pg.Put("/source", s.handleSetSource)
	pg.Put("/options", s.handleSetOptions)
	pg.Put("/view", s.handleSetView)
	pg.Get("/output", s.handleGetOutput)
	pg.Get("/diagnostics", s.handleGetDiagnostics)
	pg.Get("/fragment", s.handleGetFragment)

	// Stateless endpoints share one per-IP budget
	limit := func(c *fiber.Ctx) error { return c.Next() }
	if s.config.Server.CompileRateLimit > 0 {
		limit = middleware.CompileLimiter(s.config.Server.CompileRateLimit, s.config.Server.CompileRateWindow)
	}
	pg.Get("/analysis", limit, s.handleGetAnalysis)
	pg.Post("/compile", limit, s.handleCompile)

	v1.Get("/realtime/stats", s.handleRealtimeStats)
}

// handleHealth reports liveness and the pipeline generation
func (s *Server) handleHealth(c *fiber.Ctx) error {
	if s.metrics != nil {
		s.metrics.UpdateUptime(s.startTime)
	}

	status := "ok"
	var generation uint64
	if snap := s.playground.Snapshot(); snap != nil {
		generation = snap.Generation
	}
	if s.compiler == nil || !s.compiler.Ready() {
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"status":     status,
		"version":    observability.ServiceVersion,
		"generation": generation,
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleRealtimeStats returns realtime statistics
func (s *Server) handleRealtimeStats(c *fiber.Ctx) error {
	if s.realtimeHandler == nil {
		return SendErrorWithCode(c, fiber.StatusNotFound, "realtime is disabled", CodeRealtimeDisabled)
	}
	return c.JSON(s.realtimeHandler.GetStats())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.realtimeManager != nil {
		log.Info().Msg("Closing WebSocket connections")
		s.realtimeManager.Shutdown()
	}

	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown tracer")
		}
	}

	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app
func (s *Server) App() *fiber.App {
	return s.app
}
