package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/martijn/vmorch/internal/api/handler"
	"github.com/martijn/vmorch/internal/api/middleware"
	"github.com/martijn/vmorch/internal/core/service"
	"github.com/martijn/vmorch/internal/presets"
	"github.com/martijn/vmorch/pkg/config"
)

//go:embed openapi.json
var openAPIDocument []byte

// Dependencies are the services the API is built on.
type Dependencies struct {
	Executor handler.Executor
	Events   handler.Subscriber
	Jobs     *service.JobService
	Hosts    handler.HostDirectory
	Presets  *presets.Catalog
	Tokens   *service.TokenService
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

type Server struct {
	router *gin.Engine
	srv    *http.Server
	config *config.Config
	logger *slog.Logger

	// cancel ends the base context of every request, which closes
	// streaming responses on shutdown.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	// Set Gin mode
	if !cfg.IsDevMode() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	// Initialize handlers
	jobHandler := handler.NewJobHandler(deps.Executor, deps.Jobs, deps.Presets, cfg.LogQueryLimit)
	eventHandler := handler.NewEventHandler(deps.Events, deps.Jobs)
	wsHandler := handler.NewWSHandler(deps.Executor, deps.Events, deps.Presets, cfg.CORSOrigins, logger)
	hostHandler := handler.NewHostHandler(deps.Hosts)
	commandHandler := handler.NewCommandHandler(deps.Presets)

	// Public routes (no auth required)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	router.GET("/openapi.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", openAPIDocument)
	})
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/openapi.json")))

	// Protected routes (auth required). Limiting runs after auth so that
	// authenticated clients are keyed by token subject.
	authMiddleware := middleware.AuthMiddleware(deps.Tokens)
	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateLimitBurst).Middleware()

	// Jobs
	jobs := router.Group("/jobs")
	jobs.Use(authMiddleware, limiter)
	{
		jobs.POST("", jobHandler.Execute)
		jobs.GET("", jobHandler.ListJobs)
		jobs.GET("/active", jobHandler.ListActive)
		jobs.GET("/:id", jobHandler.GetJob)
		jobs.GET("/:id/logs", jobHandler.GetLogs)
		jobs.GET("/:id/events", eventHandler.StreamJob)
		jobs.POST("/:id/cancel", jobHandler.Cancel)
	}

	// Per-target job history
	router.GET("/targets/:ref/jobs", authMiddleware, limiter, jobHandler.ListTargetJobs)

	// Event streams
	router.GET("/events", authMiddleware, limiter, eventHandler.StreamAll)
	router.GET("/ws/jobs", authMiddleware, limiter, wsHandler.Serve)

	// Hosts
	hosts := router.Group("/hosts")
	hosts.Use(authMiddleware, limiter)
	{
		hosts.GET("", hostHandler.ListHosts)
		hosts.POST("/:alias/test", hostHandler.TestHost)
	}

	// Command presets
	router.GET("/commands", authMiddleware, limiter, commandHandler.ListCommands)

	baseCtx, cancel := context.WithCancel(context.Background())
	server := &Server{
		router:  router,
		config:  cfg,
		logger:  logger,
		baseCtx: baseCtx,
		cancel:  cancel,
	}

	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := s.config.Addr()

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		// No write timeout: SSE and WebSocket responses are long lived.
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
		BaseContext:    func(net.Listener) context.Context { return s.baseCtx },
	}

	// Start with or without SSL
	if s.config.SSLCert != "" && s.config.SSLKey != "" {
		s.logger.Info("starting HTTPS server", "addr", addr)
		return s.srv.ListenAndServeTLS(s.config.SSLCert, s.config.SSLKey)
	}

	s.logger.Info("starting HTTP server", "addr", addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
