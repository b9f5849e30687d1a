package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/fmp-data/internal/config"
	"github.com/rickgao/fmp-data/internal/events"
	"github.com/rickgao/fmp-data/internal/model"
	"github.com/rickgao/fmp-data/internal/storage"
)

// Importer is the orchestrator surface used by the API.
type Importer interface {
	ListEntityTypes() []*model.EntityType
	ScheduleOrder() ([]*model.EntityType, error)
	Status() []model.ImportJob
	Running() bool
	LastError() error
	Cancel() bool
	StartImport(ctx context.Context, target string) (string, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithReporter enables GET /api/v1/tables.
func WithReporter(r storage.Reporter) Option {
	return func(s *Server) { s.reporter = r }
}

// WithHub enables the GET /api/v1/events websocket stream.
func WithHub(h *events.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithMetrics serves h on the configured metrics path.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server is the control API.
type Server struct {
	cfg      config.ServerConfig
	importer Importer
	reporter storage.Reporter
	hub      *events.Hub
	metrics  http.Handler
	logger   *slog.Logger

	engine *gin.Engine
	http   *http.Server

	// Lifecycle. Imports started over HTTP run under ctx, not the
	// request context.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Server and registers its routes.
func New(cfg config.ServerConfig, imp Importer, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		importer: imp,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestLogger(s.logger))
	s.routes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.http = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control api stopped", "error", err)
		}
	}()

	s.logger.Info("control api started", "addr", ln.Addr().String())
	return nil
}

// Stop shuts the listener down and waits for in-flight requests.
// Websocket streams end when the hub closes or ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.http == nil {
		return nil
	}

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown control api: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("control api stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/entities", s.listEntities)
		v1.GET("/schedule", s.schedule)
		v1.GET("/tables", s.tables)
		v1.GET("/events", s.streamEvents)

		imports := v1.Group("/imports")
		{
			imports.GET("", s.importStatus)
			imports.POST("", s.startImport)
			imports.POST("/cancel", s.cancelImport)
		}
	}

	if s.metrics != nil {
		s.engine.GET(s.cfg.MetricsPath, gin.WrapH(s.metrics))
	}
}

// requestLogger logs each request at debug level.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
