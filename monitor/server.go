// Package monitor serves a read-only HTTP view of a frame tree.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/najoast/frametree/config"
	"github.com/najoast/frametree/frame"
	"github.com/najoast/frametree/metrics"
)

// StatusFunc reports extra component state for the health endpoint.
type StatusFunc func(ctx context.Context) any

// Server is the monitor HTTP server.
type Server struct {
	tree    *frame.Tree
	cfg     config.MonitorConfig
	log     zerolog.Logger
	status  StatusFunc
	router  *gin.Engine
	started time.Time

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener

	// Cancels the context of in-flight requests on Stop
	cancelRequests context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and server logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.log = logger
	}
}

// WithStatus adds component state to GET /health.
func WithStatus(fn StatusFunc) Option {
	return func(s *Server) {
		s.status = fn
	}
}

// NewServer creates a monitor for tree. Routes are registered immediately;
// nothing listens until Start.
func NewServer(tree *frame.Tree, cfg config.MonitorConfig, opts ...Option) *Server {
	s := &Server{
		tree:    tree,
		cfg:     cfg,
		log:     zerolog.Nop(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.MetricsPath == "" {
		s.cfg.MetricsPath = "/metrics"
	}
	if s.cfg.MaxWait <= 0 {
		s.cfg.MaxWait = 30 * time.Second
	}
	s.log = s.log.With().Str("component", "monitor").Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(s.log))
	r.Use(RequestMetrics())
	s.router = r
	s.registerRoutes()

	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Name returns the service name
func (s *Server) Name() string {
	return "monitor"
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Address
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return fmt.Errorf("monitor already started on %s", s.listener.Addr())
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("monitor listen %s: %w", s.cfg.Address, err)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s.listener = ln
	s.cancelRequests = cancel
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("monitor server failed")
		}
	}(s.srv)

	s.log.Info().Str("addr", ln.Addr().String()).Msg("monitor listening")
	return nil
}

// Stop shuts the server down, waiting for active requests until ctx is
// done. Pending wait requests are released by the shutdown.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel := s.srv, s.cancelRequests
	s.srv, s.cancelRequests = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()
	return srv.Shutdown(ctx)
}

// RequestLogger logs one line per request.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		if status >= 500 {
			event = logger.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http_request")
	}
}

// RequestMetrics records request counts and latency by route.
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
