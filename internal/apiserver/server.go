// Package apiserver exposes the assistant over HTTP.
package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/kubepilot/kubepilot/internal/agent/loop"
	"github.com/kubepilot/kubepilot/internal/logging"
	"github.com/kubepilot/kubepilot/internal/metrics"
)

// Assistant is the loop entry point the server drives.
type Assistant interface {
	Invoke(ctx context.Context, request string) *loop.Result
}

// ReadinessChecker reports whether the server's dependencies are usable.
type ReadinessChecker interface {
	IsReady() bool
}

// AlwaysReady is a ReadinessChecker for deployments without a gated
// dependency.
type AlwaysReady struct{}

func (AlwaysReady) IsReady() bool { return true }

// cachedAnswer is one completed invocation kept for identical requests.
type cachedAnswer struct {
	Response   string
	State      loop.State
	Iterations int
}

// Config holds server settings.
type Config struct {
	Port int

	// CacheSize is the number of request/answer pairs kept in the LRU
	// answer cache. Zero disables caching.
	CacheSize int

	// RequestTimeout bounds one assistant invocation. Generation retries
	// with backoff can legitimately take minutes.
	RequestTimeout time.Duration
}

// Server handles HTTP API requests. It implements lifecycle.Component.
type Server struct {
	cfg       Config
	server    *http.Server
	router    *http.ServeMux
	logger    *logging.Logger
	assistant Assistant
	cache     *lru.Cache[string, cachedAnswer]
	group     singleflight.Group
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	ready     ReadinessChecker
	tracer    trace.Tracer
}

// New creates the API server. Metrics and gatherer may be nil to run without
// instrumentation; readiness defaults to always-ready.
func New(cfg Config, assistant Assistant, m *metrics.Metrics, gatherer prometheus.Gatherer, ready ReadinessChecker) (*Server, error) {
	if assistant == nil {
		return nil, fmt.Errorf("assistant is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if ready == nil {
		ready = AlwaysReady{}
	}

	s := &Server{
		cfg:       cfg,
		router:    http.NewServeMux(),
		logger:    logging.GetLogger("api"),
		assistant: assistant,
		metrics:   m,
		gatherer:  gatherer,
		ready:     ready,
		tracer:    otel.Tracer("kubepilot/api"),
	}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, cachedAnswer](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating answer cache: %w", err)
		}
		s.cache = cache
	}

	s.registerHandlers()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.corsMiddleware(s.router),
		ReadTimeout:  time.Minute,
		WriteTimeout: cfg.RequestTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start implements lifecycle.Component. The listener runs in a goroutine;
// startup errors other than a clean shutdown are logged, not returned.
func (s *Server) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.logger.Info("starting API server on port %d", s.cfg.Port)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error: %v", err)
		}
	}()
	return nil
}

// Stop implements lifecycle.Component, draining in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	done := make(chan error, 1)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- s.server.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("HTTP server shutdown error: %v", err)
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Warn("API server shutdown timeout")
		return ctx.Err()
	}
}

// Name implements lifecycle.Component.
func (s *Server) Name() string {
	return "api-server"
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.cfg.Port
}
