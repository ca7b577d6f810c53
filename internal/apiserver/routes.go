package apiserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kubepilot/kubepilot/internal/agent/loop"
	"github.com/kubepilot/kubepilot/internal/logging"
)

// maxRequestBytes bounds the request body; user questions are short.
const maxRequestBytes = 64 * 1024

// assistRequest is the POST /api/v1/assist body.
type assistRequest struct {
	Request string `json:"request"`
}

// assistResponse is the answer envelope.
type assistResponse struct {
	ID         string     `json:"id"`
	Response   string     `json:"response"`
	State      loop.State `json:"state"`
	Iterations int        `json:"iterations"`
	Cached     bool       `json:"cached"`
}

func (s *Server) registerHandlers() {
	s.router.HandleFunc("/api/v1/assist", s.withMethod(http.MethodPost, s.withMetrics("/api/v1/assist", s.handleAssist)))
	s.router.HandleFunc("/health", s.withMethod(http.MethodGet, s.handleHealth))
	s.router.HandleFunc("/ready", s.withMethod(http.MethodGet, s.handleReady))

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// handleAssist runs one assistant invocation. Identical requests are served
// from the LRU cache; failed invocations are never cached.
func (s *Server) handleAssist(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "failed to read request body")
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "request body exceeds 64KB")
		return
	}

	var req assistRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "request body must be JSON with a \"request\" field")
		return
	}
	req.Request = strings.TrimSpace(req.Request)
	if req.Request == "" {
		writeError(w, http.StatusBadRequest, "EMPTY_REQUEST", "request text must not be empty")
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "assist.request",
		trace.WithAttributes(attribute.String("request.id", requestID)))
	defer span.End()
	if sc := span.SpanContext(); sc.IsValid() {
		ctx = logging.ContextWithTrace(ctx, sc.TraceID().String(), sc.SpanID().String())
	}

	logger := s.logger.WithContext(ctx).WithField("request_id", requestID)

	if s.cache != nil {
		if answer, ok := s.cache.Get(req.Request); ok {
			if s.metrics != nil {
				s.metrics.IncCacheHit()
			}
			span.SetAttributes(attribute.Bool("cache.hit", true))
			logger.Debug("serving cached answer")
			writeJSON(w, http.StatusOK, assistResponse{
				ID:         requestID,
				Response:   answer.Response,
				State:      answer.State,
				Iterations: answer.Iterations,
				Cached:     true,
			})
			return
		}
		if s.metrics != nil {
			s.metrics.IncCacheMiss()
		}
	}

	logger.InfoWithFields("handling request",
		logging.Field("request_chars", len(req.Request)),
	)

	// Concurrent identical requests share one invocation. The shared call
	// uses its own context so a cancelled sibling does not abort it; the
	// span is carried over so the loop's spans parent under this request.
	v, _, _ := s.group.Do(req.Request, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
		defer cancel()
		callCtx = trace.ContextWithSpan(callCtx, span)
		return s.assistant.Invoke(callCtx, req.Request), nil
	})
	result := v.(*loop.Result)

	status := http.StatusOK
	if result.State == loop.StateFailed {
		// the response body still carries the user-facing error container
		status = http.StatusBadGateway
		span.RecordError(result.Err)
		logger.ErrorWithErr("invocation failed", result.Err)
	} else if s.cache != nil {
		s.cache.Add(req.Request, cachedAnswer{
			Response:   result.Response,
			State:      result.State,
			Iterations: len(result.Iterations),
		})
	}

	writeJSON(w, status, assistResponse{
		ID:         requestID,
		Response:   result.Response,
		State:      result.State,
		Iterations: len(result.Iterations),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := s.ready.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"ready": ready})
}
