package apiserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubepilot/kubepilot/internal/agent/loop"
	"github.com/kubepilot/kubepilot/internal/metrics"
)

type stubAssistant struct {
	calls  int
	result *loop.Result
}

func (a *stubAssistant) Invoke(ctx context.Context, request string) *loop.Result {
	a.calls++
	if a.result != nil {
		return a.result
	}
	return &loop.Result{
		Response: fmt.Sprintf(`<div class="assistant-response"><p>answer for %s</p></div>`, request),
		State:    loop.StateAccepted,
		Iterations: []loop.IterationRecord{
			{Index: 1, Draft: "draft"},
		},
	}
}

type notReady struct{}

func (notReady) IsReady() bool { return false }

func newTestServer(t *testing.T, assistant Assistant, ready ReadinessChecker) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, err := New(Config{Port: 0, CacheSize: 16}, assistant, metrics.New(reg), reg, ready)
	require.NoError(t, err)
	return s
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.corsMiddleware(s.router).ServeHTTP(rec, req)
	return rec
}

func TestNewRequiresAssistant(t *testing.T) {
	_, err := New(Config{}, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestAssistReturnsAnswer(t *testing.T) {
	assistant := &stubAssistant{}
	s := newTestServer(t, assistant, nil)

	rec := doRequest(s, http.MethodPost, "/api/v1/assist", `{"request":"list pods"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp assistResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Contains(t, resp.Response, "answer for list pods")
	assert.Equal(t, loop.StateAccepted, resp.State)
	assert.Equal(t, 1, resp.Iterations)
	assert.False(t, resp.Cached)
}

func TestAssistCachesIdenticalRequests(t *testing.T) {
	assistant := &stubAssistant{}
	s := newTestServer(t, assistant, nil)

	first := doRequest(s, http.MethodPost, "/api/v1/assist", `{"request":"list pods"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(s, http.MethodPost, "/api/v1/assist", `{"request":"list pods"}`)
	require.Equal(t, http.StatusOK, second.Code)

	var resp assistResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
	assert.Equal(t, 1, assistant.calls)

	// cache hits report the same iteration count as the original answer
	assert.Equal(t, 1, resp.Iterations)
}

func TestAssistFailedInvocationNotCached(t *testing.T) {
	assistant := &stubAssistant{result: &loop.Result{
		Response: `<div class="assistant-response"><p>error</p></div>`,
		State:    loop.StateFailed,
		Err:      fmt.Errorf("model unavailable"),
	}}
	s := newTestServer(t, assistant, nil)

	rec := doRequest(s, http.MethodPost, "/api/v1/assist", `{"request":"list pods"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	doRequest(s, http.MethodPost, "/api/v1/assist", `{"request":"list pods"}`)
	assert.Equal(t, 2, assistant.calls)
}

func TestAssistRejectsBadInput(t *testing.T) {
	s := newTestServer(t, &stubAssistant{}, nil)

	rec := doRequest(s, http.MethodPost, "/api/v1/assist", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/api/v1/assist", `{"request":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "EMPTY_REQUEST")
}

func TestAssistRejectsWrongMethod(t *testing.T) {
	s := newTestServer(t, &stubAssistant{}, nil)

	rec := doRequest(s, http.MethodGet, "/api/v1/assist", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "METHOD_NOT_ALLOWED")
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, &stubAssistant{}, nil)

	rec := doRequest(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = doRequest(s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	gated := newTestServer(t, &stubAssistant{}, notReady{})
	rec = doRequest(gated, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &stubAssistant{}, nil)

	doRequest(s, http.MethodPost, "/api/v1/assist", `{"request":"list pods"}`)

	rec := doRequest(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kubepilot_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &stubAssistant{}, nil)

	rec := doRequest(s, http.MethodOptions, "/api/v1/assist", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
