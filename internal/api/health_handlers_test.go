// internal/api/health_handlers_test.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
	"github.com/meinzeug/autodevai-sub008/internal/metrics"
)

type staticStatus loadtest.Progress

func (s staticStatus) Progress() loadtest.Progress { return loadtest.Progress(s) }

type samplerFunc func() loadtest.Measurement

func (f samplerFunc) Sample(ctx context.Context, req loadtest.Request) loadtest.Measurement { return f() }

func newTestServer(t *testing.T, status StatusSource) (*Server, *metrics.Collector) {
	t.Helper()
	collector, err := metrics.NewCollector(nil)
	require.NoError(t, err)
	return NewServer("127.0.0.1:0", status, collector.Handler(), zaptest.NewLogger(t)), collector
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.NotEmpty(t, resp["version"])
	assert.GreaterOrEqual(t, resp["uptime"].(float64), 0.0)
}

func TestStatusHandler_Idle(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var p loadtest.Progress
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, loadtest.PhaseIdle, p.Phase)
}

func TestStatusHandler_Running(t *testing.T) {
	s, _ := newTestServer(t, staticStatus{
		RunID:         "run-1",
		TestSuite:     "checkout",
		Phase:         loadtest.PhaseRunning,
		StartTime:     time.Now(),
		TargetActors:  50,
		StartedActors: 30,
		ActiveActors:  28,
		Measurements:  1200,
		Alerts:        1,
	})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var p loadtest.Progress
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, "run-1", p.RunID)
	assert.Equal(t, loadtest.PhaseRunning, p.Phase)
	assert.Equal(t, 28, p.ActiveActors)
	assert.Equal(t, 1200, p.Measurements)
}

func TestStatusHandler_Orchestrator(t *testing.T) {
	orch, err := loadtest.NewOrchestrator(loadtest.OrchestratorOptions{
		Sampler: samplerFunc(func() loadtest.Measurement { return loadtest.Measurement{Success: true} }),
	})
	require.NoError(t, err)
	s, _ := newTestServer(t, orch)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	var p loadtest.Progress
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, loadtest.PhaseIdle, p.Phase)
}

func TestMetricsHandler(t *testing.T) {
	s, collector := newTestServer(t, nil)
	collector.ActorStarted("developer")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `perfharness_active_actors{actor_type="developer"} 1`)
}

func TestMetricsHandler_NotMounted(t *testing.T) {
	s := NewServer(":0", nil, nil, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVersionHandler(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, Version, resp["version"])
	assert.NotEmpty(t, resp["go"])
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
