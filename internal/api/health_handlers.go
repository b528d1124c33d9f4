// internal/api/health_handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "healthy",
		"version":   Version,
		"uptime":    time.Since(s.startTime).Seconds(),
		"requests":  atomic.LoadInt64(&s.requestCount),
		"memory_mb": getMemoryUsageMB(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus returns the orchestrator's progress, phase "idle" before the
// first run.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusOK, loadtest.Progress{Phase: loadtest.PhaseIdle})
		return
	}
	writeJSON(w, http.StatusOK, s.status.Progress())
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": Version,
		"go":      runtime.Version(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getMemoryUsageMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Alloc) / 1024 / 1024
}
