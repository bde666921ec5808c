package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	applog "finboard/internal/log"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.metrics.started).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.readyCheck != nil {
		if err := s.readyCheck(ctx); err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			checks["backend"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["backend"] = "ok"
		}
	}

	checks["sessions"] = map[string]any{
		"active": s.sessions.Size(),
		"status": "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	tm := s.tracer.Snapshot()
	m := s.metrics

	fmt.Fprintf(w, "# Application Metrics\n")
	fmt.Fprintf(w, "finboard_uptime_seconds %d\n", int64(s.now().Sub(m.started).Seconds()))
	fmt.Fprintf(w, "finboard_sessions_active %d\n", s.sessions.Size())
	fmt.Fprintf(w, "finboard_logins_total %d\n", m.logins.Load())
	fmt.Fprintf(w, "finboard_login_failures_total %d\n", m.loginFailures.Load())
	fmt.Fprintf(w, "finboard_syncs_total %d\n", m.syncs.Load())
	fmt.Fprintf(w, "finboard_transaction_edits_total %d\n", m.edits.Load())
	fmt.Fprintf(w, "finboard_transaction_deletes_total %d\n", m.deletes.Load())
	fmt.Fprintf(w, "finboard_exports_total %d\n", m.exports.Load())
	fmt.Fprintf(w, "finboard_refresh_events_total %d\n", m.refreshEvents.Load())

	fmt.Fprintf(w, "\n# HTTP Metrics\n")
	fmt.Fprintf(w, "finboard_http_requests_total %d\n", tm.TotalRequests)
	fmt.Fprintf(w, "finboard_http_server_errors_total %d\n", tm.ServerErrors)
	fmt.Fprintf(w, "finboard_http_requests_in_flight %d\n", tm.InFlight)
	fmt.Fprintf(w, "finboard_http_request_duration_avg_ms %.2f\n", float64(tm.AverageLatency().Microseconds())/1000)

	fmt.Fprintf(w, "\n# Rate Limit Metrics\n")
	fmt.Fprintf(w, "finboard_rate_limit_active_clients %d\n", s.limiter.ActiveClients())
	fmt.Fprintf(w, "finboard_rate_limit_rejected_total %d\n", s.limiter.Rejected())
}
