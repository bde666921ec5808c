// Package trace assigns request ids, logs request start and end, and keeps
// the request counters exposed on /metrics.
package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "finboard/internal/log"
)

type ctxKey struct{}

// HeaderRequestID carries the request id in and out.
const HeaderRequestID = "X-Request-ID"

// Metrics is a point-in-time copy of the request counters.
type Metrics struct {
	TotalRequests  int64
	ServerErrors   int64
	InFlight       int64
	TotalLatencyUS int64
}

// AverageLatency is the mean handler latency since start.
func (m Metrics) AverageLatency() time.Duration {
	if m.TotalRequests == 0 {
		return 0
	}
	return time.Duration(m.TotalLatencyUS/m.TotalRequests) * time.Microsecond
}

// Middleware traces every request through the handler chain.
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *applog.StructuredLogger

	total     atomic.Int64
	errors    atomic.Int64
	inFlight  atomic.Int64
	latencyUS atomic.Int64
}

func NewMiddleware(logger *applog.Logger, extractIP func(*http.Request) string) *Middleware {
	return &Middleware{extractIP: extractIP, logger: applog.NewStructuredLogger(logger)}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, requestID)
		r = r.WithContext(WithRequestID(r.Context(), requestID))

		m.inFlight.Add(1)
		m.logger.LogHTTPStart(r.Context(), r, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		d := time.Since(start)
		m.inFlight.Add(-1)
		m.total.Add(1)
		m.latencyUS.Add(d.Microseconds())
		if rw.statusCode >= 500 {
			m.errors.Add(1)
		}
		m.logger.LogHTTPEnd(r.Context(), r, rw.statusCode, d.Milliseconds(), clientIP)
	})
}

// Snapshot returns the current counters.
func (m *Middleware) Snapshot() Metrics {
	return Metrics{
		TotalRequests:  m.total.Load(),
		ServerErrors:   m.errors.Load(),
		InFlight:       m.inFlight.Load(),
		TotalLatencyUS: m.latencyUS.Load(),
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// GenerateRequestID returns a new random request id.
func GenerateRequestID() string {
	return uuid.NewString()
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// RequestIDFromRequest adapts GetRequestID for log.RequestIDMiddleware.
func RequestIDFromRequest(r *http.Request) string {
	return GetRequestID(r.Context())
}
