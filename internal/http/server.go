package http

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"finboard/internal/amqp"
	"finboard/internal/cache"
	applog "finboard/internal/log"
	"finboard/internal/middleware/ratelimit"
	"finboard/internal/middleware/security"
	"finboard/internal/middleware/trace"
	"finboard/internal/sheets"
	appweb "finboard/web"
)

// backendTimeout bounds every backend call made while serving a request.
const backendTimeout = 15 * time.Second

// Options configures NewServer. NewBackend and SessionSecret are required.
type Options struct {
	Addr           string
	Logger         *applog.Logger
	SessionSecret  []byte
	SessionTTL     time.Duration
	MaxSessions    int
	NewBackend     BackendFactory
	Exporter       sheets.ViewExporter         // optional; enables /ui/export
	ReadyCheck     func(context.Context) error // optional extra readiness probe
	RateLimit      ratelimit.Config            // zero fields take the limiter defaults
	TrustedProxies []string
	Location       *time.Location
	Clock          func() time.Time
}

// appMetrics are the counters exposed on /metrics.
type appMetrics struct {
	started       time.Time
	logins        atomic.Int64
	loginFailures atomic.Int64
	syncs         atomic.Int64
	edits         atomic.Int64
	deletes       atomic.Int64
	exports       atomic.Int64
	refreshEvents atomic.Int64
}

type Server struct {
	http.Server
	logger     *applog.Logger
	templates  *template.Template
	sessions   *SessionStore
	exporter   sheets.ViewExporter
	readyCheck func(context.Context) error
	limiter    *ratelimit.Limiter
	tracer     *trace.Middleware
	caches     *cache.Manager
	metrics    *appMetrics
	loc        *time.Location
	now        func() time.Time

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates, wires middleware and routes and
// returns a server ready for ListenAndServe.
func NewServer(opts Options) (*Server, error) {
	if opts.NewBackend == nil {
		return nil, errors.New("backend factory is required")
	}
	if len(opts.SessionSecret) == 0 {
		return nil, errors.New("session secret is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.Config{Component: applog.ComponentHTTP})
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	// Dashboards resolve time frames against the wall clock in loc.
	localNow := func() time.Time { return now().In(loc) }
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	maxSessions := opts.MaxSessions
	if maxSessions <= 0 {
		maxSessions = 1000
	}

	templates, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	clientIP, err := security.NewClientIP(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		logger:     logger,
		templates:  templates,
		sessions:   NewSessionStore(opts.SessionSecret, ttl, maxSessions, opts.NewBackend, localNow),
		exporter:   opts.Exporter,
		readyCheck: opts.ReadyCheck,
		limiter:    ratelimit.NewLimiter(opts.RateLimit),
		tracer:     trace.NewMiddleware(logger, clientIP.Extract),
		caches:     cache.NewManager(),
		metrics:    &appMetrics{started: now()},
		loc:        loc,
		now:        now,
	}
	s.caches.Register("sessions", s.sessions.Cache())
	s.caches.StartCleanup(10 * time.Minute)

	r := mux.NewRouter()
	r.Use(
		s.tracer.Middleware,
		security.Headers(security.DefaultHeadersConfig()),
		ratelimit.ExceptPaths(
			s.limiter.Middleware(clientIP.Extract, http.MethodPost, http.MethodDelete),
			viewStatePaths...,
		),
		applog.Middleware(logger),
		applog.RequestIDMiddleware(trace.RequestIDFromRequest),
	)
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError("").Write(w)
	})
	r.MethodNotAllowedHandler = methodNotAllowed
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Page not found").Write(w)
	})

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.PathPrefix("/static/").Handler(security.StaticAssets(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	pages := r.NewRoute().Subrouter()
	pages.Use(security.NoStore)
	pages.MethodNotAllowedHandler = methodNotAllowed
	pages.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	pages.HandleFunc("/login", s.handleLoginPage).Methods(http.MethodGet)
	pages.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	pages.HandleFunc("/register", s.handleRegisterPage).Methods(http.MethodGet)
	pages.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	pages.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	pages.HandleFunc("/dashboard", s.withSession(s.handleDashboard)).Methods(http.MethodGet)
	pages.HandleFunc("/link", s.withSession(s.handleLinkPage)).Methods(http.MethodGet)
	pages.HandleFunc("/link/exchange", s.withSession(s.handleLinkExchange)).Methods(http.MethodPost)

	// Partials share the pages router so a wrong method still gets a 405.
	pages.HandleFunc("/ui/transactions", s.withSession(s.handleTransactions)).Methods(http.MethodGet)
	pages.HandleFunc("/ui/transactions/{id}/category", s.withSession(s.handleEditCategory)).Methods(http.MethodPost)
	pages.HandleFunc("/ui/transactions/{id}", s.withSession(s.handleDeleteTransaction)).Methods(http.MethodDelete)
	pages.HandleFunc("/ui/timeframe", s.withSession(s.handleTimeFrame)).Methods(http.MethodPost)
	pages.HandleFunc("/ui/filters", s.withSession(s.handleApplyFilters)).Methods(http.MethodPost)
	pages.HandleFunc("/ui/filters/clear", s.withSession(s.handleClearFilters)).Methods(http.MethodPost)
	pages.HandleFunc("/ui/filters/drawer", s.withSession(s.handleDrawer)).Methods(http.MethodPost)
	pages.HandleFunc("/ui/sync", s.withSession(s.handleSync)).Methods(http.MethodPost)
	pages.HandleFunc("/ui/chart.svg", s.withSession(s.handleChart)).Methods(http.MethodGet)
	pages.HandleFunc("/ui/accounts", s.withSession(s.handleAccounts)).Methods(http.MethodGet)
	if s.exporter != nil {
		pages.HandleFunc("/ui/export", s.withSession(s.handleExport)).Methods(http.MethodPost)
	}

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// viewStatePaths only change what the session shows. They never reach the
// backend, so the mutation budget does not apply to them.
var viewStatePaths = []string{"/ui/timeframe", "/ui/filters", "/ui/filters/clear", "/ui/filters/drawer"}

// HandleRefreshEvent marks every live session stale after the refresh
// worker pulled new transactions. It matches amqp.Client's handler type.
func (s *Server) HandleRefreshEvent(ctx context.Context, e *amqp.RefreshEvent) error {
	s.metrics.refreshEvents.Add(1)
	if !e.Succeeded {
		s.logger.InfoContext(ctx, "Ignoring failed refresh run", applog.FieldRunID, e.RunID)
		return nil
	}
	n := s.sessions.InvalidateAll()
	s.logger.InfoContext(ctx, "Sessions marked stale after refresh",
		applog.FieldRunID, e.RunID,
		applog.FieldCount, n,
		"trigger", e.Trigger)
	return nil
}

// Shutdown stops background cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// render executes a template into a buffer first so a failing template
// never leaves a half-written page behind.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			"template", name)
		InternalServerError("Unable to render page").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) backendContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), backendTimeout)
}
