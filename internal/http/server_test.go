package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/amqp"
	"finboard/internal/api"
	"finboard/internal/core"
	applog "finboard/internal/log"
	"finboard/internal/middleware/ratelimit"
	"finboard/internal/sheets/memory"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu          sync.Mutex
	authed      bool
	hasAccounts bool
	txs         []core.Transaction
	txErr       error
	syncErr     error
	editErr     error
	accounts    []core.Account
	exchangeErr error
	txCalls     int
	edits       []api.TransactionEdit
	deleted     []string
	exchanged   []string
	loggedOut   bool
}

func (f *fakeBackend) CheckAuth(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authed
}

func (f *fakeBackend) Login(_ context.Context, username, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if username != "alice" || password != "secret" {
		return &api.Error{Kind: api.KindValidation, Op: "login", Status: 400, Message: "Invalid credentials"}
	}
	f.authed = true
	return nil
}

func (f *fakeBackend) Register(_ context.Context, creds api.Credentials, confirm string) error {
	if creds.Password != confirm {
		return api.ErrPasswordMismatch
	}
	return nil
}

func (f *fakeBackend) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	f.authed = false
	return nil
}

func (f *fakeBackend) HasAccounts(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasAccounts, nil
}

func (f *fakeBackend) CreateLinkToken(context.Context) (string, error) {
	return "link-sandbox-123", nil
}

func (f *fakeBackend) ExchangePublicToken(_ context.Context, token string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	f.exchanged = append(f.exchanged, token)
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeBackend) Accounts(context.Context) ([]core.Account, error) {
	return f.accounts, nil
}

func (f *fakeBackend) Transactions(context.Context) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls++
	if f.txErr != nil {
		return nil, f.txErr
	}
	return append([]core.Transaction(nil), f.txs...), nil
}

func (f *fakeBackend) ForceSync(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncErr
}

func (f *fakeBackend) EditTransaction(_ context.Context, edit api.TransactionEdit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, edit)
	return nil
}

func (f *fakeBackend) DeleteTransaction(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) set(fn func(*fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		hasAccounts: true,
		txs: []core.Transaction{
			{
				ID: "t1", Amount: decimal.RequireFromString("12.50"), Description: "CAFE 123",
				MerchantName: core.StringPtr("Cafe"), Timestamp: time.Date(2024, 6, 14, 9, 30, 0, 0, time.UTC),
				Category: "FOOD", Account: core.Account{Name: "Checking", AccountType: "depository", Institution: "Chase"},
			},
			{
				ID: "t2", Amount: decimal.RequireFromString("100"), Description: "Airline",
				Timestamp: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
				Category: "TRAVEL", Account: core.Account{Name: "Card", AccountType: "credit", Institution: "Unknown"},
			},
			{
				ID: "t3", Amount: decimal.RequireFromString("30"), Description: "Grocery",
				Timestamp: time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC),
				Category: "FOOD", Account: core.Account{Name: "Checking", AccountType: "depository", Institution: "Chase"},
			},
		},
		accounts: []core.Account{{Name: "Checking", AccountType: "depository", Institution: "Chase"}},
	}
}

type testServerOption func(*Options)

func newTestServer(t *testing.T, fb *fakeBackend, opts ...testServerOption) *Server {
	t.Helper()
	o := Options{
		Logger:        applog.New(applog.Config{Component: applog.ComponentHTTP, Output: io.Discard}),
		SessionSecret: []byte("test-secret"),
		SessionTTL:    time.Hour,
		MaxSessions:   10,
		NewBackend:    func() (Backend, error) { return fb, nil },
		RateLimit:     ratelimit.Config{RequestsPerMinute: 1000},
		Location:      time.UTC,
		Clock:         func() time.Time { return testNow },
	}
	for _, opt := range opts {
		opt(&o)
	}
	srv, err := NewServer(o)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func login(t *testing.T, srv *Server) *http.Cookie {
	t.Helper()
	form := url.Values{"username": {"alice"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("login status=%d body=%s", rr.Code, rr.Body.String())
	}
	return sessionCookie(t, rr)
}

// do sends an htmx request carrying the session cookie.
func do(srv *Server, c *http.Cookie, method, path string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("HX-Request", "true")
	if c != nil {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthReadyAndMetrics(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := do(srv, nil, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	rr := do(srv, nil, http.MethodGet, "/readyz", nil)
	var ready map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &ready); err != nil {
		t.Fatalf("readyz body: %v", err)
	}
	if ready["status"] != "ready" {
		t.Errorf("readyz status = %v", ready["status"])
	}

	rr = do(srv, nil, http.MethodGet, "/metrics", nil)
	for _, want := range []string{"finboard_sessions_active 0", "finboard_http_requests_total", "finboard_rate_limit_rejected_total"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestReadyFailsWhenCheckFails(t *testing.T) {
	srv := newTestServer(t, newFakeBackend(), func(o *Options) {
		o.ReadyCheck = func(context.Context) error { return errors.New("backend down") }
	})
	rr := do(srv, nil, http.MethodGet, "/readyz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "backend down") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestNewServerRequiresBackendAndSecret(t *testing.T) {
	if _, err := NewServer(Options{SessionSecret: []byte("x")}); err == nil {
		t.Error("expected error without backend factory")
	}
	if _, err := NewServer(Options{NewBackend: func() (Backend, error) { return newFakeBackend(), nil }}); err == nil {
		t.Error("expected error without session secret")
	}
}

func TestPagesWithoutSessionRedirectToLogin(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())

	for _, path := range []string{"/", "/dashboard", "/link"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
			t.Errorf("%s: status=%d location=%q", path, rr.Code, rr.Header().Get("Location"))
		}
	}

	rr := do(srv, nil, http.MethodGet, "/ui/transactions", nil)
	if got := rr.Header().Get("HX-Redirect"); got != "/login" {
		t.Errorf("partial without session: HX-Redirect=%q", got)
	}
}

func TestTamperedCookieIsRejected(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())
	c := login(t, srv)
	c.Value += "x"
	rr := do(srv, c, http.MethodGet, "/ui/transactions", nil)
	if rr.Header().Get("HX-Redirect") != "/login" {
		t.Fatalf("tampered cookie accepted: status=%d", rr.Code)
	}
}

func TestLoginPages(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())

	rr := do(srv, nil, http.MethodGet, "/login?registered=1", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Account created") {
		t.Fatalf("login page status=%d", rr.Code)
	}
	rr = do(srv, nil, http.MethodGet, "/register", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Confirm Password") {
		t.Fatalf("register page status=%d", rr.Code)
	}
}

func TestLoginRedirectsByLinkedAccounts(t *testing.T) {
	tests := []struct {
		name        string
		hasAccounts bool
		want        string
	}{
		{"linked", true, "/dashboard"},
		{"not linked", false, "/link"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend()
			fb.hasAccounts = tt.hasAccounts
			srv := newTestServer(t, fb)

			form := url.Values{"username": {"alice"}, "password": {"secret"}}
			req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rr := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusSeeOther {
				t.Fatalf("status=%d", rr.Code)
			}
			if got := rr.Header().Get("Location"); got != tt.want {
				t.Errorf("Location=%q want %q", got, tt.want)
			}
			c := sessionCookie(t, rr)
			if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
				t.Errorf("cookie flags: HttpOnly=%v SameSite=%v", c.HttpOnly, c.SameSite)
			}
		})
	}
}

func TestLoginFailureRendersFormError(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())
	form := url.Values{"username": {"alice"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "Invalid credentials") || !strings.Contains(body, `value="alice"`) {
		t.Errorf("form not re-rendered with error: %s", body)
	}
	if srv.sessions.Size() != 0 {
		t.Errorf("failed login left %d sessions", srv.sessions.Size())
	}
}

func TestRegister(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		return rr
	}

	rr := post(url.Values{"username": {"bob"}, "password": {"a"}, "confirmPassword": {"b"}})
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "Passwords do not match") {
		t.Fatalf("mismatch: status=%d", rr.Code)
	}

	rr = post(url.Values{"username": {"bob"}, "password": {"a"}, "confirmPassword": {"a"}})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login?registered=1" {
		t.Fatalf("success: status=%d location=%q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestDashboardAndPanel(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())
	c := login(t, srv)

	rr := do(srv, c, http.MethodGet, "/dashboard", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Personal Finance Dashboard") {
		t.Error("dashboard heading missing")
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control=%q", rr.Header().Get("Cache-Control"))
	}

	rr = do(srv, c, http.MethodGet, "/ui/transactions", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("panel status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"Recent Transactions",
		"Refresh Transactions",
		"Total Expenses (Filtered)",
		"$142.50",
		"Spending by Category",
		"Cafe",
		"Grocery",
		"Chase • Checking • FOOD",
		"Fri, Jun 14, 2024",
		"09:30 AM",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("panel missing %q", want)
		}
	}
	// Newest first.
	if strings.Index(body, "Cafe") > strings.Index(body, "Airline") {
		t.Error("transactions not sorted newest first")
	}
}

func TestTimeFrameNarrowsList(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())
	c := login(t, srv)
	do(srv, c, http.MethodGet, "/ui/transactions", nil)

	rr := do(srv, c, http.MethodPost, "/ui/timeframe", url.Values{"frame": {"month"}})
	body := rr.Body.String()
	if strings.Contains(body, "Airline") {
		t.Error("May transaction shown for This Month")
	}
	if !strings.Contains(body, "$42.50") {
		t.Error("month total missing")
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "transactions:changed") {
		t.Errorf("HX-Trigger=%q", rr.Header().Get("HX-Trigger"))
	}

	// Unknown values keep the current frame.
	rr = do(srv, c, http.MethodPost, "/ui/timeframe", url.Values{"frame": {"decade"}})
	if strings.Contains(rr.Body.String(), "Airline") {
		t.Error("unknown frame reset the selection")
	}
}

func TestFiltersDrawerAndChips(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())
	c := login(t, srv)
	do(srv, c, http.MethodGet, "/ui/transactions", nil)

	rr := do(srv, c, http.MethodPost, "/ui/filters/drawer", url.Values{"open": {"1"}})
	if !strings.Contains(rr.Body.String(), "All Categories") {
		t.Fatal("drawer not rendered")
	}

	rr = do(srv, c, http.MethodPost, "/ui/filters", url.Values{"category": {"FOOD"}, "min": {"20"}})
	body := rr.Body.String()
	for _, want := range []string{"Category: FOOD", "Amount: $20 - Any", "Filters (2)", "$30.00"} {
		if !strings.Contains(body, want) {
			t.Errorf("filtered panel missing %q", want)
		}
	}
	if strings.Contains(body, "All Categories") {
		t.Error("drawer still open after apply")
	}
	if strings.Contains(body, "Cafe") {
		t.Error("transaction below the minimum shown")
	}

	rr = do(srv, c, http.MethodPost, "/ui/filters/clear", url.Values{"which": {"category"}})
	body = rr.Body.String()
	if strings.Contains(body, "Category: FOOD") || !strings.Contains(body, "Amount: $20 - Any") {
		t.Error("clearing the category chip touched the wrong filter")
	}

	rr = do(srv, c, http.MethodPost, "/ui/filters/clear", url.Values{})
	if strings.Contains(rr.Body.String(), "Amount:") {
		t.Error("clear all left a chip")
	}
}

func TestExpiredBackendSessionRedirects(t *testing.T) {
	fb := newFakeBackend()
	srv := newTestServer(t, fb)
	c := login(t, srv)
	fb.set(func(f *fakeBackend) { f.txErr = &api.Error{Kind: api.KindAuth, Op: "get transactions", Status: 401} })

	rr := do(srv, c, http.MethodGet, "/ui/transactions", nil)
	if rr.Header().Get("HX-Redirect") != "/login" {
		t.Fatalf("HX-Redirect=%q", rr.Header().Get("HX-Redirect"))
	}
	if srv.sessions.Size() != 0 {
		t.Error("session kept after auth failure")
	}
}

func TestFetchFailureShowsError(t *testing.T) {
	fb := newFakeBackend()
	fb.txErr = &api.Error{Kind: api.KindNetwork, Op: "get transactions", Status: 500}
	srv := newTestServer(t, fb)
	c := login(t, srv)

	rr := do(srv, c, http.MethodGet, "/ui/transactions", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Failed to fetch transactions") || !strings.Contains(rr.Body.String(), "Retry") {
		t.Error("fetch error not rendered")
	}
}

func TestSyncFailureKeepsList(t *testing.T) {
	fb := newFakeBackend()
	srv := newTestServer(t, fb)
	c := login(t, srv)
	do(srv, c, http.MethodGet, "/ui/transactions", nil)

	fb.set(func(f *fakeBackend) { f.syncErr = &api.Error{Kind: api.KindNetwork, Op: "force transaction sync"} })
	rr := do(srv, c, http.MethodPost, "/ui/sync", url.Values{})
	body := rr.Body.String()
	if !strings.Contains(body, "Failed to sync transactions") || !strings.Contains(body, "Cafe") {
		t.Error("sync failure should show the error and keep the list")
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "show-notification") {
		t.Errorf("HX-Trigger=%q", rr.Header().Get("HX-Trigger"))
	}

	fb.set(func(f *fakeBackend) { f.syncErr = nil })
	rr = do(srv, c, http.MethodPost, "/ui/sync", url.Values{})
	if strings.Contains(rr.Body.String(), "Failed to sync") {
		t.Error("successful sync kept the error")
	}
}

func TestEditAndDeleteTransaction(t *testing.T) {
	fb := newFakeBackend()
	srv := newTestServer(t, fb)
	c := login(t, srv)
	do(srv, c, http.MethodGet, "/ui/transactions", nil)

	rr := do(srv, c, http.MethodPost, "/ui/transactions/t1/category", url.Values{"category": {"COFFEE"}})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Chase • Checking • COFFEE") {
		t.Fatalf("edit not applied: status=%d", rr.Code)
	}
	if len(fb.edits) != 1 || fb.edits[0].ID != "t1" || fb.edits[0].Category != "COFFEE" {
		t.Errorf("edits=%+v", fb.edits)
	}

	rr = do(srv, c, http.MethodPost, "/ui/transactions/t1/category", url.Values{"category": {""}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty category status=%d", rr.Code)
	}

	rr = do(srv, c, http.MethodDelete, "/ui/transactions/t2", nil)
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), "Airline") {
		t.Fatalf("delete not applied: status=%d", rr.Code)
	}
	if len(fb.deleted) != 1 || fb.deleted[0] != "t2" {
		t.Errorf("deleted=%v", fb.deleted)
	}

	fb.set(func(f *fakeBackend) {
		f.editErr = &api.Error{Kind: api.KindValidation, Op: "edit transaction", Message: "Invalid category"}
	})
	rr = do(srv, c, http.MethodPost, "/ui/transactions/t3/category", url.Values{"category": {"X"}})
	if !strings.Contains(rr.Body.String(), "Invalid category") {
		t.Error("rejected edit message missing")
	}
}

func TestChartSVG(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())
	c := login(t, srv)
	do(srv, c, http.MethodGet, "/ui/transactions", nil)

	rr := do(srv, c, http.MethodGet, "/ui/chart.svg", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), "<svg") {
		t.Error("body is not SVG")
	}
}

func TestAccountsPartial(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())
	c := login(t, srv)
	rr := do(srv, c, http.MethodGet, "/ui/accounts", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Depository") {
		t.Fatalf("accounts: status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRefreshEventMarksSessionsStale(t *testing.T) {
	fb := newFakeBackend()
	srv := newTestServer(t, fb)
	c := login(t, srv)

	do(srv, c, http.MethodGet, "/ui/transactions", nil)
	do(srv, c, http.MethodGet, "/ui/transactions", nil)
	if fb.txCalls != 1 {
		t.Fatalf("fresh list refetched: calls=%d", fb.txCalls)
	}

	failed := amqp.NewRefreshEvent("run-0", "schedule", false, 0)
	if err := srv.HandleRefreshEvent(context.Background(), failed); err != nil {
		t.Fatal(err)
	}
	do(srv, c, http.MethodGet, "/ui/transactions", nil)
	if fb.txCalls != 1 {
		t.Fatalf("failed run invalidated sessions: calls=%d", fb.txCalls)
	}

	ok := amqp.NewRefreshEvent("run-1", "schedule", true, 3)
	if err := srv.HandleRefreshEvent(context.Background(), ok); err != nil {
		t.Fatal(err)
	}
	rr := do(srv, c, http.MethodGet, "/ui/transactions", nil)
	if fb.txCalls != 2 {
		t.Fatalf("stale list not refetched: calls=%d", fb.txCalls)
	}
	if !strings.Contains(rr.Body.String(), "Cafe") {
		t.Error("list missing after refetch")
	}
}

func TestLinkFlow(t *testing.T) {
	fb := newFakeBackend()
	fb.hasAccounts = false
	srv := newTestServer(t, fb)
	c := login(t, srv)

	rr := do(srv, c, http.MethodGet, "/link", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("link page status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Connect Your Bank Account") || !strings.Contains(rr.Body.String(), "link-sandbox-123") {
		t.Error("link page missing heading or token")
	}

	req := httptest.NewRequest(http.MethodPost, "/link/exchange", strings.NewReader(`{"public_token":"public-abc"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(c)
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("exchange status=%d body=%s", rr.Code, rr.Body.String())
	}
	var out map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["redirect"] != "/dashboard" {
		t.Errorf("redirect=%q", out["redirect"])
	}
	if len(fb.exchanged) != 1 || fb.exchanged[0] != "public-abc" {
		t.Errorf("exchanged=%v", fb.exchanged)
	}

	fb.set(func(f *fakeBackend) { f.exchangeErr = &api.Error{Kind: api.KindNetwork, Op: "exchange public token", Status: 500} })
	req = httptest.NewRequest(http.MethodPost, "/link/exchange", strings.NewReader(`{"public_token":"public-abc"}`))
	req.AddCookie(c)
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadGateway || !strings.Contains(rr.Body.String(), "Failed to connect bank account") {
		t.Errorf("failed exchange: status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestExport(t *testing.T) {
	store := memory.New(time.UTC)
	srv := newTestServer(t, newFakeBackend(), func(o *Options) { o.Exporter = store })
	c := login(t, srv)
	do(srv, c, http.MethodGet, "/ui/transactions", nil)

	rr := do(srv, c, http.MethodPost, "/ui/export", url.Values{})
	if !strings.Contains(rr.Body.String(), "Exported 3 transactions (mem:1)") {
		t.Fatalf("export notice missing: %s", rr.Body.String())
	}
	exports := store.Exports()
	if len(exports) != 1 || len(exports[0].View.Transactions) != 3 {
		t.Fatalf("exports=%+v", exports)
	}
}

func TestExportRouteAbsentWithoutExporter(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())
	c := login(t, srv)
	rr := do(srv, c, http.MethodPost, "/ui/export", url.Values{})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestLogout(t *testing.T) {
	fb := newFakeBackend()
	srv := newTestServer(t, fb)
	c := login(t, srv)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(c)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("logout: status=%d", rr.Code)
	}
	if !fb.loggedOut {
		t.Error("backend logout not called")
	}

	rr = do(srv, c, http.MethodGet, "/ui/transactions", nil)
	if rr.Header().Get("HX-Redirect") != "/login" {
		t.Error("session still valid after logout")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/ui/sync"},
		{http.MethodPut, "/ui/filters"},
		{http.MethodGet, "/ui/transactions/t1"},
		{http.MethodDelete, "/login"},
	} {
		rr := do(srv, nil, tc.method, tc.path, nil)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: status=%d", tc.method, tc.path, rr.Code)
		}
	}

	rr := do(srv, nil, http.MethodGet, "/ui/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown partial: status=%d", rr.Code)
	}
}

func TestTimeFrameUsesServerLocation(t *testing.T) {
	// 03:00 UTC on July 1st is still June 30th four hours west.
	srv := newTestServer(t, newFakeBackend(), func(o *Options) {
		o.Location = time.FixedZone("UTC-4", -4*3600)
		o.Clock = func() time.Time { return time.Date(2024, 7, 1, 3, 0, 0, 0, time.UTC) }
	})
	c := login(t, srv)
	do(srv, c, http.MethodGet, "/ui/transactions", nil)

	rr := do(srv, c, http.MethodPost, "/ui/timeframe", url.Values{"frame": {"month"}})
	body := rr.Body.String()
	if !strings.Contains(body, "$42.50") {
		t.Error("June transactions missing from This Month")
	}
	if strings.Contains(body, "Airline") {
		t.Error("May transaction shown for This Month")
	}
}

func TestViewStateIsNotRateLimited(t *testing.T) {
	srv := newTestServer(t, newFakeBackend(), func(o *Options) {
		o.RateLimit = ratelimit.Config{RequestsPerMinute: 2}
	})
	c := login(t, srv)

	for i := 0; i < 5; i++ {
		rr := do(srv, c, http.MethodPost, "/ui/filters", url.Values{"category": {"Food"}})
		if rr.Code == http.StatusTooManyRequests {
			t.Fatalf("filters %d rate limited", i)
		}
		rr = do(srv, c, http.MethodPost, "/ui/timeframe", url.Values{"frame": {"month"}})
		if rr.Code == http.StatusTooManyRequests {
			t.Fatalf("timeframe %d rate limited", i)
		}
	}

	if rr := do(srv, c, http.MethodPost, "/ui/sync", nil); rr.Code == http.StatusTooManyRequests {
		t.Fatal("first sync rate limited")
	}
	if rr := do(srv, c, http.MethodPost, "/ui/sync", nil); rr.Code != http.StatusTooManyRequests {
		t.Errorf("second sync: status=%d, want 429", rr.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())
	rr := do(srv, nil, http.MethodGet, "/login", nil)
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("X-Frame-Options=%q", rr.Header().Get("X-Frame-Options"))
	}
	if !strings.Contains(rr.Header().Get("Content-Security-Policy"), "cdn.plaid.com") {
		t.Error("CSP does not allow the linking widget")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}
