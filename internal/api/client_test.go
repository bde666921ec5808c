package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeBackend struct {
	csrfCalls atomic.Int32
	syncCalls atomic.Int32

	mu           sync.Mutex
	lastEdit     TransactionEdit
	lastDelete   string
	authed       bool
	transactions string
}

func (f *fakeBackend) isAuthed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authed
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	requireCSRF := func(w http.ResponseWriter, r *http.Request) bool {
		ck, err := r.Cookie("csrftoken")
		if err != nil || r.Header.Get("X-CSRFToken") != ck.Value {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"detail":"CSRF Failed"}`))
			return false
		}
		return true
	}
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/api/auth/csrf/", func(w http.ResponseWriter, r *http.Request) {
		f.csrfCalls.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok123", Path: "/"})
		writeJSON(w, map[string]string{"csrfToken": "tok123"})
	})
	mux.HandleFunc("/api/auth/check/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]bool{"isAuthenticated": f.isAuthed()})
	})
	mux.HandleFunc("/api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		if !requireCSRF(w, r) {
			return
		}
		var creds Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]string{"error": "Invalid credentials"})
			return
		}
		f.mu.Lock()
		f.authed = true
		f.mu.Unlock()
		writeJSON(w, map[string]string{})
	})
	mux.HandleFunc("/api/get_transactions/", func(w http.ResponseWriter, r *http.Request) {
		if !f.isAuthed() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		body := f.transactions
		f.mu.Unlock()
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/api/force_transaction_sync/", func(w http.ResponseWriter, r *http.Request) {
		if !requireCSRF(w, r) {
			return
		}
		f.syncCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/edit_transaction/", func(w http.ResponseWriter, r *http.Request) {
		if !requireCSRF(w, r) {
			return
		}
		var edit TransactionEdit
		_ = json.NewDecoder(r.Body).Decode(&edit)
		f.mu.Lock()
		f.lastEdit = edit
		f.mu.Unlock()
		writeJSON(w, map[string]string{})
	})
	mux.HandleFunc("/api/delete_transaction/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !requireCSRF(w, r) {
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastDelete = body["transaction_id"]
		f.mu.Unlock()
		writeJSON(w, map[string]string{})
	})
	mux.HandleFunc("/api/check_has_accounts/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !requireCSRF(w, r) {
			return
		}
		writeJSON(w, map[string]bool{"hasAccounts": true})
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeBackend) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New(Config{BaseURL: "not a url"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCSRFTokenIsFetchedOnceThenReadFromCookie(t *testing.T) {
	f := &fakeBackend{}
	c := newTestClient(t, f)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok, err := c.CSRFToken(ctx)
		if err != nil {
			t.Fatalf("CSRFToken: %v", err)
		}
		if tok != "tok123" {
			t.Fatalf("token = %q", tok)
		}
	}
	if n := f.csrfCalls.Load(); n != 1 {
		t.Fatalf("csrf endpoint called %d times, want 1", n)
	}
}

func TestLoginAndFetchTransactions(t *testing.T) {
	f := &fakeBackend{transactions: `{"transactions":[
		{"transaction_id":"t1","amount":12.5,"description":"COFFEE 123","merchant_name":"Blue Bottle","datetime":"2024-03-02","transaction_type":"FOOD_AND_DRINK","account":{"name":"Checking","account_type":"depository","institution":"Chase"}},
		{"transaction_id":"t2","amount":"40.00","description":"UBER","merchant_name":null,"datetime":"2024-03-05T14:30:00Z","transaction_type":"","account":{"name":"Card","account_type":"credit","institution":"Unknown"}},
		{"transaction_id":"bad","amount":-3,"description":"REFUND","datetime":"2024-03-05","transaction_type":"X","account":{}}
	]}`}
	c := newTestClient(t, f)
	ctx := context.Background()

	if c.CheckAuth(ctx) {
		t.Fatal("expected unauthenticated before login")
	}
	_, err := c.Transactions(ctx)
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected auth error before login, got %v", err)
	}

	if err := c.Login(ctx, "ann", "secret"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !c.CheckAuth(ctx) {
		t.Fatal("expected authenticated after login")
	}

	txs, err := c.Transactions(ctx)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2 (negative amount dropped)", len(txs))
	}
	if txs[0].DisplayName() != "Blue Bottle" || !txs[0].IsDateOnly() {
		t.Errorf("unexpected first transaction: %+v", txs[0])
	}
	if txs[0].Account.Institution != "Chase" || txs[0].Category != "FOOD_AND_DRINK" {
		t.Errorf("unexpected account/category: %+v", txs[0])
	}
	if txs[1].MerchantName != nil || txs[1].DisplayName() != "UBER" {
		t.Errorf("merchant fallback broken: %+v", txs[1])
	}
	if txs[1].Category != "UNCATEGORIZED" {
		t.Errorf("blank category = %q", txs[1].Category)
	}
	if got := txs[1].Timestamp; !got.Equal(time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %s", got)
	}
}

func TestLoginRejectionIsValidation(t *testing.T) {
	c := newTestClient(t, &fakeBackend{})
	err := c.Login(context.Background(), "ann", "wrong")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if msg := UserMessage(err, "fallback"); msg != "Invalid credentials" {
		t.Fatalf("UserMessage = %q", msg)
	}
}

func TestRegisterPasswordMismatchMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer srv.Close()
	c, _ := New(Config{BaseURL: srv.URL})

	err := c.Register(context.Background(), Credentials{Username: "ann", Password: "a"}, "b")
	if !errors.Is(err, ErrPasswordMismatch) || !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatal("request was sent")
	}
}

func TestForceSyncServerErrorIsNetwork(t *testing.T) {
	f := &fakeBackend{}
	c := newTestClient(t, f)
	err := c.ForceSync(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Status != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %v", err)
	}
	if f.syncCalls.Load() != 1 {
		t.Fatal("sync must not be retried")
	}
}

func TestTransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New(Config{BaseURL: url, Timeout: time.Second})
	_, err := c.CreateLinkToken(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestEditAndDelete(t *testing.T) {
	f := &fakeBackend{}
	c := newTestClient(t, f)
	ctx := context.Background()

	if err := c.EditTransaction(ctx, TransactionEdit{ID: "t1", Category: "TRAVEL"}); err != nil {
		t.Fatalf("EditTransaction: %v", err)
	}
	f.mu.Lock()
	edit := f.lastEdit
	f.mu.Unlock()
	if edit.ID != "t1" || edit.Category != "TRAVEL" {
		t.Fatalf("edit body = %+v", edit)
	}
	if err := c.EditTransaction(ctx, TransactionEdit{ID: "t1", Amount: "-5"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative amount: got %v", err)
	}

	if err := c.DeleteTransaction(ctx, "t9"); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	f.mu.Lock()
	deleted := f.lastDelete
	f.mu.Unlock()
	if deleted != "t9" {
		t.Fatalf("deleted %q", deleted)
	}
}

func TestHasAccounts(t *testing.T) {
	c := newTestClient(t, &fakeBackend{})
	ok, err := c.HasAccounts(context.Background())
	if err != nil || !ok {
		t.Fatalf("HasAccounts = %v, %v", ok, err)
	}
}

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{401, ErrAuth},
		{403, ErrAuth},
		{404, ErrNetwork},
		{502, ErrNetwork},
	}
	for _, tc := range cases {
		e := &Error{Kind: kindForStatus(tc.status), Op: "x", Status: tc.status}
		if !errors.Is(e, tc.want) {
			t.Errorf("status %d: %v is not %v", tc.status, e, tc.want)
		}
	}
}
