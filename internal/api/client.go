// Package api is the client for the finance backend REST API.
//
// A Client holds its own cookie jar, so one Client corresponds to one
// backend session. State-mutating calls carry the CSRF token, read from the
// jar when the backend already set it and fetched otherwise.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"finboard/internal/core"
)

const (
	csrfCookieName = "csrftoken"
	csrfHeader     = "X-CSRFToken"

	// DefaultTimeout bounds every backend call.
	DefaultTimeout = 15 * time.Second
)

// Config configures a Client.
type Config struct {
	// BaseURL is the backend origin, e.g. "http://localhost:8000".
	BaseURL string
	// Timeout applies per request; zero selects DefaultTimeout.
	Timeout time.Duration
	// Transport is an optional round tripper (tests, instrumentation).
	Transport http.RoundTripper
}

// Client talks to the backend on behalf of one user session.
type Client struct {
	http    *http.Client
	baseURL *url.URL
}

// New creates a Client with an empty cookie jar.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    &http.Client{Jar: jar, Timeout: timeout, Transport: cfg.Transport},
		baseURL: base,
	}, nil
}

// CheckAuth reports whether the session is authenticated. A backend error
// counts as unauthenticated.
func (c *Client) CheckAuth(ctx context.Context) bool {
	var out authCheckResponse
	if err := c.do(ctx, "check auth", http.MethodGet, "/api/auth/check/", true, nil, &out); err != nil {
		return false
	}
	return out.IsAuthenticated
}

// CSRFToken returns the token from the cookie jar, fetching it if absent.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	for _, ck := range c.http.Jar.Cookies(c.baseURL) {
		if ck.Name == csrfCookieName && ck.Value != "" {
			return ck.Value, nil
		}
	}
	var out csrfResponse
	if err := c.do(ctx, "csrf", http.MethodGet, "/api/auth/csrf/", false, nil, &out); err != nil {
		return "", err
	}
	if out.CSRFToken == "" {
		return "", &Error{Kind: KindNetwork, Op: "csrf", Message: "empty csrf token"}
	}
	return out.CSRFToken, nil
}

// Login starts a session. Rejected credentials come back as a
// validation error carrying the backend message.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := Credentials{Username: username, Password: password}
	return c.doForm(ctx, "login", "/api/auth/login/", body, "Login failed")
}

// Register creates an account. confirm must match the password; the check
// happens before any request is made.
func (c *Client) Register(ctx context.Context, creds Credentials, confirm string) error {
	if creds.Password != confirm {
		return ErrPasswordMismatch
	}
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return &Error{Kind: KindValidation, Op: "register", Message: "Username and password are required"}
	}
	creds.Email = strings.TrimSpace(creds.Email)
	return c.doForm(ctx, "register", "/api/auth/register/", creds, "Registration failed")
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/api/auth/logout/", true, nil, nil)
}

// CheckUserExists reports whether any user is registered with the backend.
func (c *Client) CheckUserExists(ctx context.Context) (bool, error) {
	var out userExistsResponse
	if err := c.do(ctx, "check user exists", http.MethodGet, "/api/check_user_exists/", false, nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// HasAccounts reports whether the user has linked at least one account.
func (c *Client) HasAccounts(ctx context.Context) (bool, error) {
	var out hasAccountsResponse
	if err := c.do(ctx, "check has accounts", http.MethodPost, "/api/check_has_accounts/", true, nil, &out); err != nil {
		return false, err
	}
	return out.HasAccounts, nil
}

// CreateLinkToken returns a token for starting the bank-linking widget.
func (c *Client) CreateLinkToken(ctx context.Context) (string, error) {
	var out linkTokenResponse
	if err := c.do(ctx, "create link token", http.MethodGet, "/api/create_link_token/", true, nil, &out); err != nil {
		return "", err
	}
	return out.LinkToken, nil
}

// ExchangePublicToken hands the widget's public token to the backend.
// The response is opaque and returned as raw JSON.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (json.RawMessage, error) {
	if strings.TrimSpace(publicToken) == "" {
		return nil, &Error{Kind: KindValidation, Op: "exchange public token", Message: "missing public token"}
	}
	var out json.RawMessage
	body := map[string]string{"public_token": publicToken}
	if err := c.do(ctx, "exchange public token", http.MethodPost, "/api/exchange_public_token/", true, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Transactions fetches the user's transactions in backend order.
// Records that violate the domain invariants are dropped and logged.
func (c *Client) Transactions(ctx context.Context) ([]core.Transaction, error) {
	var out transactionsResponse
	if err := c.do(ctx, "get transactions", http.MethodGet, "/api/get_transactions/", true, nil, &out); err != nil {
		return nil, err
	}
	txs := make([]core.Transaction, 0, len(out.Transactions))
	for _, w := range out.Transactions {
		t := w.toCore()
		if err := t.Validate(); err != nil {
			slog.WarnContext(ctx, "Dropping invalid transaction", "transaction_id", t.ID, "error", err)
			continue
		}
		txs = append(txs, t)
	}
	return txs, nil
}

// Accounts fetches the user's linked accounts.
func (c *Client) Accounts(ctx context.Context) ([]core.Account, error) {
	var out accountsResponse
	if err := c.do(ctx, "get accounts", http.MethodGet, "/api/get_accounts/", true, nil, &out); err != nil {
		return nil, err
	}
	accounts := make([]core.Account, 0, len(out.Accounts))
	for _, a := range out.Accounts {
		accounts = append(accounts, a.toCore())
	}
	return accounts, nil
}

// ForceSync asks the backend to pull fresh data from the provider.
func (c *Client) ForceSync(ctx context.Context) error {
	return c.do(ctx, "force transaction sync", http.MethodGet, "/api/force_transaction_sync/", true, nil, nil)
}

// EditTransaction updates a transaction's name, amount or category.
func (c *Client) EditTransaction(ctx context.Context, edit TransactionEdit) error {
	if strings.TrimSpace(edit.ID) == "" {
		return &Error{Kind: KindValidation, Op: "edit transaction", Message: "missing transaction id"}
	}
	if edit.Amount != "" {
		if d, ok := core.ParseAmountInput(edit.Amount); !ok || d.IsNegative() {
			return &Error{Kind: KindValidation, Op: "edit transaction", Message: "Amount must be a non-negative number"}
		}
	}
	return c.do(ctx, "edit transaction", http.MethodPost, "/api/edit_transaction/", true, edit, nil)
}

// DeleteTransaction removes a transaction.
func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &Error{Kind: KindValidation, Op: "delete transaction", Message: "missing transaction id"}
	}
	body := map[string]string{"transaction_id": id}
	return c.do(ctx, "delete transaction", http.MethodDelete, "/api/delete_transaction/", true, body, nil)
}

// doForm posts a login/register style body. A rejection with an {error}
// body becomes a validation error; 5xx stays a network failure.
func (c *Client) doForm(ctx context.Context, op, path string, body any, fallback string) error {
	err := c.do(ctx, op, http.MethodPost, path, true, body, nil)
	var e *Error
	if errors.As(err, &e) && e.Status >= 400 && e.Status < 500 {
		if e.Message == "" {
			e.Message = fallback
		}
		e.Kind = KindValidation
	}
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, withCSRF bool, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withCSRF {
		token, err := c.CSRFToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set(csrfHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindNetwork, Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func parseError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	e := &Error{Kind: kindForStatus(resp.StatusCode), Op: op, Status: resp.StatusCode}
	var body errorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		e.Message = body.Error
	}
	return e
}
