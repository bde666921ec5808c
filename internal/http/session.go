package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"finboard/internal/api"
	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/dashboard"
)

const sessionCookieName = "finboard_session"

// Backend is the finance API as used by the web front end. *api.Client
// implements it; each session owns one so backend cookies stay per user.
type Backend interface {
	dashboard.Source
	CheckAuth(ctx context.Context) bool
	Login(ctx context.Context, username, password string) error
	Register(ctx context.Context, creds api.Credentials, confirm string) error
	Logout(ctx context.Context) error
	HasAccounts(ctx context.Context) (bool, error)
	CreateLinkToken(ctx context.Context) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (json.RawMessage, error)
	Accounts(ctx context.Context) ([]core.Account, error)
}

// BackendFactory creates the backend client of a new session.
type BackendFactory func() (Backend, error)

// Session is the server-side state of one browser.
type Session struct {
	ID        string
	Backend   Backend
	Dashboard *dashboard.Controller
	CreatedAt time.Time
}

var errNoSession = errors.New("no session")

// SessionStore maps signed session cookies onto an LRU of live sessions.
// The cookie carries only the session id as the subject of an HS256 JWT.
type SessionStore struct {
	secret     []byte
	ttl        time.Duration
	sessions   *cache.LRUCache[*Session]
	newBackend BackendFactory
	now        func() time.Time
}

func NewSessionStore(secret []byte, ttl time.Duration, maxSessions int, newBackend BackendFactory, now func() time.Time) *SessionStore {
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		secret:     secret,
		ttl:        ttl,
		sessions:   cache.NewLRUCache[*Session](maxSessions, ttl, cache.WithClock[*Session](now)),
		newBackend: newBackend,
		now:        now,
	}
}

// Cache exposes the session cache for the cleanup manager.
func (st *SessionStore) Cache() *cache.LRUCache[*Session] { return st.sessions }

func (st *SessionStore) Size() int { return st.sessions.Size() }

// Create starts a new session and sets its cookie on w.
func (st *SessionStore) Create(w http.ResponseWriter, r *http.Request) (*Session, error) {
	backend, err := st.newBackend()
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}
	sess := &Session{
		ID:        uuid.NewString(),
		Backend:   backend,
		Dashboard: dashboard.New(backend, dashboard.WithClock(st.now)),
		CreatedAt: st.now(),
	}
	if err := st.writeCookie(w, r, sess.ID); err != nil {
		return nil, err
	}
	st.sessions.Set(sess.ID, sess)
	return sess, nil
}

// Lookup returns the session named by the request cookie. A cookie issued
// more than half a TTL ago is re-issued so active users stay signed in.
func (st *SessionStore) Lookup(w http.ResponseWriter, r *http.Request) (*Session, error) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, errNoSession
	}
	claims, err := st.parse(c.Value)
	if err != nil {
		return nil, fmt.Errorf("session cookie: %w", err)
	}
	sess, ok := st.sessions.Get(claims.Subject)
	if !ok {
		return nil, errNoSession
	}
	if claims.IssuedAt != nil && st.now().Sub(claims.IssuedAt.Time) > st.ttl/2 {
		_ = st.writeCookie(w, r, sess.ID)
	}
	return sess, nil
}

// Destroy forgets the session and expires its cookie.
func (st *SessionStore) Destroy(w http.ResponseWriter, r *http.Request, sess *Session) {
	if sess != nil {
		st.sessions.Delete(sess.ID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

// InvalidateAll marks every session's transaction list stale.
func (st *SessionStore) InvalidateAll() int {
	n := 0
	st.sessions.Range(func(_ string, sess *Session) bool {
		sess.Dashboard.Invalidate()
		n++
		return true
	})
	return n
}

func (st *SessionStore) writeCookie(w http.ResponseWriter, r *http.Request, id string) error {
	now := st.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(st.ttl)),
	})
	signed, err := token.SignedString(st.secret)
	if err != nil {
		return fmt.Errorf("sign session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    signed,
		Path:     "/",
		Expires:  now.Add(st.ttl),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (st *SessionStore) parse(value string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims,
		func(*jwt.Token) (any, error) { return st.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(st.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("missing subject")
	}
	return claims, nil
}
