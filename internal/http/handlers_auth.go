package http

import (
	"context"
	"errors"
	"net/http"

	"finboard/internal/api"
	applog "finboard/internal/log"
)

type authPageData struct {
	Username string
	Email    string
	Error    string
	Notice   string
}

// withSession resolves the request's session or sends the browser to the
// login page.
func (s *Server) withSession(fn func(http.ResponseWriter, *http.Request, *Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Lookup(w, r)
		if err != nil {
			if !errors.Is(err, errNoSession) {
				applog.FromContext(r.Context()).DebugContext(r.Context(), "Rejected session cookie", applog.FieldError, err)
			}
			s.redirect(w, r, "/login")
			return
		}
		ctx := r.Context()
		logger := applog.FromContext(ctx).With(applog.FieldSessionID, sess.ID)
		ctx = applog.NewContext(ctx, logger)
		fn(w, r.WithContext(ctx), sess)
	}
}

// redirect issues HX-Redirect for htmx requests and 303 otherwise.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, url string) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect(url).Write(w)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// authFailed reports whether err means the backend session is gone. If so
// the local session is dropped and the browser sent to the login page.
func (s *Server) authFailed(w http.ResponseWriter, r *http.Request, sess *Session, err error) bool {
	if !errors.Is(err, api.ErrAuth) {
		return false
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Backend session expired", applog.FieldError, err)
	s.sessions.Destroy(w, r, sess)
	s.redirect(w, r, "/login")
	return true
}

// statusFor maps a backend error to the status of the re-rendered form.
func statusFor(err error) int {
	switch {
	case errors.Is(err, api.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, api.ErrAuth):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, api.ErrValidation):
		return applog.ErrorTypeValidation
	case errors.Is(err, api.ErrAuth):
		return applog.ErrorTypeAuth
	case errors.Is(err, context.DeadlineExceeded):
		return applog.ErrorTypeTimeout
	default:
		return applog.ErrorTypeNetwork
	}
}

// landingPath picks where a signed-in user goes: the bank-linking page until
// an account is linked, the dashboard afterwards.
func (s *Server) landingPath(ctx context.Context, sess *Session) string {
	has, err := sess.Backend.HasAccounts(ctx)
	switch {
	case errors.Is(err, api.ErrAuth):
		return "/login"
	case err != nil:
		applog.FromContext(ctx).WarnContext(ctx, "Account check failed", applog.FieldError, err)
		return "/dashboard"
	case has:
		return "/dashboard"
	default:
		return "/link"
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Lookup(w, r)
	if err != nil {
		s.redirect(w, r, "/login")
		return
	}
	ctx, cancel := s.backendContext(r)
	defer cancel()
	if !sess.Backend.CheckAuth(ctx) {
		s.sessions.Destroy(w, r, sess)
		s.redirect(w, r, "/login")
		return
	}
	s.redirect(w, r, s.landingPath(ctx, sess))
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	data := authPageData{}
	if r.URL.Query().Get("registered") == "1" {
		data.Notice = "Account created. Please sign in."
	}
	s.render(w, r, http.StatusOK, "login_page", data)
}

// handleLogin always starts a fresh session so a previous user's state
// never carries over.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login_page", authPageData{Error: "Invalid request format"})
		return
	}
	username := sanitizeInput(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	logger := applog.FromContext(r.Context())

	if old, err := s.sessions.Lookup(w, r); err == nil {
		s.sessions.Destroy(w, r, old)
	}
	sess, err := s.sessions.Create(w, r)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to create session", applog.FieldError, err)
		s.render(w, r, http.StatusInternalServerError, "login_page", authPageData{Username: username, Error: "Login failed"})
		return
	}

	ctx, cancel := s.backendContext(r)
	defer cancel()
	if err := sess.Backend.Login(ctx, username, password); err != nil {
		s.metrics.loginFailures.Add(1)
		logger.WarnContext(ctx, "Login failed",
			applog.FieldOperation, applog.OpLogin,
			applog.FieldErrorType, errorType(err),
			applog.FieldError, err)
		s.sessions.Destroy(w, r, sess)
		s.render(w, r, statusFor(err), "login_page", authPageData{
			Username: username,
			Error:    api.UserMessage(err, "Login failed"),
		})
		return
	}

	s.metrics.logins.Add(1)
	logger.InfoContext(ctx, "User signed in", applog.FieldOperation, applog.OpLogin, applog.FieldSessionID, sess.ID)
	s.redirect(w, r, s.landingPath(ctx, sess))
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register_page", authPageData{})
}

// handleRegister creates the account with a throwaway backend client; the
// user signs in afterwards.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, "register_page", authPageData{Error: "Invalid request format"})
		return
	}
	creds := api.Credentials{
		Username: sanitizeInput(r.PostForm.Get("username")),
		Email:    sanitizeInput(r.PostForm.Get("email")),
		Password: r.PostForm.Get("password"),
	}
	confirm := r.PostForm.Get("confirmPassword")
	data := authPageData{Username: creds.Username, Email: creds.Email}
	logger := applog.FromContext(r.Context())

	backend, err := s.sessions.newBackend()
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to create backend client", applog.FieldError, err)
		data.Error = "An unexpected error occurred"
		s.render(w, r, http.StatusInternalServerError, "register_page", data)
		return
	}
	ctx, cancel := s.backendContext(r)
	defer cancel()
	if err := backend.Register(ctx, creds, confirm); err != nil {
		logger.WarnContext(ctx, "Registration failed",
			applog.FieldOperation, applog.OpRegister,
			applog.FieldErrorType, errorType(err),
			applog.FieldError, err)
		data.Error = api.UserMessage(err, "An error occurred during registration")
		s.render(w, r, statusFor(err), "register_page", data)
		return
	}
	logger.InfoContext(ctx, "User registered", applog.FieldOperation, applog.OpRegister)
	s.redirect(w, r, "/login?registered=1")
}

// handleLogout ends the backend session when there is one. The local
// session is dropped even if the backend call fails.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, err := s.sessions.Lookup(w, r); err == nil {
		ctx, cancel := s.backendContext(r)
		defer cancel()
		if err := sess.Backend.Logout(ctx); err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Backend logout failed",
				applog.FieldOperation, applog.OpLogout,
				applog.FieldError, err)
		}
		s.sessions.Destroy(w, r, sess)
	}
	s.redirect(w, r, "/login")
}
