package http

import (
	"net/http"

	"finboard/internal/api"
	applog "finboard/internal/log"
)

type linkPageData struct {
	LinkToken string
	Error     string
}

// handleLinkPage fetches a link token and renders the bank-linking page,
// which opens the provider widget with it.
func (s *Server) handleLinkPage(w http.ResponseWriter, r *http.Request, sess *Session) {
	ctx, cancel := s.backendContext(r)
	defer cancel()
	if !sess.Backend.CheckAuth(ctx) {
		s.sessions.Destroy(w, r, sess)
		s.redirect(w, r, "/login")
		return
	}
	token, err := sess.Backend.CreateLinkToken(ctx)
	if err != nil {
		if s.authFailed(w, r, sess, err) {
			return
		}
		applog.FromContext(ctx).WarnContext(ctx, "Link token request failed",
			applog.FieldOperation, applog.OpLink,
			applog.FieldErrorType, errorType(err),
			applog.FieldError, err)
		s.render(w, r, http.StatusBadGateway, "link_page", linkPageData{Error: "Failed to initialize bank connection"})
		return
	}
	s.render(w, r, http.StatusOK, "link_page", linkPageData{LinkToken: token})
}

// handleLinkExchange receives the widget's public token as JSON
// ({"public_token": "..."}) or form data and hands it to the backend.
// The reply tells the page where to go next.
func (s *Server) handleLinkExchange(w http.ResponseWriter, r *http.Request, sess *Session) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
		return
	}
	publicToken := p.Get("public_token")

	ctx, cancel := s.backendContext(r)
	defer cancel()
	if _, err := sess.Backend.ExchangePublicToken(ctx, publicToken); err != nil {
		logger := applog.FromContext(ctx)
		logger.WarnContext(ctx, "Public token exchange failed",
			applog.FieldOperation, applog.OpLink,
			applog.FieldErrorType, errorType(err),
			applog.FieldError, err)
		status := statusFor(err)
		if status == http.StatusUnauthorized {
			s.sessions.Destroy(w, r, sess)
			writeJSON(w, status, map[string]string{"error": "Not authenticated", "redirect": "/login"})
			return
		}
		writeJSON(w, status, map[string]string{"error": api.UserMessage(err, "Failed to connect bank account")})
		return
	}
	// New accounts bring new transactions.
	sess.Dashboard.Invalidate()
	applog.FromContext(ctx).InfoContext(ctx, "Bank account linked", applog.FieldOperation, applog.OpLink)
	writeJSON(w, http.StatusOK, map[string]string{"redirect": "/dashboard"})
}
