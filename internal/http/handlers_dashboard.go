package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"finboard/internal/api"
	"finboard/internal/dashboard"
	applog "finboard/internal/log"
	"finboard/internal/report"
)

const chartSize = 320

type dashboardPageData struct {
	CanExport bool
}

type accountRow struct {
	Name, Type, Institution string
}

// handleDashboard renders the page shell; the panel loads itself through
// /ui/transactions.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, sess *Session) {
	ctx, cancel := s.backendContext(r)
	defer cancel()
	if !sess.Backend.CheckAuth(ctx) {
		s.sessions.Destroy(w, r, sess)
		s.redirect(w, r, "/login")
		return
	}
	s.render(w, r, http.StatusOK, "dashboard_page", dashboardPageData{CanExport: s.exporter != nil})
}

// panel renders the transaction panel for the session's current state.
func (s *Server) panel(r *http.Request, sess *Session, notice string) *HTMXResponseBuilder {
	st, view := sess.Dashboard.View()
	data := buildPanel(st, view, s.loc)
	data.Notice = notice
	data.CanExport = s.exporter != nil

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "transaction_panel", data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldOperation, applog.OpRender,
			applog.FieldError, err,
			"template", "transaction_panel")
		return InternalServerError("Unable to render transactions")
	}
	return NewHTMXResponse().BodyHTML(buf.String())
}

func (s *Server) logView(r *http.Request, st dashboard.State, op string) {
	applog.FromContext(r.Context()).DebugContext(r.Context(), "Transaction view rendered",
		applog.NewFields().
			WithOperation(op).
			WithView(st.TimeFrame.String(), len(st.Transactions())).
			ToSlice()...)
}

// handleTransactions loads the list on first use or after an external
// refresh marked it stale. A failed load still renders the panel, which
// then shows the error.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, sess *Session) {
	ctx, cancel := s.backendContext(r)
	defer cancel()
	st, err := sess.Dashboard.EnsureFresh(ctx)
	if err != nil {
		if s.authFailed(w, r, sess, err) {
			return
		}
		applog.FromContext(ctx).WarnContext(ctx, "Transaction fetch failed",
			applog.FieldOperation, applog.OpLoad,
			applog.FieldErrorType, errorType(err),
			applog.FieldError, err)
	}
	s.logView(r, st, applog.OpLoad)
	s.panel(r, sess, "").Write(w)
}

func (s *Server) handleTimeFrame(w http.ResponseWriter, r *http.Request, sess *Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	if tf, ok := ParseTimeFrameParam(r.PostForm); ok {
		sess.Dashboard.SetTimeFrame(tf)
	}
	s.panel(r, sess, "").TriggerTransactionsChanged().Write(w)
}

// handleApplyFilters replaces the criteria with the drawer's fields and
// closes the drawer.
func (s *Server) handleApplyFilters(w http.ResponseWriter, r *http.Request, sess *Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	criteria := ParseCriteria(r.PostForm)
	sess.Dashboard.SetCriteria(criteria)
	sess.Dashboard.SetDrawer(false)
	if criteria.Category != nil {
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Filters applied",
			applog.FieldCategory, *criteria.Category,
			applog.FieldCount, criteria.ActiveCount())
	}
	s.panel(r, sess, "").TriggerDrawerClosed().TriggerTransactionsChanged().Write(w)
}

// handleClearFilters removes one chip ("category" or "amount") or, for
// any other value, every filter.
func (s *Server) handleClearFilters(w http.ResponseWriter, r *http.Request, sess *Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	switch r.PostForm.Get("which") {
	case "category":
		sess.Dashboard.ClearCategory()
	case "amount":
		sess.Dashboard.ClearAmount()
	default:
		sess.Dashboard.ClearFilters()
	}
	s.panel(r, sess, "").TriggerTransactionsChanged().Write(w)
}

func (s *Server) handleDrawer(w http.ResponseWriter, r *http.Request, sess *Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	open := r.PostForm.Get("open")
	sess.Dashboard.SetDrawer(open == "1" || open == "true")
	s.panel(r, sess, "").Write(w)
}

// handleSync asks the backend to pull from the bank and refetches. The
// list stays on screen while it runs and after a failure.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request, sess *Session) {
	ctx, cancel := s.backendContext(r)
	defer cancel()
	st, err := sess.Dashboard.Sync(ctx)
	switch {
	case errors.Is(err, dashboard.ErrSyncInProgress):
		s.panel(r, sess, "Sync already in progress").Write(w)
		return
	case errors.Is(err, dashboard.ErrNotReady):
		s.panel(r, sess, "Transactions are still loading").Write(w)
		return
	case err != nil:
		if s.authFailed(w, r, sess, err) {
			return
		}
		applog.FromContext(ctx).WarnContext(ctx, "Transaction sync failed",
			applog.FieldOperation, applog.OpSync,
			applog.FieldErrorType, errorType(err),
			applog.FieldError, err)
		s.panel(r, sess, "").TriggerErrorNotification(dashboard.MsgSyncFailed).Write(w)
		return
	}
	s.metrics.syncs.Add(1)
	s.logView(r, st, applog.OpSync)
	s.panel(r, sess, "").
		TriggerTransactionsChanged().
		TriggerSuccessNotification("Transactions synced").
		Write(w)
}

// handleChart serves the category pie of the filtered view as SVG.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request, sess *Session) {
	_, view := sess.Dashboard.View()
	var buf bytes.Buffer
	if err := report.WritePieSVG(&buf, view.Summary, chartSize); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Chart rendering failed",
			applog.FieldOperation, applog.OpRender,
			applog.FieldError, err)
		InternalServerError("Unable to render chart").Write(w)
		return
	}
	NewHTMXResponse().
		Header("Content-Type", "image/svg+xml").
		Body(buf.Bytes()).
		Write(w)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request, sess *Session) {
	ctx, cancel := s.backendContext(r)
	defer cancel()
	accounts, err := sess.Backend.Accounts(ctx)
	if err != nil {
		if s.authFailed(w, r, sess, err) {
			return
		}
		applog.FromContext(ctx).WarnContext(ctx, "Account fetch failed",
			applog.FieldErrorType, errorType(err),
			applog.FieldError, err)
		ErrorResponse(http.StatusBadGateway, "Failed to fetch accounts").Write(w)
		return
	}
	rows := make([]accountRow, len(accounts))
	for i, a := range accounts {
		rows[i] = accountRow{Name: a.Name, Type: report.CategoryLabel(a.AccountType), Institution: a.Institution}
	}
	s.render(w, r, http.StatusOK, "accounts_panel", rows)
}

// handleEditCategory recategorises one transaction.
func (s *Server) handleEditCategory(w http.ResponseWriter, r *http.Request, sess *Session) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	id := mux.Vars(r)["id"]
	category := sanitizeInput(r.PostForm.Get("category"))
	if category == "" {
		UnprocessableEntityError("Category is required").Write(w)
		return
	}
	ctx, cancel := s.backendContext(r)
	defer cancel()
	if _, err := sess.Dashboard.Edit(ctx, api.TransactionEdit{ID: id, Category: category}); err != nil {
		s.mutationFailed(w, r, sess, err, applog.OpEdit, id, "Failed to update transaction")
		return
	}
	s.metrics.edits.Add(1)
	applog.FromContext(ctx).InfoContext(ctx, "Transaction recategorised",
		applog.FieldOperation, applog.OpEdit,
		applog.FieldTransactionID, id,
		applog.FieldCategory, category)
	s.panel(r, sess, "").TriggerTransactionsChanged().Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, sess *Session) {
	id := mux.Vars(r)["id"]
	ctx, cancel := s.backendContext(r)
	defer cancel()
	if _, err := sess.Dashboard.Delete(ctx, id); err != nil {
		s.mutationFailed(w, r, sess, err, applog.OpDelete, id, "Failed to delete transaction")
		return
	}
	s.metrics.deletes.Add(1)
	applog.FromContext(ctx).InfoContext(ctx, "Transaction deleted",
		applog.FieldOperation, applog.OpDelete,
		applog.FieldTransactionID, id)
	s.panel(r, sess, "").
		TriggerTransactionsChanged().
		TriggerSuccessNotification("Transaction deleted").
		Write(w)
}

// mutationFailed answers a rejected edit or delete. The local list is left
// untouched, so the panel is re-rendered with a notice.
func (s *Server) mutationFailed(w http.ResponseWriter, r *http.Request, sess *Session, err error, op, id, fallback string) {
	if s.authFailed(w, r, sess, err) {
		return
	}
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Transaction update rejected",
		applog.FieldOperation, op,
		applog.FieldTransactionID, id,
		applog.FieldErrorType, errorType(err),
		applog.FieldError, err)
	s.panel(r, sess, api.UserMessage(err, fallback)).TriggerErrorNotification(fallback).Write(w)
}

// handleExport writes the current filtered view to the configured exporter.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, sess *Session) {
	st, view := sess.Dashboard.View()
	if st.Phase != dashboard.Ready {
		s.panel(r, sess, "Transactions are still loading").Write(w)
		return
	}
	title := fmt.Sprintf("Transactions: %s (%s)", st.TimeFrame.Label(), s.now().In(s.loc).Format("2006-01-02 15:04"))
	ctx, cancel := s.backendContext(r)
	defer cancel()
	ref, err := s.exporter.ExportView(ctx, title, view)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Export failed",
			applog.FieldOperation, applog.OpExport,
			applog.FieldError, err)
		s.panel(r, sess, "Export failed").TriggerErrorNotification("Export failed").Write(w)
		return
	}
	s.metrics.exports.Add(1)
	applog.FromContext(ctx).InfoContext(ctx, "View exported",
		applog.FieldOperation, applog.OpExport,
		applog.FieldCount, len(view.Transactions),
		"ref", ref)
	s.panel(r, sess, fmt.Sprintf("Exported %d transactions (%s)", len(view.Transactions), ref)).
		TriggerSuccessNotification("Export complete").
		Write(w)
}
