// Package dashboard holds the transaction view state machine and the
// controller that drives it from backend results.
package dashboard

import (
	"time"

	"finboard/internal/core"
)

// Phase is the fetch lifecycle of the view.
type Phase int

const (
	Loading Phase = iota
	Ready
	Failed
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

const (
	MsgFetchFailed = "Failed to fetch transactions"
	MsgSyncFailed  = "Failed to sync transactions"
)

// State is one immutable snapshot of the transaction view. Every transition
// returns a new value; the receiver is never modified.
type State struct {
	Phase      Phase
	Syncing    bool
	Stale      bool   // an external refresh happened since the last fetch
	Err        string // user-visible error, empty when none
	TimeFrame  core.TimeFrame
	Criteria   core.FilterCriteria
	DrawerOpen bool
	LoadedAt   time.Time

	// raw is kept sorted newest first.
	raw []core.Transaction
}

// Initial is the state of a freshly opened view.
func Initial() State {
	return State{Phase: Loading, TimeFrame: core.All}
}

// Transactions returns the loaded transactions, newest first.
func (s State) Transactions() []core.Transaction {
	out := make([]core.Transaction, len(s.raw))
	copy(out, s.raw)
	return out
}

// HasData reports whether a list has been loaded at least once.
func (s State) HasData() bool { return !s.LoadedAt.IsZero() }

// View derives everything the page renders.
func (s State) View(now time.Time) core.ViewModel {
	return core.DeriveView(s.raw, s.TimeFrame, s.Criteria, now)
}

func (s State) WithTimeFrame(tf core.TimeFrame) State {
	s.TimeFrame = tf
	return s
}

func (s State) WithCriteria(c core.FilterCriteria) State {
	s.Criteria = c
	return s
}

// ClearFilters resets the criteria; the time frame is kept.
func (s State) ClearFilters() State {
	s.Criteria = core.FilterCriteria{}
	return s
}

func (s State) ClearCategory() State {
	s.Criteria.Category = nil
	return s
}

func (s State) ClearAmount() State {
	s.Criteria.MinAmount = nil
	s.Criteria.MaxAmount = nil
	return s
}

func (s State) OpenDrawer() State {
	s.DrawerOpen = true
	return s
}

func (s State) CloseDrawer() State {
	s.DrawerOpen = false
	return s
}

// Loaded replaces the list after a successful fetch or sync.
func (s State) Loaded(txs []core.Transaction, at time.Time) State {
	s.raw = core.SortByTimestampDesc(txs)
	s.Phase = Ready
	s.Syncing = false
	s.Stale = false
	s.Err = ""
	s.LoadedAt = at
	return s
}

// LoadFailed ends a fetch cycle with an error. A previously loaded list is
// kept on screen, so the phase stays Ready when there is one.
func (s State) LoadFailed(msg string) State {
	s.Syncing = false
	s.Err = msg
	if s.HasData() {
		s.Phase = Ready
	} else {
		s.Phase = Failed
	}
	return s
}

// Reloading re-enters Loading for a retry after a failed first load.
func (s State) Reloading() State {
	s.Phase = Loading
	s.Err = ""
	return s
}

// SyncStarted re-enters loading with the current list retained.
func (s State) SyncStarted() State {
	s.Syncing = true
	s.Err = ""
	return s
}

func (s State) SyncFailed() State {
	return s.LoadFailed(MsgSyncFailed)
}

// Invalidated marks the list as outdated without dropping it.
func (s State) Invalidated() State {
	s.Stale = true
	return s
}

// WithTransactionEdited applies an acknowledged edit to the local list.
func (s State) WithTransactionEdited(id, category string) State {
	raw := make([]core.Transaction, len(s.raw))
	for i, t := range s.raw {
		if t.ID == id && category != "" {
			t = t.WithCategory(category)
		}
		raw[i] = t
	}
	s.raw = raw
	return s
}

// WithTransactionRemoved drops an acknowledged deletion from the local list.
func (s State) WithTransactionRemoved(id string) State {
	raw := make([]core.Transaction, 0, len(s.raw))
	for _, t := range s.raw {
		if t.ID != id {
			raw = append(raw, t)
		}
	}
	s.raw = raw
	return s
}
