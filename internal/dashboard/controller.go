package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"finboard/internal/api"
	"finboard/internal/core"
)

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrNotReady       = errors.New("transactions not loaded yet")
)

// Source is the backend as seen by the controller.
type Source interface {
	Transactions(ctx context.Context) ([]core.Transaction, error)
	ForceSync(ctx context.Context) error
	EditTransaction(ctx context.Context, edit api.TransactionEdit) error
	DeleteTransaction(ctx context.Context, id string) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the view state of one user session. Backend calls run
// without the lock held; each fetch cycle takes a sequence number and a
// result arriving after a newer cycle started is discarded, though its
// error is still returned to the caller.
type Controller struct {
	src Source
	now func() time.Time

	mu    sync.Mutex
	state State
	seq   uint64
}

func New(src Source, opts ...Option) *Controller {
	c := &Controller{src: src, now: time.Now, state: Initial()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// View returns the current state and its derived view model.
func (c *Controller) View() (State, core.ViewModel) {
	s := c.Snapshot()
	return s, s.View(c.now())
}

// Load runs a fetch cycle. On failure the returned state carries the
// user-visible message and err is the backend error, so callers can tell an
// expired session from a network failure.
func (c *Controller) Load(ctx context.Context) (State, error) {
	seq := c.begin(func(s State) State {
		if s.HasData() {
			return s
		}
		return s.Reloading()
	})
	txs, err := c.src.Transactions(ctx)
	return c.finish(ctx, seq, txs, err, func(s State) State { return s.LoadFailed(MsgFetchFailed) })
}

// Refresh refetches without asking the backend to sync first.
func (c *Controller) Refresh(ctx context.Context) (State, error) {
	return c.Load(ctx)
}

// EnsureFresh loads when nothing is loaded yet or the list went stale.
func (c *Controller) EnsureFresh(ctx context.Context) (State, error) {
	s := c.Snapshot()
	if s.Phase == Ready && !s.Stale {
		return s, nil
	}
	return c.Load(ctx)
}

// Sync asks the backend to pull fresh data and then refetches. The current
// list stays visible while it runs.
func (c *Controller) Sync(ctx context.Context) (State, error) {
	c.mu.Lock()
	switch {
	case c.state.Syncing:
		s := c.state
		c.mu.Unlock()
		return s, ErrSyncInProgress
	case c.state.Phase != Ready:
		s := c.state
		c.mu.Unlock()
		return s, ErrNotReady
	}
	c.seq++
	seq := c.seq
	c.state = c.state.SyncStarted()
	c.mu.Unlock()

	var txs []core.Transaction
	err := c.src.ForceSync(ctx)
	if err == nil {
		txs, err = c.src.Transactions(ctx)
	}
	return c.finish(ctx, seq, txs, err, State.SyncFailed)
}

// Invalidate marks the list stale; the next EnsureFresh refetches.
func (c *Controller) Invalidate() {
	c.update(State.Invalidated)
}

func (c *Controller) SetTimeFrame(tf core.TimeFrame) State {
	return c.update(func(s State) State { return s.WithTimeFrame(tf) })
}

func (c *Controller) SetCriteria(cr core.FilterCriteria) State {
	return c.update(func(s State) State { return s.WithCriteria(cr) })
}

func (c *Controller) ClearFilters() State {
	return c.update(State.ClearFilters)
}

func (c *Controller) ClearCategory() State {
	return c.update(State.ClearCategory)
}

func (c *Controller) ClearAmount() State {
	return c.update(State.ClearAmount)
}

func (c *Controller) SetDrawer(open bool) State {
	if open {
		return c.update(State.OpenDrawer)
	}
	return c.update(State.CloseDrawer)
}

// Edit forwards an edit and applies it locally once acknowledged. Name and
// amount changes mark the list stale so the next render picks them up.
func (c *Controller) Edit(ctx context.Context, edit api.TransactionEdit) (State, error) {
	if err := c.src.EditTransaction(ctx, edit); err != nil {
		return c.Snapshot(), err
	}
	return c.update(func(s State) State {
		s = s.WithTransactionEdited(edit.ID, edit.Category)
		if edit.Name != "" || edit.Amount != "" {
			s = s.Invalidated()
		}
		return s
	}), nil
}

// Delete forwards a deletion and drops the transaction locally.
func (c *Controller) Delete(ctx context.Context, id string) (State, error) {
	if err := c.src.DeleteTransaction(ctx, id); err != nil {
		return c.Snapshot(), err
	}
	return c.update(func(s State) State { return s.WithTransactionRemoved(id) }), nil
}

func (c *Controller) update(fn func(State) State) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = fn(c.state)
	return c.state
}

func (c *Controller) begin(fn func(State) State) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.state = fn(c.state)
	return c.seq
}

func (c *Controller) finish(ctx context.Context, seq uint64, txs []core.Transaction, err error, fail func(State) State) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		slog.DebugContext(ctx, "Discarding superseded fetch result", "seq", seq, "current", c.seq)
		return c.state, err
	}
	if err != nil {
		c.state = fail(c.state)
		return c.state, err
	}
	c.state = c.state.Loaded(txs, c.now())
	return c.state, nil
}
