// Package refresh runs the scheduled transaction refresh: it forces a
// backend sync with service credentials, records the outcome and tells
// interested parties about it.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/amqp"
	"finboard/internal/api"
	"finboard/internal/core"
	"finboard/internal/storage"
)

// Run triggers.
const (
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
	TriggerCLI      = "cli"
)

var ErrRunInProgress = errors.New("refresh already running")

type (
	// Backend is the part of the API client a refresh needs.
	Backend interface {
		Login(ctx context.Context, username, password string) error
		ForceSync(ctx context.Context) error
		Transactions(ctx context.Context) ([]core.Transaction, error)
	}

	RunStore interface {
		RecordRun(ctx context.Context, run storage.RefreshRun) (storage.RefreshRun, error)
		PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	Publisher interface {
		PublishRefreshEvent(ctx context.Context, e *amqp.RefreshEvent) error
	}

	Notifier interface {
		NotifyFailure(ctx context.Context, run storage.RefreshRun) error
	}
)

type Job struct {
	backend   Backend
	store     RunStore
	publisher Publisher
	notifier  Notifier

	username, password string
	retention          time.Duration
	now                func() time.Time

	running sync.Mutex
}

type Option func(*Job)

// WithCredentials makes every run log in before syncing.
func WithCredentials(username, password string) Option {
	return func(j *Job) { j.username, j.password = username, password }
}

func WithPublisher(p Publisher) Option { return func(j *Job) { j.publisher = p } }

func WithNotifier(n Notifier) Option { return func(j *Job) { j.notifier = n } }

// WithRetention prunes recorded runs older than d after each run.
// Zero keeps everything.
func WithRetention(d time.Duration) Option { return func(j *Job) { j.retention = d } }

func WithClock(now func() time.Time) Option { return func(j *Job) { j.now = now } }

func NewJob(backend Backend, store RunStore, opts ...Option) *Job {
	j := &Job{backend: backend, store: store, now: time.Now}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Run performs one refresh. Runs never overlap; a second concurrent call
// returns ErrRunInProgress. There are no retries within a run.
//
// The returned error is the refresh failure. Failures to publish, notify or
// prune are logged only.
func (j *Job) Run(ctx context.Context, trigger string) (storage.RefreshRun, error) {
	if !j.running.TryLock() {
		return storage.RefreshRun{}, ErrRunInProgress
	}
	defer j.running.Unlock()

	run := storage.RefreshRun{Trigger: trigger, StartedAt: j.now(), TotalAmount: decimal.Zero}
	txs, runErr := j.refresh(ctx)
	run.FinishedAt = j.now()

	if runErr != nil {
		run.Status = storage.RunFailed
		run.ErrorKind = errorKind(runErr)
		run.ErrorMessage = runErr.Error()
	} else {
		run.Status = storage.RunSucceeded
		run.TransactionCount = len(txs)
		run.TotalAmount = core.Summarize(txs).TotalExpenses
	}

	recorded, err := j.store.RecordRun(ctx, run)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to record refresh run", "error", err, "trigger", trigger)
		recorded = run
	}

	level := slog.LevelInfo
	if runErr != nil {
		level = slog.LevelError
	}
	slog.Log(ctx, level, "Refresh run finished",
		"run_id", recorded.ID,
		"trigger", trigger,
		"status", string(recorded.Status),
		"transactions", recorded.TransactionCount,
		"duration_ms", recorded.Duration().Milliseconds(),
		"error", recorded.ErrorMessage)

	j.publish(ctx, recorded)
	if runErr != nil {
		j.notify(ctx, recorded)
	}
	j.prune(ctx)

	return recorded, runErr
}

func (j *Job) refresh(ctx context.Context) ([]core.Transaction, error) {
	if j.username != "" {
		if err := j.backend.Login(ctx, j.username, j.password); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
	}
	if err := j.backend.ForceSync(ctx); err != nil {
		return nil, fmt.Errorf("force sync: %w", err)
	}
	txs, err := j.backend.Transactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	return txs, nil
}

func (j *Job) publish(ctx context.Context, run storage.RefreshRun) {
	if j.publisher == nil {
		return
	}
	e := amqp.NewRefreshEvent(run.ID, run.Trigger, run.Status == storage.RunSucceeded, run.TransactionCount)
	if err := j.publisher.PublishRefreshEvent(ctx, e); err != nil {
		slog.WarnContext(ctx, "Failed to publish refresh event", "error", err, "run_id", run.ID)
	}
}

func (j *Job) notify(ctx context.Context, run storage.RefreshRun) {
	if j.notifier == nil {
		return
	}
	if err := j.notifier.NotifyFailure(ctx, run); err != nil {
		slog.WarnContext(ctx, "Failed to send refresh failure alert", "error", err, "run_id", run.ID)
	}
}

func (j *Job) prune(ctx context.Context) {
	if j.retention <= 0 {
		return
	}
	n, err := j.store.PruneBefore(ctx, j.now().Add(-j.retention))
	if err != nil {
		slog.WarnContext(ctx, "Failed to prune refresh runs", "error", err)
		return
	}
	if n > 0 {
		slog.DebugContext(ctx, "Pruned refresh runs", "count", n)
	}
}

// errorKind names the failure class recorded with a failed run.
func errorKind(err error) string {
	var apiErr *api.Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Kind.String()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
