package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a Job on a standard five-field cron schedule.
type Scheduler struct {
	job  *Job
	cron *cron.Cron
	spec string
}

func NewScheduler(spec string, job *Job, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s := &Scheduler{job: job, cron: c, spec: spec}
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	if _, err := s.job.Run(ctx, TriggerSchedule); err != nil && !errors.Is(err, ErrRunInProgress) {
		slog.WarnContext(ctx, "Scheduled refresh failed", "error", err)
	}
}

// Run blocks until ctx is done, then waits for a running job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	slog.InfoContext(ctx, "Refresh scheduler started", "schedule", s.spec, "next_run", s.Next())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.InfoContext(context.Background(), "Refresh scheduler stopped")
	return nil
}

// Next reports when the job runs next.
func (s *Scheduler) Next() string {
	entries := s.cron.Entries()
	if len(entries) == 0 || entries[0].Next.IsZero() {
		return ""
	}
	return entries[0].Next.Format("2006-01-02 15:04:05")
}

// cronLogger routes cron's logging through slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
