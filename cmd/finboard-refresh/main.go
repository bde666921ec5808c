package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"finboard/internal/api"
	"finboard/internal/cli"
	"finboard/internal/config"
	applog "finboard/internal/log"
	"finboard/internal/refresh"
)

// runRetention is how long refresh run history is kept.
const runRetention = 90 * 24 * time.Hour

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentRefresh, (*config.Config).ValidateWorker)

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("Failed to close SQLite repository", applog.FieldError, err)
		}
	}()

	client, err := api.New(api.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.APITimeout})
	if err != nil {
		logger.Error("Invalid backend configuration",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
		os.Exit(1)
	}

	opts := []refresh.Option{
		refresh.WithCredentials(cfg.RefreshUsername, cfg.RefreshPassword),
		refresh.WithRetention(runRetention),
	}

	broker, err := cli.NewAMQPClient(cfg, logger)
	if err != nil {
		logger.Warn("AMQP unavailable, refresh events will not be published",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeNetwork)
	} else if broker != nil {
		defer broker.Close()
		opts = append(opts, refresh.WithPublisher(broker))
	}

	if cfg.SMTPHost != "" {
		opts = append(opts, refresh.WithNotifier(refresh.NewEmailNotifier(refresh.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.AlertFrom,
			To:       refresh.ParseRecipients(cfg.AlertTo),
		})))
		logger.Info("Failure alerts enabled", "to", cfg.AlertTo)
	}

	job := refresh.NewJob(client, repo, opts...)
	scheduler, err := refresh.NewScheduler(cfg.RefreshSchedule, job, logger.Logger)
	if err != nil {
		logger.Error("Failed to create scheduler",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	// One run at startup so a fresh deployment does not wait for the first tick.
	g.Go(func() error {
		run, err := job.Run(gctx, refresh.TriggerStartup)
		if err != nil && !errors.Is(err, refresh.ErrRunInProgress) {
			logger.Warn("Startup refresh failed",
				applog.FieldOperation, applog.OpStartup,
				applog.FieldError, err,
				"run_id", run.ID)
		}
		return nil
	})

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	logger.Info("Refresh worker started",
		"schedule", cfg.RefreshSchedule,
		"db_path", cfg.SQLiteDBPath)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Refresh worker error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Refresh worker stopped gracefully")
}
