package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"finboard/internal/api"
	"finboard/internal/cli"
	"finboard/internal/config"
	apphttp "finboard/internal/http"
	applog "finboard/internal/log"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentApp, (*config.Config).ValidateServer)

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	apiConfig := api.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.APITimeout}
	newBackend := func() (apphttp.Backend, error) {
		return api.New(apiConfig)
	}
	// Fail fast on a malformed base URL rather than on the first login.
	probe, err := api.New(apiConfig)
	if err != nil {
		logger.Error("Invalid backend configuration",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeConfiguration)
		os.Exit(1)
	}

	exporter, err := cli.NewExporter(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize exporter", applog.FieldError, err, "backend", cfg.ExportBackend)
		os.Exit(1)
	}

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:          ":" + cfg.Port,
		Logger:        logger.WithComponent(applog.ComponentHTTP),
		SessionSecret: []byte(cfg.SessionSecret),
		SessionTTL:    cfg.SessionTTL,
		MaxSessions:   cfg.MaxSessions,
		NewBackend:    newBackend,
		Exporter:      exporter,
		ReadyCheck: func(ctx context.Context) error {
			_, err := probe.CSRFToken(ctx)
			return err
		},
	})
	if err != nil {
		logger.Error("Failed to create server", applog.FieldError, err)
		os.Exit(1)
	}

	// The broker is optional: without it sessions only go stale on their own
	// sync or reload.
	broker, err := cli.NewAMQPClient(cfg, logger)
	if err != nil {
		logger.Warn("AMQP unavailable, continuing without refresh events",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeNetwork)
		broker = nil
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting finboard server",
			"port", cfg.Port,
			"api", cfg.APIBaseURL,
			"export_backend", cfg.ExportBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		logger.Info("Shutting down server", applog.FieldOperation, applog.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})

	if broker != nil {
		g.Go(func() error {
			defer broker.Close()
			err := broker.ConsumeRefreshEvents(gctx, srv.HandleRefreshEvent)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
