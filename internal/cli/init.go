// Package cli holds the process bootstrap shared by the finboard commands:
// environment loading, logger setup, config validation and shutdown.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finboard/internal/amqp"
	"finboard/internal/config"
	applog "finboard/internal/log"
	"finboard/internal/sheets"
	"finboard/internal/sheets/google"
	"finboard/internal/sheets/memory"
	"finboard/internal/storage"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger and installs it as the slog default.
func SetupLogger(level, format, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(level),
		Format:    format,
		Component: component,
	})
	applog.SetDefault(logger)
	return logger
}

// Bootstrap loads .env and the configuration, sets up logging from it and
// validates it with validate. It exits the process on validation failure.
func Bootstrap(component string, validate func(*config.Config) error) (*config.Config, *applog.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg.LogLevel, cfg.LogFormat, component)
	if validate != nil {
		if err := validate(cfg); err != nil {
			logger.Error("Configuration validation failed",
				applog.FieldError, err,
				applog.FieldErrorType, applog.ErrorTypeConfiguration)
			os.Exit(1)
		}
	}
	return cfg, logger
}

// InitSQLite opens the refresh run store or exits the process.
func InitSQLite(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeDatabase,
			"path", dbPath)
		os.Exit(1)
	}
	return repo
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM.
func ShutdownContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// NewExporter builds the view exporter named by cfg.ExportBackend.
func NewExporter(ctx context.Context, cfg *config.Config, logger *applog.Logger) (sheets.ViewExporter, error) {
	switch cfg.ExportBackend {
	case "sheets":
		c, err := google.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			return nil, fmt.Errorf("google sheets exporter: %w", err)
		}
		logger.Info("Initialized Google Sheets exporter", "sheet", cfg.GoogleSheetName)
		return c, nil
	default:
		logger.Info("Initialized in-memory exporter")
		return memory.New(time.Local), nil
	}
}

// NewAMQPClient connects to the broker when AMQP_URL is set. It returns
// nil without error when messaging is not configured.
func NewAMQPClient(cfg *config.Config, logger *applog.Logger) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP not configured, refresh events disabled")
		return nil, nil
	}
	c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("amqp: %w", err)
	}
	logger.Info("Connected to AMQP broker",
		"exchange", cfg.AMQPExchange,
		"routing_key", cfg.AMQPQueue)
	return c, nil
}
