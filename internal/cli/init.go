// Package cli holds the bollette commands and the start-up steps they
// share: environment, configuration, logging, storage and the optional
// AMQP and Sheets clients.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"bollette/internal/amqp"
	"bollette/internal/config"
	"bollette/internal/log"
	"bollette/internal/sheets"
	gsheet "bollette/internal/sheets/google"
	"bollette/internal/sheets/memory"
	"bollette/internal/storage"
)

// SetupLogger builds the text logger at the given level and installs it as
// the slog default.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Level = log.ParseLevel(level)
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig reads the configuration from path (or CONFIG_FILE)
// and the environment, then validates it.
func LoadAndValidateConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitSQLite opens the repository at dbPath, applying pending migrations.
func InitSQLite(logger *log.Logger, dbPath string) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite repository at %s: %w", dbPath, err)
	}
	logger.Info("SQLite repository ready", log.FieldPath, dbPath)
	return repo, nil
}

// InitPublisher connects to the broker when AMQP_URL is set. A nil client
// with a nil error means publishing is disabled.
func InitPublisher(logger *log.Logger, cfg *config.Config) (*amqp.Client, error) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled, bill_paid events will not be published")
		return nil, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("initialize amqp client: %w", err)
	}
	logger.Info("AMQP client connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client, nil
}

// InitLedgerMirror returns the Google Sheets mirror when a spreadsheet is
// configured and an in-memory one otherwise.
func InitLedgerMirror(ctx context.Context, logger *log.Logger, cfg *config.Config) (sheets.LedgerMirror, error) {
	if !cfg.SheetsEnabled() {
		logger.Warn("Google Sheets disabled, mirroring ledger entries in memory only")
		return memory.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleLedgerSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize google sheets client: %w", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
