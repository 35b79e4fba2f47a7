package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"bollette/internal/amqp"
	"bollette/internal/cache"
	"bollette/internal/config"
	"bollette/internal/core"
	apphttp "bollette/internal/http"
	"bollette/internal/log"
	"bollette/internal/metrics"
	"bollette/internal/services"
	"bollette/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the bills API under /api/v1 together with /healthz, /readyz and
/metrics. Payments made through the API publish a bill_paid event when
AMQP_URL is configured.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := LoadAndValidateConfig(configPath)
	if err != nil {
		return err
	}
	logger := SetupLogger(cfg.LogLevel)
	logger.Info("Starting bollette server")

	repo, err := InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	metrics.Init(repo.DB())

	publisher, err := InitPublisher(logger, cfg)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}

	svc := newBillService(repo, publisher, cfg)

	cacheManager := cache.NewManager()
	if c := svc.SummaryCache(); c != nil {
		cacheManager.Register(c)
		cacheManager.StartCleanup(cfg.SummaryCacheTTL.Duration)
		defer cacheManager.Stop()
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, repo, apphttp.Options{
		Logger: logger.WithComponent(log.ComponentHTTP),
	})

	ctx, cancel := SignalContext(cmd.Context(), logger)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// newBillService wires the ledger and bill services over repo. publisher
// may be nil, in which case no bill_paid events are sent.
func newBillService(repo *storage.SQLiteRepository, client *amqp.Client, cfg *config.Config) *services.BillService {
	clock := core.SystemClock{}

	// Keep the interface nil rather than holding a nil *amqp.Client.
	var publisher services.BillPaidPublisher
	if client != nil {
		publisher = client
	}

	ledger := services.NewLedgerService(repo, publisher, clock)
	return services.NewBillService(repo, ledger, clock, services.BillServiceConfig{
		DueSoonDays: cfg.DueSoonDays,
		CacheSize:   cfg.SummaryCacheSize,
		CacheTTL:    cfg.SummaryCacheTTL.Duration,
	})
}
