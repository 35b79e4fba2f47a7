package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bollette/internal/amqp"
	"bollette/internal/log"
	"bollette/internal/worker"
)

// reconcileInterval spaces the periodic catch-up passes that mirror
// entries whose bill_paid message was lost.
const reconcileInterval = time.Hour

func init() {
	rootCmd.AddCommand(workerCmd)
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Mirror ledger entries from bill_paid events to Google Sheets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunLedgerWorker(cmd.Context(), configPath)
	},
}

// RunLedgerWorker consumes bill_paid messages until ctx is cancelled or a
// shutdown signal arrives.
func RunLedgerWorker(ctx context.Context, path string) error {
	cfg, err := LoadAndValidateConfig(path)
	if err != nil {
		return err
	}
	logger := SetupLogger(cfg.LogLevel).WithComponent(log.ComponentWorker)
	logger.Info("Starting ledger worker")

	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required by the ledger worker")
	}

	repo, err := InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx, cancel := SignalContext(ctx, logger)
	defer cancel()

	mirror, err := InitLedgerMirror(ctx, logger, cfg)
	if err != nil {
		return err
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("initialize amqp client: %w", err)
	}
	defer client.Close()

	w := worker.NewLedgerWorker(repo, mirror, cfg.MirrorBatchSize)

	// A failed catch-up is retried on the next tick.
	logger.Info("Performing startup check")
	if err := w.StartupCheck(ctx, time.Now()); err != nil {
		logger.Error("Startup check failed", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := client.ConsumeWithRetry(gctx, w.HandleBillPaid); err != nil {
			return err
		}
		return errors.New("bill_paid consumer stopped")
	})
	g.Go(func() error {
		ticker := time.NewTicker(reconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case now := <-ticker.C:
				if err := w.StartupCheck(gctx, now); err != nil {
					logger.Error("Periodic ledger check failed", log.FieldError, err)
				}
			}
		}
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Ledger worker stopped", log.FieldError, err)
		return err
	}
	logger.Info("Ledger worker shutdown complete")
	return nil
}
