package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bollette/internal/amqp"
	"bollette/internal/core"
	"bollette/internal/log"
	"bollette/internal/metrics"
	"bollette/internal/sheets"
)

// LedgerStore is the read side the worker needs.
type LedgerStore interface {
	GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error)
	GetCategory(ctx context.Context, ownerID, id string) (core.Category, error)
	ListBillTransactions(ctx context.Context, from, to core.Date, limit, offset int) ([]core.Transaction, error)
}

// LedgerWorker mirrors ledger entries generated from bill payments to a
// spreadsheet.
type LedgerWorker struct {
	store     LedgerStore
	writer    sheets.LedgerWriter
	reader    sheets.LedgerReader
	batchSize int
	logger    *log.Logger
}

// NewLedgerWorker creates a worker. When mirror also implements
// sheets.LedgerReader, entries already present are not appended again.
func NewLedgerWorker(store LedgerStore, mirror sheets.LedgerWriter, batchSize int) *LedgerWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	w := &LedgerWorker{
		store:     store,
		writer:    mirror,
		batchSize: batchSize,
		logger:    log.ForComponent(log.ComponentWorker),
	}
	if r, ok := mirror.(sheets.LedgerReader); ok {
		w.reader = r
	}
	return w
}

// HandleBillPaid processes a single bill_paid message from AMQP.
func (w *LedgerWorker) HandleBillPaid(ctx context.Context, msg *amqp.BillPaidMessage) error {
	w.logger.InfoContext(ctx, "Processing bill_paid message",
		log.FieldOwnerID, msg.OwnerID,
		log.FieldTransaction, msg.TransactionID)

	tx, err := w.store.GetTransaction(ctx, msg.OwnerID, msg.TransactionID)
	if errors.Is(err, core.ErrNotFound) {
		// Nothing to mirror; requeueing would loop forever.
		w.logger.WarnContext(ctx, "Ledger entry not found, dropping message",
			log.FieldTransaction, msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	if w.reader != nil {
		mirrored, err := w.mirroredIDs(ctx, tx.Date.Year())
		if err != nil {
			return fmt.Errorf("read ledger mirror: %w", err)
		}
		if _, ok := mirrored[tx.ID]; ok {
			w.logger.InfoContext(ctx, "Ledger entry already mirrored", log.FieldTransaction, tx.ID)
			return nil
		}
	}

	return w.mirror(ctx, tx)
}

// StartupCheck appends bill-generated entries of the current year that are
// missing from the mirror. It recovers from lost messages and worker
// downtime. Without a reader it does nothing.
func (w *LedgerWorker) StartupCheck(ctx context.Context, now time.Time) error {
	if w.reader == nil {
		w.logger.InfoContext(ctx, "Ledger mirror cannot be listed, skipping startup check")
		return nil
	}

	year := now.UTC().Year()
	from, to := core.NewDate(year, 1, 1), core.NewDate(year, 12, 31)
	pageSize := w.batchSize * 5

	var mirrored map[string]struct{}
	total, successCount, errorCount := 0, 0, 0
	for offset := 0; ; offset += pageSize {
		txs, err := w.store.ListBillTransactions(ctx, from, to, pageSize, offset)
		if err != nil {
			return fmt.Errorf("list ledger entries for startup check: %w", err)
		}
		if offset == 0 && len(txs) == 0 {
			w.logger.InfoContext(ctx, "No ledger entries found on startup")
			return nil
		}
		if mirrored == nil {
			if mirrored, err = w.mirroredIDs(ctx, year); err != nil {
				return fmt.Errorf("read ledger mirror: %w", err)
			}
		}

		for _, tx := range txs {
			if _, ok := mirrored[tx.ID]; ok {
				continue
			}
			if err := w.mirror(ctx, tx); err != nil {
				w.logger.ErrorContext(ctx, "Failed to mirror ledger entry during startup",
					log.FieldTransaction, tx.ID,
					log.FieldError, err)
				errorCount++
				continue
			}
			successCount++
		}
		total += len(txs)

		if len(txs) < pageSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	w.logger.InfoContext(ctx, "Startup check completed",
		"total", total,
		"mirrored", successCount,
		"errors", errorCount)
	return nil
}

func (w *LedgerWorker) mirroredIDs(ctx context.Context, year int) (map[string]struct{}, error) {
	rows, err := w.reader.ListEntries(ctx, year)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		ids[r.TransactionID] = struct{}{}
	}
	return ids, nil
}

func (w *LedgerWorker) mirror(ctx context.Context, tx core.Transaction) error {
	category := tx.CategoryID
	if c, err := w.store.GetCategory(ctx, tx.OwnerID, tx.CategoryID); err == nil {
		category = c.Name
	} else {
		w.logger.WarnContext(ctx, "Category lookup failed, mirroring the id",
			log.FieldCategoryID, tx.CategoryID,
			log.FieldError, err)
	}

	ref, err := w.writer.AppendEntry(ctx, sheets.RowFromTransaction(tx, category))
	if err != nil {
		metrics.IncLedgerMirrored(false)
		return fmt.Errorf("append to ledger mirror: %w", err)
	}
	metrics.IncLedgerMirrored(true)

	w.logger.InfoContext(ctx, "Ledger entry mirrored",
		log.FieldTransaction, tx.ID,
		log.FieldSheetsRef, ref,
		log.FieldAmountCents, tx.Amount.Cents)
	return nil
}
