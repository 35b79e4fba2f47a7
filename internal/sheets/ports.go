package sheets

import (
	"context"

	"bollette/internal/core"
)

// LedgerRow is one ledger entry as it appears in the mirror sheet.
type LedgerRow struct {
	Date          core.Date
	Name          string
	Emoji         string
	Recipient     string
	Category      string
	Amount        core.Money
	BillID        string
	TransactionID string
}

// Ports for outbound adapters.
type (
	LedgerWriter interface {
		AppendEntry(ctx context.Context, row LedgerRow) (rowRef string, err error)
	}

	// LedgerReader lists what has already been mirrored for a year, so a
	// redelivered message does not produce a second row.
	LedgerReader interface {
		ListEntries(ctx context.Context, year int) ([]LedgerRow, error)
	}

	LedgerMirror interface {
		LedgerWriter
		LedgerReader
	}
)

// RowFromTransaction builds the mirror row for a committed ledger entry.
func RowFromTransaction(tx core.Transaction, category string) LedgerRow {
	row := LedgerRow{
		Date:          tx.Date,
		Name:          tx.Name,
		Emoji:         tx.Emoji,
		Category:      category,
		Amount:        tx.Amount,
		TransactionID: tx.ID,
	}
	if tx.Recipient != nil {
		row.Recipient = *tx.Recipient
	}
	if tx.RecurringBillID != nil {
		row.BillID = *tx.RecurringBillID
	}
	return row
}
