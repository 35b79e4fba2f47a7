package storage

import (
	"context"
	"database/sql"
	"fmt"

	"bollette/internal/core"
)

const paymentColumns = `id, owner_id, bill_id, occurrence_date, amount_paid_cents, note, transaction_id, created_at`

func scanPayment(row rowScanner) (core.Payment, error) {
	var (
		p                   core.Payment
		occurrence, created string
		txID                sql.NullString
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.BillID, &occurrence, &p.AmountPaid.Cents, &p.Note, &txID, &created); err != nil {
		return core.Payment{}, err
	}
	date, err := core.ParseDate(occurrence)
	if err != nil {
		return core.Payment{}, fmt.Errorf("parse occurrence date %q: %w", occurrence, err)
	}
	p.OccurrenceDate = date
	p.TransactionID = nullableString(txID)
	if p.CreatedAt, err = parseTime(created); err != nil {
		return core.Payment{}, err
	}
	return p, nil
}

func insertPayment(ctx context.Context, db dbtx, p core.Payment) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO recurring_bill_payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.BillID, p.OccurrenceDate.String(), p.AmountPaid.Cents, p.Note,
		optionalString(p.TransactionID), formatTime(p.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment for %s on %s: %w", p.BillID, p.OccurrenceDate, ErrConflict)
		}
		return core.Datasource("create payment", err)
	}
	return nil
}

// CreatePayment stores a payment without a ledger entry. A second payment for
// the same bill occurrence yields ErrConflict.
func (r *SQLiteRepository) CreatePayment(ctx context.Context, p core.Payment) error {
	return insertPayment(ctx, r.db, p)
}

// GetPaymentsInRange returns the payments of one bill whose occurrence date
// falls in [start, end], ordered by occurrence date.
func (r *SQLiteRepository) GetPaymentsInRange(ctx context.Context, ownerID, billID string, start, end core.Date) ([]core.Payment, error) {
	return r.queryPayments(ctx, `
		SELECT `+paymentColumns+`
		FROM recurring_bill_payments
		WHERE owner_id = ? AND bill_id = ? AND occurrence_date BETWEEN ? AND ?
		ORDER BY occurrence_date ASC`,
		ownerID, billID, start.String(), end.String())
}

// ListPaymentsForOwner returns all payments of the owner with an occurrence date in
// [start, end]. Zero bounds are open.
func (r *SQLiteRepository) ListPaymentsForOwner(ctx context.Context, ownerID string, start, end core.Date) ([]core.Payment, error) {
	lo, hi := "0000-01-01", "9999-12-31"
	if !start.IsZero() {
		lo = start.String()
	}
	if !end.IsZero() {
		hi = end.String()
	}
	return r.queryPayments(ctx, `
		SELECT `+paymentColumns+`
		FROM recurring_bill_payments
		WHERE owner_id = ? AND occurrence_date BETWEEN ? AND ?
		ORDER BY bill_id ASC, occurrence_date ASC`,
		ownerID, lo, hi)
}

func (r *SQLiteRepository) queryPayments(ctx context.Context, query string, args ...any) ([]core.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.Datasource("list payments", err)
	}
	defer rows.Close()

	var payments []core.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, core.Datasource("scan payment", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Datasource("list payments", err)
	}
	return payments, nil
}
