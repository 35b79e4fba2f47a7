package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bollette/internal/core"
)

// PayBillParams groups the writes of a "pay now" action.
type PayBillParams struct {
	Transaction core.Transaction
	Payment     core.Payment // TransactionID must equal Transaction.ID
}

// PayBill writes the ledger entry, refreshes the category total and stores the
// payment in a single transaction. The total is recomputed from every
// transaction of the category inside the same transaction, and BEGIN
// IMMEDIATE holds the write lock throughout, so concurrent payments cannot
// overwrite each other's totals. Any failure rolls back all writes.
func (r *SQLiteRepository) PayBill(ctx context.Context, p PayBillParams) (core.Money, error) {
	if p.Payment.TransactionID == nil || *p.Payment.TransactionID != p.Transaction.ID {
		return core.Money{}, errors.New("pay bill: payment must reference the new transaction")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Money{}, core.Datasource("begin pay bill", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := insertTransaction(ctx, tx, p.Transaction); err != nil {
		return core.Money{}, err
	}

	ownerID, categoryID := p.Transaction.OwnerID, p.Transaction.CategoryID
	now := formatTime(time.Now())
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO category_totals (owner_id, category_id, total_cents, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (owner_id, category_id) DO NOTHING`, ownerID, categoryID, now); err != nil {
		return core.Money{}, core.Datasource("ensure category total", err)
	}

	total, err := calculateTotal(ctx, tx, ownerID, categoryID)
	if err != nil {
		return core.Money{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE category_totals SET total_cents = ?, updated_at = ?
		WHERE owner_id = ? AND category_id = ?`, total.Cents, now, ownerID, categoryID); err != nil {
		return core.Money{}, core.Datasource("update category total", err)
	}

	if err := insertPayment(ctx, tx, p.Payment); err != nil {
		return core.Money{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Money{}, core.Datasource("commit pay bill", err)
	}

	slog.InfoContext(ctx, "Bill payment committed",
		"transaction_id", p.Transaction.ID,
		"payment_id", p.Payment.ID,
		"category_id", categoryID,
		"category_total_cents", total.Cents)
	return total, nil
}

const transactionColumns = `id, owner_id, name, emoji, recipient, category_id, amount_cents, date, recurring_bill_id, created_at`

func insertTransaction(ctx context.Context, db dbtx, t core.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OwnerID, t.Name, t.Emoji, optionalString(t.Recipient), t.CategoryID, t.Amount.Cents,
		t.Date.String(), optionalString(t.RecurringBillID), formatTime(t.CreatedAt))
	if err != nil {
		return core.Datasource("create transaction", err)
	}
	return nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t                 core.Transaction
		recipient, billID sql.NullString
		date, created     string
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Emoji, &recipient, &t.CategoryID, &t.Amount.Cents,
		&date, &billID, &created); err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date %q: %w", date, err)
	}
	t.Date = d
	t.Recipient = nullableString(recipient)
	t.RecurringBillID = nullableString(billID)
	if t.CreatedAt, err = parseTime(created); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

// GetTransaction loads a ledger entry.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE owner_id = ? AND id = ?`, ownerID, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, core.Datasource("get transaction", err)
	}
	return t, nil
}

// ListBillTransactions returns ledger entries generated from bills with a
// date in [from, to], across owners, oldest first. limit and offset page
// through the range.
func (r *SQLiteRepository) ListBillTransactions(ctx context.Context, from, to core.Date, limit, offset int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE recurring_bill_id IS NOT NULL AND date >= ? AND date <= ?
		ORDER BY date, created_at, id
		LIMIT ? OFFSET ?`, from.String(), to.String(), limit, offset)
	if err != nil {
		return nil, core.Datasource("list bill transactions", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, core.Datasource("scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Datasource("list bill transactions", err)
	}
	return out, nil
}

func calculateTotal(ctx context.Context, db dbtx, ownerID, categoryID string) (core.Money, error) {
	var total int64
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM transactions
		WHERE owner_id = ? AND category_id = ?`, ownerID, categoryID).Scan(&total)
	if err != nil {
		return core.Money{}, core.Datasource("calculate total by category", err)
	}
	return core.Money{Cents: total}, nil
}

// CalculateTotalByCategory re-aggregates every transaction of the category.
func (r *SQLiteRepository) CalculateTotalByCategory(ctx context.Context, ownerID, categoryID string) (core.Money, error) {
	return calculateTotal(ctx, r.db, ownerID, categoryID)
}

// GetCategoryTotal returns the stored running total; false when the category
// has no transactions yet.
func (r *SQLiteRepository) GetCategoryTotal(ctx context.Context, ownerID, categoryID string) (core.Money, bool, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT total_cents FROM category_totals
		WHERE owner_id = ? AND category_id = ?`, ownerID, categoryID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, false, nil
	}
	if err != nil {
		return core.Money{}, false, core.Datasource("get category total", err)
	}
	return core.Money{Cents: total}, true, nil
}

// CreateCategory stores a budget or income category.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, owner_id, name, emoji, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Name, c.Emoji, string(c.Kind), formatTime(c.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %q: %w", c.Name, ErrConflict)
		}
		return core.Datasource("create category", err)
	}
	return nil
}

// GetCategory loads a category by id.
func (r *SQLiteRepository) GetCategory(ctx context.Context, ownerID, id string) (core.Category, error) {
	var (
		c       core.Category
		kind    string
		created string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, emoji, kind, created_at
		FROM categories
		WHERE owner_id = ? AND id = ?`, ownerID, id).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Emoji, &kind, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFound("category", id)
	}
	if err != nil {
		return core.Category{}, core.Datasource("get category", err)
	}
	c.Kind = core.CategoryKind(kind)
	if c.CreatedAt, err = parseTime(created); err != nil {
		return core.Category{}, core.Datasource("get category", err)
	}
	return c, nil
}
