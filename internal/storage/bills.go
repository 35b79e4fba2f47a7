package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bollette/internal/core"
)

const billColumns = `id, owner_id, name, amount_cents, recipient, description, emoji,
	category_id, rule, dtstart, until, created_at, updated_at`

// billSortColumns whitelists ORDER BY targets.
var billSortColumns = map[string]string{
	core.SortName:      "name",
	core.SortAmount:    "amount_cents",
	core.SortDTStart:   "dtstart",
	core.SortCreatedAt: "created_at",
}

func scanBill(row rowScanner) (core.Bill, error) {
	var (
		b                         core.Bill
		recipient, until          sql.NullString
		dtstart, created, updated string
	)
	err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Amount.Cents, &recipient, &b.Description, &b.Emoji,
		&b.CategoryID, &b.Rule, &dtstart, &until, &created, &updated)
	if err != nil {
		return core.Bill{}, err
	}
	b.Recipient = nullableString(recipient)
	if b.DTStart, err = parseTime(dtstart); err != nil {
		return core.Bill{}, err
	}
	if b.Until, err = parseOptionalTime(until); err != nil {
		return core.Bill{}, err
	}
	if b.CreatedAt, err = parseTime(created); err != nil {
		return core.Bill{}, err
	}
	if b.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Bill{}, err
	}
	return b, nil
}

// CreateBill inserts a new bill. A duplicate name for the owner yields ErrConflict.
func (r *SQLiteRepository) CreateBill(ctx context.Context, b core.Bill) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_bills (`+billColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.Name, b.Amount.Cents, optionalString(b.Recipient), b.Description, b.Emoji,
		b.CategoryID, b.Rule, formatTime(b.DTStart), formatOptionalTime(b.Until),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("bill %q: %w", b.Name, ErrConflict)
		}
		return core.Datasource("create bill", err)
	}

	slog.InfoContext(ctx, "Recurring bill saved to SQLite",
		"id", b.ID,
		"owner_id", b.OwnerID,
		"amount_cents", b.Amount.Cents)
	return nil
}

// GetBill loads a bill by id.
func (r *SQLiteRepository) GetBill(ctx context.Context, ownerID, id string) (core.Bill, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+billColumns+`
		FROM recurring_bills
		WHERE owner_id = ? AND id = ?`, ownerID, id)
	b, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bill{}, core.NotFound("bill", id)
	}
	if err != nil {
		return core.Bill{}, core.Datasource("get bill", err)
	}
	return b, nil
}

// GetBillByName loads a bill by name, ignoring case.
func (r *SQLiteRepository) GetBillByName(ctx context.Context, ownerID, name string) (core.Bill, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+billColumns+`
		FROM recurring_bills
		WHERE owner_id = ? AND name = ?`, ownerID, name)
	b, err := scanBill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bill{}, core.NotFound("bill", name)
	}
	if err != nil {
		return core.Bill{}, core.Datasource("get bill by name", err)
	}
	return b, nil
}

// UpdateBill overwrites every mutable column of an existing bill.
func (r *SQLiteRepository) UpdateBill(ctx context.Context, b core.Bill) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_bills SET
			name = ?, amount_cents = ?, recipient = ?, description = ?, emoji = ?,
			category_id = ?, rule = ?, dtstart = ?, until = ?, updated_at = ?
		WHERE owner_id = ? AND id = ?`,
		b.Name, b.Amount.Cents, optionalString(b.Recipient), b.Description, b.Emoji,
		b.CategoryID, b.Rule, formatTime(b.DTStart), formatOptionalTime(b.Until), formatTime(b.UpdatedAt),
		b.OwnerID, b.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("bill %q: %w", b.Name, ErrConflict)
		}
		return core.Datasource("update bill", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Datasource("update bill", err)
	}
	if n == 0 {
		return core.NotFound("bill", b.ID)
	}
	return nil
}

// DeleteBill removes a bill. Payments and transactions are kept.
func (r *SQLiteRepository) DeleteBill(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_bills WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return core.Datasource("delete bill", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return core.Datasource("delete bill", err)
	}
	if n == 0 {
		return core.NotFound("bill", id)
	}
	slog.InfoContext(ctx, "Recurring bill deleted", "id", id, "owner_id", ownerID)
	return nil
}

// ListBills returns every bill of the owner ordered by name.
func (r *SQLiteRepository) ListBills(ctx context.Context, ownerID string) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+billColumns+`
		FROM recurring_bills
		WHERE owner_id = ?
		ORDER BY name ASC, id ASC`, ownerID)
	if err != nil {
		return nil, core.Datasource("list bills", err)
	}
	defer rows.Close()

	var bills []core.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, core.Datasource("scan bill", err)
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Datasource("list bills", err)
	}
	return bills, nil
}

// ListBillsPage returns one page of the owner's bills.
func (r *SQLiteRepository) ListBillsPage(ctx context.Context, ownerID string, p core.PageParams) (core.Page[core.Bill], error) {
	p = p.Normalize()

	where := "owner_id = ?"
	args := []any{ownerID}
	if p.Query != "" {
		where += " AND name LIKE ? ESCAPE '\\'"
		args = append(args, "%"+escapeLike(p.Query)+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recurring_bills WHERE `+where, args...).Scan(&total); err != nil {
		return core.Page[core.Bill]{}, core.Datasource("count bills", err)
	}

	order := fmt.Sprintf("%s %s, id ASC", billSortColumns[p.Sort], strings.ToUpper(p.Order))
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+billColumns+`
		FROM recurring_bills
		WHERE `+where+`
		ORDER BY `+order+`
		LIMIT ? OFFSET ?`, append(args, p.PageSize, p.Offset())...)
	if err != nil {
		return core.Page[core.Bill]{}, core.Datasource("list bills page", err)
	}
	defer rows.Close()

	var bills []core.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return core.Page[core.Bill]{}, core.Datasource("scan bill", err)
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return core.Page[core.Bill]{}, core.Datasource("list bills page", err)
	}
	return core.NewPage(bills, total, p), nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
