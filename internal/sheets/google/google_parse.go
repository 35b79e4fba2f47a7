package google

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"bollette/internal/core"
	ports "bollette/internal/sheets"
)

// formatRow renders a ledger row in column order A..H. Dates stay text and
// the amount is a plain number so the sheet can sum it.
func formatRow(r ports.LedgerRow) []any {
	return []any{
		r.Date.String(),
		r.Name,
		r.Emoji,
		r.Recipient,
		r.Category,
		r.Amount.Float64(),
		r.BillID,
		r.TransactionID,
	}
}

// parseLedgerRows converts a values matrix (as returned by Sheets API)
// back into ledger rows. Rows without a valid date, amount or transaction
// id are skipped, which also drops a header row.
func parseLedgerRows(values [][]interface{}) []ports.LedgerRow {
	var out []ports.LedgerRow
	for _, raw := range values {
		if len(raw) < 8 {
			continue
		}
		row := toStrings(raw)
		date, err := core.ParseDate(row[0])
		if err != nil {
			continue
		}
		amount, ok := parseCents(raw[5])
		if !ok || row[7] == "" {
			continue
		}
		out = append(out, ports.LedgerRow{
			Date:          date,
			Name:          row[1],
			Emoji:         row[2],
			Recipient:     row[3],
			Category:      row[4],
			Amount:        amount,
			BillID:        row[6],
			TransactionID: row[7],
		})
	}
	return out
}

// parseCents reads an amount cell that may come back as a number or as
// text with a decimal comma.
func parseCents(v interface{}) (core.Money, bool) {
	var d decimal.Decimal
	switch x := v.(type) {
	case float64:
		d = decimal.NewFromFloat(x)
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", ".")
		s = strings.TrimSpace(strings.TrimPrefix(s, "€"))
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return core.Money{}, false
		}
		d = parsed
	default:
		return core.Money{}, false
	}
	return core.Money{Cents: d.Shift(2).Round(0).IntPart()}, true
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
