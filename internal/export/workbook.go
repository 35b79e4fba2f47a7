// Package export renders an owner's bills, payments and bucket summary as
// an xlsx workbook.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"bollette/internal/core"
	"bollette/internal/log"
)

const (
	SheetBills    = "Bills"
	SheetPayments = "Payments"
	SheetSummary  = "Summary"

	// excelize built-in format 4 is "#,##0.00".
	amountNumFmt = 4
)

var (
	billHeader    = []any{"ID", "Name", "Emoji", "Category", "Recipient", "Amount", "Rule", "Start", "Until", "Description"}
	paymentHeader = []any{"Bill", "Occurrence", "Amount paid", "Transaction", "Note", "Recorded at"}
)

// Source loads what goes into the workbook.
type Source interface {
	ListBills(ctx context.Context, ownerID string) ([]core.Bill, error)
	ListPaymentsForOwner(ctx context.Context, ownerID string, start, end core.Date) ([]core.Payment, error)
	GetCategory(ctx context.Context, ownerID, id string) (core.Category, error)
}

// Summarizer computes the bucket summary shown on the first sheet.
type Summarizer interface {
	GetSummary(ctx context.Context, ownerID string, offset *core.Offset, dueSoonDays int) (core.Summary, error)
}

// Exporter builds workbooks. Summaries may be nil, in which case the
// summary sheet is left out.
type Exporter struct {
	source    Source
	summaries Summarizer
	logger    *log.Logger
}

func NewExporter(source Source, summaries Summarizer) *Exporter {
	return &Exporter{
		source:    source,
		summaries: summaries,
		logger:    log.ForComponent(log.ComponentExport),
	}
}

// Write renders the owner's workbook to w.
func (e *Exporter) Write(ctx context.Context, ownerID string, w io.Writer) error {
	f, err := e.Build(ctx, ownerID)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Build assembles the workbook in memory. The caller closes it.
func (e *Exporter) Build(ctx context.Context, ownerID string) (*excelize.File, error) {
	bills, err := e.source.ListBills(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load bills: %w", err)
	}
	payments, err := e.source.ListPaymentsForOwner(ctx, ownerID, core.NewDate(1, 1, 1), core.NewDate(9999, 12, 31))
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}

	f := excelize.NewFile()
	ok := false
	defer func() {
		if !ok {
			f.Close()
		}
	}()

	st, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	first := SheetBills
	if e.summaries != nil {
		first = SheetSummary
	}
	if err := f.SetSheetName("Sheet1", first); err != nil {
		return nil, err
	}

	if e.summaries != nil {
		sum, err := e.summaries.GetSummary(ctx, ownerID, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("summarize bills: %w", err)
		}
		if err := writeSummary(f, st, sum); err != nil {
			return nil, err
		}
		if _, err := f.NewSheet(SheetBills); err != nil {
			return nil, err
		}
	}

	names := e.categoryNames(ctx, ownerID, bills)
	if err := writeBills(f, st, bills, names); err != nil {
		return nil, err
	}

	billNames := make(map[string]string, len(bills))
	for _, b := range bills {
		billNames[b.ID] = b.Name
	}
	if _, err := f.NewSheet(SheetPayments); err != nil {
		return nil, err
	}
	if err := writePayments(f, st, payments, billNames); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Workbook built",
		log.FieldOwnerID, ownerID,
		"bills", len(bills),
		"payments", len(payments))
	ok = true
	return f, nil
}

// categoryNames resolves category ids to names. Unknown categories keep
// their id.
func (e *Exporter) categoryNames(ctx context.Context, ownerID string, bills []core.Bill) map[string]string {
	names := make(map[string]string)
	for _, b := range bills {
		if _, seen := names[b.CategoryID]; seen {
			continue
		}
		names[b.CategoryID] = b.CategoryID
		c, err := e.source.GetCategory(ctx, ownerID, b.CategoryID)
		switch {
		case err == nil:
			names[b.CategoryID] = c.Name
		case !errors.Is(err, core.ErrNotFound):
			e.logger.WarnContext(ctx, "Category lookup failed", log.FieldCategoryID, b.CategoryID, log.FieldError, err)
		}
	}
	return names
}

type styles struct {
	header int
	amount int
}

func newStyles(f *excelize.File) (styles, error) {
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return styles{}, fmt.Errorf("header style: %w", err)
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: amountNumFmt})
	if err != nil {
		return styles{}, fmt.Errorf("amount style: %w", err)
	}
	return styles{header: header, amount: amount}, nil
}

func writeSummary(f *excelize.File, st styles, sum core.Summary) error {
	rows := [][]any{
		{"Bucket", "Count", "Amount"},
		{"Paid", sum.Paid.Count, sum.Paid.Amount.Float64()},
		{"Upcoming", sum.Upcoming.Count, sum.Upcoming.Amount.Float64()},
		{"Due soon", sum.DueSoon.Count, sum.DueSoon.Amount.Float64()},
	}
	if err := writeRows(f, SheetSummary, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetSummary, "A1", "C1", st.header); err != nil {
		return err
	}
	return f.SetCellStyle(SheetSummary, "C2", "C4", st.amount)
}

func writeBills(f *excelize.File, st styles, bills []core.Bill, categories map[string]string) error {
	rows := make([][]any, 0, len(bills)+1)
	rows = append(rows, billHeader)
	for _, b := range bills {
		rows = append(rows, []any{
			b.ID,
			b.Name,
			b.Emoji,
			categories[b.CategoryID],
			deref(b.Recipient),
			b.Amount.Float64(),
			b.Rule,
			core.DateOf(b.DTStart).String(),
			optionalDate(b.Until),
			b.Description,
		})
	}
	if err := writeRows(f, SheetBills, rows); err != nil {
		return err
	}
	return styleTable(f, SheetBills, st, len(billHeader), len(rows), 6)
}

func writePayments(f *excelize.File, st styles, payments []core.Payment, bills map[string]string) error {
	rows := make([][]any, 0, len(payments)+1)
	rows = append(rows, paymentHeader)
	for _, p := range payments {
		name, ok := bills[p.BillID]
		if !ok {
			name = p.BillID
		}
		rows = append(rows, []any{
			name,
			p.OccurrenceDate.String(),
			p.AmountPaid.Float64(),
			deref(p.TransactionID),
			p.Note,
			p.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	if err := writeRows(f, SheetPayments, rows); err != nil {
		return err
	}
	return styleTable(f, SheetPayments, st, len(paymentHeader), len(rows), 3)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// styleTable bolds the header, formats the amount column and freezes the
// header row.
func styleTable(f *excelize.File, sheet string, st styles, cols, rows, amountCol int) error {
	lastHeader, err := excelize.CoordinatesToCellName(cols, 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastHeader, st.header); err != nil {
		return err
	}
	if rows > 1 {
		from, _ := excelize.CoordinatesToCellName(amountCol, 2)
		to, _ := excelize.CoordinatesToCellName(amountCol, rows)
		if err := f.SetCellStyle(sheet, from, to, st.amount); err != nil {
			return err
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return core.DateOf(*t).String()
}
