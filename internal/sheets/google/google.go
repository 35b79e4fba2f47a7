package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"bollette/internal/log"
	ports "bollette/internal/sheets"
)

// ledgerColumns is the fixed column layout of the ledger sheet.
const ledgerColumns = "A:H"

// Config selects the spreadsheet and the credentials used to reach it.
type Config struct {
	SpreadsheetID string
	// SheetName is the base tab name; the entry year is prefixed, so rows
	// dated 2024 go to "2024 Ledger".
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *log.Logger
}

// Ensure interface conformance
var _ ports.LedgerMirror = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := serviceAccountCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newClient(svc, cfg), nil
}

// NewWithOptions builds a client with explicit API options, for example a
// custom endpoint and no authentication.
func NewWithOptions(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newClient(svc, cfg), nil
}

func newClient(svc *gsheet.Service, cfg Config) *Client {
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Ledger"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		sheetBase:     base,
		logger:        log.ForComponent(log.ComponentSheets),
	}
}

// serviceAccountCredentials resolves inline JSON first, then a file, then
// GOOGLE_APPLICATION_CREDENTIALS.
func serviceAccountCredentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.DebugContext(ctx, "Read service account credentials", "path", file, "size", len(data))
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// AppendEntry appends row to the sheet for the entry's year and returns the
// updated range.
func (c *Client) AppendEntry(ctx context.Context, row ports.LedgerRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if row.TransactionID == "" || row.Date.IsZero() {
		return "", errors.New("ledger row needs a date and a transaction id")
	}

	sheet := yearPrefixedName(c.sheetBase, row.Date.Year())
	rng := fmt.Sprintf("%s!%s", quoteSheet(sheet), ledgerColumns)
	vr := &gsheet.ValueRange{Values: [][]any{formatRow(row)}}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Ledger row appended",
		log.FieldTransaction, row.TransactionID,
		log.FieldSheetsRef, ref)
	return ref, nil
}

// ListEntries reads every ledger row of year. Rows that do not parse, such
// as a header, are skipped.
func (c *Client) ListEntries(ctx context.Context, year int) ([]ports.LedgerRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.sheetBase, year)
	rng := fmt.Sprintf("%s!%s", quoteSheet(sheet), ledgerColumns)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseLedgerRows(resp.Values), nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// quoteSheet wraps a tab name in single quotes for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
