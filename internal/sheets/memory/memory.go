package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bollette/internal/sheets"
)

var errMissingTransaction = errors.New("ledger row without transaction id")

// Store keeps mirrored ledger rows in process. It backs tests and runs
// without Google credentials.
type Store struct {
	mu   sync.Mutex
	rows []sheets.LedgerRow
}

var _ sheets.LedgerMirror = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendEntry stores the row and returns a synthetic row reference.
func (s *Store) AppendEntry(_ context.Context, row sheets.LedgerRow) (string, error) {
	if row.TransactionID == "" {
		return "", errMissingTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// ListEntries returns the rows dated in year, in insertion order.
func (s *Store) ListEntries(_ context.Context, year int) ([]sheets.LedgerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sheets.LedgerRow
	for _, r := range s.rows {
		if r.Date.Year() == year {
			out = append(out, r)
		}
	}
	return out, nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []sheets.LedgerRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.LedgerRow(nil), s.rows...)
}
