package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bollette/internal/core"
)

const owner = "owner-1"

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "bollette.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testBill(id, name string) core.Bill {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return core.Bill{
		ID:         id,
		OwnerID:    owner,
		Name:       name,
		Amount:     core.Money{Cents: 1500},
		Emoji:      "💡",
		CategoryID: "cat-1",
		Rule:       "FREQ=MONTHLY",
		DTStart:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func seedCategory(t *testing.T, repo *SQLiteRepository, id string) {
	t.Helper()
	err := repo.CreateCategory(context.Background(), core.Category{
		ID: id, OwnerID: owner, Name: "Utilities " + id, Emoji: "🏠", Kind: core.CategoryBudget,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
}

func TestBillRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	b := testBill("b1", "Electricity")
	recipient := "Enel"
	until := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b.Recipient = &recipient
	b.Until = &until
	if err := repo.CreateBill(ctx, b); err != nil {
		t.Fatalf("CreateBill() error = %v", err)
	}

	got, err := repo.GetBill(ctx, owner, "b1")
	if err != nil {
		t.Fatalf("GetBill() error = %v", err)
	}
	if got.Name != b.Name || got.Amount != b.Amount || got.Rule != b.Rule {
		t.Errorf("GetBill() = %+v, want %+v", got, b)
	}
	if got.Recipient == nil || *got.Recipient != recipient {
		t.Errorf("Recipient = %v, want %q", got.Recipient, recipient)
	}
	if got.Until == nil || !got.Until.Equal(until) {
		t.Errorf("Until = %v, want %v", got.Until, until)
	}
	if !got.DTStart.Equal(b.DTStart) {
		t.Errorf("DTStart = %v, want %v", got.DTStart, b.DTStart)
	}

	if _, err := repo.GetBill(ctx, "someone-else", "b1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetBill() for other owner error = %v, want ErrNotFound", err)
	}
}

func TestCreateBillDuplicateNameIgnoresCase(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateBill(ctx, testBill("b1", "Rent")); err != nil {
		t.Fatalf("CreateBill() error = %v", err)
	}
	err := repo.CreateBill(ctx, testBill("b2", "RENT"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("CreateBill() duplicate error = %v, want ErrConflict", err)
	}

	got, err := repo.GetBillByName(ctx, owner, "rent")
	if err != nil {
		t.Fatalf("GetBillByName() error = %v", err)
	}
	if got.ID != "b1" {
		t.Errorf("GetBillByName() id = %s, want b1", got.ID)
	}
}

func TestUpdateAndDeleteBill(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	b := testBill("b1", "Water")
	if err := repo.CreateBill(ctx, b); err != nil {
		t.Fatalf("CreateBill() error = %v", err)
	}

	b.Amount = core.Money{Cents: 2200}
	b.Rule = "FREQ=WEEKLY"
	if err := repo.UpdateBill(ctx, b); err != nil {
		t.Fatalf("UpdateBill() error = %v", err)
	}
	got, _ := repo.GetBill(ctx, owner, "b1")
	if got.Amount.Cents != 2200 || got.Rule != "FREQ=WEEKLY" {
		t.Errorf("after update got %+v", got)
	}

	if err := repo.UpdateBill(ctx, testBill("missing", "Gas")); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("UpdateBill() missing error = %v, want ErrNotFound", err)
	}

	if err := repo.DeleteBill(ctx, owner, "b1"); err != nil {
		t.Fatalf("DeleteBill() error = %v", err)
	}
	if err := repo.DeleteBill(ctx, owner, "b1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DeleteBill() error = %v, want ErrNotFound", err)
	}
}

func TestListBillsPage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	names := []string{"Alpha", "beta", "Gamma", "Delta_1", "Epsilon"}
	for i, n := range names {
		b := testBill(string(rune('a'+i)), n)
		b.Amount = core.Money{Cents: int64(100 * (i + 1))}
		if err := repo.CreateBill(ctx, b); err != nil {
			t.Fatalf("CreateBill(%s) error = %v", n, err)
		}
	}

	tests := []struct {
		name      string
		params    core.PageParams
		wantTotal int
		wantFirst string
		wantLen   int
	}{
		{"default sort by name", core.PageParams{}, 5, "Alpha", 5},
		{"amount desc", core.PageParams{Sort: core.SortAmount, Order: "desc"}, 5, "Epsilon", 5},
		{"second page", core.PageParams{Page: 2, PageSize: 2}, 5, "Delta_1", 2},
		{"search ignores case", core.PageParams{Query: "BET"}, 1, "beta", 1},
		{"underscore is literal", core.PageParams{Query: "a_"}, 1, "Delta_1", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.ListBillsPage(ctx, owner, tt.params)
			if err != nil {
				t.Fatalf("ListBillsPage() error = %v", err)
			}
			if page.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", page.Total, tt.wantTotal)
			}
			if len(page.Items) != tt.wantLen {
				t.Fatalf("len(Items) = %d, want %d", len(page.Items), tt.wantLen)
			}
			if page.Items[0].Name != tt.wantFirst {
				t.Errorf("first = %s, want %s", page.Items[0].Name, tt.wantFirst)
			}
		})
	}
}

func TestPaymentsUniquePerOccurrence(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := core.Payment{
		ID: "p1", OwnerID: owner, BillID: "b1",
		OccurrenceDate: core.NewDate(2024, 2, 1),
		AmountPaid:     core.Money{Cents: 1500},
		CreatedAt:      time.Now(),
	}
	if err := repo.CreatePayment(ctx, p); err != nil {
		t.Fatalf("CreatePayment() error = %v", err)
	}
	p.ID = "p2"
	if err := repo.CreatePayment(ctx, p); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate CreatePayment() error = %v, want ErrConflict", err)
	}

	p.ID, p.OccurrenceDate = "p3", core.NewDate(2024, 3, 1)
	if err := repo.CreatePayment(ctx, p); err != nil {
		t.Fatalf("CreatePayment() error = %v", err)
	}

	got, err := repo.GetPaymentsInRange(ctx, owner, "b1", core.NewDate(2024, 2, 1), core.NewDate(2024, 2, 29))
	if err != nil {
		t.Fatalf("GetPaymentsInRange() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Errorf("GetPaymentsInRange() = %+v, want only p1", got)
	}
	if got[0].TransactionID != nil {
		t.Errorf("TransactionID = %v, want nil", *got[0].TransactionID)
	}

	all, err := repo.ListPaymentsForOwner(ctx, owner, core.Date{}, core.Date{})
	if err != nil {
		t.Fatalf("ListPaymentsForOwner() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListPaymentsForOwner() len = %d, want 2", len(all))
	}
}

func payParams(n int, billID string, date core.Date, cents int64) PayBillParams {
	txID := "tx-" + string(rune('a'+n))
	return PayBillParams{
		Transaction: core.Transaction{
			ID: txID, OwnerID: owner, Name: "Electricity", Emoji: "💡", CategoryID: "cat-1",
			Amount: core.Money{Cents: -cents}, Date: date, RecurringBillID: &billID,
			CreatedAt: time.Now(),
		},
		Payment: core.Payment{
			ID: "pay-" + string(rune('a'+n)), OwnerID: owner, BillID: billID,
			OccurrenceDate: date, AmountPaid: core.Money{Cents: cents},
			TransactionID: &txID, CreatedAt: time.Now(),
		},
	}
}

func TestPayBillKeepsTotalConsistent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCategory(t, repo, "cat-1")

	if _, ok, err := repo.GetCategoryTotal(ctx, owner, "cat-1"); err != nil || ok {
		t.Fatalf("GetCategoryTotal() before payments = ok %v, err %v", ok, err)
	}

	total, err := repo.PayBill(ctx, payParams(0, "b1", core.NewDate(2024, 1, 1), 1500))
	if err != nil {
		t.Fatalf("PayBill() error = %v", err)
	}
	if total.Cents != -1500 {
		t.Errorf("total = %d, want -1500", total.Cents)
	}
	total, err = repo.PayBill(ctx, payParams(1, "b1", core.NewDate(2024, 2, 1), 1750))
	if err != nil {
		t.Fatalf("PayBill() error = %v", err)
	}
	if total.Cents != -3250 {
		t.Errorf("total = %d, want -3250", total.Cents)
	}

	stored, ok, err := repo.GetCategoryTotal(ctx, owner, "cat-1")
	if err != nil || !ok {
		t.Fatalf("GetCategoryTotal() ok %v err %v", ok, err)
	}
	recomputed, err := repo.CalculateTotalByCategory(ctx, owner, "cat-1")
	if err != nil {
		t.Fatalf("CalculateTotalByCategory() error = %v", err)
	}
	if stored != recomputed {
		t.Errorf("stored total %d != recomputed %d", stored.Cents, recomputed.Cents)
	}

	tx, err := repo.GetTransaction(ctx, owner, "tx-b")
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if tx.Amount.Cents != -1750 || tx.Date.String() != "2024-02-01" {
		t.Errorf("GetTransaction() = %+v", tx)
	}
	payments, _ := repo.GetPaymentsInRange(ctx, owner, "b1", core.NewDate(2024, 2, 1), core.NewDate(2024, 2, 1))
	if len(payments) != 1 || payments[0].TransactionID == nil || *payments[0].TransactionID != "tx-b" {
		t.Errorf("payment not linked to transaction: %+v", payments)
	}
}

func TestPayBillRollsBackOnDuplicatePayment(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCategory(t, repo, "cat-1")

	if _, err := repo.PayBill(ctx, payParams(0, "b1", core.NewDate(2024, 1, 1), 1500)); err != nil {
		t.Fatalf("PayBill() error = %v", err)
	}
	_, err := repo.PayBill(ctx, payParams(1, "b1", core.NewDate(2024, 1, 1), 900))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("PayBill() duplicate error = %v, want ErrConflict", err)
	}

	if _, err := repo.GetTransaction(ctx, owner, "tx-b"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("orphaned transaction left behind: err = %v", err)
	}
	total, _, _ := repo.GetCategoryTotal(ctx, owner, "cat-1")
	if total.Cents != -1500 {
		t.Errorf("total = %d, want -1500 after rollback", total.Cents)
	}
}

func TestPayBillConcurrentWriters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCategory(t, repo, "cat-1")

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.PayBill(ctx, payParams(i, "b1", core.NewDate(2024, i+1, 1), 100))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("PayBill() error = %v", err)
		}
	}

	total, _, _ := repo.GetCategoryTotal(ctx, owner, "cat-1")
	if total.Cents != -n*100 {
		t.Errorf("total = %d, want %d", total.Cents, -n*100)
	}
}

func TestPayBillRejectsUnlinkedPayment(t *testing.T) {
	repo := newTestRepo(t)
	p := payParams(0, "b1", core.NewDate(2024, 1, 1), 100)
	p.Payment.TransactionID = nil
	if _, err := repo.PayBill(context.Background(), p); err == nil {
		t.Fatal("PayBill() error = nil, want error")
	}
}

func TestCategoryNotFound(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.GetCategory(context.Background(), owner, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetCategory() error = %v, want ErrNotFound", err)
	}
}

func TestListBillTransactions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCategory(t, repo, "cat-1")

	dates := []core.Date{core.NewDate(2023, 12, 1), core.NewDate(2024, 1, 1), core.NewDate(2024, 2, 1)}
	for i, d := range dates {
		if _, err := repo.PayBill(ctx, payParams(i, "b1", d, 1000)); err != nil {
			t.Fatalf("PayBill(%s) error = %v", d, err)
		}
	}

	got, err := repo.ListBillTransactions(ctx, core.NewDate(2024, 1, 1), core.NewDate(2024, 12, 31), 10, 0)
	if err != nil {
		t.Fatalf("ListBillTransactions() error = %v", err)
	}
	if len(got) != 2 || got[0].Date.String() != "2024-01-01" || got[1].Date.String() != "2024-02-01" {
		t.Errorf("ListBillTransactions() = %+v", got)
	}

	got, _ = repo.ListBillTransactions(ctx, core.NewDate(2023, 1, 1), core.NewDate(2024, 12, 31), 1, 0)
	if len(got) != 1 || got[0].ID != "tx-a" {
		t.Errorf("limited list = %+v", got)
	}

	got, _ = repo.ListBillTransactions(ctx, core.NewDate(2023, 1, 1), core.NewDate(2024, 12, 31), 2, 2)
	if len(got) != 1 || got[0].Date.String() != "2024-02-01" {
		t.Errorf("second page = %+v", got)
	}
}
