package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bollette/internal/core"
)

func newTestLedger(t *testing.T, pub BillPaidPublisher) (*LedgerService, *memStore) {
	t.Helper()
	store := newMemStore()
	store.categories["cat-1"] = core.Category{ID: "cat-1", OwnerID: testOwner, Name: "Utilities", Kind: core.CategoryBudget}
	store.bills["b1"] = seedBill("b1", "Rent", "FREQ=MONTHLY", at(2024, 1, 1), 1500)
	clock := core.FixedClock{At: time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC)}
	return NewLedgerService(store, pub, clock), store
}

func payment(date, amount string) core.PaymentInput {
	return core.PaymentInput{OccurrenceDate: date, AmountPaid: decimal.RequireFromString(amount)}
}

func TestCreateTransactionFromBill(t *testing.T) {
	pub := &recordingPublisher{}
	ledger, store := newTestLedger(t, pub)
	ctx := context.Background()

	res, err := ledger.CreateTransactionFromBill(ctx, testOwner, "b1", payment("2024-02-01", "15.00"))
	if err != nil {
		t.Fatalf("CreateTransactionFromBill() error = %v", err)
	}

	if res.Payment.TransactionID == nil || *res.Payment.TransactionID != res.TransactionID {
		t.Fatalf("payment not linked to transaction: %+v", res)
	}
	tx, ok := store.transactions[res.TransactionID]
	if !ok {
		t.Fatal("transaction not stored")
	}
	if tx.Amount.Cents != -1500 || tx.Name != "Rent" || tx.CategoryID != "cat-1" {
		t.Errorf("transaction = %+v", tx)
	}
	if tx.Date.String() != "2024-02-01" {
		t.Errorf("transaction date = %s, want occurrence date", tx.Date)
	}
	if tx.RecurringBillID == nil || *tx.RecurringBillID != "b1" {
		t.Errorf("transaction not linked to bill: %+v", tx.RecurringBillID)
	}
	if got := store.totals["cat-1"].Cents; got != -1500 {
		t.Errorf("category total = %d, want -1500", got)
	}

	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.TransactionID != res.TransactionID || msg.BillID != "b1" || msg.OccurrenceDate != "2024-02-01" || msg.AmountCents != -1500 {
		t.Errorf("message = %+v", msg)
	}
}

func TestCreateTransactionFromBillTotalsAccumulate(t *testing.T) {
	ledger, store := newTestLedger(t, nil)
	ctx := context.Background()

	for _, date := range []string{"2024-01-01", "2024-02-01"} {
		if _, err := ledger.CreateTransactionFromBill(ctx, testOwner, "b1", payment(date, "15")); err != nil {
			t.Fatalf("pay %s: %v", date, err)
		}
	}
	if got := store.totals["cat-1"].Cents; got != -3000 {
		t.Errorf("category total = %d, want -3000", got)
	}
}

func TestCreateTransactionFromBillPublishFailureIsNotReturned(t *testing.T) {
	pub := &recordingPublisher{err: errBroker}
	ledger, store := newTestLedger(t, pub)

	res, err := ledger.CreateTransactionFromBill(context.Background(), testOwner, "b1", payment("2024-02-01", "15"))
	if err != nil {
		t.Fatalf("CreateTransactionFromBill() error = %v, want nil", err)
	}
	if _, ok := store.transactions[res.TransactionID]; !ok {
		t.Error("transaction should be committed even when publishing fails")
	}
}

func TestCreateTransactionFromBillErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("occurrence already paid", func(t *testing.T) {
		pub := &recordingPublisher{}
		ledger, store := newTestLedger(t, pub)
		if _, err := ledger.CreateTransactionFromBill(ctx, testOwner, "b1", payment("2024-02-01", "15")); err != nil {
			t.Fatal(err)
		}
		_, err := ledger.CreateTransactionFromBill(ctx, testOwner, "b1", payment("2024-02-01", "15"))
		msg := fieldError(t, err, "occurrence_date")
		if msg != core.ErrOccurrenceAlreadyPaid.Error() {
			t.Errorf("message = %q", msg)
		}
		if len(store.transactions) != 1 || len(pub.msgs) != 1 {
			t.Errorf("duplicate left side effects: %d transactions, %d messages", len(store.transactions), len(pub.msgs))
		}
	})

	t.Run("unknown bill", func(t *testing.T) {
		ledger, _ := newTestLedger(t, nil)
		_, err := ledger.CreateTransactionFromBill(ctx, testOwner, "missing", payment("2024-02-01", "15"))
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("other owner", func(t *testing.T) {
		ledger, _ := newTestLedger(t, nil)
		_, err := ledger.CreateTransactionFromBill(ctx, "owner-2", "b1", payment("2024-02-01", "15"))
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("missing category", func(t *testing.T) {
		ledger, store := newTestLedger(t, nil)
		delete(store.categories, "cat-1")
		_, err := ledger.CreateTransactionFromBill(ctx, testOwner, "b1", payment("2024-02-01", "15"))
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("bad input", func(t *testing.T) {
		ledger, _ := newTestLedger(t, nil)
		_, err := ledger.CreateTransactionFromBill(ctx, testOwner, "b1", payment("2024-02-30", "0"))
		fieldError(t, err, "occurrence_date")
		fieldError(t, err, "amount_paid")
	})

	t.Run("store failure", func(t *testing.T) {
		pub := &recordingPublisher{}
		ledger, store := newTestLedger(t, pub)
		store.failPayBill = errors.New("disk full")
		_, err := ledger.CreateTransactionFromBill(ctx, testOwner, "b1", payment("2024-02-01", "15"))
		if err == nil || errors.Is(err, core.ErrValidation) {
			t.Errorf("error = %v, want wrapped store error", err)
		}
		if len(pub.msgs) != 0 {
			t.Error("nothing should be published when the write fails")
		}
	})
}

func TestRecordPayment(t *testing.T) {
	pub := &recordingPublisher{}
	ledger, store := newTestLedger(t, pub)
	ctx := context.Background()

	in := payment("2024-01-01", "14.99")
	in.Note = "  partial  "
	p, err := ledger.RecordPayment(ctx, testOwner, "b1", in)
	if err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}
	if p.TransactionID != nil {
		t.Errorf("TransactionID = %v, want nil", *p.TransactionID)
	}
	if p.AmountPaid.Cents != 1499 || p.Note != "partial" {
		t.Errorf("payment = %+v", p)
	}
	if len(store.transactions) != 0 || len(pub.msgs) != 0 {
		t.Error("RecordPayment must not touch the ledger")
	}

	_, err = ledger.RecordPayment(ctx, testOwner, "b1", payment("2024-01-01", "1"))
	fieldError(t, err, "occurrence_date")
}
