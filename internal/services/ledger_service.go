package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"bollette/internal/amqp"
	"bollette/internal/core"
	"bollette/internal/log"
	"bollette/internal/metrics"
	"bollette/internal/storage"
)

// LedgerStore is the persistence the ledger needs.
type LedgerStore interface {
	GetBill(ctx context.Context, ownerID, id string) (core.Bill, error)
	GetCategory(ctx context.Context, ownerID, id string) (core.Category, error)
	CreatePayment(ctx context.Context, p core.Payment) error
	PayBill(ctx context.Context, p storage.PayBillParams) (core.Money, error)
}

// BillPaidPublisher announces committed ledger entries.
type BillPaidPublisher interface {
	PublishBillPaid(ctx context.Context, msg amqp.BillPaidMessage) error
}

// LedgerService records payments against bill occurrences and turns them
// into ledger entries.
type LedgerService struct {
	store     LedgerStore
	publisher BillPaidPublisher
	clock     core.Clock
	logger    *log.Logger
}

// NewLedgerService creates the ledger. publisher may be nil, in which case
// no bill_paid events are sent.
func NewLedgerService(store LedgerStore, publisher BillPaidPublisher, clock core.Clock) *LedgerService {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &LedgerService{
		store:     store,
		publisher: publisher,
		clock:     clock,
		logger:    log.ForComponent(log.ComponentLedger),
	}
}

// RecordPayment stores a payment for one occurrence of a bill without
// touching the ledger.
func (s *LedgerService) RecordPayment(ctx context.Context, ownerID, billID string, in core.PaymentInput) (core.Payment, error) {
	draft, err := in.Validate()
	if err != nil {
		return core.Payment{}, err
	}
	if _, err := s.store.GetBill(ctx, ownerID, billID); err != nil {
		return core.Payment{}, err
	}

	p := s.newPayment(ownerID, billID, draft)
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return core.Payment{}, paymentError(err)
	}

	metrics.IncPaymentRecorded(false)
	s.logger.InfoContext(ctx, "Payment recorded",
		log.FieldOwnerID, ownerID,
		log.FieldBillID, billID,
		log.FieldOccurrence, p.OccurrenceDate.String(),
		log.FieldAmountCents, p.AmountPaid.Cents)
	return p, nil
}

// CreateTransactionFromBill records the payment and writes the matching
// expense entry in one step. The category total is recomputed inside the
// same database transaction. Publishing bill_paid happens after commit and
// never fails the call.
func (s *LedgerService) CreateTransactionFromBill(ctx context.Context, ownerID, billID string, in core.PaymentInput) (core.PaymentResult, error) {
	draft, err := in.Validate()
	if err != nil {
		return core.PaymentResult{}, err
	}

	bill, err := s.store.GetBill(ctx, ownerID, billID)
	if err != nil {
		return core.PaymentResult{}, err
	}
	if _, err := s.store.GetCategory(ctx, ownerID, bill.CategoryID); err != nil {
		return core.PaymentResult{}, err
	}

	tx := core.Transaction{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Name:            bill.Name,
		Emoji:           bill.Emoji,
		Recipient:       bill.Recipient,
		CategoryID:      bill.CategoryID,
		Amount:          draft.AmountPaid.Neg(),
		Date:            draft.OccurrenceDate,
		RecurringBillID: &bill.ID,
		CreatedAt:       s.clock.Now(),
	}
	p := s.newPayment(ownerID, billID, draft)
	p.TransactionID = &tx.ID

	total, err := s.store.PayBill(ctx, storage.PayBillParams{Transaction: tx, Payment: p})
	if err != nil {
		return core.PaymentResult{}, paymentError(err)
	}

	metrics.IncPaymentRecorded(true)
	s.logger.InfoContext(ctx, "Bill paid",
		log.FieldOwnerID, ownerID,
		log.FieldBillID, billID,
		log.FieldTransaction, tx.ID,
		log.FieldCategoryID, bill.CategoryID,
		log.FieldAmountCents, tx.Amount.Cents,
		"category_total_cents", total.Cents)

	s.publishBillPaid(ctx, tx, p)
	return core.PaymentResult{TransactionID: tx.ID, Payment: p}, nil
}

func (s *LedgerService) newPayment(ownerID, billID string, d core.PaymentDraft) core.Payment {
	return core.Payment{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		BillID:         billID,
		OccurrenceDate: d.OccurrenceDate,
		AmountPaid:     d.AmountPaid,
		Note:           d.Note,
		CreatedAt:      s.clock.Now(),
	}
}

func (s *LedgerService) publishBillPaid(ctx context.Context, tx core.Transaction, p core.Payment) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not available, skipping bill_paid message")
		return
	}
	msg := amqp.BillPaidMessage{
		OwnerID:        tx.OwnerID,
		BillID:         p.BillID,
		PaymentID:      p.ID,
		TransactionID:  tx.ID,
		OccurrenceDate: p.OccurrenceDate.String(),
		AmountCents:    tx.Amount.Cents,
		Timestamp:      s.clock.Now(),
	}
	if err := s.publisher.PublishBillPaid(ctx, msg); err != nil {
		metrics.IncAMQPPublishFailure()
		s.logger.ErrorContext(ctx, "Failed to publish bill_paid message",
			log.FieldTransaction, tx.ID,
			log.FieldError, err)
		// The ledger entry is committed; the mirror can catch up later.
	}
}

// paymentError maps a duplicate (bill, occurrence) to a field error.
func paymentError(err error) error {
	if errors.Is(err, storage.ErrConflict) {
		return core.NewValidationError("occurrence_date", core.ErrOccurrenceAlreadyPaid)
	}
	return fmt.Errorf("save payment: %w", err)
}
