package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Bill is a recurring bill owned by a single user.
	Bill struct {
		ID          string     `json:"id"`
		OwnerID     string     `json:"owner_id"`
		Name        string     `json:"name"`
		Amount      Money      `json:"amount"`
		Recipient   *string    `json:"recipient"`
		Description string     `json:"description,omitempty"`
		Emoji       string     `json:"emoji"`
		CategoryID  string     `json:"category_id"`
		Rule        string     `json:"rule"`
		DTStart     time.Time  `json:"dtstart"`
		Until       *time.Time `json:"until,omitempty"`
		CreatedAt   time.Time  `json:"created_at"`
		UpdatedAt   time.Time  `json:"updated_at"`
	}

	// BillInput is the create payload. Amount stays a decimal until validated.
	BillInput struct {
		Name        string          `json:"name"`
		Amount      decimal.Decimal `json:"amount"`
		Recipient   *string         `json:"recipient"`
		Description string          `json:"description"`
		Emoji       string          `json:"emoji"`
		CategoryID  string          `json:"category_id"`
		Rule        string          `json:"rule"`
		DTStart     time.Time       `json:"dtstart"`
		Until       *time.Time      `json:"until"`
	}

	// BillPatch is a partial update; nil fields are left untouched.
	BillPatch struct {
		Name           *string          `json:"name"`
		Amount         *decimal.Decimal `json:"amount"`
		Recipient      *string          `json:"recipient"`
		ClearRecipient bool             `json:"clear_recipient"`
		Description    *string          `json:"description"`
		Emoji          *string          `json:"emoji"`
		CategoryID     *string          `json:"category_id"`
		Rule           *string          `json:"rule"`
		DTStart        *time.Time       `json:"dtstart"`
		Until          *time.Time       `json:"until"`
		ClearUntil     bool             `json:"clear_until"`
	}

	// Payment records that one occurrence of a bill was paid.
	Payment struct {
		ID             string    `json:"id"`
		OwnerID        string    `json:"owner_id"`
		BillID         string    `json:"bill_id"`
		OccurrenceDate Date      `json:"occurrence_date"`
		AmountPaid     Money     `json:"amount_paid"`
		Note           string    `json:"note,omitempty"`
		TransactionID  *string   `json:"transaction_id"`
		CreatedAt      time.Time `json:"created_at"`
	}

	// PaymentInput is the payload for recording a payment.
	PaymentInput struct {
		OccurrenceDate string          `json:"occurrence_date"`
		AmountPaid     decimal.Decimal `json:"amount_paid"`
		Note           string          `json:"note"`
	}

	// PaymentResult is returned when a payment also produced a ledger entry.
	PaymentResult struct {
		TransactionID string  `json:"transaction_id"`
		Payment       Payment `json:"payment"`
	}

	// Transaction is a ledger entry. Expenses carry a negative amount.
	Transaction struct {
		ID              string    `json:"id"`
		OwnerID         string    `json:"owner_id"`
		Name            string    `json:"name"`
		Emoji           string    `json:"emoji"`
		Recipient       *string   `json:"recipient"`
		CategoryID      string    `json:"category_id"`
		Amount          Money     `json:"amount"`
		Date            Date      `json:"date"`
		RecurringBillID *string   `json:"recurring_bill_id,omitempty"`
		CreatedAt       time.Time `json:"created_at"`
	}

	CategoryKind string

	// Category is a budget or income category. Owned by the budget side of
	// the app; bills only reference it.
	Category struct {
		ID        string       `json:"id"`
		OwnerID   string       `json:"owner_id"`
		Name      string       `json:"name"`
		Emoji     string       `json:"emoji"`
		Kind      CategoryKind `json:"kind"`
		CreatedAt time.Time    `json:"created_at"`
	}

	// Occurrence is one date of a bill's schedule, with its payment if recorded.
	Occurrence struct {
		Date    Date     `json:"date"`
		Payment *Payment `json:"payment,omitempty"`
	}

	// Offset is an optional evaluation window.
	Offset struct {
		Start *time.Time
		End   *time.Time
	}
)

const (
	CategoryBudget CategoryKind = "budget"
	CategoryIncome CategoryKind = "income"
)
