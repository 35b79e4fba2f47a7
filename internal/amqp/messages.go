package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// BillPaidMessage announces that a bill occurrence was paid and a ledger
// entry was written. Consumers load the entry by TransactionID.
type BillPaidMessage struct {
	OwnerID        string    `json:"owner_id"`
	BillID         string    `json:"bill_id"`
	PaymentID      string    `json:"payment_id"`
	TransactionID  string    `json:"transaction_id"`
	OccurrenceDate string    `json:"occurrence_date"`
	AmountCents    int64     `json:"amount_cents"`
	Timestamp      time.Time `json:"timestamp"`
}

// Validate rejects messages that cannot identify a ledger entry.
func (m *BillPaidMessage) Validate() error {
	if m.OwnerID == "" {
		return fmt.Errorf("bill_paid message: missing owner_id")
	}
	if m.TransactionID == "" {
		return fmt.Errorf("bill_paid message: missing transaction_id")
	}
	return nil
}

func (m *BillPaidMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BillPaidMessageFromJSON decodes and validates a message body.
func BillPaidMessageFromJSON(data []byte) (*BillPaidMessage, error) {
	var msg BillPaidMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
