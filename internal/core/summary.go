package core

import (
	"fmt"
	"strings"
)

// Bucket classifies a bill relative to the current instant.
type Bucket string

const (
	BucketPaid     Bucket = "paid"
	BucketUpcoming Bucket = "upcoming"
	BucketDueSoon  Bucket = "dueSoon"
)

const (
	MinDueSoonDays     = 1
	MaxDueSoonDays     = 31
	DefaultDueSoonDays = 5
)

// ParseBucket accepts the canonical names plus due-soon/due_soon spellings.
func ParseBucket(s string) (Bucket, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid":
		return BucketPaid, nil
	case "upcoming":
		return BucketUpcoming, nil
	case "duesoon", "due-soon", "due_soon":
		return BucketDueSoon, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedBucket, s)
}

// ClampDueSoonDays bounds the due-soon horizon to [1, 31].
func ClampDueSoonDays(days int) int {
	if days < MinDueSoonDays {
		return MinDueSoonDays
	}
	if days > MaxDueSoonDays {
		return MaxDueSoonDays
	}
	return days
}

// BucketTotals aggregates one bucket.
type BucketTotals struct {
	Count  int   `json:"count"`
	Amount Money `json:"amount"`
}

func (t *BucketTotals) add(o BucketTotals) {
	t.Count += o.Count
	t.Amount = t.Amount.Add(o.Amount)
}

// Summary holds the three bucket aggregates.
type Summary struct {
	Paid     BucketTotals `json:"paid"`
	Upcoming BucketTotals `json:"upcoming"`
	DueSoon  BucketTotals `json:"dueSoon"`
}

// Totals returns the aggregate for a bucket.
func (s *Summary) Totals(b Bucket) *BucketTotals {
	switch b {
	case BucketPaid:
		return &s.Paid
	case BucketUpcoming:
		return &s.Upcoming
	case BucketDueSoon:
		return &s.DueSoon
	}
	return nil
}

// Record adds one bill's contribution to bucket b.
func (s *Summary) Record(b Bucket, contribution BucketTotals) {
	if t := s.Totals(b); t != nil {
		t.add(contribution)
	}
}

// BucketPage is one bucket's aggregate plus a page of its bills.
type BucketPage struct {
	Count  int        `json:"count"`
	Amount Money      `json:"amount"`
	List   Page[Bill] `json:"list"`
}
