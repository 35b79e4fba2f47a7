package services

import (
	"time"

	"bollette/internal/core"
)

// bucketOrder fixes the iteration order over the registry.
var bucketOrder = []core.Bucket{core.BucketPaid, core.BucketUpcoming, core.BucketDueSoon}

// Placement records the buckets a bill landed in.
type Placement struct {
	Bill    core.Bill
	Buckets map[core.Bucket]core.BucketTotals
}

// In reports whether the bill is listed in bucket b.
func (p Placement) In(b core.Bucket) bool {
	_, ok := p.Buckets[b]
	return ok
}

// SkippedBill is a bill left out of the classification because its stored
// rule could not be evaluated.
type SkippedBill struct {
	BillID string
	Err    error
}

// Classification is the result of classifying a set of bills at one instant.
type Classification struct {
	Summary    core.Summary
	Placements []Placement
	Skipped    []SkippedBill
}

// Members returns, in input order, the bills listed in bucket b.
func (c Classification) Members(b core.Bucket) []core.Bill {
	var bills []core.Bill
	for _, p := range c.Placements {
		if p.In(b) {
			bills = append(bills, p.Bill)
		}
	}
	return bills
}

// Classify places every bill into the buckets relative to now. It is pure:
// the same inputs always give the same Classification. Bills whose rule
// fails to evaluate are reported in Skipped and otherwise ignored.
func Classify(bills []core.Bill, payments []core.Payment, now time.Time, dueSoonDays int, offset *core.Offset) Classification {
	byBill := make(map[string][]core.Payment)
	for _, p := range payments {
		byBill[p.BillID] = append(byBill[p.BillID], p)
	}

	var c Classification
	for _, b := range bills {
		e, err := Evaluate(b, byBill[b.ID], now, dueSoonDays, offset)
		if err != nil {
			c.Skipped = append(c.Skipped, SkippedBill{BillID: b.ID, Err: err})
			continue
		}

		placement := Placement{Bill: b, Buckets: make(map[core.Bucket]core.BucketTotals)}
		for _, bucket := range bucketOrder {
			contribution, ok := bucketStrategies[bucket].Contribution(e)
			if !ok {
				continue
			}
			placement.Buckets[bucket] = contribution
			c.Summary.Record(bucket, contribution)
		}
		c.Placements = append(c.Placements, placement)
	}
	return c
}
