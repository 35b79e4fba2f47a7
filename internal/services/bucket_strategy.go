// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for bucket classification.
// Each bucket (paid, upcoming, due soon) has its own strategy that decides
// whether an evaluated bill belongs to it and what it contributes, so the
// summary counters and the bucket listings share one code path.

package services

import (
	"fmt"
	"time"

	"bollette/internal/core"
	"bollette/internal/recurrence"
)

// Evaluation is everything the strategies need to know about one bill at a
// given instant. It is computed once per bill and shared by all strategies.
type Evaluation struct {
	Bill   core.Bill
	Active bool
	// Next is the first occurrence on or after today; nil once the rule ended.
	Next        *time.Time
	DaysUntil   int
	DueSoonDays int
	// Payments are the bill's payments with an occurrence date in the
	// active window.
	Payments []core.Payment
}

// BucketStrategy is the strategy interface for bucket membership.
type BucketStrategy interface {
	// Contribution returns what the bill adds to the bucket, and false when
	// the bill is not a member.
	Contribution(e Evaluation) (core.BucketTotals, bool)
}

// UpcomingStrategy counts every bill active in the window.
type UpcomingStrategy struct{}

func (UpcomingStrategy) Contribution(e Evaluation) (core.BucketTotals, bool) {
	if !e.Active {
		return core.BucketTotals{}, false
	}
	return core.BucketTotals{Count: 1, Amount: e.Bill.Amount}, true
}

// DueSoonStrategy counts active bills whose next occurrence is at most
// DueSoonDays calendar days away.
type DueSoonStrategy struct{}

func (DueSoonStrategy) Contribution(e Evaluation) (core.BucketTotals, bool) {
	if !e.Active || e.Next == nil {
		return core.BucketTotals{}, false
	}
	if e.DaysUntil < 0 || e.DaysUntil > e.DueSoonDays {
		return core.BucketTotals{}, false
	}
	return core.BucketTotals{Count: 1, Amount: e.Bill.Amount}, true
}

// PaidStrategy counts each recorded payment of an active bill.
type PaidStrategy struct{}

func (PaidStrategy) Contribution(e Evaluation) (core.BucketTotals, bool) {
	if !e.Active || len(e.Payments) == 0 {
		return core.BucketTotals{}, false
	}
	var t core.BucketTotals
	for _, p := range e.Payments {
		t.Count++
		t.Amount = t.Amount.Add(p.AmountPaid)
	}
	return t, true
}

// bucketStrategies maps buckets to their strategies.
var bucketStrategies = map[core.Bucket]BucketStrategy{
	core.BucketPaid:     PaidStrategy{},
	core.BucketUpcoming: UpcomingStrategy{},
	core.BucketDueSoon:  DueSoonStrategy{},
}

// GetBucketStrategy returns the strategy for a bucket.
func GetBucketStrategy(b core.Bucket) (BucketStrategy, error) {
	s, ok := bucketStrategies[b]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedBucket, b)
	}
	return s, nil
}

// Evaluate computes the Evaluation of a bill. payments may hold payments of
// any date; only those in the active window are kept.
func Evaluate(b core.Bill, payments []core.Payment, now time.Time, dueSoonDays int, offset *core.Offset) (Evaluation, error) {
	sched, err := recurrence.ForBill(b)
	if err != nil {
		return Evaluation{}, err
	}

	var rangeStart, rangeEnd *time.Time
	if offset != nil {
		rangeStart, rangeEnd = offset.Start, offset.End
	}

	e := Evaluation{
		Bill:        b,
		Active:      sched.Active(rangeStart, rangeEnd, now),
		DueSoonDays: core.ClampDueSoonDays(dueSoonDays),
	}
	if next, ok := sched.Next(core.StartOfDay(now)); ok {
		e.Next = &next
		e.DaysUntil = recurrence.DaysUntil(now, next)
	}

	if e.Active {
		from, to := core.DateOf(sched.Start()), core.DateOf(now)
		if rangeStart != nil {
			from = core.DateOf(*rangeStart)
		}
		if rangeEnd != nil {
			to = core.DateOf(*rangeEnd)
		}
		for _, p := range payments {
			if p.BillID == b.ID && p.OccurrenceDate.Between(from, to) {
				e.Payments = append(e.Payments, p)
			}
		}
	}
	return e, nil
}
