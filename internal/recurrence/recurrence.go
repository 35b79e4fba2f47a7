// Package recurrence evaluates RFC 5545 recurrence rules.
//
// Everything here is pure: callers pass the anchor, the window and "now",
// and get dates back. Other packages reason only about dates, never about
// rule syntax.
package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"bollette/internal/core"
)

const (
	day        = 24 * time.Hour
	rulePrefix = "RRULE:"
)

var supportedFrequencies = map[rrule.Frequency]string{
	rrule.DAILY:   "daily",
	rrule.WEEKLY:  "weekly",
	rrule.MONTHLY: "monthly",
	rrule.YEARLY:  "yearly",
}

// Rule is a parsed recurrence rule that is not yet anchored.
type Rule struct {
	raw string
	opt rrule.ROption
}

// Parse validates an RRULE string. An optional "RRULE:" prefix is accepted
// in any case. Only DAILY, WEEKLY, MONTHLY and YEARLY frequencies are
// supported.
func Parse(rule string) (*Rule, error) {
	raw := strings.TrimSpace(rule)
	if raw == "" {
		return nil, core.ErrInvalidRecurrenceRule
	}
	body := raw
	if len(body) >= len(rulePrefix) && strings.EqualFold(body[:len(rulePrefix)], rulePrefix) {
		body = strings.TrimSpace(body[len(rulePrefix):])
	}
	if body == "" {
		return nil, core.ErrInvalidRecurrenceRule
	}

	opt, err := rrule.StrToROption(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidRecurrenceRule, err)
	}
	if _, ok := supportedFrequencies[opt.Freq]; !ok {
		return nil, fmt.Errorf("%w: unsupported frequency %s", core.ErrInvalidRecurrenceRule, opt.Freq)
	}
	return &Rule{raw: raw, opt: *opt}, nil
}

// Frequency returns the lower-case frequency name.
func (r *Rule) Frequency() string {
	return supportedFrequencies[r.opt.Freq]
}

func (r *Rule) String() string {
	return r.raw
}

// Anchor binds the rule to a start instant and an optional end bound. When
// both the rule and until carry an end, the earlier one wins.
func (r *Rule) Anchor(start time.Time, until *time.Time) (*Schedule, error) {
	opt := r.opt
	opt.Dtstart = start.UTC().Truncate(time.Second)
	if until != nil {
		u := until.UTC()
		if opt.Until.IsZero() || u.Before(opt.Until) {
			opt.Until = u
		}
	}
	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidRecurrenceRule, err)
	}
	return &Schedule{rr: rr, start: opt.Dtstart}, nil
}

// Schedule is an anchored rule. It is safe for concurrent use as long as
// callers only read from it.
type Schedule struct {
	rr    *rrule.RRule
	start time.Time
}

// NewSchedule parses rule and anchors it in one step.
func NewSchedule(rule string, start time.Time, until *time.Time) (*Schedule, error) {
	r, err := Parse(rule)
	if err != nil {
		return nil, err
	}
	return r.Anchor(start, until)
}

// ForBill builds the schedule of a stored bill.
func ForBill(b core.Bill) (*Schedule, error) {
	return NewSchedule(b.Rule, b.DTStart, b.Until)
}

// Start returns the anchor instant.
func (s *Schedule) Start() time.Time {
	return s.start
}

// StartsOnAnchor reports whether the anchor itself is an occurrence. BY*
// parts can move the first occurrence past it, e.g. FREQ=WEEKLY;BYDAY=MO
// anchored on a Wednesday.
func (s *Schedule) StartsOnAnchor() bool {
	return len(s.rr.Between(s.start, s.start, true)) == 1
}

// Between returns every occurrence in [start, end], inclusive on both ends.
func (s *Schedule) Between(start, end time.Time) []time.Time {
	if end.Before(start) {
		return nil
	}
	return s.rr.Between(start, end, true)
}

// Window returns the occurrences in the window, defaulting the start to the
// anchor and the end to now.
func (s *Schedule) Window(rangeStart, rangeEnd *time.Time, now time.Time) []time.Time {
	start, end := s.bounds(rangeStart, rangeEnd, now)
	return s.Between(start, end)
}

// Active reports whether the window holds at least one occurrence.
func (s *Schedule) Active(rangeStart, rangeEnd *time.Time, now time.Time) bool {
	start, end := s.bounds(rangeStart, rangeEnd, now)
	if end.Before(start) {
		return false
	}
	next := s.rr.After(start, true)
	return !next.IsZero() && !next.After(end)
}

// Next returns the earliest occurrence at or after reference, or false when
// the rule has ended.
func (s *Schedule) Next(reference time.Time) (time.Time, bool) {
	next := s.rr.After(reference, true)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

func (s *Schedule) bounds(rangeStart, rangeEnd *time.Time, now time.Time) (time.Time, time.Time) {
	start := s.start
	if rangeStart != nil {
		start = rangeStart.UTC()
	}
	end := now.UTC()
	if rangeEnd != nil {
		end = rangeEnd.UTC()
	}
	return start, end
}

// OccurrencesInRange parses rule, anchors it at anchorStart and returns every
// occurrence in [rangeStart, rangeEnd]. rangeStart defaults to anchorStart
// and rangeEnd to now.
func OccurrencesInRange(rule string, anchorStart time.Time, rangeStart, rangeEnd *time.Time, now time.Time) ([]time.Time, error) {
	s, err := NewSchedule(rule, anchorStart, nil)
	if err != nil {
		return nil, err
	}
	return s.Window(rangeStart, rangeEnd, now), nil
}

// NextOccurrenceAtOrAfter returns the earliest occurrence >= reference.
func NextOccurrenceAtOrAfter(rule string, anchorStart, reference time.Time) (time.Time, bool, error) {
	s, err := NewSchedule(rule, anchorStart, nil)
	if err != nil {
		return time.Time{}, false, err
	}
	next, ok := s.Next(reference)
	return next, ok, nil
}

// IsActiveInRange reports whether OccurrencesInRange would be non-empty.
func IsActiveInRange(rule string, anchorStart time.Time, rangeStart, rangeEnd *time.Time, now time.Time) (bool, error) {
	s, err := NewSchedule(rule, anchorStart, nil)
	if err != nil {
		return false, err
	}
	return s.Active(rangeStart, rangeEnd, now), nil
}

// DaysUntil counts whole calendar days (UTC) from now to t. It is negative
// when t is on an earlier day.
func DaysUntil(now, t time.Time) int {
	return int(core.StartOfDay(t).Sub(core.StartOfDay(now)) / day)
}
