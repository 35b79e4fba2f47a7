package core

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
	MaxNoteLength        = 500
)

// emojiPattern matches strings made only of emoji code points, modifiers,
// joiners, variation selectors, keycaps and regional indicators.
var emojiPattern = regexp.MustCompile(`^(?:[\x{1F000}-\x{1FAFF}]|[\x{2600}-\x{27BF}]|[\x{2300}-\x{23FF}]|[\x{2B00}-\x{2BFF}]|[\x{1F1E6}-\x{1F1FF}]|[\x{E0020}-\x{E007F}]|\x{200D}|\x{FE0F}|\x{20E3}|\x{3030}|\x{303D}|\x{3297}|\x{3299}|\x{00A9}|\x{00AE}|\x{2122}|[\x{2190}-\x{21FF}]|[\x{2934}-\x{2935}]|[\x{25AA}-\x{25FE}])+$`)

// IsEmoji reports whether s is a non-empty emoji-only string.
func IsEmoji(s string) bool {
	return s != "" && emojiPattern.MatchString(s)
}

var (
	errDescriptionTooLong = errors.New("description too long (max 500 characters)")
	errNoteTooLong        = errors.New("note too long (max 500 characters)")
	errStartRequired      = errors.New("start date is required")
)

// ToBill normalizes the input into an unsaved bill. Field errors are
// accumulated in the returned ValidationError, which may be empty.
func (in BillInput) ToBill() (Bill, *ValidationError) {
	verr := &ValidationError{}
	b := Bill{
		Name:        strings.TrimSpace(in.Name),
		Recipient:   trimOptional(in.Recipient),
		Description: strings.TrimSpace(in.Description),
		Emoji:       strings.TrimSpace(in.Emoji),
		CategoryID:  strings.TrimSpace(in.CategoryID),
		Rule:        strings.TrimSpace(in.Rule),
		DTStart:     in.DTStart.UTC(),
	}
	if in.Until != nil {
		until := in.Until.UTC()
		b.Until = &until
	}

	amount, err := MoneyFromDecimal(in.Amount)
	if err != nil {
		verr.Add("amount", err)
	}
	b.Amount = amount

	ValidateBill(b, verr)
	return b, verr
}

// Apply merges a patch into b. Only amount precision is checked here; the
// merged bill must still go through ValidateBill.
func (b Bill) Apply(p BillPatch) (Bill, *ValidationError) {
	verr := &ValidationError{}
	if p.Name != nil {
		b.Name = strings.TrimSpace(*p.Name)
	}
	if p.Amount != nil {
		amount, err := MoneyFromDecimal(*p.Amount)
		if err != nil {
			verr.Add("amount", err)
		} else {
			b.Amount = amount
		}
	}
	if p.ClearRecipient {
		b.Recipient = nil
	} else if p.Recipient != nil {
		b.Recipient = trimOptional(p.Recipient)
	}
	if p.Description != nil {
		b.Description = strings.TrimSpace(*p.Description)
	}
	if p.Emoji != nil {
		b.Emoji = strings.TrimSpace(*p.Emoji)
	}
	if p.CategoryID != nil {
		b.CategoryID = strings.TrimSpace(*p.CategoryID)
	}
	if p.Rule != nil {
		b.Rule = strings.TrimSpace(*p.Rule)
	}
	if p.DTStart != nil {
		b.DTStart = p.DTStart.UTC()
	}
	if p.ClearUntil {
		b.Until = nil
	} else if p.Until != nil {
		until := p.Until.UTC()
		b.Until = &until
	}
	return b, verr
}

// ValidateBill checks every field except the recurrence rule syntax, which
// belongs to the recurrence engine.
func ValidateBill(b Bill, verr *ValidationError) {
	switch {
	case b.Name == "":
		verr.Add("name", ErrEmptyName)
	case utf8.RuneCountInString(b.Name) > MaxNameLength:
		verr.Add("name", ErrNameTooLong)
	}
	if err := b.Amount.Validate(); err != nil {
		verr.Add("amount", err)
	}
	if utf8.RuneCountInString(b.Description) > MaxDescriptionLength {
		verr.Add("description", errDescriptionTooLong)
	}
	if !IsEmoji(b.Emoji) {
		verr.Add("emoji", ErrInvalidEmoji)
	}
	if b.CategoryID == "" {
		verr.Add("category_id", ErrEmptyCategory)
	}
	if b.Rule == "" {
		verr.Add("rule", ErrInvalidRecurrenceRule)
	}
	if b.DTStart.IsZero() {
		verr.Add("dtstart", errStartRequired)
	} else if b.Until != nil && !b.Until.After(b.DTStart) {
		verr.Add("until", ErrUntilBeforeStart)
	}
}

// PaymentDraft is a validated PaymentInput.
type PaymentDraft struct {
	OccurrenceDate Date
	AmountPaid     Money
	Note           string
}

// Validate checks the amount precision, the occurrence date and the note.
func (in PaymentInput) Validate() (PaymentDraft, error) {
	verr := &ValidationError{}
	var draft PaymentDraft

	amount, err := MoneyFromDecimal(in.AmountPaid)
	if err != nil {
		verr.Add("amount_paid", err)
	}
	draft.AmountPaid = amount

	date, err := ParseDate(strings.TrimSpace(in.OccurrenceDate))
	if err != nil {
		verr.Add("occurrence_date", err)
	}
	draft.OccurrenceDate = date

	draft.Note = strings.TrimSpace(in.Note)
	if utf8.RuneCountInString(draft.Note) > MaxNoteLength {
		verr.Add("note", errNoteTooLong)
	}
	return draft, verr.OrNil()
}

// ValidateCategory checks a category before it is stored.
func ValidateCategory(c Category) error {
	verr := &ValidationError{}
	if strings.TrimSpace(c.Name) == "" {
		verr.Add("name", ErrEmptyName)
	} else if utf8.RuneCountInString(c.Name) > MaxNameLength {
		verr.Add("name", ErrNameTooLong)
	}
	if c.Emoji != "" && !IsEmoji(c.Emoji) {
		verr.Add("emoji", ErrInvalidEmoji)
	}
	switch c.Kind {
	case CategoryBudget, CategoryIncome:
	default:
		verr.Add("kind", errors.New("kind must be budget or income"))
	}
	return verr.OrNil()
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// StartOfDay truncates t to UTC midnight.
func StartOfDay(t time.Time) time.Time {
	return DateOf(t).Time
}
