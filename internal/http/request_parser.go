package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bollette/internal/core"
)

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("invalid request body")

// billRequest is the JSON body of POST /bills. Dates accept YYYY-MM-DD or
// RFC 3339.
type billRequest struct {
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Recipient   *string         `json:"recipient"`
	Description string          `json:"description"`
	Emoji       string          `json:"emoji"`
	CategoryID  string          `json:"category_id"`
	Rule        string          `json:"rule"`
	DTStart     string          `json:"dtstart"`
	Until       *string         `json:"until"`
}

func (req billRequest) toInput() (core.BillInput, error) {
	verr := &core.ValidationError{}
	in := core.BillInput{
		Name:        sanitizeInput(req.Name),
		Amount:      req.Amount,
		Recipient:   sanitizeOptional(req.Recipient),
		Description: sanitizeInput(req.Description),
		Emoji:       req.Emoji,
		CategoryID:  req.CategoryID,
		Rule:        req.Rule,
	}
	if t, err := parseTimestamp(req.DTStart); err != nil {
		verr.Add("dtstart", err)
	} else {
		in.DTStart = t
	}
	if req.Until != nil {
		if t, err := parseTimestamp(*req.Until); err != nil {
			verr.Add("until", err)
		} else {
			in.Until = &t
		}
	}
	return in, verr.OrNil()
}

// patchRequest is the JSON body of PATCH /bills/{id}. Absent fields are
// left untouched; clear_* remove optional values.
type patchRequest struct {
	Name           *string          `json:"name"`
	Amount         *decimal.Decimal `json:"amount"`
	Recipient      *string          `json:"recipient"`
	ClearRecipient bool             `json:"clear_recipient"`
	Description    *string          `json:"description"`
	Emoji          *string          `json:"emoji"`
	CategoryID     *string          `json:"category_id"`
	Rule           *string          `json:"rule"`
	DTStart        *string          `json:"dtstart"`
	Until          *string          `json:"until"`
	ClearUntil     bool             `json:"clear_until"`
}

func (req patchRequest) toPatch() (core.BillPatch, error) {
	verr := &core.ValidationError{}
	p := core.BillPatch{
		Name:           sanitizeOptional(req.Name),
		Amount:         req.Amount,
		Recipient:      sanitizeOptional(req.Recipient),
		ClearRecipient: req.ClearRecipient,
		Description:    sanitizeOptional(req.Description),
		Emoji:          req.Emoji,
		CategoryID:     req.CategoryID,
		Rule:           req.Rule,
		ClearUntil:     req.ClearUntil,
	}
	if req.DTStart != nil {
		if t, err := parseTimestamp(*req.DTStart); err != nil {
			verr.Add("dtstart", err)
		} else {
			p.DTStart = &t
		}
	}
	if req.Until != nil {
		if t, err := parseTimestamp(*req.Until); err != nil {
			verr.Add("until", err)
		} else {
			p.Until = &t
		}
	}
	return p, verr.OrNil()
}

type paymentRequest struct {
	OccurrenceDate string          `json:"occurrence_date"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	Note           string          `json:"note"`
}

func (req paymentRequest) toInput() core.PaymentInput {
	return core.PaymentInput{
		OccurrenceDate: strings.TrimSpace(req.OccurrenceDate),
		AmountPaid:     req.AmountPaid,
		Note:           sanitizeInput(req.Note),
	}
}

type categoryRequest struct {
	Name  string            `json:"name"`
	Emoji string            `json:"emoji"`
	Kind  core.CategoryKind `json:"kind"`
}

// decodeJSON reads a single JSON object into v, rejecting unknown fields
// and bodies over 1 MiB.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errBadBody)
	}
	return nil
}

// parseTimestamp accepts a calendar date or an RFC 3339 instant.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, core.ErrInvalidDate
	}
	if d, err := core.ParseDate(s); err == nil {
		return d.Time, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, core.ErrInvalidDate
	}
	return t.UTC(), nil
}

// parseOffset reads the optional start/end window. Both absent means no
// window.
func parseOffset(q url.Values) (*core.Offset, error) {
	verr := &core.ValidationError{}
	var offset core.Offset
	for _, f := range []struct {
		key string
		dst **time.Time
	}{
		{"start", &offset.Start},
		{"end", &offset.End},
	} {
		v := strings.TrimSpace(q.Get(f.key))
		if v == "" {
			continue
		}
		d, err := core.ParseDate(v)
		if err != nil {
			verr.Add(f.key, core.ErrInvalidDate)
			continue
		}
		t := d.Time
		*f.dst = &t
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if offset.Start == nil && offset.End == nil {
		return nil, nil
	}
	if offset.Start != nil && offset.End != nil && offset.End.Before(*offset.Start) {
		return nil, core.NewValidationError("end", errors.New("end must not be before start"))
	}
	return &offset, nil
}

// parseDueSoonDays returns 0 (service default) when the parameter is
// absent. Present values must be integers; range clamping is left to the
// service.
func parseDueSoonDays(q url.Values) (int, error) {
	v := strings.TrimSpace(q.Get("due_soon_days"))
	if v == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(v)
	if err != nil {
		return 0, core.NewValidationError("due_soon_days", errors.New("must be an integer"))
	}
	if days < 1 {
		days = core.MinDueSoonDays
	}
	return days, nil
}

// parsePageParams reads page, page_size, sort, order and q. Invalid
// numbers fall back to defaults.
func parsePageParams(q url.Values) core.PageParams {
	atoi := func(key string) int {
		n, _ := strconv.Atoi(strings.TrimSpace(q.Get(key)))
		return n
	}
	return core.PageParams{
		Page:     atoi("page"),
		PageSize: atoi("page_size"),
		Sort:     strings.TrimSpace(q.Get("sort")),
		Order:    strings.TrimSpace(q.Get("order")),
		Query:    sanitizeInput(q.Get("q")),
	}.Normalize()
}

// parseDateRange reads optional from/to calendar dates.
func parseDateRange(q url.Values) (from, to core.Date, err error) {
	verr := &core.ValidationError{}
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if from, err = core.ParseDate(v); err != nil {
			verr.Add("from", core.ErrInvalidDate)
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if to, err = core.ParseDate(v); err != nil {
			verr.Add("to", core.ErrInvalidDate)
		}
	}
	return from, to, verr.OrNil()
}

func sanitizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}
