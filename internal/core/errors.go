package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrInvalidRecurrenceRule = errors.New("invalid recurrence rule")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInvalidDate           = errors.New("invalid date")
	ErrUntilBeforeStart      = errors.New("until must be after start date")
	ErrStartNotOccurrence    = errors.New("start date must be an occurrence of the rule")
	ErrEmptyName             = errors.New("name is required")
	ErrNameTooLong           = errors.New("name too long (max 100 characters)")
	ErrInvalidEmoji          = errors.New("emoji must contain only emoji characters")
	ErrEmptyCategory         = errors.New("category is required")
	ErrOccurrenceAlreadyPaid = errors.New("occurrence already paid")
	ErrDuplicateName         = errors.New("a bill with this name already exists")
	ErrUnsupportedBucket     = errors.New("unsupported bucket")
)

// ValidationError carries field-level messages suitable for form display.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: err.Error()}}
}

// Add records a message for field, keeping the first one reported.
func (e *ValidationError) Add(field string, err error) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = err.Error()
	}
}

// OrNil returns nil when no field failed.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DatasourceError wraps any persistence failure.
type DatasourceError struct {
	Op  string
	Err error
}

func (e *DatasourceError) Error() string {
	return fmt.Sprintf("datasource %s: %v", e.Op, e.Err)
}

func (e *DatasourceError) Unwrap() error {
	return e.Err
}

// Datasource wraps err unless it is nil or already classified.
func Datasource(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return err
	}
	var ds *DatasourceError
	if errors.As(err, &ds) {
		return err
	}
	return &DatasourceError{Op: op, Err: err}
}

// NotFound returns ErrNotFound annotated with the entity and id.
func NotFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
}
