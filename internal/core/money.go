// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents. Parsing goes through shopspring/decimal
// so that precision can be checked exactly instead of through floats.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	errTooManyDecimals = errors.New("amount must have at most 2 decimal places")
	errNotPositive     = errors.New("amount must be positive")
	errAmountTooLarge  = errors.New("amount too large")

	maxAmount = decimal.New(1, 13) // 10 trillion, comfortably below int64 cents
)

// Money is a signed amount in cents.
type Money struct {
	Cents int64
}

// ParseMoney converts a decimal string to Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, rejects
// values with more than two decimal places and requires a positive amount.
//
// Examples:
//
//	ParseMoney("12.34")  -> 1234 cents
//	ParseMoney("12,3")   -> 1230 cents
//	ParseMoney("12.345") -> error
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return MoneyFromDecimal(d)
}

// MoneyFromDecimal validates a positive amount with at most two decimals.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	m, err := moneyFromDecimal(d)
	if err != nil {
		return Money{}, err
	}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

func moneyFromDecimal(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Truncate(2)) {
		return Money{}, errTooManyDecimals
	}
	if d.Abs().GreaterThan(maxAmount) {
		return Money{}, errAmountTooLarge
	}
	return Money{Cents: d.Shift(2).IntPart()}, nil
}

// Validate requires a strictly positive amount.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return errNotPositive
	}
	return nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Float64 returns the value for display purposes only; use Cents for math.
func (m Money) Float64() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or string. The sign is not checked.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return ErrInvalidAmount
	}
	parsed, err := moneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
