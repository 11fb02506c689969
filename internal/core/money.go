// Package core provides the domain types of a daily ledger.
//
// This file contains the money representation and parsing of user-entered
// amounts. Amounts are kept as integer fils (1/100 AED) so that sums and
// differences are exact.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in fils. It may be negative when it represents profit.
type Money struct {
	Fils int64
}

// Zero is the zero amount.
var Zero = Money{}

// Fils builds a Money from a raw fils count.
func Fils(n int64) Money {
	return Money{Fils: n}
}

// ParseAmount converts user text to a strictly positive Money.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. More
// than two fractional digits are rounded half-up. Zero, negative and
// malformed values return ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234 fils
//	ParseAmount("12,345") -> 1235 fils
//	ParseAmount("0")      -> ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m, ok := fromDecimal(d)
	if !ok {
		return Money{}, ErrInvalidAmount
	}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

func fromDecimal(d decimal.Decimal) (Money, bool) {
	fils := d.Shift(2).Round(0)
	if !fils.IsInteger() || fils.Abs().GreaterThan(decimal.NewFromInt(maxFils)) {
		return Money{}, false
	}
	return Money{Fils: fils.IntPart()}, true
}

// maxFils keeps sums over a month far away from int64 overflow.
const maxFils = int64(1) << 50

// Validate checks that m is usable as an income or expense amount.
func (m Money) Validate() error {
	if m.Fils <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{Fils: m.Fils + o.Fils} }

func (m Money) Sub(o Money) Money { return Money{Fils: m.Fils - o.Fils} }

func (m Money) IsZero() bool { return m.Fils == 0 }

// Decimal returns m in AED.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Fils, -2)
}

// String formats m with exactly two decimals, e.g. "-12.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Float returns the AED value for display and spreadsheet cells.
// Use Fils for arithmetic.
func (m Money) Float() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ErrInvalidAmount
	}
	parsed, ok := fromDecimal(d)
	if !ok {
		return ErrInvalidAmount
	}
	*m = parsed
	return nil
}
