// Package domain contains core business types and interfaces.
//
// This file defines Money, the fixed-point amount type used for goals,
// transactions and milestone snapshots.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// BaseCurrency is the currency all stored amounts are denominated in.
const BaseCurrency = "USD"

// Money is an amount in cents. Stored as BIGINT, rendered as a two-decimal string.
type Money int64

// MaxMoney bounds any single amount or balance (one trillion units). Sums of
// two in-range amounts cannot overflow int64.
const MaxMoney Money = 1_000_000_000_000_00

// ErrAmountOutOfRange is returned for amounts beyond ±MaxMoney.
var ErrAmountOutOfRange = errors.New("amount out of range")

// MoneyFromFloat converts a float amount in whole units to Money, rounding to
// the nearest cent. Non-finite values and values beyond ±MaxMoney fail.
func MoneyFromFloat(f float64) (Money, error) {
	cents := math.Round(f * 100)
	if math.IsInf(cents, 0) || math.IsNaN(cents) || math.Abs(cents) > float64(MaxMoney) {
		return 0, ErrAmountOutOfRange
	}
	return Money(cents), nil
}

// InRange reports whether m is within ±MaxMoney.
func (m Money) InRange() bool {
	return m >= -MaxMoney && m <= MaxMoney
}

// ParseMoney parses a decimal string such as "240", "240.5" or "-12.34".
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	m, err := MoneyFromFloat(f)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", err, s)
	}
	return m, nil
}

// Float returns the amount in whole currency units.
func (m Money) Float() float64 {
	return float64(m) / 100
}

// String renders the amount with exactly two decimals, e.g. "240.00".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

var displayPrinter = message.NewPrinter(language.English)

// Display renders the amount for notification copy, e.g. "$1,240.00".
func (m Money) Display() string {
	if m < 0 {
		return "-$" + displayPrinter.Sprintf("%.2f", (-m).Float())
	}
	return "$" + displayPrinter.Sprintf("%.2f", m.Float())
}

// MarshalJSON encodes Money as a decimal string to avoid float drift on the wire.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts either a JSON number or a decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	v, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// NormalizeCurrency validates an ISO 4217 code and returns it upper-cased.
// An empty code means BaseCurrency.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return BaseCurrency, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("unknown currency %q", code)
	}
	return unit.String(), nil
}
