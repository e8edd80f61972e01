// Package core provides amount parsing and formatting utilities.
//
// Amounts arrive from the document store as free text. They are parsed as
// decimals so that values like "12,34" or " 2.50 " are read the same way the
// user typed them, then converted to float64 for the statistics.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a decimal string to a float64.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// surrounding whitespace. Negative amounts are kept as-is.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	if !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return d.InexactFloat64(), nil
}

// FormatAmount renders an amount with two decimal places for reason text.
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
