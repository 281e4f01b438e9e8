// Package core holds the entry model: entries, recurring templates,
// date handling, filters and the domain error type.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseValue converts user input into a signed decimal amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Negative values are expenses, positive values are earnings.
//
// Examples:
//
//	ParseValue("-99")    -> -99
//	ParseValue("12,50")  -> 12.5
//	ParseValue("+3.141") -> 3.141
func ParseValue(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, Validationf("value must not be empty")
	}
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimPrefix(s, "+")
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, Validationf("invalid value %q", s)
	}
	return v, nil
}
