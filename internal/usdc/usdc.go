// Package usdc provides shared USDC parsing and formatting utilities.
//
// USDC uses 6 decimal places. All amounts are stored as big.Int in
// the smallest unit (1 USDC = 1,000,000 units). Bet stakes are carried
// through the API as decimal strings and converted at the edges.
package usdc

import (
	"math/big"
	"strings"
)

const Decimals = 6

// Parse converts a decimal string (e.g. "100.50") to its smallest-unit
// big.Int representation (100500000). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional parts are padded/truncated to 6 decimal places
func Parse(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	if strings.HasPrefix(s, "-") {
		return nil, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}
	if whole == "" {
		whole = "0"
	}

	// Pad or trim to 6 decimals
	for len(frac) < Decimals {
		frac += "0"
	}
	frac = frac[:Decimals]

	combined := whole + frac
	result, ok := new(big.Int).SetString(combined, 10)
	return result, ok
}

// Format converts a smallest-unit big.Int to a human-readable decimal
// string with exactly 6 decimal places (e.g. "100.500000").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.000000"
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// Normalize re-formats a decimal string to canonical 6-decimal form
// ("100.5" becomes "100.500000"). Returns the input unchanged if it
// does not parse.
func Normalize(s string) string {
	amount, ok := Parse(s)
	if !ok {
		return s
	}
	return Format(amount)
}

// Double returns 2x the given decimal amount as a decimal string.
// The payout pot for a matched bet is always stake x2.
// Returns ("", false) if the input does not parse.
func Double(s string) (string, bool) {
	amount, ok := Parse(s)
	if !ok {
		return "", false
	}
	return Format(new(big.Int).Mul(amount, big.NewInt(2))), true
}

// IsPositive reports whether s parses as a strictly positive amount.
func IsPositive(s string) bool {
	amount, ok := Parse(s)
	return ok && amount.Sign() > 0
}

// Equal reports whether two decimal strings denote the same amount
// ("100", "100.0" and "100.000000" are all equal).
func Equal(a, b string) bool {
	x, okA := Parse(a)
	y, okB := Parse(b)
	return okA && okB && x.Cmp(y) == 0
}
