// Package units converts between human decimal amounts and integer
// base-unit amounts given a token's decimal count.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrInvalidFormat rejects a decimal string that is not of the form
	// "123" or "123.45" with at most `decimals` fractional digits.
	ErrInvalidFormat = errors.New("invalid decimal format")

	// ErrInvalidValue rejects a negative base-unit amount.
	ErrInvalidValue = errors.New("invalid value")
)

// ToUnits parses a decimal string matching ^\d+(\.\d{1,decimals})?$ into
// base units by right-padding the fractional part to decimals digits.
func ToUnits(s string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("%w: negative decimals %d", ErrInvalidValue, decimals)
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if !isDigits(whole) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	if strings.ContainsRune(s, '.') {
		if !isDigits(frac) || len(frac) > decimals {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
		}
	}
	padded := whole + frac + strings.Repeat("0", decimals-len(frac))
	n, ok := new(big.Int).SetString(padded, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	return n, nil
}

// ToDecimal formats a non-negative base-unit amount as a decimal string,
// inserting the point decimals places from the end. With decimals == 0
// no point is emitted.
func ToDecimal(units *big.Int, decimals int) (string, error) {
	if decimals < 0 || units.Sign() < 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidValue, units)
	}
	digits := units.String()
	if decimals == 0 {
		return digits, nil
	}
	// left-pad so there is at least one digit before the point
	if len(digits) < decimals+1 {
		digits = strings.Repeat("0", decimals+1-len(digits)) + digits
	}
	cut := len(digits) - decimals
	return digits[:cut] + "." + digits[cut:], nil
}

func isDigits(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
