/*
This file contains common helpers for basis-point arithmetic on SDK integers and for parsing
amounts received over the API or from configuration.
*/

package utils

import (
	"errors"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrAmountNil      = errors.New("amount is nil")
	ErrAmountNegative = errors.New("amount is negative")
	ErrInvalidAmount  = errors.New("amount is not a valid integer")
	ErrInvalidBps     = errors.New("basis points out of range")
)

const scale = 10000

// MulBps returns amount * bps / 10000, truncated toward zero.
func MulBps(amount sdkmath.Int, bps int64) sdkmath.Int {
	if amount.IsNil() {
		return sdkmath.ZeroInt()
	}
	return amount.Mul(sdkmath.NewInt(bps)).Quo(sdkmath.NewInt(scale))
}

// RatioBps returns numerator * 10000 / denominator, truncated. A zero denominator yields zero.
func RatioBps(numerator, denominator sdkmath.Int) int64 {
	if numerator.IsNil() || denominator.IsNil() || !denominator.IsPositive() {
		return 0
	}
	ratio := numerator.Mul(sdkmath.NewInt(scale)).Quo(denominator)
	if !ratio.IsInt64() {
		return 0
	}
	return ratio.Int64()
}

// MinInt returns the smaller of a and b.
func MinInt(a, b sdkmath.Int) sdkmath.Int {
	if a.LT(b) {
		return a
	}
	return b
}

// ValidateAmount rejects nil and negative amounts.
func ValidateAmount(amount sdkmath.Int) error {
	if amount.IsNil() {
		return ErrAmountNil
	}
	if amount.IsNegative() {
		return ErrAmountNegative
	}
	return nil
}

// ParseAmount parses a base-unit integer amount. Underscore separators are accepted ("10_000").
func ParseAmount(s string) (sdkmath.Int, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	amount, ok := sdkmath.NewIntFromString(clean)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := ValidateAmount(amount); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return amount, nil
}

// ValidateBps checks that v is in [0, max].
func ValidateBps(v, max int64) error {
	if v < 0 || v > max {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidBps, v, max)
	}
	return nil
}
