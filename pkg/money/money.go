package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places every stored amount carries.
const Scale = 2

// Round normalizes an amount to the ledger scale using banker-free
// half-up rounding, matching the numeric(12,2) columns.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}

// Parse converts raw input into a scale-2 amount.
func Parse(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return Round(amount), nil
}

// ParsePositive converts raw input and rejects zero or negative amounts.
func ParsePositive(value string) (decimal.Decimal, error) {
	amount, err := Parse(value)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", amount)
	}
	return amount, nil
}

// IsPositive reports whether the amount is strictly greater than zero
// after normalization.
func IsPositive(amount decimal.Decimal) bool {
	return Round(amount).IsPositive()
}

// String renders an amount with exactly two decimal places, the
// format providers expect on the wire.
func String(amount decimal.Decimal) string {
	return Round(amount).StringFixed(Scale)
}
