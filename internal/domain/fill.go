package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Fill is a completed trade execution contributing to a position. Amount is
// signed: positive for buys, negative for sells. Fills are immutable once
// recorded.
type Fill struct {
	Amount decimal.Decimal
	Price  decimal.Decimal
}

// Validate rejects fills that can never be applied: zero amounts and
// non-positive prices.
func (f Fill) Validate() error {
	if f.Amount.IsZero() {
		return fmt.Errorf("%w: amount must not be zero", ErrInvalidFill)
	}
	if !f.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidFill, f.Price)
	}
	return nil
}

// Notional returns the unsigned quote-currency value of the fill.
func (f Fill) Notional() decimal.Decimal {
	return f.Amount.Mul(f.Price).Abs()
}
