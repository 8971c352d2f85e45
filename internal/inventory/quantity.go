package inventory

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Quantity is an amount of stock in tenths of a unit. For meter products the
// unit is a meter, for piece products a piece. 0.1 is the smallest cut.
type Quantity int64

const (
	Tenth Quantity = 1
	One   Quantity = 10
)

var ErrInvalidQuantity = errors.New("invalid quantity")

// QuantityFromFloat rounds x half away from zero to the nearest tenth.
func QuantityFromFloat(x float64) Quantity {
	return Quantity(math.Round(x * 10))
}

func QuantityFromDecimal(d decimal.Decimal) Quantity {
	return Quantity(d.Shift(1).Round(0).IntPart())
}

func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	return QuantityFromDecimal(d), nil
}

// Pieces converts a whole piece count.
func Pieces(n int) Quantity {
	return Quantity(n) * One
}

func (q Quantity) Decimal() decimal.Decimal {
	return decimal.New(int64(q), -1)
}

func (q Quantity) Float64() float64 {
	return float64(q) / 10
}

// IsWhole reports whether q has no fractional tenth.
func (q Quantity) IsWhole() bool {
	return q%One == 0
}

// WholeUnits truncates q to whole units.
func (q Quantity) WholeUnits() int {
	return int(q / One)
}

func (q Quantity) String() string {
	return q.Decimal().StringFixed(1)
}

func (q Quantity) MarshalJSON() ([]byte, error) {
	if q.IsWhole() {
		return []byte(q.Decimal().StringFixed(0)), nil
	}
	return []byte(q.String()), nil
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidQuantity, string(data))
	}
	*q = QuantityFromDecimal(d)
	return nil
}

// Amount prices q units at unitCents per unit, rounded half up to a cent.
func (q Quantity) Amount(unitCents int64) int64 {
	return decimal.NewFromInt(unitCents).Mul(q.Decimal()).Round(0).IntPart()
}
