// Package money holds the fixed-point amount type used across the ledger.
// Amounts are int64 minor units (cents); decimals only exist at the API edge.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const minorUnitExponent = 2

// MaxAmount is the largest magnitude a single amount may carry (one
// trillion major units). Balances stay far below int64 even after many
// maximal credits.
const MaxAmount Amount = 100_000_000_000_000

var (
	hundred    = decimal.NewFromInt(100)
	maxDecimal = decimal.NewFromInt(int64(MaxAmount))
)

// ErrOutOfRange reports an amount or balance that does not fit in minor units.
var ErrOutOfRange = errors.New("amount out of range")

// Amount is a monetary value in minor units.
type Amount int64

// FromDecimal converts a major-unit decimal into minor units, rounding half-up
// once. Nothing downstream re-derives an amount from a decimal.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	minor := d.Mul(hundred).Round(0)
	if minor.Abs().GreaterThan(maxDecimal) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}
	return Amount(minor.IntPart()), nil
}

// Parse converts a caller-supplied string such as "125.50" into minor units.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

// Add returns a+b, failing instead of wrapping around.
func (a Amount) Add(b Amount) (Amount, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, fmt.Errorf("%w: %d + %d", ErrOutOfRange, a, b)
	}
	return sum, nil
}

// Decimal returns the major-unit representation.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -minorUnitExponent)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(minorUnitExponent)
}

// Float returns the major-unit value for wire formats that require float64.
func (a Amount) Float() float64 {
	f, _ := a.Decimal().Float64()
	return f
}

func (a Amount) IsPositive() bool {
	return a > 0
}

func (a Amount) Value() (driver.Value, error) {
	return int64(a), nil
}

func (a *Amount) Scan(value any) error {
	switch v := value.(type) {
	case int64:
		*a = Amount(v)
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		*a = Amount(d.IntPart())
	case nil:
		*a = 0
	default:
		return fmt.Errorf("money: cannot scan %T into Amount", value)
	}
	return nil
}

// MarshalJSON keeps amounts as integer minor units on the wire.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(a))
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = Amount(v)
	return nil
}
