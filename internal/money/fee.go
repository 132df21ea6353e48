package money

import (
	"github.com/shopspring/decimal"
)

// DefaultFeeRate is the 1.25% transaction charge.
var DefaultFeeRate = decimal.RequireFromString("0.0125")

type FeeCalculator struct {
	rate decimal.Decimal
}

func NewFeeCalculator(rate decimal.Decimal) *FeeCalculator {
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	return &FeeCalculator{rate: rate}
}

// Fee returns round_half_up(gross * rate) in minor units.
func (f *FeeCalculator) Fee(gross Amount) Amount {
	if gross <= 0 {
		return 0
	}
	return Amount(decimal.NewFromInt(int64(gross)).Mul(f.rate).Round(0).IntPart())
}

func (f *FeeCalculator) Rate() decimal.Decimal {
	return f.rate
}
