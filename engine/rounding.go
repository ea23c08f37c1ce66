package engine

import "github.com/shopspring/decimal"

// =============================================================================
// PRECISION - Rounding rules shared by every component
// =============================================================================

const (
	// RatePrecision: daily/monthly rates are rounded to 10 decimal places.
	RatePrecision = 10

	// AccrualPrecision: interest accrues at 5 decimal places; the remainder
	// against the applied 2dp amount is settled at application time.
	AccrualPrecision = 5

	// MoneyPrecision: customer-facing amounts settle at 2 decimal places.
	MoneyPrecision = 2
)

// RoundHalfUp rounds half away from zero at the given number of places, the
// convention used for every settled amount in the engine.
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// RoundMoney rounds to settlement precision.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return RoundHalfUp(d, MoneyPrecision)
}

// RoundAccrual rounds to accrual precision.
func RoundAccrual(d decimal.Decimal) decimal.Decimal {
	return RoundHalfUp(d, AccrualPrecision)
}

// RoundRate rounds to rate precision.
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return RoundHalfUp(d, RatePrecision)
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxDecimal returns the larger of a and b.
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
