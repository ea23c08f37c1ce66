/*
Package interest resolves effective rates and accrues interest.

PURPOSE:
  Three rate variants share one capability set (annual / monthly / daily
  rate at an instant): Fixed, Variable (template + signed adjustment,
  clamped to an optional [floor, cap]), and FixedToVariable which acts as
  Fixed until the elapsed term crosses the configured fixed-term boundary.

  The package also owns the daily accrual engine (actual and expected
  tracks, pending-capitalisation routing) and the capitalisation routine
  that runs when a repayment holiday ends.
*/
package interest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/engine"
)

// =============================================================================
// RATE SERIES - Time-versioned template rates supplied by the host
// =============================================================================

// RateSeries resolves a template rate as of an instant.
type RateSeries interface {
	At(at time.Time) decimal.Decimal
}

// ConstantSeries always returns the same rate.
type ConstantSeries struct {
	Rate decimal.Decimal
}

func (s ConstantSeries) At(time.Time) decimal.Decimal { return s.Rate }

// SteppedSeries returns the rate of the latest step at or before the instant.
// Steps must be ordered by From ascending.
type SteppedSeries struct {
	Steps []RateStep
}

type RateStep struct {
	From time.Time
	Rate decimal.Decimal
}

func (s SteppedSeries) At(at time.Time) decimal.Decimal {
	rate := decimal.Zero
	for _, step := range s.Steps {
		if step.From.After(at) {
			break
		}
		rate = step.Rate
	}
	return rate
}

// =============================================================================
// RESOLVER - The capability set shared by all rate variants
// =============================================================================

// Resolver determines the effective rate at an instant for a given elapsed
// term. Elapsed term only matters for the fixed-to-variable composite.
type Resolver interface {
	AnnualRate(at time.Time, elapsed int) decimal.Decimal
	MonthlyRate(at time.Time, elapsed int) decimal.Decimal
	DailyRate(at time.Time, elapsed int) decimal.Decimal

	// ChangedOver reports whether the monthly rate at the period end differs
	// from the period start, the re-amortisation trigger of spec'd variable
	// products. Fixed rates never change without an explicit amendment.
	ChangedOver(periodStart, periodEnd time.Time, elapsedAtStart, elapsedAtEnd int) bool
}

// ResolverFor builds the resolver for the account's rate regime. series may
// be nil, in which case the configured variable template rate is constant.
func ResolverFor(cfg *engine.LoanConfig, series RateSeries) Resolver {
	if series == nil {
		series = ConstantSeries{Rate: cfg.Rates.VariableTemplate}
	}
	switch cfg.Regime {
	case engine.RateVariable:
		return &VariableRate{
			Template:   series,
			Adjustment: cfg.Rates.VariableAdjustment,
			Floor:      cfg.Rates.Floor,
			Cap:        cfg.Rates.Cap,
			DayCount:   cfg.DayCount,
		}
	case engine.RateFixedToVariable:
		return &FixedToVariable{
			Fixed: FixedRate{Rate: cfg.Rates.FixedRate, DayCount: cfg.DayCount},
			Variable: VariableRate{
				Template:   series,
				Adjustment: cfg.Rates.VariableAdjustment,
				Floor:      cfg.Rates.Floor,
				Cap:        cfg.Rates.Cap,
				DayCount:   cfg.DayCount,
			},
			FixedTermMonths: cfg.Rates.FixedTermMonths,
		}
	default:
		return &FixedRate{Rate: cfg.Rates.FixedRate, DayCount: cfg.DayCount}
	}
}

// =============================================================================
// FIXED
// =============================================================================

// FixedRate is the stored instance rate, immutable after disbursement unless
// explicitly amended via a parameter-change event.
type FixedRate struct {
	Rate     decimal.Decimal
	DayCount engine.DayCount
}

func (r FixedRate) AnnualRate(time.Time, int) decimal.Decimal { return r.Rate }

func (r FixedRate) MonthlyRate(time.Time, int) decimal.Decimal {
	return engine.MonthlyRate(r.Rate)
}

func (r FixedRate) DailyRate(at time.Time, _ int) decimal.Decimal {
	return r.DayCount.DailyRate(r.Rate, at)
}

func (r FixedRate) ChangedOver(time.Time, time.Time, int, int) bool { return false }

// =============================================================================
// VARIABLE
// =============================================================================

// VariableRate is template + signed instance adjustment, clamped to the
// optional [floor, cap]. A nil floor is -inf, a nil cap is +inf.
type VariableRate struct {
	Template   RateSeries
	Adjustment decimal.Decimal
	Floor      *decimal.Decimal
	Cap        *decimal.Decimal
	DayCount   engine.DayCount
}

func (r VariableRate) AnnualRate(at time.Time, _ int) decimal.Decimal {
	rate := r.Template.At(at).Add(r.Adjustment)
	if r.Floor != nil && rate.LessThan(*r.Floor) {
		rate = *r.Floor
	}
	if r.Cap != nil && rate.GreaterThan(*r.Cap) {
		rate = *r.Cap
	}
	return rate
}

func (r VariableRate) MonthlyRate(at time.Time, elapsed int) decimal.Decimal {
	return engine.MonthlyRate(r.AnnualRate(at, elapsed))
}

func (r VariableRate) DailyRate(at time.Time, elapsed int) decimal.Decimal {
	return r.DayCount.DailyRate(r.AnnualRate(at, elapsed), at)
}

func (r VariableRate) ChangedOver(periodStart, periodEnd time.Time, elapsedAtStart, elapsedAtEnd int) bool {
	return !r.MonthlyRate(periodStart, elapsedAtStart).Equal(r.MonthlyRate(periodEnd, elapsedAtEnd))
}

// =============================================================================
// FIXED TO VARIABLE
// =============================================================================

// FixedToVariable acts as Fixed while elapsed term < FixedTermMonths, then
// delegates to Variable.
type FixedToVariable struct {
	Fixed           FixedRate
	Variable        VariableRate
	FixedTermMonths int
}

func (r FixedToVariable) active(elapsed int) Resolver {
	if elapsed < r.FixedTermMonths {
		return r.Fixed
	}
	return r.Variable
}

func (r FixedToVariable) AnnualRate(at time.Time, elapsed int) decimal.Decimal {
	return r.active(elapsed).AnnualRate(at, elapsed)
}

func (r FixedToVariable) MonthlyRate(at time.Time, elapsed int) decimal.Decimal {
	return r.active(elapsed).MonthlyRate(at, elapsed)
}

func (r FixedToVariable) DailyRate(at time.Time, elapsed int) decimal.Decimal {
	return r.active(elapsed).DailyRate(at, elapsed)
}

// ChangedOver is true when the period crossed the fixed-term boundary and
// the fixed and variable monthly rates differ at that instant, or when both
// edges are past the boundary and the variable rate itself moved.
func (r FixedToVariable) ChangedOver(periodStart, periodEnd time.Time, elapsedAtStart, elapsedAtEnd int) bool {
	crossedBoundary := elapsedAtStart < r.FixedTermMonths && elapsedAtEnd >= r.FixedTermMonths
	if crossedBoundary {
		return !r.Fixed.MonthlyRate(periodEnd, elapsedAtEnd).Equal(r.Variable.MonthlyRate(periodEnd, elapsedAtEnd))
	}
	if elapsedAtStart >= r.FixedTermMonths {
		return r.Variable.ChangedOver(periodStart, periodEnd, elapsedAtStart, elapsedAtEnd)
	}
	return false
}
