package interest_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/lending-engine/engine"
	"github.com/warp/lending-engine/interest"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

var (
	midJanuary  = time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)
	midFebruary = time.Date(2025, time.February, 15, 12, 0, 0, 0, time.UTC)
)

// =============================================================================
// RATE SERIES
// =============================================================================

func TestSteppedSeries_ResolvesLatestStep(t *testing.T) {
	series := interest.SteppedSeries{Steps: []interest.RateStep{
		{From: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), Rate: d("0.02")},
		{From: time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), Rate: d("0.035")},
	}}

	assert.True(t, d("0.02").Equal(series.At(midJanuary)))
	assert.True(t, d("0.035").Equal(series.At(midFebruary)))
	assert.True(t, series.At(time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)).IsZero())
}

// =============================================================================
// FIXED RATE
// =============================================================================

func TestFixedRate_NeverChanges(t *testing.T) {
	r := interest.FixedRate{Rate: d("0.031"), DayCount: engine.DayCount365}

	assert.True(t, d("0.031").Equal(r.AnnualRate(midJanuary, 0)))
	assert.True(t, d("0.0025833333").Equal(r.MonthlyRate(midJanuary, 0)))
	assert.True(t, d("0.0000849315").Equal(r.DailyRate(midJanuary, 0)))
	assert.False(t, r.ChangedOver(midJanuary, midFebruary, 0, 1))
}

// =============================================================================
// VARIABLE RATE
// =============================================================================

func TestVariableRate_AppliesSignedAdjustment(t *testing.T) {
	r := interest.VariableRate{
		Template:   interest.ConstantSeries{Rate: d("0.04")},
		Adjustment: d("-0.01"),
		DayCount:   engine.DayCount365,
	}

	assert.True(t, d("0.03").Equal(r.AnnualRate(midJanuary, 0)))
}

func TestVariableRate_ClampsToFloorAndCap(t *testing.T) {
	// GIVEN: A template dropping below the floor and another above the cap
	// WHEN: Resolving the annual rate
	// THEN: The limits win

	r := interest.VariableRate{
		Template:   interest.ConstantSeries{Rate: d("0.001")},
		Adjustment: d("-0.01"),
		Floor:      decPtr("0"),
		Cap:        decPtr("0.15"),
		DayCount:   engine.DayCount365,
	}
	assert.True(t, r.AnnualRate(midJanuary, 0).IsZero())

	r.Template = interest.ConstantSeries{Rate: d("0.20")}
	r.Adjustment = d("0.01")
	assert.True(t, d("0.15").Equal(r.AnnualRate(midJanuary, 0)))
}

func TestVariableRate_ChangedOverTracksTemplateMoves(t *testing.T) {
	series := interest.SteppedSeries{Steps: []interest.RateStep{
		{From: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), Rate: d("0.04")},
		{From: time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), Rate: d("0.045")},
	}}
	r := interest.VariableRate{Template: series, DayCount: engine.DayCount365}

	assert.True(t, r.ChangedOver(midJanuary, midFebruary, 0, 1))
	assert.False(t, r.ChangedOver(midJanuary, midJanuary.AddDate(0, 0, 1), 0, 0))
}

// =============================================================================
// FIXED TO VARIABLE
// =============================================================================

func fixedToVariable(fixedTerm int) interest.FixedToVariable {
	return interest.FixedToVariable{
		Fixed: interest.FixedRate{Rate: d("0.0199"), DayCount: engine.DayCount365},
		Variable: interest.VariableRate{
			Template:   interest.ConstantSeries{Rate: d("0.045")},
			Adjustment: d("-0.005"),
			DayCount:   engine.DayCount365,
		},
		FixedTermMonths: fixedTerm,
	}
}

func TestFixedToVariable_DelegatesByElapsedTerm(t *testing.T) {
	r := fixedToVariable(24)

	assert.True(t, d("0.0199").Equal(r.AnnualRate(midJanuary, 23)))
	assert.True(t, d("0.04").Equal(r.AnnualRate(midJanuary, 24)))
}

func TestFixedToVariable_ChangedOverFiresAtBoundary(t *testing.T) {
	// GIVEN: The period whose due event crosses the fixed-term boundary
	// WHEN: The fixed and variable rates differ at that instant
	// THEN: The rate change fires exactly once, at the crossing period

	r := fixedToVariable(24)

	assert.True(t, r.ChangedOver(midJanuary, midFebruary, 23, 24))
	assert.False(t, r.ChangedOver(midJanuary, midFebruary, 22, 23))

	// Past the boundary the constant variable template yields no movement.
	assert.False(t, r.ChangedOver(midJanuary, midFebruary, 24, 25))
}

func TestFixedToVariable_BoundaryWithEqualRatesIsQuiet(t *testing.T) {
	r := fixedToVariable(24)
	r.Fixed.Rate = d("0.04") // matches the effective variable rate

	assert.False(t, r.ChangedOver(midJanuary, midFebruary, 23, 24))
}

// =============================================================================
// RESOLVER FACTORY
// =============================================================================

func TestResolverFor_SelectsByRegime(t *testing.T) {
	cfg := &engine.LoanConfig{
		Regime:   engine.RateFixed,
		Rates:    engine.RateSpec{FixedRate: d("0.031")},
		DayCount: engine.DayCount365,
	}
	assert.IsType(t, &interest.FixedRate{}, interest.ResolverFor(cfg, nil))

	cfg.Regime = engine.RateVariable
	assert.IsType(t, &interest.VariableRate{}, interest.ResolverFor(cfg, nil))

	cfg.Regime = engine.RateFixedToVariable
	cfg.Rates.FixedTermMonths = 24
	assert.IsType(t, &interest.FixedToVariable{}, interest.ResolverFor(cfg, nil))
}

func TestResolverFor_NilSeriesUsesConfiguredTemplate(t *testing.T) {
	cfg := &engine.LoanConfig{
		Regime:   engine.RateVariable,
		Rates:    engine.RateSpec{VariableTemplate: d("0.045"), VariableAdjustment: d("0.005")},
		DayCount: engine.DayCount365,
	}

	r := interest.ResolverFor(cfg, nil)

	assert.True(t, d("0.05").Equal(r.AnnualRate(midJanuary, 0)))
}
