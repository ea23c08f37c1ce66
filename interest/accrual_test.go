package interest_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/engine"
	"github.com/warp/lending-engine/interest"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func accrualConfig() *engine.LoanConfig {
	return &engine.LoanConfig{
		Denomination:      "GBP",
		OriginalPrincipal: d("3000"),
		TotalTermMonths:   12,
		Regime:            engine.RateFixed,
		Rates:             engine.RateSpec{FixedRate: d("0.031")},
		Method:            engine.MethodDecliningPrincipal,
		DayCount:          engine.DayCount365,
		AccrualRest:       engine.RestDaily,
	}
}

func accrualSnapshot(balances map[engine.Address]decimal.Decimal) engine.BalanceSnapshot {
	created := time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)
	return engine.NewSnapshot("acc-1", "GBP", created.AddDate(0, 0, 10), created, balances)
}

func accrualTrigger() engine.Trigger {
	return engine.Trigger{
		Type: engine.TriggerAccrual,
		At:   time.Date(2025, time.January, 11, 0, 0, 0, 0, time.UTC),
	}
}

func newEngine(cfg *engine.LoanConfig, gate engine.PolicyGate) *interest.AccrualEngine {
	return interest.NewAccrualEngine(cfg, interest.ResolverFor(cfg, nil), gate, nil)
}

// =============================================================================
// DAILY ACCRUAL
// =============================================================================

func TestDailyAccrual_StandardDay(t *testing.T) {
	// GIVEN: 3000 outstanding at 3.1% annual, 365-day convention
	// WHEN: A daily accrual fires
	// THEN: 0.25479 accrues at five decimal places on both tracks, so a
	//       later overpayment finds the expected side already up to date

	e := newEngine(accrualConfig(), nil)
	s := accrualSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal: d("3000"),
	})

	batch, err := e.DailyAccrual(s, accrualTrigger())

	require.NoError(t, err)
	assert.True(t, d("0.25479").Equal(batch.Net(engine.AddrAccruedInterest)), "got %s", batch.Net(engine.AddrAccruedInterest))
	assert.True(t, d("0.25479").Equal(batch.Net(engine.AddrExpectedAccrued)))
}

func TestDailyAccrual_LargePrincipal(t *testing.T) {
	e := newEngine(accrualConfig(), nil)
	s := accrualSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal: d("300000"),
	})

	batch, err := e.DailyAccrual(s, accrualTrigger())

	require.NoError(t, err)
	assert.True(t, d("25.47945").Equal(batch.Net(engine.AddrAccruedInterest)))
}

func TestDailyAccrual_ZeroPrincipalEmitsNothing(t *testing.T) {
	e := newEngine(accrualConfig(), nil)
	s := accrualSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal: decimal.Zero,
	})

	batch, err := e.DailyAccrual(s, accrualTrigger())

	require.NoError(t, err)
	assert.True(t, batch.IsEmpty())
}

func TestDailyAccrual_RoutesToPendingCapitalisationDuringHoliday(t *testing.T) {
	// GIVEN: Due-amount calculation is blocked by a repayment holiday
	// WHEN: A daily accrual fires inside the window
	// THEN: Interest accrues to the pending-capitalisation address

	trigger := accrualTrigger()
	gate := engine.NewFlagGate(engine.FlagWindow{
		Gate: engine.GateDueCalculation,
		From: trigger.At.AddDate(0, 0, -1),
		To:   trigger.At.AddDate(0, 1, 0),
	})
	e := newEngine(accrualConfig(), gate)
	s := accrualSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal: d("3000"),
	})

	batch, err := e.DailyAccrual(s, trigger)

	require.NoError(t, err)
	assert.True(t, batch.Net(engine.AddrAccruedInterest).IsZero())
	assert.True(t, d("0.25479").Equal(batch.Net(engine.AddrAccruedPendingCap)))
	// The expected track pauses too: both tracks must cover the same days.
	assert.True(t, batch.Net(engine.AddrExpectedAccrued).IsZero())
}

func TestDailyAccrual_ExpectedTrackAfterOverpayment(t *testing.T) {
	// GIVEN: A 500 overpayment reduced the live principal to 2500
	// WHEN: A daily accrual fires
	// THEN: The actual track uses 2500 and the expected track uses 3000

	e := newEngine(accrualConfig(), nil)
	s := accrualSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:   d("2500"),
		engine.AddrOverpayment: d("-500"),
	})

	batch, err := e.DailyAccrual(s, accrualTrigger())

	require.NoError(t, err)
	assert.True(t, d("0.21233").Equal(batch.Net(engine.AddrAccruedInterest)), "got %s", batch.Net(engine.AddrAccruedInterest))
	assert.True(t, d("0.25479").Equal(batch.Net(engine.AddrExpectedAccrued)))
}

func TestDailyAccrual_MonthlyRestIncludesDuePrincipal(t *testing.T) {
	// GIVEN: Monthly rest with 246.58 already moved to principal due
	// WHEN: A daily accrual fires
	// THEN: The base is the live principal plus the due principal

	cfg := accrualConfig()
	cfg.AccrualRest = engine.RestMonthly
	e := newEngine(cfg, nil)
	s := accrualSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:    d("2753.42"),
		engine.AddrPrincipalDue: d("246.58"),
	})

	batch, err := e.DailyAccrual(s, accrualTrigger())

	require.NoError(t, err)
	assert.True(t, d("0.25479").Equal(batch.Net(engine.AddrAccruedInterest)))
}

func TestDailyAccrual_InvalidSnapshotFails(t *testing.T) {
	e := newEngine(accrualConfig(), nil)
	s := accrualSnapshot(nil) // no principal balance at all

	_, err := e.DailyAccrual(s, accrualTrigger())

	assert.Error(t, err)
}

// =============================================================================
// CAPITALISATION
// =============================================================================

func TestCapitalisation_MovesPendingToPrincipalWhenUnblocked(t *testing.T) {
	// GIVEN: 15.28456 accrued during a holiday that has now ended
	// WHEN: The next accrual run checks capitalisation
	// THEN: The pending balance folds into principal at settlement precision

	cfg := accrualConfig()
	c := interest.NewCapitalisation(cfg, nil, nil)
	s := accrualSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:         d("3000"),
		engine.AddrAccruedPendingCap: d("15.28456"),
	})
	batch := engine.NewBatch("acc-1", "GBP", accrualTrigger(), "daily interest accrual")

	c.OnAccrual(s, &batch)

	assert.True(t, d("-15.28456").Equal(batch.Net(engine.AddrAccruedPendingCap)))
	assert.True(t, d("15.28").Equal(batch.Net(engine.AddrPrincipal)))
	assert.True(t, d("15.28").Equal(batch.Net(engine.AddrCapitalisedInterest)))
	assert.True(t, d("15.28").Equal(batch.Net(engine.AddrCapitalisedThisPeriod)))
}

func TestCapitalisation_HoldsWhileBlocked(t *testing.T) {
	trigger := accrualTrigger()
	gate := engine.NewFlagGate(engine.FlagWindow{
		Gate: engine.GateDueCalculation,
		From: trigger.At.AddDate(0, 0, -5),
	})
	c := interest.NewCapitalisation(accrualConfig(), gate, nil)
	s := accrualSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrAccruedPendingCap: d("15.28456"),
	})
	batch := engine.NewBatch("acc-1", "GBP", trigger, "daily interest accrual")

	c.OnAccrual(s, &batch)

	assert.True(t, batch.IsEmpty())
}

func TestCapitalisation_PenaltiesFollowTheirOwnGate(t *testing.T) {
	c := interest.NewCapitalisation(accrualConfig(), nil, nil)
	s := accrualSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPenaltiesPendingCap: d("4.51002"),
	})
	batch := engine.NewBatch("acc-1", "GBP", accrualTrigger(), "daily interest accrual")

	c.OnAccrual(s, &batch)

	assert.True(t, d("-4.51002").Equal(batch.Net(engine.AddrPenaltiesPendingCap)))
	assert.True(t, d("4.51").Equal(batch.Net(engine.AddrPenalties)))
	assert.True(t, d("4.51").Equal(batch.Net(engine.AddrCapitalisedPenalties)))
}

// =============================================================================
// APPLICATION
// =============================================================================

func TestApplyAccrued_TransfersRoundedCarriesRemainder(t *testing.T) {
	// GIVEN: 7.64370 accrued over a month
	// WHEN: The due event applies it
	// THEN: 7.64 becomes interest due and the 0.00370 remainder stays on
	//       the accrual address for the next period

	s := accrualSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrAccruedInterest: d("7.64370"),
	})
	batch := engine.NewBatch("acc-1", "GBP", accrualTrigger(), "due amount calculation")

	applied := interest.ApplyAccrued(s, &batch)

	assert.True(t, d("7.64").Equal(applied))
	assert.True(t, d("-7.64").Equal(batch.Net(engine.AddrAccruedInterest)))
	assert.True(t, d("7.64").Equal(batch.Net(engine.AddrInterestDue)))
}

func TestApplyAccrued_SubCentBalanceCarriesForward(t *testing.T) {
	// A balance that rounds to zero posts nothing and accrues on.
	s := accrualSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrAccruedInterest: d("0.00370"),
	})
	batch := engine.NewBatch("acc-1", "GBP", accrualTrigger(), "due amount calculation")

	applied := interest.ApplyAccrued(s, &batch)

	assert.True(t, applied.IsZero())
	assert.True(t, batch.IsEmpty())
}

func TestApplyAccrued_NothingAccrued(t *testing.T) {
	s := accrualSnapshot(nil)
	batch := engine.NewBatch("acc-1", "GBP", accrualTrigger(), "due amount calculation")

	applied := interest.ApplyAccrued(s, &batch)

	assert.True(t, applied.IsZero())
	assert.True(t, batch.IsEmpty())
}
