package overdue_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/engine"
	"github.com/warp/lending-engine/interest"
	"github.com/warp/lending-engine/overdue"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var checkAt = time.Date(2025, time.March, 1, 0, 0, 2, 0, time.UTC)

func overdueConfig() *engine.LoanConfig {
	cfg := &engine.LoanConfig{
		Denomination:      "GBP",
		OriginalPrincipal: d("3000"),
		TotalTermMonths:   12,
		Regime:            engine.RateFixed,
		Rates:             engine.RateSpec{FixedRate: d("0.031")},
		Method:            engine.MethodDecliningPrincipal,
		DayCount:          engine.DayCount365,
		PenaltyRate:       d("0.24"),
		LateRepaymentFee:  d("15"),
		GracePeriodDays:   5,
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

func overdueSnapshot(balances map[engine.Address]decimal.Decimal) engine.BalanceSnapshot {
	created := time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC)
	return engine.NewSnapshot("acc-1", "GBP", checkAt, created, balances)
}

func overdueTrigger(typ engine.TriggerType) engine.Trigger {
	return engine.Trigger{Type: typ, At: checkAt}
}

// =============================================================================
// OVERDUE CHECK
// =============================================================================

func TestChecker_PromotesUnpaidDueAmounts(t *testing.T) {
	// GIVEN: 246.58 principal due and 7.64 interest due left unpaid
	// WHEN: The overdue check fires
	// THEN: Both promote to their overdue addresses, a 15.00 late fee posts,
	//       and the overdue notification carries the amounts

	c := overdue.NewChecker(overdueConfig(), nil, nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:    d("2753.42"),
		engine.AddrPrincipalDue: d("246.58"),
		engine.AddrInterestDue:  d("7.64"),
	})

	result, err := c.Run(s, overdueTrigger(engine.TriggerOverdueCheck))

	require.NoError(t, err)
	batch := result.Batch
	assert.True(t, d("-246.58").Equal(batch.Net(engine.AddrPrincipalDue)))
	assert.True(t, d("246.58").Equal(batch.Net(engine.AddrPrincipalOverdue)))
	assert.True(t, d("-7.64").Equal(batch.Net(engine.AddrInterestDue)))
	assert.True(t, d("7.64").Equal(batch.Net(engine.AddrInterestOverdue)))
	assert.True(t, d("15").Equal(batch.Net(engine.AddrFees)))

	require.Len(t, result.Notifications, 1)
	note := result.Notifications[0]
	assert.Equal(t, engine.NotifyOverdue, note.Type)
	assert.Equal(t, "246.58", note.Details["principal_overdue"])
	assert.Equal(t, "7.64", note.Details["interest_overdue"])
	assert.Equal(t, "15.00", note.Details["late_fee"])
}

func TestChecker_NothingDueIsQuiet(t *testing.T) {
	c := overdue.NewChecker(overdueConfig(), nil, nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal: d("2753.42"),
	})

	result, err := c.Run(s, overdueTrigger(engine.TriggerOverdueCheck))

	require.NoError(t, err)
	assert.True(t, result.Batch.IsEmpty())
	assert.Empty(t, result.Notifications)
	assert.Empty(t, result.Directives)
}

func TestChecker_NoOpDuringRepaymentHoliday(t *testing.T) {
	// GIVEN: The due-calculation gate is blocked at the check instant
	// WHEN: The overdue check fires with amounts still at the due addresses
	// THEN: Nothing promotes; nothing was asked, so nothing is late

	gate := engine.NewFlagGate(engine.FlagWindow{
		Gate: engine.GateDueCalculation,
		From: checkAt.AddDate(0, 0, -10),
		To:   checkAt.AddDate(0, 0, 10),
	})
	c := overdue.NewChecker(overdueConfig(), gate, nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:    d("2753.42"),
		engine.AddrPrincipalDue: d("246.58"),
	})

	result, err := c.Run(s, overdueTrigger(engine.TriggerOverdueCheck))

	require.NoError(t, err)
	assert.True(t, result.Batch.IsEmpty())
	assert.Empty(t, result.Notifications)
}

func TestChecker_NoOpWhileOverdueCheckBlocked(t *testing.T) {
	// GIVEN: Only the overdue-check gate is blocked; due calculation runs
	// WHEN: The overdue check fires with amounts at the due addresses
	// THEN: Nothing promotes and no late fee posts

	gate := engine.NewFlagGate(engine.FlagWindow{
		Gate: engine.GateOverdueCheck,
		From: checkAt.AddDate(0, 0, -10),
		To:   checkAt.AddDate(0, 0, 10),
	})
	c := overdue.NewChecker(overdueConfig(), gate, nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:    d("2753.42"),
		engine.AddrPrincipalDue: d("246.58"),
	})

	result, err := c.Run(s, overdueTrigger(engine.TriggerOverdueCheck))

	require.NoError(t, err)
	assert.True(t, result.Batch.IsEmpty())
	assert.Empty(t, result.Notifications)
	assert.Empty(t, result.Directives)
}

func TestChecker_GracePeriodArmsDelinquencyCheck(t *testing.T) {
	// GIVEN: A five-day grace period
	// WHEN: The overdue check promotes amounts
	// THEN: A delinquency check is scheduled five days out, skipping until
	//       just before the check instant

	c := overdue.NewChecker(overdueConfig(), nil, nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:    d("2753.42"),
		engine.AddrPrincipalDue: d("246.58"),
	})

	result, err := c.Run(s, overdueTrigger(engine.TriggerOverdueCheck))

	require.NoError(t, err)
	require.Len(t, result.Directives, 1)
	directive := result.Directives[0]
	assert.Equal(t, engine.TriggerDelinquencyCheck, directive.Trigger)

	wantAt := checkAt.AddDate(0, 0, 5)
	require.NotNil(t, directive.Day)
	assert.Equal(t, wantAt.Day(), *directive.Day)
	require.NotNil(t, directive.SkipUntil)
	assert.Equal(t, wantAt.Add(-time.Second), *directive.SkipUntil)
}

func TestChecker_ZeroGraceDeclaresDelinquencyImmediately(t *testing.T) {
	// GIVEN: No grace period at all
	// WHEN: The overdue check promotes amounts
	// THEN: The delinquency notification rides the same result, evaluated
	//       against the post-promotion balances

	cfg := overdueConfig()
	cfg.GracePeriodDays = 0
	c := overdue.NewChecker(cfg, nil, nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:    d("2753.42"),
		engine.AddrPrincipalDue: d("246.58"),
	})

	result, err := c.Run(s, overdueTrigger(engine.TriggerOverdueCheck))

	require.NoError(t, err)
	require.Len(t, result.Notifications, 2)
	assert.Equal(t, engine.NotifyOverdue, result.Notifications[0].Type)
	assert.Equal(t, engine.NotifyDelinquent, result.Notifications[1].Type)
	assert.Empty(t, result.Directives)
}

// =============================================================================
// PENALTY ACCRUAL
// =============================================================================

func penaltyAccrual(cfg *engine.LoanConfig, gate engine.PolicyGate) *overdue.PenaltyAccrual {
	return overdue.NewPenaltyAccrual(cfg, interest.ResolverFor(cfg, nil), gate, nil)
}

func TestPenaltyAccrual_DailyCharge(t *testing.T) {
	// GIVEN: 246.58 overdue principal at 24% penalty, 365-day convention
	// WHEN: One accrual day passes
	// THEN: 0.16213 posts to PENALTIES

	p := penaltyAccrual(overdueConfig(), nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:        d("2753.42"),
		engine.AddrPrincipalOverdue: d("246.58"),
	})
	batch := engine.NewBatch("acc-1", "GBP", overdueTrigger(engine.TriggerAccrual), "daily interest accrual")

	p.Accrue(s, overdueTrigger(engine.TriggerAccrual), &batch)

	assert.True(t, d("0.16213").Equal(batch.Net(engine.AddrPenalties)), "got %s", batch.Net(engine.AddrPenalties))
	assert.True(t, batch.Net(engine.AddrPenaltiesPendingCap).IsZero())
}

func TestPenaltyAccrual_BaseRateStackingAndInterestCompounding(t *testing.T) {
	// GIVEN: Penalty stacks on the 3.1% base rate and compounds on overdue interest
	// WHEN: One accrual day passes
	// THEN: (246.58 + 7.64) * (0.271/365) = 0.18875

	cfg := overdueConfig()
	cfg.PenaltyIncludesBaseRate = true
	cfg.PenaltyOnOverdueInterest = true
	p := penaltyAccrual(cfg, nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:        d("2753.42"),
		engine.AddrPrincipalOverdue: d("246.58"),
		engine.AddrInterestOverdue:  d("7.64"),
	})
	batch := engine.NewBatch("acc-1", "GBP", overdueTrigger(engine.TriggerAccrual), "daily interest accrual")

	p.Accrue(s, overdueTrigger(engine.TriggerAccrual), &batch)

	assert.True(t, d("0.18875").Equal(batch.Net(engine.AddrPenalties)), "got %s", batch.Net(engine.AddrPenalties))
}

func TestPenaltyAccrual_CapitalisedProductRoutesToPending(t *testing.T) {
	cfg := overdueConfig()
	cfg.PenaltyCapitalised = true
	p := penaltyAccrual(cfg, nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:        d("2753.42"),
		engine.AddrPrincipalOverdue: d("246.58"),
	})
	batch := engine.NewBatch("acc-1", "GBP", overdueTrigger(engine.TriggerAccrual), "daily interest accrual")

	p.Accrue(s, overdueTrigger(engine.TriggerAccrual), &batch)

	assert.True(t, batch.Net(engine.AddrPenalties).IsZero())
	assert.True(t, d("0.16213").Equal(batch.Net(engine.AddrPenaltiesPendingCap)))
}

func TestPenaltyAccrual_BlockedGateRoutesToPending(t *testing.T) {
	gate := engine.NewFlagGate(engine.FlagWindow{
		Gate: engine.GatePenaltyAccrual,
		From: checkAt.AddDate(0, 0, -1),
	})
	p := penaltyAccrual(overdueConfig(), gate)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:        d("2753.42"),
		engine.AddrPrincipalOverdue: d("246.58"),
	})
	batch := engine.NewBatch("acc-1", "GBP", overdueTrigger(engine.TriggerAccrual), "daily interest accrual")

	p.Accrue(s, overdueTrigger(engine.TriggerAccrual), &batch)

	assert.True(t, d("0.16213").Equal(batch.Net(engine.AddrPenaltiesPendingCap)))
}

func TestPenaltyAccrual_NoOverdueBalanceMeansNoCharge(t *testing.T) {
	p := penaltyAccrual(overdueConfig(), nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal: d("2753.42"),
	})
	batch := engine.NewBatch("acc-1", "GBP", overdueTrigger(engine.TriggerAccrual), "daily interest accrual")

	p.Accrue(s, overdueTrigger(engine.TriggerAccrual), &batch)

	assert.True(t, batch.IsEmpty())
}

// =============================================================================
// DELINQUENCY
// =============================================================================

func TestDelinquency_DeclaresWhenLateBalanceRemains(t *testing.T) {
	del := overdue.NewDelinquency(overdueConfig(), nil, nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:        d("2753.42"),
		engine.AddrPrincipalOverdue: d("246.58"),
		engine.AddrInterestOverdue:  d("7.64"),
		engine.AddrPenalties:        d("0.81"),
	})

	result, err := del.Run(s, overdueTrigger(engine.TriggerDelinquencyCheck))

	require.NoError(t, err)
	require.Len(t, result.Notifications, 1)
	note := result.Notifications[0]
	assert.Equal(t, engine.NotifyDelinquent, note.Type)
	assert.Equal(t, "255.03", note.Details["late_balance"])
}

func TestDelinquency_QuietWhenCaughtUp(t *testing.T) {
	// GIVEN: The customer paid everything inside the grace period
	// WHEN: The scheduled delinquency check fires
	// THEN: No notification

	del := overdue.NewDelinquency(overdueConfig(), nil, nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal: d("2753.42"),
	})

	result, err := del.Run(s, overdueTrigger(engine.TriggerDelinquencyCheck))

	require.NoError(t, err)
	assert.Empty(t, result.Notifications)
}

func TestDelinquency_SuppressedByFlag(t *testing.T) {
	// GIVEN: Delinquency already declared for this episode
	// WHEN: Another periodic check fires
	// THEN: The flag suppresses a duplicate notification

	gate := engine.NewFlagGate(engine.FlagWindow{
		Gate: engine.GateDelinquencyFlag,
		From: checkAt.AddDate(0, 0, -1),
	})
	del := overdue.NewDelinquency(overdueConfig(), gate, nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:        d("2753.42"),
		engine.AddrPrincipalOverdue: d("246.58"),
	})

	result, err := del.Run(s, overdueTrigger(engine.TriggerDelinquencyCheck))

	require.NoError(t, err)
	assert.Empty(t, result.Notifications)
}

func TestDelinquency_SuppressedWhileBlocked(t *testing.T) {
	gate := engine.NewFlagGate(engine.FlagWindow{
		Gate: engine.GateDelinquency,
		From: checkAt.AddDate(0, 0, -1),
	})
	del := overdue.NewDelinquency(overdueConfig(), gate, nil)
	s := overdueSnapshot(map[engine.Address]decimal.Decimal{
		engine.AddrPrincipal:        d("2753.42"),
		engine.AddrPrincipalOverdue: d("246.58"),
	})

	result, err := del.Run(s, overdueTrigger(engine.TriggerDelinquencyCheck))

	require.NoError(t, err)
	assert.Empty(t, result.Notifications)
}
