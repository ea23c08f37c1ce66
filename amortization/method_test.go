package amortization_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/lending-engine/amortization"
	"github.com/warp/lending-engine/engine"
)

// =============================================================================
// METHOD DISPATCH
// =============================================================================

func TestEMIFor_NoRepayment(t *testing.T) {
	cfg := termLoanConfig(12)
	cfg.Method = engine.MethodNoRepayment

	emi := amortization.EMIFor(cfg, d("3000"), monthlyRate31, 12, 0)

	assert.True(t, emi.IsZero())
}

func TestEMIFor_InterestOnlyBeforeBoundary(t *testing.T) {
	// GIVEN: A 24-month loan with a 12-month interest-only term
	// WHEN: Computing the instalment during the interest-only window
	// THEN: No principal instalment is scheduled

	cfg := termLoanConfig(24)
	cfg.Method = engine.MethodInterestOnly
	cfg.InterestOnlyTermMonths = 12

	emi := amortization.EMIFor(cfg, d("3000"), monthlyRate31, 24, 5)

	assert.True(t, emi.IsZero())
}

func TestEMIFor_InterestOnlyAfterBoundary(t *testing.T) {
	// GIVEN: The interest-only term has elapsed
	// WHEN: Computing the instalment for the 12 remaining months
	// THEN: The standard formula amortises the full principal

	cfg := termLoanConfig(24)
	cfg.Method = engine.MethodInterestOnly
	cfg.InterestOnlyTermMonths = 12

	emi := amortization.EMIFor(cfg, d("3000"), monthlyRate31, 12, 12)

	assert.True(t, d("254.22").Equal(emi), "got %s", emi)
}

func TestEMIFor_FlatInterest(t *testing.T) {
	// GIVEN: Flat interest charges the full rate on the original principal
	// WHEN: Computing the instalment
	// THEN: P/N + P*R, here 250.00 + 7.75

	cfg := termLoanConfig(12)
	cfg.Method = engine.MethodFlatInterest

	emi := amortization.EMIFor(cfg, d("3000"), monthlyRate31, 12, 0)

	assert.True(t, d("257.75").Equal(emi), "got %s", emi)
}

func TestEMIFor_FlatInterestNonPositiveTerm(t *testing.T) {
	cfg := termLoanConfig(12)
	cfg.Method = engine.MethodFlatInterest

	emi := amortization.EMIFor(cfg, d("3000"), monthlyRate31, 0, 12)

	assert.True(t, d("3000").Equal(emi))
}

func TestEMIFor_MinimumRepaymentUsesBalloon(t *testing.T) {
	cfg := termLoanConfig(36)
	cfg.Method = engine.MethodMinimumRepayment
	cfg.BalloonAmount = d("50000")

	emi := amortization.EMIFor(cfg, d("100000"), monthlyRate31, 36, 0)

	assert.True(t, d("1585.43").Equal(emi), "got %s", emi)
}

func TestEMIFor_RuleOf78SharesFlatInstalment(t *testing.T) {
	cfg := termLoanConfig(12)
	cfg.Method = engine.MethodRuleOf78

	ruleEMI := amortization.EMIFor(cfg, d("3000"), monthlyRate31, 12, 0)

	assert.True(t, d("257.75").Equal(ruleEMI), "got %s", ruleEMI)
}

// =============================================================================
// FINAL-EVENT OVERRIDES
// =============================================================================

func TestOverridesFinalEvent(t *testing.T) {
	assert.True(t, amortization.OverridesFinalEvent(engine.MethodNoRepayment))
	assert.True(t, amortization.OverridesFinalEvent(engine.MethodMinimumRepayment))
	assert.False(t, amortization.OverridesFinalEvent(engine.MethodDecliningPrincipal))
	assert.False(t, amortization.OverridesFinalEvent(engine.MethodInterestOnly))
	assert.False(t, amortization.OverridesFinalEvent(engine.MethodRuleOf78))
}

func TestFinalPrincipalDue_NoRepayment(t *testing.T) {
	cfg := termLoanConfig(12)
	cfg.Method = engine.MethodNoRepayment

	due := amortization.FinalPrincipalDue(cfg, d("3000"), d("250"))

	assert.True(t, due.IsZero())
}

func TestFinalPrincipalDue_BalloonCappedAtOutstanding(t *testing.T) {
	// GIVEN: Overpayments left less outstanding than balloon + instalment
	// WHEN: Resolving the final principal due
	// THEN: Only the outstanding amount is collected

	cfg := termLoanConfig(36)
	cfg.Method = engine.MethodMinimumRepayment
	cfg.BalloonAmount = d("50000")

	due := amortization.FinalPrincipalDue(cfg, d("48000"), d("1400"))

	assert.True(t, d("48000").Equal(due))
}

func TestFinalPrincipalDue_BalloonPlusInstalment(t *testing.T) {
	cfg := termLoanConfig(36)
	cfg.Method = engine.MethodMinimumRepayment
	cfg.BalloonAmount = d("50000")

	due := amortization.FinalPrincipalDue(cfg, d("60000"), d("1400"))

	assert.True(t, d("51400").Equal(due))
}

// =============================================================================
// RULE-OF-78 INTEREST SHARES
// =============================================================================

func TestRule78InterestShare_FirstPeriodCarriesHeaviestWeight(t *testing.T) {
	share := amortization.Rule78InterestShare(1, 12)

	expected := decimal.NewFromInt(12).Div(decimal.NewFromInt(78))
	assert.True(t, expected.Equal(share), "got %s", share)
}

func TestRule78InterestShare_SharesSumToOne(t *testing.T) {
	total := decimal.Zero
	for k := 1; k <= 12; k++ {
		total = total.Add(amortization.Rule78InterestShare(k, 12))
	}
	assert.True(t, total.Sub(decimal.NewFromInt(1)).Abs().LessThan(d("0.0000001")), "got %s", total)
}

func TestRule78InterestShare_OutOfRange(t *testing.T) {
	assert.True(t, amortization.Rule78InterestShare(0, 12).IsZero())
	assert.True(t, amortization.Rule78InterestShare(13, 12).IsZero())
	assert.True(t, amortization.Rule78InterestShare(1, 0).IsZero())
}

// =============================================================================
// RE-AMORTISATION CONDITIONS
// =============================================================================

func conditionEval(cfg *engine.LoanConfig, balances map[engine.Address]decimal.Decimal, elapsed int, rateChanged bool) amortization.Evaluation {
	return amortization.Evaluation{
		Config:      cfg,
		Snapshot:    snapshotAt(balances, elapsed),
		Elapsed:     elapsed,
		RateChanged: rateChanged,
	}
}

func TestConditions_RateChange(t *testing.T) {
	cfg := termLoanConfig(12)
	eval := conditionEval(cfg, nil, 3, true)

	triggered, name := amortization.AnyTriggered(amortization.DefaultConditions(), eval)

	assert.True(t, triggered)
	assert.Equal(t, "rate_change", name)
}

func TestConditions_HolidayEndedRequiresIncreaseEMI(t *testing.T) {
	// GIVEN: Interest was capitalised this period
	// WHEN: The product stretches the term instead of raising the EMI
	// THEN: No re-amortisation fires

	balances := map[engine.Address]decimal.Decimal{
		engine.AddrCapitalisedThisPeriod: d("15.28"),
	}

	cfg := termLoanConfig(12)
	cfg.HolidayPreference = engine.HolidayIncreaseEMI
	triggered, name := amortization.AnyTriggered(amortization.DefaultConditions(), conditionEval(cfg, balances, 4, false))
	assert.True(t, triggered)
	assert.Equal(t, "repayment_holiday_ended", name)

	cfg.HolidayPreference = engine.HolidayIncreaseTerm
	triggered, _ = amortization.AnyTriggered(amortization.DefaultConditions(), conditionEval(cfg, balances, 4, false))
	assert.False(t, triggered)
}

func TestConditions_OverpaymentRequiresReduceEMI(t *testing.T) {
	balances := map[engine.Address]decimal.Decimal{
		engine.AddrOverpaymentThisPeriod: d("500"),
	}

	cfg := termLoanConfig(12)
	cfg.OverpaymentPreference = engine.OverpaymentReduceEMI
	triggered, name := amortization.AnyTriggered(amortization.DefaultConditions(), conditionEval(cfg, balances, 2, false))
	assert.True(t, triggered)
	assert.Equal(t, "overpayment", name)

	cfg.OverpaymentPreference = engine.OverpaymentReduceTerm
	triggered, _ = amortization.AnyTriggered(amortization.DefaultConditions(), conditionEval(cfg, balances, 2, false))
	assert.False(t, triggered)
}

func TestConditions_InterestOnlyBoundary(t *testing.T) {
	cfg := termLoanConfig(24)
	cfg.Method = engine.MethodInterestOnly
	cfg.InterestOnlyTermMonths = 12

	triggered, name := amortization.AnyTriggered(amortization.DefaultConditions(), conditionEval(cfg, nil, 12, false))
	assert.True(t, triggered)
	assert.Equal(t, "interest_only_term_end", name)

	triggered, _ = amortization.AnyTriggered(amortization.DefaultConditions(), conditionEval(cfg, nil, 11, false))
	assert.False(t, triggered)
}

func TestConditions_NoneTriggered(t *testing.T) {
	triggered, name := amortization.AnyTriggered(amortization.DefaultConditions(), conditionEval(termLoanConfig(12), nil, 3, false))

	assert.False(t, triggered)
	assert.Empty(t, name)
}
