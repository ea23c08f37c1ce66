/*
Package product provides per-product loan configuration constructors.

These are the thin wiring layer between product catalogues and the
calculation engine: each function assembles a validated LoanConfig with the
policy switches a real product of that shape carries. Callers adjust
individual fields afterwards where a product variant differs.

USAGE:
  import "github.com/warp/lending-engine/product"

  cfg := product.TermLoan("GBP", decimal.NewFromInt(3000), 12, rate31)
  cfg.OverpaymentPreference = engine.OverpaymentReduceEMI
*/
package product

import (
	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/engine"
)

// TermLoan returns an unsecured fixed-rate declining-principal loan.
// Overpayments are allowed with a per-payment fee and shorten the term.
func TermLoan(denomination string, principal decimal.Decimal, termMonths int, annualRate decimal.Decimal) *engine.LoanConfig {
	return &engine.LoanConfig{
		Denomination:      denomination,
		OriginalPrincipal: principal,
		TotalTermMonths:   termMonths,
		Regime:            engine.RateFixed,
		Rates:             engine.RateSpec{FixedRate: annualRate},
		Method:            engine.MethodDecliningPrincipal,
		DayCount:          engine.DayCount365,
		AccrualRest:       engine.RestDaily,

		OverpaymentAllowed:    true,
		OverpaymentPreference: engine.OverpaymentReduceTerm,
		OverpaymentFeeRate:    decimal.RequireFromString("0.05"),

		HolidayPreference: engine.HolidayIncreaseEMI,

		PenaltyRate:      decimal.RequireFromString("0.24"),
		LateRepaymentFee: decimal.RequireFromString("15"),
		GracePeriodDays:  5,

		RepaymentHierarchy: engine.DefaultRepaymentHierarchy(),
	}
}

// Mortgage returns a variable-rate mortgage tracking a template rate, with a
// fee-free annual overpayment allowance and an early-repayment charge.
func Mortgage(denomination string, principal decimal.Decimal, termMonths int, templateRate, adjustment decimal.Decimal) *engine.LoanConfig {
	floor := decimal.Zero
	return &engine.LoanConfig{
		Denomination:      denomination,
		OriginalPrincipal: principal,
		TotalTermMonths:   termMonths,
		Regime:            engine.RateVariable,
		Rates: engine.RateSpec{
			VariableTemplate:   templateRate,
			VariableAdjustment: adjustment,
			Floor:              &floor,
		},
		Method:      engine.MethodDecliningPrincipal,
		DayCount:    engine.DayCountActual,
		AccrualRest: engine.RestDaily,

		OverpaymentAllowed:    true,
		OverpaymentPreference: engine.OverpaymentReduceTerm,

		AllowancePercentage: decimal.RequireFromString("0.10"),
		AllowanceFeeRate:    decimal.RequireFromString("0.01"),

		HolidayPreference: engine.HolidayIncreaseTerm,

		PenaltyRate:              decimal.RequireFromString("0.05"),
		PenaltyIncludesBaseRate:  true,
		PenaltyOnOverdueInterest: true,
		LateRepaymentFee:         decimal.RequireFromString("25"),
		GracePeriodDays:          15,

		EarlyRepaymentFeeRate: decimal.RequireFromString("0.02"),

		RepaymentHierarchy: engine.DefaultRepaymentHierarchy(),
	}
}

// FixedToVariableMortgage returns a mortgage fixed for an introductory term,
// then tracking the template rate.
func FixedToVariableMortgage(denomination string, principal decimal.Decimal, termMonths, fixedMonths int, fixedRate, templateRate, adjustment decimal.Decimal) *engine.LoanConfig {
	cfg := Mortgage(denomination, principal, termMonths, templateRate, adjustment)
	cfg.Regime = engine.RateFixedToVariable
	cfg.Rates.FixedRate = fixedRate
	cfg.Rates.FixedTermMonths = fixedMonths
	return cfg
}

// InterestOnlyMortgage returns a mortgage paying interest only for an
// introductory term before switching to declining principal.
func InterestOnlyMortgage(denomination string, principal decimal.Decimal, termMonths, interestOnlyMonths int, templateRate, adjustment decimal.Decimal) *engine.LoanConfig {
	cfg := Mortgage(denomination, principal, termMonths, templateRate, adjustment)
	cfg.Method = engine.MethodInterestOnly
	cfg.InterestOnlyTermMonths = interestOnlyMonths
	return cfg
}

// BalloonLoan returns a fixed-rate auto-style loan with a lump sum repaid at
// maturity alongside the final instalment.
func BalloonLoan(denomination string, principal decimal.Decimal, termMonths int, annualRate, balloon decimal.Decimal) *engine.LoanConfig {
	cfg := TermLoan(denomination, principal, termMonths, annualRate)
	cfg.Method = engine.MethodMinimumRepayment
	cfg.BalloonAmount = balloon
	return cfg
}

// FlatInterestLoan returns a loan charging flat interest on the original
// principal over the whole term.
func FlatInterestLoan(denomination string, principal decimal.Decimal, termMonths int, annualRate decimal.Decimal) *engine.LoanConfig {
	cfg := TermLoan(denomination, principal, termMonths, annualRate)
	cfg.Method = engine.MethodFlatInterest
	return cfg
}

// RuleOf78Loan returns a flat-interest loan allocating interest by the
// sum-of-digits schedule.
func RuleOf78Loan(denomination string, principal decimal.Decimal, termMonths int, annualRate decimal.Decimal) *engine.LoanConfig {
	cfg := TermLoan(denomination, principal, termMonths, annualRate)
	cfg.Method = engine.MethodRuleOf78
	return cfg
}

// BridgingLoan returns a no-scheduled-repayment facility: interest accrues
// and the whole balance is repaid in one payoff.
func BridgingLoan(denomination string, principal decimal.Decimal, annualRate decimal.Decimal) *engine.LoanConfig {
	cfg := TermLoan(denomination, principal, 1, annualRate)
	cfg.Method = engine.MethodNoRepayment
	cfg.OverpaymentFeeRate = decimal.Zero
	return cfg
}
