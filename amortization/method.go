package amortization

import (
	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/engine"
)

// =============================================================================
// AMORTISATION METHODS - Closed variant set, dispatched by pattern match
// =============================================================================

// EMIFor dispatches the instalment computation over the configured method.
// elapsed is the current elapsed term, used by methods whose behavior changes
// across the loan's life (interest-only).
func EMIFor(cfg *engine.LoanConfig, principal, monthlyRate decimal.Decimal, remainingTerm, elapsed int) decimal.Decimal {
	switch cfg.Method {
	case engine.MethodNoRepayment:
		return decimal.Zero

	case engine.MethodInterestOnly:
		if elapsed < cfg.InterestOnlyTermMonths {
			return decimal.Zero
		}
		return CalculateEMI(principal, monthlyRate, remainingTerm, decimal.Zero)

	case engine.MethodFlatInterest, engine.MethodRuleOf78:
		return flatEMI(principal, monthlyRate, remainingTerm)

	case engine.MethodMinimumRepayment:
		return CalculateEMI(principal, monthlyRate, remainingTerm, cfg.BalloonAmount)

	default: // declining principal
		return CalculateEMI(principal, monthlyRate, remainingTerm, decimal.Zero)
	}
}

// OverridesFinalEvent reports whether the method handles the final due event
// itself instead of the default "all remaining principal becomes due" rule.
func OverridesFinalEvent(method engine.AmortisationMethod) bool {
	switch method {
	case engine.MethodNoRepayment, engine.MethodMinimumRepayment:
		return true
	default:
		return false
	}
}

// FinalPrincipalDue resolves the final-event principal for overriding methods.
func FinalPrincipalDue(cfg *engine.LoanConfig, remainingPrincipal, emiPrincipal decimal.Decimal) decimal.Decimal {
	switch cfg.Method {
	case engine.MethodNoRepayment:
		return decimal.Zero
	case engine.MethodMinimumRepayment:
		// The balloon plus the last scheduled principal component, capped at
		// what is actually outstanding.
		return engine.MinDecimal(remainingPrincipal, emiPrincipal.Add(cfg.BalloonAmount))
	default:
		return remainingPrincipal
	}
}

// flatEMI spreads principal evenly and charges the full flat interest per
// period: EMI = P/N + P*R.
func flatEMI(principal, monthlyRate decimal.Decimal, remainingTerm int) decimal.Decimal {
	if remainingTerm <= 0 {
		return principal
	}
	straightLine := principal.Div(decimal.NewFromInt(int64(remainingTerm)))
	return engine.RoundMoney(straightLine.Add(principal.Mul(monthlyRate)))
}

// Rule78InterestShare returns the interest weight for period k of an N-period
// rule-of-78 loan: (N-k+1) / (N(N+1)/2). k is 1-based.
func Rule78InterestShare(period, totalTerm int) decimal.Decimal {
	if totalTerm <= 0 || period < 1 || period > totalTerm {
		return decimal.Zero
	}
	sumOfDigits := decimal.NewFromInt(int64(totalTerm) * int64(totalTerm+1) / 2)
	return decimal.NewFromInt(int64(totalTerm - period + 1)).Div(sumOfDigits)
}
