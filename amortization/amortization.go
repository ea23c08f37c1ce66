/*
Package amortization computes equated instalments and term positions.

PURPOSE:
  Implements the EMI formula, the elapsed/remaining term calculation, the
  closed set of amortisation method variants, and the ordered vector of
  re-amortisation trigger conditions evaluated at each due calculation.

KEY FORMULA:
  For monthly rate R, remaining term N, principal P and lump sum L:

    EMI = (P - L/(1+R)^N) * R * (1+R)^N / ((1+R)^N - 1)

  rounded half-up to settlement precision. L is zero for pure declining
  principal and positive for balloon / minimum-repayment products.
*/
package amortization

import (
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/lending-engine/engine"
)

// =============================================================================
// EMI FORMULA
// =============================================================================

// CalculateEMI computes the equated instalment for the standard declining
// principal formula with an optional lump sum.
//
// Degenerate branches:
//   - remainingTerm <= 0: the whole principal is due
//   - zero rate: straight-line principal / term
func CalculateEMI(principal, monthlyRate decimal.Decimal, remainingTerm int, lumpSum decimal.Decimal) decimal.Decimal {
	if remainingTerm <= 0 {
		return principal
	}
	if principal.IsZero() {
		return decimal.Zero
	}
	if monthlyRate.IsZero() {
		return engine.RoundMoney(principal.Div(decimal.NewFromInt(int64(remainingTerm))))
	}

	compound := decimal.NewFromInt(1).Add(monthlyRate).Pow(decimal.NewFromInt(int64(remainingTerm)))
	adjusted := principal.Sub(lumpSum.Div(compound))
	emi := adjusted.Mul(monthlyRate).Mul(compound).Div(compound.Sub(decimal.NewFromInt(1)))
	return engine.RoundMoney(emi)
}

// =============================================================================
// TERM DETAILS
// =============================================================================

// TermDetails holds the account's position in its repayment timeline.
type TermDetails struct {
	Elapsed   int
	Remaining int
}

// Calculator derives term details from snapshots.
type Calculator struct {
	Config *engine.LoanConfig
	Logger *zap.Logger
}

func NewCalculator(cfg *engine.LoanConfig, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{Config: cfg, Logger: logger}
}

// Terms computes elapsed and remaining term at the snapshot instant.
//
// Elapsed is the due-calculation event counter: it only ever increases, and
// exactly once per due event. When useExpectedTerm is false the remaining
// term is back-solved from the current EMI and the outstanding principal,
// capped at the schedule-based remaining term: overpayments can shorten the
// term, never lengthen it.
func (c *Calculator) Terms(snapshot engine.BalanceSnapshot, monthlyRate decimal.Decimal, useExpectedTerm bool) TermDetails {
	// At the account-creation instant nothing has elapsed, unconditionally.
	if snapshot.AsOf.Equal(snapshot.CreatedAt) {
		return TermDetails{Elapsed: 0, Remaining: c.Config.TotalTermMonths}
	}

	elapsed := snapshot.DueEventCount()
	expected := c.Config.TotalTermMonths - elapsed
	if expected < 0 {
		expected = 0
	}
	if useExpectedTerm {
		return TermDetails{Elapsed: elapsed, Remaining: expected}
	}

	calculated := c.backSolve(snapshot.EffectivePrincipal(), snapshot.Balance(engine.AddrEMI), monthlyRate, expected)
	if calculated > expected {
		if calculated > expected+1 {
			// More than one period apart points at an upstream EMI/principal
			// inconsistency rather than final-period rounding.
			c.Logger.Warn("calculated remaining term exceeds expected remaining term",
				zap.String("account", snapshot.AccountID),
				zap.Int("calculated", calculated),
				zap.Int("expected", expected),
			)
		}
		calculated = expected
	}
	return TermDetails{Elapsed: elapsed, Remaining: calculated}
}

// backSolve inverts the EMI formula:
//
//	remaining = ceil(round(log(EMI / (EMI - P*R), 1+R)))
//
// with zero-EMI and zero-rate branches handled explicitly.
func (c *Calculator) backSolve(principal, emi, monthlyRate decimal.Decimal, expected int) int {
	if emi.IsZero() {
		return 0
	}
	if !principal.IsPositive() {
		return 0
	}
	if monthlyRate.IsZero() {
		n := principal.Div(emi)
		return int(n.Ceil().IntPart())
	}

	denominator := emi.Sub(principal.Mul(monthlyRate))
	if !denominator.IsPositive() {
		// EMI does not even cover a period's interest; the schedule term is
		// the only meaningful answer.
		return expected
	}

	ratio := emi.Div(denominator).InexactFloat64()
	base := decimal.NewFromInt(1).Add(monthlyRate).InexactFloat64()
	n := math.Log(ratio) / math.Log(base)
	return int(math.Ceil(round10(n)))
}

// round10 trims float noise before ceil so that e.g. 11.9999999 counts as 12.
func round10(f float64) float64 {
	return math.Round(f*1e10) / 1e10
}
