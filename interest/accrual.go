package interest

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/lending-engine/engine"
)

// =============================================================================
// ACCRUAL ENGINE - Daily interest accrual, actual and expected tracks
// =============================================================================

// AccrualEngine computes the daily interest postings for one account.
//
// Two tracks run on every accrual trigger:
//
//	actual:   accrues on the actual outstanding principal; routed to the
//	          pending-capitalisation address while due-amount calculation
//	          is blocked (repayment holiday)
//	expected: accrues every unblocked day on the expected principal (actual
//	          + overpayment and EMI-excess trackers added back); compared
//	          against the actual track at the next due event to measure the
//	          overpayment-driven interest saving
type AccrualEngine struct {
	Config *engine.LoanConfig
	Rates  Resolver
	Gate   engine.PolicyGate
	Logger *zap.Logger
}

func NewAccrualEngine(cfg *engine.LoanConfig, rates Resolver, gate engine.PolicyGate, logger *zap.Logger) *AccrualEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = engine.OpenGate{}
	}
	return &AccrualEngine{Config: cfg, Rates: rates, Gate: gate, Logger: logger}
}

// DailyAccrual produces the accrual batch for one day. Emits nothing when the
// effective balance is zero or the computed amount rounds to zero.
func (e *AccrualEngine) DailyAccrual(snapshot engine.BalanceSnapshot, trigger engine.Trigger) (engine.PostingBatch, error) {
	batch := engine.NewBatch(snapshot.AccountID, snapshot.Denomination, trigger, "daily interest accrual")
	if err := snapshot.Validate(); err != nil {
		return batch, err
	}

	elapsed := snapshot.DueEventCount()
	dailyRate := e.Rates.DailyRate(trigger.At, elapsed)

	// Actual accrual on the actual outstanding principal.
	base := e.accrualBase(snapshot)
	if base.IsPositive() {
		accrued := engine.RoundAccrual(base.Mul(dailyRate))
		if !accrued.IsZero() {
			target := engine.AddrAccruedInterest
			if e.Gate.IsBlocked(engine.GateDueCalculation, trigger.At) {
				target = engine.AddrAccruedPendingCap
			}
			batch.Add(target, accrued, "daily interest accrual")
		}
	}

	// Expected accrual runs every unblocked day, not just once the bases
	// diverge. The due event compares it against the actual track, so both
	// must cover the same days or a mid-period overpayment understates the
	// expected side.
	expectedBase := e.expectedBase(snapshot)
	if expectedBase.IsPositive() && !e.Gate.IsBlocked(engine.GateDueCalculation, trigger.At) {
		expected := engine.RoundAccrual(expectedBase.Mul(dailyRate))
		if !expected.IsZero() {
			batch.Add(engine.AddrExpectedAccrued, expected, "expected interest accrual")
		}
	}

	return batch, nil
}

// accrualBase is the principal the actual track accrues on. Daily rest tracks
// the live principal; monthly rest keeps this month's due principal in the
// base so intra-month repayments do not change the accrual.
func (e *AccrualEngine) accrualBase(snapshot engine.BalanceSnapshot) decimal.Decimal {
	base := snapshot.Balance(engine.AddrPrincipal)
	if e.Config.AccrualRest == engine.RestMonthly {
		base = base.Add(snapshot.Balance(engine.AddrPrincipalDue))
	}
	return base
}

// expectedBase adds the (negative) overpayment and EMI-excess trackers back,
// reconstructing the principal as if no overpayment had happened.
func (e *AccrualEngine) expectedBase(snapshot engine.BalanceSnapshot) decimal.Decimal {
	base := snapshot.ExpectedPrincipal()
	if e.Config.AccrualRest == engine.RestMonthly {
		base = base.Add(snapshot.Balance(engine.AddrPrincipalDue))
	}
	return base
}
