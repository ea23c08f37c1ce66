package overdue

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/lending-engine/engine"
	"github.com/warp/lending-engine/interest"
)

// =============================================================================
// PENALTY ACCRUAL - Daily penalty interest on overdue balances
// =============================================================================

// PenaltyAccrual charges daily penalty interest while overdue balances exist.
//
// The base is overdue principal, optionally compounding on overdue interest.
// The annual rate is the penalty rate, optionally stacked on top of the
// product's base rate. Accrual posts straight to PENALTIES, or to a pending
// capitalisation address when the product capitalises penalties or the
// penalty gate is blocked; the pending balance moves to PENALTIES at the
// next unblocked accrual (interest.Capitalisation handles the move).
type PenaltyAccrual struct {
	Config *engine.LoanConfig
	Rates  interest.Resolver
	Gate   engine.PolicyGate
	Logger *zap.Logger
}

func NewPenaltyAccrual(cfg *engine.LoanConfig, rates interest.Resolver, gate engine.PolicyGate, logger *zap.Logger) *PenaltyAccrual {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = engine.OpenGate{}
	}
	return &PenaltyAccrual{Config: cfg, Rates: rates, Gate: gate, Logger: logger}
}

// Accrue posts one day of penalty interest into the shared accrual batch.
func (p *PenaltyAccrual) Accrue(snapshot engine.BalanceSnapshot, trigger engine.Trigger, batch *engine.PostingBatch) {
	base := p.penaltyBase(snapshot)
	if !base.IsPositive() {
		return
	}

	dailyRate := p.dailyRate(trigger, snapshot.DueEventCount())
	accrued := engine.RoundAccrual(base.Mul(dailyRate))
	if accrued.IsZero() {
		return
	}

	target := engine.AddrPenalties
	if p.Config.PenaltyCapitalised || p.Gate.IsBlocked(engine.GatePenaltyAccrual, trigger.At) {
		target = engine.AddrPenaltiesPendingCap
	}
	batch.Add(target, accrued, "daily penalty interest")

	p.Logger.Debug("penalty accrued",
		zap.String("account", snapshot.AccountID),
		zap.String("amount", accrued.String()),
		zap.String("target", string(target)),
	)
}

// penaltyBase is overdue principal, plus overdue interest when the product
// compounds penalties on it.
func (p *PenaltyAccrual) penaltyBase(snapshot engine.BalanceSnapshot) decimal.Decimal {
	base := snapshot.Balance(engine.AddrPrincipalOverdue)
	if p.Config.PenaltyOnOverdueInterest {
		base = base.Add(snapshot.Balance(engine.AddrInterestOverdue))
	}
	return base
}

func (p *PenaltyAccrual) dailyRate(trigger engine.Trigger, elapsed int) decimal.Decimal {
	annual := p.Config.PenaltyRate
	if p.Config.PenaltyIncludesBaseRate {
		annual = annual.Add(p.Rates.AnnualRate(trigger.At, elapsed))
	}
	return p.Config.DayCount.DailyRate(annual, trigger.At)
}
