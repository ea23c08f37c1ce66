package interest

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/lending-engine/engine"
)

// =============================================================================
// CAPITALISATION - Pending interest folded into principal when blocking ends
// =============================================================================

// Capitalisation moves pending-capitalisation balances once their blocking
// flag is gone. It is driven by the accrual trigger: there is no explicit
// "flag removed" event, so every accrual run checks whether pending balances
// can now be capitalised.
type Capitalisation struct {
	Config *engine.LoanConfig
	Gate   engine.PolicyGate
	Logger *zap.Logger
}

func NewCapitalisation(cfg *engine.LoanConfig, gate engine.PolicyGate, logger *zap.Logger) *Capitalisation {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = engine.OpenGate{}
	}
	return &Capitalisation{Config: cfg, Gate: gate, Logger: logger}
}

// OnAccrual appends capitalisation postings to the accrual batch when a
// repayment holiday (or penalty block) has ended and pending balances exist.
//
// Interest pending capitalisation goes to PRINCIPAL; penalty interest pending
// capitalisation goes to PENALTIES. Both movements are recorded in running
// trackers, netted at account closure.
func (c *Capitalisation) OnAccrual(snapshot engine.BalanceSnapshot, batch *engine.PostingBatch) {
	if !c.Gate.IsBlocked(engine.GateDueCalculation, batch.EffectiveAt) {
		pending := engine.RoundMoney(snapshot.Balance(engine.AddrAccruedPendingCap))
		if pending.IsPositive() {
			c.Logger.Info("capitalising pending interest",
				zap.String("account", snapshot.AccountID),
				zap.String("amount", pending.String()),
			)
			batch.Add(engine.AddrAccruedPendingCap, snapshot.Balance(engine.AddrAccruedPendingCap).Neg(), "interest capitalisation")
			batch.Add(engine.AddrPrincipal, pending, "interest capitalisation")
			batch.Add(engine.AddrCapitalisedInterest, pending, "interest capitalisation tracker")
			batch.Add(engine.AddrCapitalisedThisPeriod, pending, "capitalised this period")
		}
	}

	if !c.Gate.IsBlocked(engine.GatePenaltyAccrual, batch.EffectiveAt) {
		pending := engine.RoundMoney(snapshot.Balance(engine.AddrPenaltiesPendingCap))
		if pending.IsPositive() {
			batch.Add(engine.AddrPenaltiesPendingCap, snapshot.Balance(engine.AddrPenaltiesPendingCap).Neg(), "penalty capitalisation")
			batch.Add(engine.AddrPenalties, pending, "penalty capitalisation")
			batch.Add(engine.AddrCapitalisedPenalties, pending, "penalty capitalisation tracker")
		}
	}
}

// =============================================================================
// APPLICATION - Accrued interest becomes a due obligation
// =============================================================================

// ApplyAccrued converts the accrued balance into this period's interest due.
// Only the customer-facing 2dp rounded amount transfers to INTEREST_DUE; the
// sub-cent remainder stays on ACCRUED_INTEREST and rolls into the next
// period, so applied totals net to the true accrued value over the account's
// life. When the balance rounds to zero nothing is posted and the whole
// amount carries forward.
func ApplyAccrued(snapshot engine.BalanceSnapshot, batch *engine.PostingBatch) decimal.Decimal {
	accrued := snapshot.Balance(engine.AddrAccruedInterest)
	rounded := engine.RoundMoney(accrued)
	if rounded.IsZero() {
		return decimal.Zero
	}
	batch.Transfer(engine.AddrAccruedInterest, engine.AddrInterestDue, rounded, "apply accrued interest")
	return rounded
}
