package repayment

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/lending-engine/engine"
)

// =============================================================================
// OVERPAYMENT - Repayment in excess of everything currently owed
// =============================================================================

// applyOverpayment handles the portion of a payment above due + overdue +
// penalty + fee obligations.
//
//  1. The overpayment fee is deducted from the gross amount first.
//  2. The net amount reduces outstanding principal, up to what is
//     outstanding; the OVERPAYMENT and per-period trackers record it.
//  3. Any remainder once principal is zero settles unrealised accrued
//     interest ("apply then immediately repay"), so interest income is
//     still recognised.
//
// The reduce-term preference leaves the EMI alone: the shrunken effective
// principal shortens the back-solved term. The reduce-EMI preference is
// picked up by the re-amortisation condition at the next due event via the
// per-period tracker.
func (p *Processor) applyOverpayment(snapshot engine.BalanceSnapshot, batch *engine.PostingBatch, gross decimal.Decimal) {
	net := gross
	if p.Config.OverpaymentFeeRate.IsPositive() {
		fee := engine.RoundMoney(gross.Mul(p.Config.OverpaymentFeeRate))
		net = gross.Sub(fee)
		p.Logger.Info("overpayment fee charged",
			zap.String("account", snapshot.AccountID),
			zap.String("fee", fee.String()),
		)
	}

	principal := snapshot.Balance(engine.AddrPrincipal)
	applied := engine.MinDecimal(net, engine.MaxDecimal(decimal.Zero, principal))
	if applied.IsPositive() {
		batch.Add(engine.AddrPrincipal, applied.Neg(), "overpayment")
		batch.Add(engine.AddrOverpayment, applied.Neg(), "overpayment tracker")
		batch.Add(engine.AddrOverpaymentThisPeriod, applied.Neg(), "overpayment this period")
		batch.Add(engine.AddrAllowanceUsed, applied, "allowance usage")
	}

	// Principal exhausted: the rest settles unrealised accrued interest.
	remainder := net.Sub(applied)
	if remainder.IsPositive() {
		accrued := engine.MaxDecimal(decimal.Zero, snapshot.Balance(engine.AddrAccruedInterest))
		settled := engine.MinDecimal(remainder, accrued)
		batch.Add(engine.AddrAccruedInterest, settled.Neg(), "overpayment against accrued interest")
	}
}
