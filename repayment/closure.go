package repayment

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/lending-engine/engine"
)

// =============================================================================
// CLOSURE - Full payoff detection and account wind-down
// =============================================================================

// Closure finalises an account whose payoff obligation has reached zero.
//
// Wind-down order:
//  1. Charge the early-repayment fee when the account closes before its
//     scheduled maturity.
//  2. Charge the ad-hoc allowance fee for the current window (same formula
//     as the anniversary check, against usage at closure).
//  3. Net every residual tracker back to zero so the account carries no
//     bookkeeping state after the final batch.
//  4. Emit the closure notification for the host workflow system.
//
// Closure fees post to FEES inside the same batch; they are the account's
// final collectable and are carried in the notification details.
type Closure struct {
	Config    *engine.LoanConfig
	Logger    *zap.Logger
	allowance *Allowance
}

func NewClosure(cfg *engine.LoanConfig, logger *zap.Logger) *Closure {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Closure{Config: cfg, Logger: logger, allowance: NewAllowance(cfg, logger)}
}

// residualTrackers lists every address netted to zero at closure. Order is
// the posting order in the final batch.
var residualTrackers = []engine.Address{
	engine.AddrAccruedInterest,
	engine.AddrAccruedPendingCap,
	engine.AddrPenaltiesPendingCap,
	engine.AddrExpectedAccrued,
	engine.AddrEMI,
	engine.AddrOverpayment,
	engine.AddrOverpaymentThisPeriod,
	engine.AddrEMIPrincipalExcess,
	engine.AddrCapitalisedInterest,
	engine.AddrCapitalisedPenalties,
	engine.AddrCapitalisedThisPeriod,
	engine.AddrDueEventCount,
	engine.AddrAllowance,
	engine.AddrAllowanceUsed,
}

// Close appends the wind-down postings to the in-flight result and records
// the closure notification. post is the account state after the payment
// postings already in the batch.
func (c *Closure) Close(post engine.BalanceSnapshot, result *engine.Result, trigger engine.Trigger) {
	fees := decimal.Zero

	if early := c.earlyRepaymentFee(post, result); early.IsPositive() {
		result.Batch.Add(engine.AddrFees, early, "early repayment fee")
		fees = fees.Add(early)
	}
	if allowanceFee := c.allowance.FeeFor(post); allowanceFee.IsPositive() {
		result.Batch.Add(engine.AddrFees, allowanceFee, "overpayment allowance fee at closure")
		fees = fees.Add(allowanceFee)
	}

	for _, addr := range residualTrackers {
		if residual := post.Balance(addr); !residual.IsZero() {
			result.Batch.Add(addr, residual.Neg(), "closure tracker netting")
		}
	}

	c.Logger.Info("account closed",
		zap.String("account", post.AccountID),
		zap.String("closure_fees", fees.String()),
	)

	result.Notifications = append(result.Notifications, engine.Notification{
		ID:        uuid.NewString(),
		AccountID: post.AccountID,
		Type:      engine.NotifyClosure,
		At:        trigger.At,
		Details: map[string]string{
			"denomination": post.Denomination,
			"closure_fees": fees.StringFixed(engine.MoneyPrecision),
		},
	})
}

// earlyRepaymentFee charges on the principal retired by the closing payment
// when the account has scheduled periods left.
func (c *Closure) earlyRepaymentFee(post engine.BalanceSnapshot, result *engine.Result) decimal.Decimal {
	if !c.Config.EarlyRepaymentFeeRate.IsPositive() {
		return decimal.Zero
	}
	if post.DueEventCount() >= c.Config.TotalTermMonths {
		return decimal.Zero
	}
	retired := result.Batch.Net(engine.AddrPrincipal).Neg()
	if !retired.IsPositive() {
		return decimal.Zero
	}
	return engine.RoundMoney(retired.Mul(c.Config.EarlyRepaymentFeeRate))
}
