package repayment

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/lending-engine/engine"
)

// =============================================================================
// OVERPAYMENT ALLOWANCE - Rolling one-year fee-free window
// =============================================================================

// Allowance manages the rolling 1-year overpayment allowance window anchored
// to the account-creation date (or the last reset).
type Allowance struct {
	Config *engine.LoanConfig
	Logger *zap.Logger
}

func NewAllowance(cfg *engine.LoanConfig, logger *zap.Logger) *Allowance {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allowance{Config: cfg, Logger: logger}
}

// AnniversaryCheck charges the over-allowance fee for the window that just
// ended and opens the next window: the allowance resets to the configured
// percentage of the principal at the window start, and usage resets to zero.
// The host fires this trigger exactly once per account anniversary.
func (a *Allowance) AnniversaryCheck(snapshot engine.BalanceSnapshot, trigger engine.Trigger) (engine.Result, error) {
	batch := engine.NewBatch(snapshot.AccountID, snapshot.Denomination, trigger, "overpayment allowance check")
	if err := snapshot.Validate(); err != nil {
		return engine.Result{}, err
	}

	if fee := a.FeeFor(snapshot); fee.IsPositive() {
		a.Logger.Info("overpayment allowance exceeded",
			zap.String("account", snapshot.AccountID),
			zap.String("fee", fee.String()),
		)
		batch.Add(engine.AddrFees, fee, "overpayment allowance fee")
	}

	// Open the next window.
	nextAllowance := engine.RoundMoney(snapshot.Balance(engine.AddrPrincipal).Mul(a.Config.AllowancePercentage))
	batch.Add(engine.AddrAllowance, nextAllowance.Sub(snapshot.Balance(engine.AddrAllowance)), "allowance reset")
	batch.Add(engine.AddrAllowanceUsed, snapshot.Balance(engine.AddrAllowanceUsed).Neg(), "allowance usage reset")

	return engine.Result{Batch: batch}, nil
}

// FeeFor computes the over-allowance fee for the current window state:
// fee_rate * max(0, used - allowance). Reused ad hoc at early full closure
// against the usage projected to the window end (the usage at closure).
func (a *Allowance) FeeFor(snapshot engine.BalanceSnapshot) decimal.Decimal {
	used := snapshot.Balance(engine.AddrAllowanceUsed)
	allowance := snapshot.Balance(engine.AddrAllowance)
	excess := engine.MaxDecimal(decimal.Zero, used.Sub(allowance))
	return engine.RoundMoney(excess.Mul(a.Config.AllowanceFeeRate))
}

// InitialWindow returns the allowance opening postings for a freshly
// disbursed account.
func (a *Allowance) InitialWindow(principal decimal.Decimal, batch *engine.PostingBatch) {
	if a.Config.AllowancePercentage.IsZero() {
		return
	}
	batch.Add(engine.AddrAllowance, engine.RoundMoney(principal.Mul(a.Config.AllowancePercentage)), "initial overpayment allowance")
}

// NextAnniversary returns the first window boundary after at.
func (a *Allowance) NextAnniversary(createdAt, at time.Time) time.Time {
	anniversary := createdAt.AddDate(1, 0, 0)
	for !anniversary.After(at) {
		anniversary = anniversary.AddDate(1, 0, 0)
	}
	return anniversary
}
