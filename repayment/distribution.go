/*
Package repayment applies incoming payments and tracks overpayments.

PURPOSE:
  Validates a proposed payment against the account's domain rules (all
  rejections happen before any posting is computed), applies it through the
  configured obligation hierarchy, classifies any excess as an overpayment,
  maintains the overpayment allowance window, and detects full closure.

PAYMENT FLOW:
  validate -> hierarchy application -> overpayment handling -> closure check

  A rejected payment produces no postings at all; the payer resubmits a
  corrected amount.
*/
package repayment

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/lending-engine/engine"
)

// Processor handles payment intake for one account.
type Processor struct {
	Config  *engine.LoanConfig
	Gate    engine.PolicyGate
	Logger  *zap.Logger
	closure *Closure
}

func NewProcessor(cfg *engine.LoanConfig, gate engine.PolicyGate, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = engine.OpenGate{}
	}
	return &Processor{
		Config:  cfg,
		Gate:    gate,
		Logger:  logger,
		closure: NewClosure(cfg, logger),
	}
}

// Process validates and applies one incoming payment.
func (p *Processor) Process(snapshot engine.BalanceSnapshot, trigger engine.Trigger, amount decimal.Decimal, denomination string) (engine.Result, error) {
	if err := p.validate(snapshot, trigger, amount, denomination); err != nil {
		return engine.Result{}, err
	}

	batch := engine.NewBatch(snapshot.AccountID, snapshot.Denomination, trigger, "repayment")

	// Hierarchy-ordered application across obligation buckets.
	remaining := amount
	for _, addr := range p.Config.RepaymentHierarchy {
		if !remaining.IsPositive() {
			break
		}
		owed := snapshot.Balance(addr)
		if !owed.IsPositive() {
			continue
		}
		paid := engine.MinDecimal(remaining, owed)
		batch.Add(addr, paid.Neg(), "repayment")
		remaining = remaining.Sub(paid)
	}

	// Anything beyond due+overdue+penalties+fees is an overpayment.
	if remaining.IsPositive() {
		p.applyOverpayment(snapshot, &batch, remaining)
	}

	result := engine.Result{Batch: batch}

	// Full-closure detection against the post-payment state.
	post := snapshot.Apply(batch)
	if engine.RoundMoney(post.TotalObligation()).IsZero() {
		p.closure.Close(post, &result, trigger)
	}

	return result, nil
}

// CloseOut winds down a settled account on an explicit closure request. The
// closing payment normally winds the account down inside its own batch; this
// path covers hosts that close accounts out of band, netting any residual
// trackers and emitting the closure notification. A nonzero obligation is a
// rejection.
func (p *Processor) CloseOut(snapshot engine.BalanceSnapshot, trigger engine.Trigger) (engine.Result, error) {
	if err := snapshot.Validate(); err != nil {
		return engine.Result{}, err
	}
	if outstanding := engine.RoundMoney(snapshot.TotalObligation()); !outstanding.IsZero() {
		return engine.Result{}, engine.NewRejection("obligation_outstanding", snapshot.AccountID,
			"cannot close account with "+outstanding.String()+" still owed",
			engine.ErrObligationOutstanding)
	}

	batch := engine.NewBatch(snapshot.AccountID, snapshot.Denomination, trigger, "account closure")
	result := engine.Result{Batch: batch}
	p.closure.Close(snapshot, &result, trigger)
	return result, nil
}

// validate performs every input rejection before any posting exists.
func (p *Processor) validate(snapshot engine.BalanceSnapshot, trigger engine.Trigger, amount decimal.Decimal, denomination string) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}
	if denomination != snapshot.Denomination {
		return engine.NewRejection("wrong_denomination", snapshot.AccountID,
			"payment denomination "+denomination+" does not match account "+snapshot.Denomination,
			engine.ErrWrongDenomination)
	}
	if !amount.IsPositive() {
		return engine.NewRejection("debit_not_permitted", snapshot.AccountID,
			"payment amount must be positive", engine.ErrDebitNotPermitted)
	}
	if p.Gate.IsBlocked(engine.GateRepayment, trigger.At) {
		return engine.NewRejection("repayment_blocked", snapshot.AccountID,
			"repayment processing is blocked on this account", engine.ErrRepaymentBlocked)
	}

	obligation := engine.RoundMoney(snapshot.TotalObligation())
	if amount.GreaterThan(obligation) {
		return engine.NewRejection("exceeds_obligation", snapshot.AccountID,
			"payment "+amount.String()+" exceeds total payoff obligation "+obligation.String(),
			engine.ErrExceedsObligation)
	}

	owed := p.totalOwed(snapshot)
	if amount.GreaterThan(owed) && !p.Config.OverpaymentAllowed {
		return engine.NewRejection("overpayment_not_allowed", snapshot.AccountID,
			"payment exceeds amounts owed and the product forbids overpayment",
			engine.ErrOverpaymentNotAllowed)
	}
	return nil
}

// totalOwed sums every bucket a payment can settle without being classified
// as an overpayment.
func (p *Processor) totalOwed(snapshot engine.BalanceSnapshot) decimal.Decimal {
	total := decimal.Zero
	for _, addr := range p.Config.RepaymentHierarchy {
		total = total.Add(engine.MaxDecimal(decimal.Zero, snapshot.Balance(addr)))
	}
	return total
}
