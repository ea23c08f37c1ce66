/*
Package overdue implements the Due -> Overdue -> Delinquent state machine.

STATES:
  Due        the normal post-due-calculation state; amounts sit at the
             PRINCIPAL_DUE / INTEREST_DUE addresses waiting for payment.
  Overdue    amounts unpaid at the overdue-check trigger, promoted to the
             _OVERDUE addresses; a late-repayment fee is charged and daily
             penalty accrual begins.
  Delinquent overdue amounts still unpaid after the grace period; the host
             is notified and the delinquency flag suppresses further checks
             until the next overdue event re-arms one.

Penalty accrual runs orthogonally: it applies while any overdue balance
exists regardless of whether delinquency has been declared.
*/
package overdue

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/lending-engine/engine"
)

// Checker promotes unpaid due amounts to overdue at the overdue-check trigger.
type Checker struct {
	Config *engine.LoanConfig
	Gate   engine.PolicyGate
	Logger *zap.Logger
}

func NewChecker(cfg *engine.LoanConfig, gate engine.PolicyGate, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = engine.OpenGate{}
	}
	return &Checker{Config: cfg, Gate: gate, Logger: logger}
}

// Run executes one overdue check. The check is a no-op while due-amount
// calculation is blocked (repayment holiday: nothing was asked of the
// customer, so nothing can be late) or while the overdue check itself is
// blocked by its own flag.
func (c *Checker) Run(snapshot engine.BalanceSnapshot, trigger engine.Trigger) (engine.Result, error) {
	if err := snapshot.Validate(); err != nil {
		return engine.Result{}, err
	}

	batch := engine.NewBatch(snapshot.AccountID, snapshot.Denomination, trigger, "overdue check")
	result := engine.Result{Batch: batch}

	if c.Gate.IsBlocked(engine.GateDueCalculation, trigger.At) ||
		c.Gate.IsBlocked(engine.GateOverdueCheck, trigger.At) {
		return result, nil
	}

	principalDue := snapshot.Balance(engine.AddrPrincipalDue)
	interestDue := snapshot.Balance(engine.AddrInterestDue)
	if !principalDue.IsPositive() && !interestDue.IsPositive() {
		return result, nil
	}

	if principalDue.IsPositive() {
		result.Batch.Transfer(engine.AddrPrincipalDue, engine.AddrPrincipalOverdue, principalDue, "unpaid principal to overdue")
	}
	if interestDue.IsPositive() {
		result.Batch.Transfer(engine.AddrInterestDue, engine.AddrInterestOverdue, interestDue, "unpaid interest to overdue")
	}
	if c.Config.LateRepaymentFee.IsPositive() {
		result.Batch.Add(engine.AddrFees, c.Config.LateRepaymentFee, "late repayment fee")
	}

	c.Logger.Info("account overdue",
		zap.String("account", snapshot.AccountID),
		zap.String("principal_overdue", principalDue.String()),
		zap.String("interest_overdue", interestDue.String()),
	)

	result.Notifications = append(result.Notifications, engine.Notification{
		ID:        uuid.NewString(),
		AccountID: snapshot.AccountID,
		Type:      engine.NotifyOverdue,
		At:        trigger.At,
		Details: map[string]string{
			"denomination":      snapshot.Denomination,
			"principal_overdue": principalDue.StringFixed(engine.MoneyPrecision),
			"interest_overdue":  interestDue.StringFixed(engine.MoneyPrecision),
			"late_fee":          c.Config.LateRepaymentFee.StringFixed(engine.MoneyPrecision),
		},
	})

	c.armDelinquency(snapshot, trigger, &result)
	return result, nil
}

// armDelinquency re-arms a delinquency evaluation for this overdue event.
// A zero grace period evaluates immediately on the same trigger; otherwise
// the host is asked to fire a delinquency check exactly GracePeriodDays
// later.
func (c *Checker) armDelinquency(snapshot engine.BalanceSnapshot, trigger engine.Trigger, result *engine.Result) {
	if c.Config.GracePeriodDays == 0 {
		// Evaluate against the post-promotion state so the balances just
		// moved overdue count as late.
		post := snapshot.Apply(result.Batch)
		inner := NewDelinquency(c.Config, c.Gate, c.Logger).evaluate(post, trigger)
		result.Notifications = append(result.Notifications, inner...)
		return
	}

	checkAt := trigger.At.AddDate(0, 0, c.Config.GracePeriodDays)
	day, hour, minute, second := checkAt.Day(), checkAt.Hour(), checkAt.Minute(), checkAt.Second()
	skipUntil := checkAt.Add(-time.Second)
	result.Directives = append(result.Directives, engine.ScheduleDirective{
		Trigger:   engine.TriggerDelinquencyCheck,
		Day:       &day,
		Hour:      &hour,
		Minute:    &minute,
		Second:    &second,
		SkipUntil: &skipUntil,
	})
}
