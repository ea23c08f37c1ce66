/*
Package due converts accrued interest and the EMI into due obligations.

PURPOSE:
  Implements the monthly due-amount calculation state machine:

    1. If due-amount calculation is blocked (repayment holiday), only the
       elapsed-term counter moves.
    2. Otherwise the ordered re-amortisation conditions are evaluated; any
       triggered condition recomputes the EMI from the outstanding principal
       and the resolved rate.
    3. Accrued interest is applied to obtain this period's interest due.
    4. Principal due = min(EMI - interest portion, remaining principal),
       with the final period collecting all remaining principal unless the
       amortisation method overrides the final event.
    5. Period-scoped trackers reset for the next cycle.
*/
package due

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/lending-engine/amortization"
	"github.com/warp/lending-engine/engine"
	"github.com/warp/lending-engine/interest"
)

// Calculator runs the due-amount calculation for one account.
type Calculator struct {
	Config     *engine.LoanConfig
	Rates      interest.Resolver
	Gate       engine.PolicyGate
	Terms      *amortization.Calculator
	Conditions []amortization.Condition
	Logger     *zap.Logger
}

func NewCalculator(cfg *engine.LoanConfig, rates interest.Resolver, gate engine.PolicyGate, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = engine.OpenGate{}
	}
	return &Calculator{
		Config:     cfg,
		Rates:      rates,
		Gate:       gate,
		Terms:      amortization.NewCalculator(cfg, logger),
		Conditions: amortization.DefaultConditions(),
		Logger:     logger,
	}
}

// Run executes the due-amount calculation. periodStart is the effective time
// of the previous due event (or disbursement for the first period), supplied
// by the host from the trigger's last-execution record.
func (c *Calculator) Run(snapshot engine.BalanceSnapshot, trigger engine.Trigger, periodStart time.Time) (engine.Result, error) {
	batch := engine.NewBatch(snapshot.AccountID, snapshot.Denomination, trigger, "due amount calculation")
	if err := snapshot.Validate(); err != nil {
		return engine.Result{}, err
	}

	one := decimal.NewFromInt(1)

	// Step 1: a blocked period only advances the elapsed-term counter.
	if c.Gate.IsBlocked(engine.GateDueCalculation, trigger.At) {
		batch.Add(engine.AddrDueEventCount, one, "elapsed term (due calculation blocked)")
		return engine.Result{Batch: batch}, nil
	}

	elapsed := snapshot.DueEventCount()
	monthlyRate := c.Rates.MonthlyRate(trigger.At, elapsed)

	// Step 2: re-amortisation. The EMI of the previous period was computed
	// with the resolver one event earlier, hence elapsed-1 at period start.
	rateChanged := c.Rates.ChangedOver(periodStart, trigger.At, elapsed-1, elapsed)
	triggered, reason := amortization.AnyTriggered(c.Conditions, amortization.Evaluation{
		Config:      c.Config,
		Snapshot:    snapshot,
		Elapsed:     elapsed,
		RateChanged: rateChanged,
	})

	emi := snapshot.Balance(engine.AddrEMI)
	if triggered {
		useExpected := c.Config.OverpaymentPreference == engine.OverpaymentReduceEMI
		terms := c.Terms.Terms(snapshot, monthlyRate, useExpected)
		newEMI := amortization.EMIFor(c.Config, snapshot.EffectivePrincipal(), monthlyRate, terms.Remaining, elapsed)
		c.Logger.Info("re-amortising",
			zap.String("account", snapshot.AccountID),
			zap.String("condition", reason),
			zap.String("emi", newEMI.String()),
		)
		batch.Add(engine.AddrEMI, newEMI.Sub(emi), "re-amortisation: "+reason)
		emi = newEMI
	}

	// Step 3: apply accrued interest.
	interestDue := c.applyInterest(snapshot, &batch, monthlyRate, elapsed)

	// Step 4: principal due.
	principalDue := c.principalDue(snapshot, monthlyRate, emi, interestDue)
	batch.Transfer(engine.AddrPrincipal, engine.AddrPrincipalDue, principalDue, "principal due")

	// Overpayment-driven interest saving becomes extra principal in the EMI;
	// record it so term back-solving sees the faster repayment.
	c.trackEMIPrincipalExcess(snapshot, &batch)

	// Step 5: reset period-scoped trackers and count the event.
	c.resetPeriodTrackers(snapshot, &batch)
	batch.Add(engine.AddrDueEventCount, one, "elapsed term")

	return engine.Result{Batch: batch}, nil
}

// applyInterest converts accrued interest into interest due. Rule-of-78
// products allocate origination interest by the sum-of-digits weight instead
// of the accrual balance; the accrued address is still cleared against it.
func (c *Calculator) applyInterest(snapshot engine.BalanceSnapshot, batch *engine.PostingBatch, monthlyRate decimal.Decimal, elapsed int) decimal.Decimal {
	if c.Config.Method != engine.MethodRuleOf78 {
		return interest.ApplyAccrued(snapshot, batch)
	}

	totalTerm := c.Config.TotalTermMonths
	totalInterest := c.Config.OriginalPrincipal.Mul(monthlyRate).Mul(decimal.NewFromInt(int64(totalTerm)))
	share := amortization.Rule78InterestShare(elapsed+1, totalTerm)
	allocated := engine.RoundMoney(totalInterest.Mul(share))

	accrued := snapshot.Balance(engine.AddrAccruedInterest)
	batch.Add(engine.AddrAccruedInterest, accrued.Neg(), "apply accrued interest")
	batch.Add(engine.AddrInterestDue, allocated, "interest due (rule of 78)")
	return allocated
}

func (c *Calculator) principalDue(snapshot engine.BalanceSnapshot, monthlyRate, emi, interestDue decimal.Decimal) decimal.Decimal {
	principal := snapshot.Balance(engine.AddrPrincipal)
	if !principal.IsPositive() {
		return decimal.Zero
	}
	if emi.IsZero() && !amortization.OverridesFinalEvent(c.Config.Method) {
		// Degenerate or interest-only period: no principal moves.
		return decimal.Zero
	}

	emiPrincipal := engine.MaxDecimal(decimal.Zero, emi.Sub(interestDue))

	terms := c.Terms.Terms(snapshot, monthlyRate, false)
	if terms.Remaining <= 1 {
		if amortization.OverridesFinalEvent(c.Config.Method) {
			return amortization.FinalPrincipalDue(c.Config, principal, emiPrincipal)
		}
		// Final period collects everything regardless of EMI.
		return principal
	}
	return engine.MinDecimal(emiPrincipal, principal)
}

// trackEMIPrincipalExcess compares the expected-interest tracker (accrual as
// if no overpayment had happened) with the period's actual accrual. The
// difference is EMI principal attributable to overpayment savings.
func (c *Calculator) trackEMIPrincipalExcess(snapshot engine.BalanceSnapshot, batch *engine.PostingBatch) {
	expected := snapshot.Balance(engine.AddrExpectedAccrued)
	if expected.IsZero() {
		return
	}
	actual := snapshot.Balance(engine.AddrAccruedInterest)
	excess := engine.RoundMoney(expected.Sub(actual))
	if excess.IsPositive() {
		batch.Add(engine.AddrEMIPrincipalExcess, excess.Neg(), "overpayment interest saving")
	}
}

func (c *Calculator) resetPeriodTrackers(snapshot engine.BalanceSnapshot, batch *engine.PostingBatch) {
	for _, addr := range []engine.Address{
		engine.AddrExpectedAccrued,
		engine.AddrOverpaymentThisPeriod,
		engine.AddrCapitalisedThisPeriod,
	} {
		if balance := snapshot.Balance(addr); !balance.IsZero() {
			batch.Add(addr, balance.Neg(), "period tracker reset")
		}
	}
}
