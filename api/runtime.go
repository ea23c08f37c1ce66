/*
runtime.go - Per-account composition of the calculation components

PURPOSE:
  One Runtime holds everything a single account needs at trigger time: its
  validated configuration, its policy gate, the resolved rate stack, and
  the calculation components built over them. Fire dispatches a trigger to
  the right component, applies the resulting batch through the ledger, and
  absorbs any schedule directives.

DISPATCH TABLE:
  accrual            daily interest + capitalisation check + penalty accrual
  due_calculation    monthly due-amount calculation
  overdue_check      due -> overdue promotion, late fee, delinquency arming
  delinquency_check  grace-period delinquency evaluation
  allowance_check    overpayment allowance anniversary
  closure            explicit wind-down of a settled account

  Payments arrive through ReceivePayment, not Fire: they carry an amount and
  a denomination on top of the trigger.

REPLAY SAFETY:
  Applying a batch whose idempotency key was already recorded is a no-op
  for balances; Fire surfaces it as a replayed result so hosts can retry
  triggers freely after partial failures.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/lending-engine/amortization"
	"github.com/warp/lending-engine/due"
	"github.com/warp/lending-engine/engine"
	"github.com/warp/lending-engine/interest"
	"github.com/warp/lending-engine/overdue"
	"github.com/warp/lending-engine/repayment"
)

// Runtime composes the calculation components for one account.
type Runtime struct {
	Account engine.AccountRecord
	Config  *engine.LoanConfig
	Gate    *engine.FlagGate

	rates          interest.Resolver
	accrual        *interest.AccrualEngine
	capitalisation *interest.Capitalisation
	dueCalc        *due.Calculator
	overdueCheck   *overdue.Checker
	penalties      *overdue.PenaltyAccrual
	delinquency    *overdue.Delinquency
	payments       *repayment.Processor
	allowance      *repayment.Allowance
	logger         *zap.Logger

	mu       sync.Mutex
	schedule scheduleState
}

// scheduleState tracks directive-driven overrides for the account's
// scheduled triggers.
type scheduleState struct {
	skipUntil map[engine.TriggerType]time.Time
	overrides map[engine.TriggerType]engine.ScheduleDirective
}

// NewRuntime builds the component stack for one account. The rate series
// supplies the external variable template over time; pass nil for fixed-rate
// products.
func NewRuntime(record engine.AccountRecord, cfg *engine.LoanConfig, series interest.RateSeries, gate *engine.FlagGate, logger *zap.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if gate == nil {
		gate = engine.NewFlagGate()
	}

	rates := interest.ResolverFor(cfg, series)
	return &Runtime{
		Account:        record,
		Config:         cfg,
		Gate:           gate,
		rates:          rates,
		accrual:        interest.NewAccrualEngine(cfg, rates, gate, logger),
		capitalisation: interest.NewCapitalisation(cfg, gate, logger),
		dueCalc:        due.NewCalculator(cfg, rates, gate, logger),
		overdueCheck:   overdue.NewChecker(cfg, gate, logger),
		penalties:      overdue.NewPenaltyAccrual(cfg, rates, gate, logger),
		delinquency:    overdue.NewDelinquency(cfg, gate, logger),
		payments:       repayment.NewProcessor(cfg, gate, logger),
		allowance:      repayment.NewAllowance(cfg, logger),
		logger:         logger,
		schedule: scheduleState{
			skipUntil: make(map[engine.TriggerType]time.Time),
			overrides: make(map[engine.TriggerType]engine.ScheduleDirective),
		},
	}, nil
}

// Disburse produces the account activation batch: the principal draw-down,
// the opening EMI, and the initial overpayment allowance window.
func (r *Runtime) Disburse(ctx context.Context, ledger engine.Ledger) (engine.Result, error) {
	trigger := engine.Trigger{Type: engine.TriggerParameterChange, At: r.Account.CreatedAt}
	batch := engine.NewBatch(r.Account.ID, r.Account.Denomination, trigger, "disbursement")

	principal := r.Config.OriginalPrincipal
	if !principal.IsPositive() {
		return engine.Result{}, fmt.Errorf("%w: disbursement principal must be positive", engine.ErrInvalidConfig)
	}
	batch.Add(engine.AddrPrincipal, principal, "principal disbursement")

	monthlyRate := r.rates.MonthlyRate(r.Account.CreatedAt, 0)
	emi := amortization.EMIFor(r.Config, principal, monthlyRate, r.Config.TotalTermMonths, 0)
	batch.Add(engine.AddrEMI, emi, "opening instalment")

	r.allowance.InitialWindow(principal, &batch)

	result := engine.Result{Batch: batch}
	return result, r.apply(ctx, ledger, &result)
}

// Fire runs one scheduled trigger against the account's state as of the
// trigger instant.
func (r *Runtime) Fire(ctx context.Context, ledger engine.Ledger, trigger engine.Trigger) (engine.Result, error) {
	snapshot, err := ledger.Snapshot(ctx, r.Account.ID, trigger.At)
	if err != nil {
		return engine.Result{}, err
	}

	var result engine.Result
	switch trigger.Type {
	case engine.TriggerAccrual:
		result, err = r.runAccrual(snapshot, trigger)
	case engine.TriggerDueCalculation:
		result, err = r.runDueCalculation(ctx, ledger, snapshot, trigger)
	case engine.TriggerOverdueCheck:
		result, err = r.overdueCheck.Run(snapshot, trigger)
	case engine.TriggerDelinquencyCheck:
		result, err = r.delinquency.Run(snapshot, trigger)
	case engine.TriggerAllowanceCheck:
		result, err = r.allowance.AnniversaryCheck(snapshot, trigger)
	case engine.TriggerClosure:
		result, err = r.payments.CloseOut(snapshot, trigger)
	default:
		return engine.Result{}, fmt.Errorf("unsupported trigger type %q", trigger.Type)
	}
	if err != nil {
		return engine.Result{}, err
	}

	return result, r.apply(ctx, ledger, &result)
}

// ReceivePayment validates and applies one incoming payment.
func (r *Runtime) ReceivePayment(ctx context.Context, ledger engine.Ledger, at time.Time, amount decimal.Decimal, denomination string) (engine.Result, error) {
	trigger := engine.Trigger{Type: engine.TriggerPayment, At: at}
	snapshot, err := ledger.Snapshot(ctx, r.Account.ID, at)
	if err != nil {
		return engine.Result{}, err
	}

	result, err := r.payments.Process(snapshot, trigger, amount, denomination)
	if err != nil {
		return engine.Result{}, err
	}
	return result, r.apply(ctx, ledger, &result)
}

// runAccrual layers the accrual-driven routines into one batch: the daily
// interest postings, any pending capitalisation whose blocking ended, and
// penalty accrual on overdue balances.
func (r *Runtime) runAccrual(snapshot engine.BalanceSnapshot, trigger engine.Trigger) (engine.Result, error) {
	batch, err := r.accrual.DailyAccrual(snapshot, trigger)
	if err != nil {
		return engine.Result{}, err
	}
	r.capitalisation.OnAccrual(snapshot, &batch)
	r.penalties.Accrue(snapshot, trigger, &batch)
	return engine.Result{Batch: batch}, nil
}

// runDueCalculation resolves the period start from the previous due event
// (or disbursement for the first period).
func (r *Runtime) runDueCalculation(ctx context.Context, ledger engine.Ledger, snapshot engine.BalanceSnapshot, trigger engine.Trigger) (engine.Result, error) {
	periodStart, err := ledger.LastExecution(ctx, r.Account.ID, engine.TriggerDueCalculation)
	if err != nil {
		return engine.Result{}, err
	}
	if periodStart.IsZero() {
		periodStart = r.Account.CreatedAt
	}
	return r.dueCalc.Run(snapshot, trigger, periodStart)
}

// apply records the batch and absorbs schedule directives. A replayed
// idempotency key leaves balances untouched and is not an error.
func (r *Runtime) apply(ctx context.Context, ledger engine.Ledger, result *engine.Result) error {
	r.absorbDirectives(result.Directives)

	if result.Batch.IsEmpty() {
		return nil
	}
	err := ledger.Apply(ctx, result.Batch)
	if errors.Is(err, engine.ErrDuplicateIdempotencyKey) {
		r.logger.Debug("trigger replayed",
			zap.String("account", r.Account.ID),
			zap.String("key", result.Batch.IdempotencyKey),
		)
		result.Batch.Postings = nil
		return nil
	}
	return err
}

func (r *Runtime) absorbDirectives(directives []engine.ScheduleDirective) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range directives {
		if d.SkipUntil != nil {
			r.schedule.skipUntil[d.Trigger] = *d.SkipUntil
		}
		r.schedule.overrides[d.Trigger] = d
	}
}

// skippedUntil reports the directive-driven skip boundary for a trigger.
func (r *Runtime) skippedUntil(trigger engine.TriggerType) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.schedule.skipUntil[trigger]
	return until, ok
}

// override returns the directive-driven schedule override for a trigger.
func (r *Runtime) override(trigger engine.TriggerType) (engine.ScheduleDirective, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.schedule.overrides[trigger]
	return d, ok
}
