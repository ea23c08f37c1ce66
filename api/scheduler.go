/*
scheduler.go - Automated trigger scheduler

PURPOSE:
  Periodically computes which scheduled triggers each open account is owed
  (daily accrual, monthly due calculation, overdue check, delinquency
  check, allowance anniversary) and fires them through the account runtime.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Next-fire times derive from the ledger's last-execution records, so a
    restarted process catches up missed triggers in order
  - Directive-driven skip-until windows and schedule overrides are honored
  - Idempotency keys make double fires after a crash harmless

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewTriggerScheduler(handler, ledger, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - runtime.go: Fire dispatch and directive absorption
  - handlers.go: FireTrigger endpoint (manual triggers)
*/
package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/lending-engine/engine"
)

// maxCatchUp bounds how many missed triggers of one type are replayed per
// account per check, so a long-stopped process cannot stall a tick forever.
const maxCatchUp = 366

// TriggerScheduler fires scheduled triggers for every open account.
type TriggerScheduler struct {
	Handler       *Handler
	Ledger        engine.Ledger
	CheckInterval time.Duration
	Enabled       bool
	Logger        *zap.Logger

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewTriggerScheduler creates a new scheduler.
func NewTriggerScheduler(handler *Handler, ledger engine.Ledger, logger *zap.Logger) *TriggerScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriggerScheduler{
		Handler:       handler,
		Ledger:        ledger,
		CheckInterval: 1 * time.Minute,
		Enabled:       true,
		Logger:        logger,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ts *TriggerScheduler) Start() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.Enabled {
		ts.Logger.Info("scheduler disabled, not starting")
		return
	}

	ts.ticker = time.NewTicker(ts.CheckInterval)
	ts.wg.Add(1)

	go ts.run()

	ts.Logger.Info("scheduler started", zap.Duration("check_interval", ts.CheckInterval))
}

// Stop stops the scheduler.
func (ts *TriggerScheduler) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.ticker != nil {
		ts.ticker.Stop()
		close(ts.stop)
		ts.wg.Wait()
		ts.Logger.Info("scheduler stopped")
	}
}

func (ts *TriggerScheduler) run() {
	defer ts.wg.Done()

	// Run immediately on start
	ts.CheckAndFire(time.Now().UTC())

	for {
		select {
		case <-ts.ticker.C:
			ts.CheckAndFire(time.Now().UTC())
		case <-ts.stop:
			return
		}
	}
}

// CheckAndFire fires every trigger owed as of now, account by account.
// Exported so hosts and tests can drive the schedule with their own clock.
func (ts *TriggerScheduler) CheckAndFire(now time.Time) {
	ctx := context.Background()

	for _, rt := range ts.Handler.Runtimes() {
		if err := ts.CatchUp(ctx, rt, now); err != nil {
			ts.Logger.Error("catch-up failed",
				zap.String("account", rt.Account.ID), zap.Error(err))
		}
	}
}

// CatchUp fires every trigger one account is owed as of now, in order.
// The first failure stops the account's catch-up; the next tick retries.
func (ts *TriggerScheduler) CatchUp(ctx context.Context, rt *Runtime, now time.Time) error {
	triggers, err := ts.PendingTriggers(ctx, rt, now)
	if err != nil {
		return err
	}
	for _, trigger := range triggers {
		if _, err := rt.Fire(ctx, ts.Ledger, trigger); err != nil {
			return fmt.Errorf("%s at %s: %w", trigger.Type, trigger.At.Format(time.RFC3339), err)
		}
	}
	return nil
}

// PendingTriggers returns the triggers the account is owed as of now, in
// firing order.
func (ts *TriggerScheduler) PendingTriggers(ctx context.Context, rt *Runtime, now time.Time) ([]engine.Trigger, error) {
	var triggers []engine.Trigger

	accruals, err := ts.pendingAccruals(ctx, rt, now)
	if err != nil {
		return nil, err
	}
	dues, err := ts.pendingDueCalculations(ctx, rt, now)
	if err != nil {
		return nil, err
	}
	overdues, err := ts.pendingOverdueChecks(ctx, rt, now)
	if err != nil {
		return nil, err
	}
	delinquencies, err := ts.pendingDelinquencyChecks(ctx, rt, now)
	if err != nil {
		return nil, err
	}
	allowances, err := ts.pendingAllowanceChecks(ctx, rt, now)
	if err != nil {
		return nil, err
	}

	triggers = append(triggers, accruals...)
	triggers = append(triggers, dues...)
	triggers = append(triggers, overdues...)
	triggers = append(triggers, delinquencies...)
	triggers = append(triggers, allowances...)

	// Fire strictly in effective-time order so snapshots fold correctly.
	sortTriggers(triggers)
	return triggers, nil
}

// pendingAccruals owes one accrual per elapsed calendar day since the last
// accrual (or disbursement), at midnight UTC.
func (ts *TriggerScheduler) pendingAccruals(ctx context.Context, rt *Runtime, now time.Time) ([]engine.Trigger, error) {
	last, err := ts.Ledger.LastExecution(ctx, rt.Account.ID, engine.TriggerAccrual)
	if err != nil {
		return nil, err
	}
	if last.IsZero() {
		last = rt.Account.CreatedAt
	}

	var triggers []engine.Trigger
	next := midnightAfter(last)
	for !next.After(now) && len(triggers) < maxCatchUp {
		if !ts.skipped(rt, engine.TriggerAccrual, next) {
			triggers = append(triggers, engine.Trigger{Type: engine.TriggerAccrual, At: next})
		}
		next = next.AddDate(0, 0, 1)
	}
	return triggers, nil
}

// pendingDueCalculations owes one due event per due-schedule instant passed
// since the last due event (or disbursement).
func (ts *TriggerScheduler) pendingDueCalculations(ctx context.Context, rt *Runtime, now time.Time) ([]engine.Trigger, error) {
	last, err := ts.Ledger.LastExecution(ctx, rt.Account.ID, engine.TriggerDueCalculation)
	if err != nil {
		return nil, err
	}
	if last.IsZero() {
		last = rt.Account.CreatedAt
	}

	var triggers []engine.Trigger
	next := nextDueInstant(rt.Config, last)
	for !next.After(now) && len(triggers) < maxCatchUp {
		if !ts.skipped(rt, engine.TriggerDueCalculation, next) {
			triggers = append(triggers, engine.Trigger{Type: engine.TriggerDueCalculation, At: next})
		}
		next = nextDueInstant(rt.Config, next)
	}
	return triggers, nil
}

// pendingOverdueChecks owes one overdue check the day after each due event.
func (ts *TriggerScheduler) pendingOverdueChecks(ctx context.Context, rt *Runtime, now time.Time) ([]engine.Trigger, error) {
	lastDue, err := ts.Ledger.LastExecution(ctx, rt.Account.ID, engine.TriggerDueCalculation)
	if err != nil {
		return nil, err
	}
	if lastDue.IsZero() {
		return nil, nil
	}
	lastCheck, err := ts.Ledger.LastExecution(ctx, rt.Account.ID, engine.TriggerOverdueCheck)
	if err != nil {
		return nil, err
	}

	at := lastDue.AddDate(0, 0, 1)
	if at.After(now) || !lastCheck.Before(at) || ts.skipped(rt, engine.TriggerOverdueCheck, at) {
		return nil, nil
	}
	return []engine.Trigger{{Type: engine.TriggerOverdueCheck, At: at}}, nil
}

// pendingDelinquencyChecks fires the directive-armed check once its instant
// passes. The directive lives only in process memory, so a restarted process
// reconstructs the check instant from the ledger: a recorded overdue
// promotion with balances still overdue owes a check GracePeriodDays later.
func (ts *TriggerScheduler) pendingDelinquencyChecks(ctx context.Context, rt *Runtime, now time.Time) ([]engine.Trigger, error) {
	var at time.Time
	if until, armed := rt.skippedUntil(engine.TriggerDelinquencyCheck); armed {
		at = until.Add(time.Second)
	} else {
		rearmed, err := ts.rearmDelinquencyCheck(ctx, rt, now)
		if err != nil || rearmed.IsZero() {
			return nil, err
		}
		at = rearmed
	}
	if at.After(now) {
		return nil, nil
	}

	last, err := ts.Ledger.LastExecution(ctx, rt.Account.ID, engine.TriggerDelinquencyCheck)
	if err != nil {
		return nil, err
	}
	if !last.Before(at) {
		return nil, nil
	}
	return []engine.Trigger{{Type: engine.TriggerDelinquencyCheck, At: at}}, nil
}

// rearmDelinquencyCheck derives the check instant for the latest overdue
// episode from the ledger. Overdue checks only record a batch when something
// promotes, so a nonzero last execution marks a real episode; a zero grace
// period evaluated inline on that same batch and owes nothing here.
func (ts *TriggerScheduler) rearmDelinquencyCheck(ctx context.Context, rt *Runtime, now time.Time) (time.Time, error) {
	if rt.Config.GracePeriodDays == 0 {
		return time.Time{}, nil
	}
	lastOverdue, err := ts.Ledger.LastExecution(ctx, rt.Account.ID, engine.TriggerOverdueCheck)
	if err != nil || lastOverdue.IsZero() {
		return time.Time{}, err
	}
	snapshot, err := ts.Ledger.Snapshot(ctx, rt.Account.ID, now)
	if err != nil {
		return time.Time{}, err
	}
	if !snapshot.TotalOverdue().IsPositive() {
		return time.Time{}, nil
	}
	return lastOverdue.AddDate(0, 0, rt.Config.GracePeriodDays), nil
}

// pendingAllowanceChecks owes one check per account anniversary, for
// products carrying an allowance.
func (ts *TriggerScheduler) pendingAllowanceChecks(ctx context.Context, rt *Runtime, now time.Time) ([]engine.Trigger, error) {
	if rt.Config.AllowancePercentage.IsZero() {
		return nil, nil
	}
	last, err := ts.Ledger.LastExecution(ctx, rt.Account.ID, engine.TriggerAllowanceCheck)
	if err != nil {
		return nil, err
	}
	if last.IsZero() {
		last = rt.Account.CreatedAt
	}

	var triggers []engine.Trigger
	next := rt.Account.CreatedAt.AddDate(1, 0, 0)
	for !next.After(now) && len(triggers) < maxCatchUp {
		if next.After(last) {
			triggers = append(triggers, engine.Trigger{Type: engine.TriggerAllowanceCheck, At: next})
		}
		next = next.AddDate(1, 0, 0)
	}
	return triggers, nil
}

func (ts *TriggerScheduler) skipped(rt *Runtime, trigger engine.TriggerType, at time.Time) bool {
	until, ok := rt.skippedUntil(trigger)
	return ok && !at.After(until)
}

// =============================================================================
// SCHEDULE ARITHMETIC
// =============================================================================

func midnightAfter(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// nextDueInstant returns the first due-schedule instant strictly after t.
func nextDueInstant(cfg *engine.LoanConfig, t time.Time) time.Time {
	candidate := cfg.DueScheduleFor(t.UTC())
	if candidate.After(t) {
		return candidate
	}
	firstOfNext := time.Date(t.UTC().Year(), t.UTC().Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return cfg.DueScheduleFor(firstOfNext)
}

func sortTriggers(triggers []engine.Trigger) {
	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].At.Before(triggers[j].At)
	})
}
