/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the ledger with realistic
	account histories for testing and demos. Each scenario opens a backdated
	account, replays its scheduled triggers day by day, and interleaves the
	payments that demonstrate a specific feature.

AVAILABLE SCENARIOS:

	term-loan:         Simple fixed-rate loan paid on time every month
	overpayment:       Overpayment with fee, term shortening
	repayment-holiday: Blocked due events, interest capitalised on resume
	missed-payment:    Overdue promotion, penalties, delinquency

HOW SCENARIOS WORK:
 1. Open a backdated account from a product constructor
 2. Walk a daily cursor from disbursement to now
 3. Catch up scheduled triggers through the trigger scheduler
 4. Apply the scenario's payments as their instants pass

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "overpayment"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios add accounts on top of whatever the ledger holds. Only use in
	development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - product/product.go: Product parameter sets
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/engine"
	"github.com/warp/lending-engine/interest"
	"github.com/warp/lending-engine/product"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "term-loan",
		Name:        "Term Loan",
		Description: "Fixed-rate declining-principal loan paid on time every month",
	},
	{
		ID:          "overpayment",
		Name:        "Overpayment",
		Description: "Overpayment with fee deduction and term shortening",
	},
	{
		ID:          "repayment-holiday",
		Name:        "Repayment Holiday",
		Description: "Blocked due events with interest capitalised when the holiday ends",
	},
	{
		ID:          "missed-payment",
		Name:        "Missed Payment",
		Description: "Overdue promotion, late fee, penalty accrual, delinquency",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			respondJSON(w, http.StatusOK, s)
			return
		}
	}
	respondJSON(w, http.StatusOK, nil)
}

// LoadScenario populates the ledger with one scenario's account history.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	ctx := r.Context()
	var err error
	switch req.ScenarioID {
	case "term-loan":
		err = h.loadTermLoanScenario(ctx)
	case "overpayment":
		err = h.loadOverpaymentScenario(ctx)
	case "repayment-holiday":
		err = h.loadRepaymentHolidayScenario(ctx)
	case "missed-payment":
		err = h.loadMissedPaymentScenario(ctx)
	default:
		respondError(w, http.StatusBadRequest, "unknown_scenario", "no scenario "+req.ScenarioID)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "scenario_failed", err.Error())
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()
	respondJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadTermLoanScenario: 3000 GBP over 12 months at 3.1%, opened four months
// ago, every instalment paid the day it falls due.
func (h *Handler) loadTermLoanScenario(ctx context.Context) error {
	openedAt := monthsAgo(4)
	cfg := product.TermLoan("GBP", decimal.NewFromInt(3000), 12, dec("0.031"))
	rt, err := h.openScenarioAccount(ctx, "demo-term-loan", "term_loan", cfg, openedAt)
	if err != nil {
		return err
	}
	return h.replay(ctx, rt, openedAt, time.Now().UTC(), h.payDueInFull, nil)
}

// loadOverpaymentScenario: same loan, with an extra 500 GBP paid on top of
// the second instalment.
func (h *Handler) loadOverpaymentScenario(ctx context.Context) error {
	openedAt := monthsAgo(4)
	cfg := product.TermLoan("GBP", decimal.NewFromInt(3000), 12, dec("0.031"))
	rt, err := h.openScenarioAccount(ctx, "demo-overpayment", "term_loan", cfg, openedAt)
	if err != nil {
		return err
	}

	extraAt := openedAt.AddDate(0, 2, 3)
	extra := func(c context.Context, r *Runtime, cursor time.Time) error {
		if !sameDay(cursor, extraAt) {
			return nil
		}
		_, err := r.ReceivePayment(c, h.Ledger, cursor, decimal.NewFromInt(500), "GBP")
		return err
	}
	return h.replay(ctx, rt, openedAt, time.Now().UTC(), h.payDueInFull, extra)
}

// loadRepaymentHolidayScenario: a one-month holiday in the second month;
// the blocked month's interest capitalises into principal when it ends.
func (h *Handler) loadRepaymentHolidayScenario(ctx context.Context) error {
	openedAt := monthsAgo(4)
	cfg := product.TermLoan("GBP", decimal.NewFromInt(3000), 12, dec("0.031"))
	rt, err := h.openScenarioAccount(ctx, "demo-holiday", "term_loan", cfg, openedAt)
	if err != nil {
		return err
	}

	holidayFrom := openedAt.AddDate(0, 1, 10)
	holidayTo := holidayFrom.AddDate(0, 1, 0)
	rt.Gate.Set(engine.GateDueCalculation, holidayFrom, holidayTo)
	rt.Gate.Set(engine.GateOverdueCheck, holidayFrom, holidayTo)
	rt.Gate.Set(engine.GateDelinquency, holidayFrom, holidayTo)

	return h.replay(ctx, rt, openedAt, time.Now().UTC(), h.payDueInFull, nil)
}

// loadMissedPaymentScenario: no payment ever arrives; dues promote to
// overdue, penalties accrue, and the account goes delinquent after grace.
func (h *Handler) loadMissedPaymentScenario(ctx context.Context) error {
	openedAt := monthsAgo(3)
	cfg := product.TermLoan("GBP", decimal.NewFromInt(3000), 12, dec("0.031"))
	rt, err := h.openScenarioAccount(ctx, "demo-missed-payment", "term_loan", cfg, openedAt)
	if err != nil {
		return err
	}
	return h.replay(ctx, rt, openedAt, time.Now().UTC(), nil, nil)
}

// =============================================================================
// SCENARIO PLUMBING
// =============================================================================

type scenarioStep func(ctx context.Context, rt *Runtime, cursor time.Time) error

// openScenarioAccount registers, disburses, and tracks a backdated account.
func (h *Handler) openScenarioAccount(ctx context.Context, id, productName string, cfg *engine.LoanConfig, openedAt time.Time) (*Runtime, error) {
	record := engine.AccountRecord{ID: id, Denomination: cfg.Denomination, CreatedAt: openedAt}
	rt, err := NewRuntime(record, cfg, interest.ConstantSeries{Rate: cfg.Rates.VariableTemplate}, engine.NewFlagGate(), h.Logger)
	if err != nil {
		return nil, err
	}
	if err := h.Registrar.RegisterAccount(ctx, record); err != nil {
		return nil, err
	}
	if _, err := rt.Disburse(ctx, h.Ledger); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.runtimes[id] = rt
	h.products[id] = productName
	h.mu.Unlock()
	return rt, nil
}

// replay walks a daily cursor from disbursement to now, catching up
// scheduled triggers and applying the scenario's payment behavior.
func (h *Handler) replay(ctx context.Context, rt *Runtime, from, to time.Time, steps ...scenarioStep) error {
	sched := NewTriggerScheduler(h, h.Ledger, h.Logger)
	for cursor := from.AddDate(0, 0, 1); !cursor.After(to); cursor = cursor.AddDate(0, 0, 1) {
		if err := sched.CatchUp(ctx, rt, cursor); err != nil {
			return fmt.Errorf("catch-up at %s: %w", cursor.Format(time.RFC3339), err)
		}
		for _, step := range steps {
			if step == nil {
				continue
			}
			if err := step(ctx, rt, cursor); err != nil {
				return fmt.Errorf("step at %s: %w", cursor.Format(time.RFC3339), err)
			}
		}
	}
	return nil
}

// payDueInFull settles the whole due balance on the day it appears.
func (h *Handler) payDueInFull(ctx context.Context, rt *Runtime, cursor time.Time) error {
	snapshot, err := h.Ledger.Snapshot(ctx, rt.Account.ID, cursor)
	if err != nil {
		return err
	}
	dueAmount := snapshot.TotalDue()
	if !dueAmount.IsPositive() {
		return nil
	}
	_, err = rt.ReceivePayment(ctx, h.Ledger, cursor, dueAmount, rt.Account.Denomination)
	return err
}

func monthsAgo(n int) time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 9, 0, 0, 0, time.UTC).AddDate(0, -n, 0)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
