/*
handlers.go - HTTP API handlers for the lending account harness

PURPOSE:
  Exposes the calculation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                   List open accounts
    POST   /api/accounts                   Open + disburse an account
    GET    /api/accounts/{id}              Account details
    GET    /api/accounts/{id}/balances     Balances as of now (or ?as_of=)
    GET    /api/accounts/{id}/batches      Applied batch history

  Operations:
    POST   /api/accounts/{id}/payments     Apply an incoming repayment
    POST   /api/accounts/{id}/triggers     Fire a named trigger
    POST   /api/accounts/{id}/holidays     Open a repayment-holiday window

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Ledger: batch application and snapshot reads
  - Registrar: account identity persistence
  - History: raw batch listing
  - runtimes: per-account component stacks, keyed by account ID

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (runtime, ledger)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Account not found
  - 409: Conflict (duplicate idempotency key)
  - 422: Domain rejection (wrong denomination, overpayment forbidden, ...)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - runtime.go: Per-account component composition
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/lending-engine/engine"
	"github.com/warp/lending-engine/interest"
	"github.com/warp/lending-engine/product"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Registrar persists account identity records.
type Registrar interface {
	RegisterAccount(ctx context.Context, record engine.AccountRecord) error
}

// History lists the applied batches of an account.
type History interface {
	Load(ctx context.Context, accountID string) ([]engine.PostingBatch, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    engine.Ledger
	Registrar Registrar
	History   History
	Logger    *zap.Logger

	mu              sync.RWMutex
	runtimes        map[string]*Runtime
	products        map[string]string // account ID -> product name
	currentScenario string
}

// NewHandler creates a handler with initialized dependencies.
func NewHandler(ledger engine.Ledger, registrar Registrar, history History, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Ledger:    ledger,
		Registrar: registrar,
		History:   history,
		Logger:    logger,
		runtimes:  make(map[string]*Runtime),
		products:  make(map[string]string),
	}
}

func (h *Handler) runtime(accountID string) (*Runtime, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rt, ok := h.runtimes[accountID]
	return rt, ok
}

// Runtimes returns the open account runtimes, for the scheduler.
func (h *Handler) Runtimes() []*Runtime {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Runtime, 0, len(h.runtimes))
	for _, rt := range h.runtimes {
		out = append(out, rt)
	}
	return out
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// OpenAccount creates, registers, and disburses a new account.
func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	cfg, series, err := configFor(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product", err.Error())
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	openedAt := time.Now().UTC()
	if req.OpenedAt != nil {
		openedAt = req.OpenedAt.UTC()
	}
	record := engine.AccountRecord{ID: id, Denomination: cfg.Denomination, CreatedAt: openedAt}

	rt, err := NewRuntime(record, cfg, series, engine.NewFlagGate(), h.Logger)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_config", err.Error())
		return
	}

	if err := h.Registrar.RegisterAccount(r.Context(), record); err != nil {
		respondError(w, http.StatusInternalServerError, "registration_failed", err.Error())
		return
	}
	result, err := rt.Disburse(r.Context(), h.Ledger)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "disbursement_failed", err.Error())
		return
	}

	h.mu.Lock()
	h.runtimes[id] = rt
	h.products[id] = req.Product
	h.mu.Unlock()

	h.Logger.Info("account opened",
		zap.String("account", id),
		zap.String("product", req.Product),
	)
	respondJSON(w, http.StatusCreated, toResultResponse(result))
}

// ListAccounts returns the open accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	accounts := make([]AccountDTO, 0, len(h.runtimes))
	for id, rt := range h.runtimes {
		accounts = append(accounts, AccountDTO{
			ID:           id,
			Denomination: rt.Account.Denomination,
			Product:      h.products[id],
			CreatedAt:    rt.Account.CreatedAt,
			TermMonths:   rt.Config.TotalTermMonths,
		})
	}
	h.mu.RUnlock()

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	respondJSON(w, http.StatusOK, accounts)
}

// GetAccount returns one account's identity.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rt, ok := h.runtime(id)
	if !ok {
		respondError(w, http.StatusNotFound, "account_not_found", "no account "+id)
		return
	}
	h.mu.RLock()
	productName := h.products[id]
	h.mu.RUnlock()
	respondJSON(w, http.StatusOK, AccountDTO{
		ID:           id,
		Denomination: rt.Account.Denomination,
		Product:      productName,
		CreatedAt:    rt.Account.CreatedAt,
		TermMonths:   rt.Config.TotalTermMonths,
	})
}

// GetBalances returns the account's balances as of now or ?as_of=RFC3339.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.runtime(id); !ok {
		respondError(w, http.StatusNotFound, "account_not_found", "no account "+id)
		return
	}

	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_as_of", err.Error())
			return
		}
		asOf = parsed
	}

	snapshot, err := h.Ledger.Snapshot(r.Context(), id, asOf)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "snapshot_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toBalancesResponse(snapshot))
}

// GetBatches returns the applied batch history for an account.
func (h *Handler) GetBatches(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.runtime(id); !ok {
		respondError(w, http.StatusNotFound, "account_not_found", "no account "+id)
		return
	}

	batches, err := h.History.Load(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_failed", err.Error())
		return
	}
	out := make([]BatchDTO, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchDTO(b))
	}
	respondJSON(w, http.StatusOK, out)
}

// =============================================================================
// OPERATION HANDLERS
// =============================================================================

// SubmitPayment applies one incoming repayment.
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rt, ok := h.runtime(id)
	if !ok {
		respondError(w, http.StatusNotFound, "account_not_found", "no account "+id)
		return
	}

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}
	at := time.Now().UTC()
	if req.At != nil {
		at = req.At.UTC()
	}

	result, err := rt.ReceivePayment(r.Context(), h.Ledger, at, amount, req.Denomination)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toResultResponse(result))
}

// FireTrigger fires a named scheduled trigger at an effective instant.
func (h *Handler) FireTrigger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rt, ok := h.runtime(id)
	if !ok {
		respondError(w, http.StatusNotFound, "account_not_found", "no account "+id)
		return
	}

	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	at := time.Now().UTC()
	if req.At != nil {
		at = req.At.UTC()
	}

	result, err := rt.Fire(r.Context(), h.Ledger, engine.Trigger{Type: engine.TriggerType(req.Type), At: at})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toResultResponse(result))
}

// OpenHoliday opens a repayment-holiday window: due-amount calculation,
// overdue checks, and delinquency checks are blocked for its duration.
func (h *Handler) OpenHoliday(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rt, ok := h.runtime(id)
	if !ok {
		respondError(w, http.StatusNotFound, "account_not_found", "no account "+id)
		return
	}

	var req HolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if !req.To.After(req.From) {
		respondError(w, http.StatusBadRequest, "invalid_window", "holiday window must end after it starts")
		return
	}

	rt.Gate.Set(engine.GateDueCalculation, req.From, req.To)
	rt.Gate.Set(engine.GateOverdueCheck, req.From, req.To)
	rt.Gate.Set(engine.GateDelinquency, req.From, req.To)

	h.Logger.Info("repayment holiday opened",
		zap.String("account", id),
		zap.Time("from", req.From),
		zap.Time("to", req.To),
	)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PRODUCT RESOLUTION
// =============================================================================

// configFor maps an open-account request onto a product constructor.
func configFor(req OpenAccountRequest) (*engine.LoanConfig, interest.RateSeries, error) {
	principal, err := decimal.NewFromString(req.Principal)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid principal: %w", err)
	}
	rate, err := decimal.NewFromString(req.AnnualRate)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid annual rate: %w", err)
	}
	adjustment := decimal.Zero
	if req.Adjustment != "" {
		if adjustment, err = decimal.NewFromString(req.Adjustment); err != nil {
			return nil, nil, fmt.Errorf("invalid adjustment: %w", err)
		}
	}

	series := interest.ConstantSeries{Rate: rate}
	switch req.Product {
	case "term_loan":
		return product.TermLoan(req.Denomination, principal, req.TermMonths, rate), series, nil
	case "mortgage":
		return product.Mortgage(req.Denomination, principal, req.TermMonths, rate, adjustment), series, nil
	case "fixed_to_variable_mortgage":
		fixedRate, err := decimal.NewFromString(req.FixedRate)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid fixed rate: %w", err)
		}
		return product.FixedToVariableMortgage(req.Denomination, principal, req.TermMonths,
			req.FixedTermMonths, fixedRate, rate, adjustment), series, nil
	case "interest_only_mortgage":
		return product.InterestOnlyMortgage(req.Denomination, principal, req.TermMonths,
			req.InterestOnlyMonths, rate, adjustment), series, nil
	case "balloon_loan":
		balloon, err := decimal.NewFromString(req.Balloon)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid balloon: %w", err)
		}
		return product.BalloonLoan(req.Denomination, principal, req.TermMonths, rate, balloon), series, nil
	case "flat_interest_loan":
		return product.FlatInterestLoan(req.Denomination, principal, req.TermMonths, rate), series, nil
	case "rule_of_78_loan":
		return product.RuleOf78Loan(req.Denomination, principal, req.TermMonths, rate), series, nil
	case "bridging_loan":
		return product.BridgingLoan(req.Denomination, principal, rate), series, nil
	default:
		return nil, nil, fmt.Errorf("unknown product %q", req.Product)
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// respondDomainError maps engine errors onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	var rejection *engine.RejectionError
	switch {
	case errors.As(err, &rejection):
		respondError(w, http.StatusUnprocessableEntity, rejection.Code, rejection.Message)
	case errors.Is(err, engine.ErrDuplicateIdempotencyKey):
		respondError(w, http.StatusConflict, "duplicate", err.Error())
	case errors.Is(err, engine.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "account_not_found", err.Error())
	case engine.IsFatal(err):
		respondError(w, http.StatusInternalServerError, "inconsistent_state", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
