/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Amounts travel
  as decimal strings end to end; nothing at this layer does arithmetic.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/lending-engine/engine"
)

// =============================================================================
// REQUESTS
// =============================================================================

// OpenAccountRequest creates and disburses a new account from a product.
type OpenAccountRequest struct {
	ID           string `json:"id,omitempty"`
	Product      string `json:"product"`
	Denomination string `json:"denomination"`
	Principal    string `json:"principal"`
	TermMonths   int    `json:"term_months"`

	// AnnualRate is the fixed rate, or the variable template rate for
	// tracking products.
	AnnualRate string `json:"annual_rate"`
	Adjustment string `json:"adjustment,omitempty"`

	// FixedTermMonths and FixedRate apply to the fixed-to-variable product.
	FixedTermMonths int    `json:"fixed_term_months,omitempty"`
	FixedRate       string `json:"fixed_rate,omitempty"`

	// Balloon applies to the balloon product; InterestOnlyMonths to the
	// interest-only product.
	Balloon            string `json:"balloon,omitempty"`
	InterestOnlyMonths int    `json:"interest_only_months,omitempty"`

	OpenedAt *time.Time `json:"opened_at,omitempty"`
}

// PaymentRequest applies an incoming repayment.
type PaymentRequest struct {
	Amount       string     `json:"amount"`
	Denomination string     `json:"denomination"`
	At           *time.Time `json:"at,omitempty"`
}

// TriggerRequest fires a named scheduled trigger at an effective instant.
type TriggerRequest struct {
	Type string     `json:"type"`
	At   *time.Time `json:"at,omitempty"`
}

// HolidayRequest opens a repayment-holiday window on the account.
type HolidayRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// AccountDTO describes one account's identity.
type AccountDTO struct {
	ID           string    `json:"id"`
	Denomination string    `json:"denomination"`
	Product      string    `json:"product"`
	CreatedAt    time.Time `json:"created_at"`
	TermMonths   int       `json:"term_months"`
}

// BalancesResponse reports the account's balances as of an instant.
type BalancesResponse struct {
	AccountID string            `json:"account_id"`
	AsOf      time.Time         `json:"as_of"`
	Balances  map[string]string `json:"balances"`

	TotalDue        string `json:"total_due"`
	TotalOverdue    string `json:"total_overdue"`
	TotalObligation string `json:"total_obligation"`
}

// PostingDTO is one signed address delta.
type PostingDTO struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Reason  string `json:"reason,omitempty"`
}

// BatchDTO is one applied atomic batch.
type BatchDTO struct {
	ID          string       `json:"id"`
	EventType   string       `json:"event_type"`
	Description string       `json:"description,omitempty"`
	EffectiveAt time.Time    `json:"effective_at"`
	Postings    []PostingDTO `json:"postings"`
}

// NotificationDTO is one account notification emitted by a trigger run.
type NotificationDTO struct {
	Type    string            `json:"type"`
	At      time.Time         `json:"at"`
	Details map[string]string `json:"details,omitempty"`
}

// ResultResponse reports the outcome of one engine invocation.
type ResultResponse struct {
	Batch         BatchDTO          `json:"batch"`
	Notifications []NotificationDTO `json:"notifications,omitempty"`
}

// ErrorResponse carries a machine-readable rejection code and message.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScenarioDTO describes one loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects which scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// MAPPING
// =============================================================================

func toBatchDTO(batch engine.PostingBatch) BatchDTO {
	dto := BatchDTO{
		ID:          batch.ID,
		EventType:   string(batch.EventType),
		Description: batch.Description,
		EffectiveAt: batch.EffectiveAt,
	}
	for _, p := range batch.Postings {
		dto.Postings = append(dto.Postings, PostingDTO{
			Address: string(p.Address),
			Amount:  p.Amount.String(),
			Reason:  p.Reason,
		})
	}
	return dto
}

func toResultResponse(result engine.Result) ResultResponse {
	resp := ResultResponse{Batch: toBatchDTO(result.Batch)}
	for _, n := range result.Notifications {
		resp.Notifications = append(resp.Notifications, NotificationDTO{
			Type:    string(n.Type),
			At:      n.At,
			Details: n.Details,
		})
	}
	return resp
}

func toBalancesResponse(snapshot engine.BalanceSnapshot) BalancesResponse {
	resp := BalancesResponse{
		AccountID:       snapshot.AccountID,
		AsOf:            snapshot.AsOf,
		Balances:        make(map[string]string),
		TotalDue:        snapshot.TotalDue().StringFixed(engine.MoneyPrecision),
		TotalOverdue:    snapshot.TotalOverdue().StringFixed(engine.MoneyPrecision),
		TotalObligation: engine.RoundMoney(snapshot.TotalObligation()).StringFixed(engine.MoneyPrecision),
	}
	for addr, amount := range snapshot.Balances() {
		if !amount.IsZero() {
			resp.Balances[string(addr)] = amount.String()
		}
	}
	return resp
}
