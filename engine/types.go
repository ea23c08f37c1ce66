/*
Package engine provides the core lending-account calculation engine.

PURPOSE:
  This package contains the shared types and contracts used by every
  calculation component: balance addresses, posting batches, triggers,
  blocking gates, and the loan configuration. Whether the account is a
  term loan or a mortgage, the same engine computes how balances move.

KEY CONCEPTS IN THIS FILE (types.go):
  - Address: A named balance bucket on the account (PRINCIPAL, EMI, ...)
  - Posting: A signed mutation request against a single address
  - PostingBatch: An atomic, idempotent group of postings
  - Trigger: The event (accrual, due calculation, ...) that drives a run
  - Notification / ScheduleDirective: Structured side outputs

DESIGN PRINCIPLES:
  1. Purity: Components map (trigger, snapshot, config) -> postings;
     they never mutate balances themselves
  2. Precision: decimal.Decimal for every monetary value
  3. Idempotence: Batches carry idempotency keys; replays are no-ops
  4. Atomicity: A batch applies entirely or not at all

SEE ALSO:
  - snapshot.go: Read-only balance view consumed by components
  - ledger.go: The Apply side, behind the Ledger interface
  - config.go: Strongly-typed per-product parameters
*/
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ADDRESSES - Named balance buckets on a lending account
// =============================================================================

type Address string

const (
	AddrPrincipal         Address = "PRINCIPAL"
	AddrPrincipalDue      Address = "PRINCIPAL_DUE"
	AddrPrincipalOverdue  Address = "PRINCIPAL_OVERDUE"
	AddrInterestDue       Address = "INTEREST_DUE"
	AddrInterestOverdue   Address = "INTEREST_OVERDUE"
	AddrAccruedInterest   Address = "ACCRUED_INTEREST"
	AddrAccruedPendingCap Address = "ACCRUED_INTEREST_PENDING_CAPITALISATION"
	AddrEMI               Address = "EMI"
	AddrOverpayment       Address = "OVERPAYMENT"
	AddrEMIPrincipalExcess Address = "EMI_PRINCIPAL_EXCESS"
	AddrPenalties         Address = "PENALTIES"
	AddrFees              Address = "FEES"

	// Penalty interest accrued while penalty application is blocked.
	AddrPenaltiesPendingCap Address = "ACCRUED_PENALTIES_PENDING_CAPITALISATION"

	// Running totals of interest/penalties capitalised into PRINCIPAL/PENALTIES,
	// netted at account closure.
	AddrCapitalisedInterest  Address = "CAPITALISED_INTEREST_TRACKER"
	AddrCapitalisedPenalties Address = "CAPITALISED_PENALTIES_TRACKER"

	// Interest capitalised since the last due-calculation event. Non-zero means
	// a repayment holiday ended inside the current period.
	AddrCapitalisedThisPeriod Address = "CAPITALISED_THIS_PERIOD_TRACKER"

	// Expected-interest tracker for the current period (accrual on principal as
	// if no overpayment had happened). Reset at each due calculation.
	AddrExpectedAccrued Address = "ACCRUED_EXPECTED_INTEREST"

	// Overpayment received since the start of the current period. Consumed by
	// the reduce-EMI re-amortisation condition, reset at each due calculation.
	AddrOverpaymentThisPeriod Address = "OVERPAYMENT_THIS_PERIOD_TRACKER"

	// Count of due-calculation events. The single source of truth for elapsed term.
	AddrDueEventCount Address = "DUE_CALCULATION_EVENT_COUNTER"

	// Overpayment allowance window state: the allowance granted at the last
	// anniversary reset, and the net overpayment used since.
	AddrAllowance     Address = "OVERPAYMENT_ALLOWANCE"
	AddrAllowanceUsed Address = "OVERPAYMENT_ALLOWANCE_USED"
)

// =============================================================================
// TRIGGERS - What caused this engine invocation
// =============================================================================

type TriggerType string

const (
	TriggerAccrual          TriggerType = "accrual"
	TriggerDueCalculation   TriggerType = "due_calculation"
	TriggerOverdueCheck     TriggerType = "overdue_check"
	TriggerDelinquencyCheck TriggerType = "delinquency_check"
	TriggerAllowanceCheck   TriggerType = "allowance_check"
	TriggerPayment          TriggerType = "payment"
	TriggerParameterChange  TriggerType = "parameter_change"
	TriggerClosure          TriggerType = "closure"
)

// Trigger carries the effective instant for a scheduled or event-driven run.
type Trigger struct {
	Type TriggerType
	At   time.Time
}

// =============================================================================
// POSTINGS - Signed balance mutation requests
// =============================================================================

// Posting requests a signed delta against one address. It is a request, not a
// record: the external ledger applies it (or rejects the whole batch).
type Posting struct {
	Address Address
	Amount  decimal.Decimal
	Reason  string
}

// PostingBatch groups postings into one atomic unit. The ledger applies all
// postings or none, and rejects batches whose idempotency key was seen before.
type PostingBatch struct {
	ID             string
	AccountID      string
	Denomination   string
	EventType      TriggerType
	Description    string
	EffectiveAt    time.Time
	IdempotencyKey string
	Postings       []Posting
}

// NewBatch builds an empty batch for one trigger run. The idempotency key is
// derived from (account, trigger, effective time) so that replaying the same
// trigger against the same effective time dedupes at the ledger.
func NewBatch(accountID, denomination string, trigger Trigger, description string) PostingBatch {
	return PostingBatch{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Denomination:   denomination,
		EventType:      trigger.Type,
		Description:    description,
		EffectiveAt:    trigger.At,
		IdempotencyKey: fmt.Sprintf("%s|%s|%s", accountID, trigger.Type, trigger.At.UTC().Format(time.RFC3339Nano)),
	}
}

// Add appends a posting, dropping exact zeros so that replays against an
// unchanged snapshot produce empty batches.
func (b *PostingBatch) Add(addr Address, amount decimal.Decimal, reason string) {
	if amount.IsZero() {
		return
	}
	b.Postings = append(b.Postings, Posting{Address: addr, Amount: amount, Reason: reason})
}

// Transfer moves amount from one address to another (debit from, credit to).
func (b *PostingBatch) Transfer(from, to Address, amount decimal.Decimal, reason string) {
	if amount.IsZero() {
		return
	}
	b.Add(from, amount.Neg(), reason)
	b.Add(to, amount, reason)
}

// IsEmpty reports whether the batch carries no postings.
func (b *PostingBatch) IsEmpty() bool { return len(b.Postings) == 0 }

// Net returns the signed sum of postings against addr within this batch.
func (b *PostingBatch) Net(addr Address) decimal.Decimal {
	total := decimal.Zero
	for _, p := range b.Postings {
		if p.Address == addr {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// =============================================================================
// SIDE OUTPUTS - Notifications and schedule directives
// =============================================================================

type NotificationType string

const (
	NotifyOverdue    NotificationType = "overdue"
	NotifyDelinquent NotificationType = "delinquent"
	NotifyClosure    NotificationType = "closure"
)

// Notification is a structured event for the host workflow system.
type Notification struct {
	ID        string
	AccountID string
	Type      NotificationType
	At        time.Time
	Details   map[string]string
}

// ScheduleDirective asks the host scheduler to retime or skip a named trigger.
type ScheduleDirective struct {
	Trigger   TriggerType
	Day       *int
	Hour      *int
	Minute    *int
	Second    *int
	SkipUntil *time.Time
}

// Result is the full output of one engine invocation.
type Result struct {
	Batch         PostingBatch
	Directives    []ScheduleDirective
	Notifications []Notification
}
