package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE SNAPSHOT - Read-only view of account balances at an instant
// =============================================================================

// BalanceSnapshot is the engine's only view of account state. Every address
// balance equals the signed sum of all postings ever applied to it; the
// snapshot is read at a specific instant by the external ledger.
type BalanceSnapshot struct {
	AccountID    string
	Denomination string
	AsOf         time.Time
	CreatedAt    time.Time // account creation (disbursement) instant

	balances map[Address]decimal.Decimal
}

// NewSnapshot builds a snapshot over the given balances. The map is copied so
// callers cannot mutate the snapshot after construction.
func NewSnapshot(accountID, denomination string, asOf, createdAt time.Time, balances map[Address]decimal.Decimal) BalanceSnapshot {
	copied := make(map[Address]decimal.Decimal, len(balances))
	for addr, amount := range balances {
		copied[addr] = amount
	}
	return BalanceSnapshot{
		AccountID:    accountID,
		Denomination: denomination,
		AsOf:         asOf,
		CreatedAt:    createdAt,
		balances:     copied,
	}
}

// Balance returns the signed net amount at addr, zero if never posted to.
func (s BalanceSnapshot) Balance(addr Address) decimal.Decimal {
	if amount, ok := s.balances[addr]; ok {
		return amount
	}
	return decimal.Zero
}

// Require returns the balance at addr, or a fatal inconsistency error when the
// address has never been posted to. Used for addresses that must exist once an
// account is disbursed (e.g. PRINCIPAL).
func (s BalanceSnapshot) Require(addr Address) (decimal.Decimal, error) {
	amount, ok := s.balances[addr]
	if !ok {
		return decimal.Zero, &MissingAddressError{AccountID: s.AccountID, Address: addr}
	}
	return amount, nil
}

// Sum returns the signed sum across the given addresses.
func (s BalanceSnapshot) Sum(addrs ...Address) decimal.Decimal {
	total := decimal.Zero
	for _, addr := range addrs {
		total = total.Add(s.Balance(addr))
	}
	return total
}

// DueEventCount returns the number of due-calculation events recorded on the
// account. This is the elapsed term.
func (s BalanceSnapshot) DueEventCount() int {
	return int(s.Balance(AddrDueEventCount).IntPart())
}

// EffectivePrincipal is the amortisation principal base. Overpayments and
// excess EMI principal are posted to PRINCIPAL directly; OVERPAYMENT and
// EMI_PRINCIPAL_EXCESS are memo trackers, so the base is the outstanding
// principal itself.
func (s BalanceSnapshot) EffectivePrincipal() decimal.Decimal {
	return s.Balance(AddrPrincipal)
}

// ExpectedPrincipal is the principal as if no overpayment had ever happened:
// actual principal with the overpayment and excess trackers added back.
func (s BalanceSnapshot) ExpectedPrincipal() decimal.Decimal {
	return s.Balance(AddrPrincipal).
		Sub(s.Balance(AddrOverpayment)).
		Sub(s.Balance(AddrEMIPrincipalExcess))
}

// TotalDue is everything currently payable without being late.
func (s BalanceSnapshot) TotalDue() decimal.Decimal {
	return s.Sum(AddrPrincipalDue, AddrInterestDue)
}

// TotalOverdue is everything past its due date.
func (s BalanceSnapshot) TotalOverdue() decimal.Decimal {
	return s.Sum(AddrPrincipalOverdue, AddrInterestOverdue)
}

// TotalObligation is the full payoff amount: outstanding principal, every due
// and overdue bucket, penalties, fees, and unapplied accrued interest.
func (s BalanceSnapshot) TotalObligation() decimal.Decimal {
	return s.Sum(
		AddrPrincipal,
		AddrPrincipalDue, AddrInterestDue,
		AddrPrincipalOverdue, AddrInterestOverdue,
		AddrPenalties, AddrFees,
		AddrAccruedInterest,
	)
}

// Balances returns a copy of every address balance, for reporting surfaces.
func (s BalanceSnapshot) Balances() map[Address]decimal.Decimal {
	copied := make(map[Address]decimal.Decimal, len(s.balances))
	for addr, amount := range s.balances {
		copied[addr] = amount
	}
	return copied
}

// Apply returns a new snapshot with the batch's postings folded in. Used by
// the in-memory ledger and by tests to advance state between triggers.
func (s BalanceSnapshot) Apply(batch PostingBatch) BalanceSnapshot {
	next := NewSnapshot(s.AccountID, s.Denomination, batch.EffectiveAt, s.CreatedAt, s.balances)
	for _, p := range batch.Postings {
		next.balances[p.Address] = next.balances[p.Address].Add(p.Amount)
	}
	return next
}

// Validate performs the fatal-inconsistency checks of a disbursed account:
// PRINCIPAL must exist and must not be negative.
func (s BalanceSnapshot) Validate() error {
	principal, err := s.Require(AddrPrincipal)
	if err != nil {
		return err
	}
	if principal.IsNegative() {
		return &NegativeBalanceError{AccountID: s.AccountID, Address: AddrPrincipal, Balance: principal}
	}
	return nil
}
