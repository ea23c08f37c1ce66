/*
errors.go - Centralized error types for the lending engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Component packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Input rejections  - a proposed payment violates domain rules; detected
     before any posting is computed, zero side effects
  2. Degeneracies      - zero EMI, zero term, zero principal; handled by
     explicit zero-returning branches, never errors
  3. Fatal inconsistencies - missing addresses, negative principal; the engine
     refuses to produce postings and bubbles the error

USAGE:
  if engine.IsRejection(err) {
      // surface the reason code to the payer, nothing was applied
  }
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrWrongDenomination is returned when a payment's denomination does not
	// match the account's.
	ErrWrongDenomination = errors.New("wrong denomination")

	// ErrDebitNotPermitted is returned for negative or zero payment amounts.
	ErrDebitNotPermitted = errors.New("debit not permitted")

	// ErrExceedsObligation is returned when a payment exceeds the total payoff
	// obligation of the account.
	ErrExceedsObligation = errors.New("amount exceeds total outstanding obligation")

	// ErrOverpaymentNotAllowed is returned when a repayment above the due
	// amounts arrives on a product that forbids overpayment.
	ErrOverpaymentNotAllowed = errors.New("overpayment not allowed on this product")

	// ErrRepaymentBlocked is returned while an active flag blocks repayment
	// processing on the account.
	ErrRepaymentBlocked = errors.New("repayment processing blocked")

	// ErrObligationOutstanding is returned by an explicit closure request
	// while the account still owes anything.
	ErrObligationOutstanding = errors.New("account obligation still outstanding")

	// ErrMissingAddress indicates a snapshot without an address the engine
	// requires. Always fatal.
	ErrMissingAddress = errors.New("snapshot missing expected address")

	// ErrNegativeBalance indicates a negative balance where none should exist.
	// Always fatal.
	ErrNegativeBalance = errors.New("unexpected negative balance")

	// ErrInvalidConfig is returned by LoanConfig.Validate for malformed
	// product parameters.
	ErrInvalidConfig = errors.New("invalid loan configuration")

	// ErrDuplicateIdempotencyKey is returned when a posting batch with the
	// same idempotency key already exists. Expected behavior for replays.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrAccountNotFound is returned when a referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RejectionError is an input rejection with a machine-readable reason code.
// Rejected payments are never partially applied.
type RejectionError struct {
	Code      string
	AccountID string
	Message   string
	wrapped   error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("payment rejected (%s): %s", e.Code, e.Message)
}

func (e *RejectionError) Unwrap() error { return e.wrapped }

// NewRejection builds a RejectionError around one of the rejection sentinels.
func NewRejection(code, accountID, message string, sentinel error) *RejectionError {
	return &RejectionError{Code: code, AccountID: accountID, Message: message, wrapped: sentinel}
}

// MissingAddressError is a fatal inconsistency: the ledger returned a snapshot
// without an address the engine expected to exist.
type MissingAddressError struct {
	AccountID string
	Address   Address
}

func (e *MissingAddressError) Error() string {
	return fmt.Sprintf("account %s: snapshot missing address %s", e.AccountID, e.Address)
}

func (e *MissingAddressError) Unwrap() error { return ErrMissingAddress }

// NegativeBalanceError is a fatal inconsistency: a balance is negative where
// the invariants forbid it.
type NegativeBalanceError struct {
	AccountID string
	Address   Address
	Balance   decimal.Decimal
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("account %s: %s is %s, expected >= 0", e.AccountID, e.Address, e.Balance)
}

func (e *NegativeBalanceError) Unwrap() error { return ErrNegativeBalance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRejection returns true for input rejections: the payment was refused at
// the boundary and nothing was applied.
func IsRejection(err error) bool {
	return errors.Is(err, ErrWrongDenomination) ||
		errors.Is(err, ErrDebitNotPermitted) ||
		errors.Is(err, ErrExceedsObligation) ||
		errors.Is(err, ErrOverpaymentNotAllowed) ||
		errors.Is(err, ErrRepaymentBlocked) ||
		errors.Is(err, ErrObligationOutstanding)
}

// IsFatal returns true for inconsistencies the engine refuses to compute over.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMissingAddress) ||
		errors.Is(err, ErrNegativeBalance)
}
