/*
ledger.go - Balance mutation boundary

PURPOSE:
  The Ledger owns durability and atomicity of balance state. The engine
  only ever reads BalanceSnapshot values from it and hands PostingBatch
  values back. Balances are always derived by folding applied batches;
  there is no separately-stored balance that can drift.

CRITICAL INVARIANTS:
  1. ATOMIC: a batch applies entirely or not at all
  2. SERIAL PER ACCOUNT: at most one in-flight batch per account
  3. IDEMPOTENT: replaying a batch with a seen idempotency key is a no-op
  4. APPEND-ONLY: no batch is ever updated or deleted
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// LEDGER - The engine's view of the host posting system
// =============================================================================

type Ledger interface {
	// Apply records a batch atomically. A duplicate idempotency key returns
	// ErrDuplicateIdempotencyKey and changes nothing.
	Apply(ctx context.Context, batch PostingBatch) error

	// Snapshot reads the account's balances as of an instant.
	Snapshot(ctx context.Context, accountID string, asOf time.Time) (BalanceSnapshot, error)

	// LastExecution returns when a trigger type last produced an applied
	// batch for the account, or zero time if never.
	LastExecution(ctx context.Context, accountID string, trigger TriggerType) (time.Time, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation over a Store
// =============================================================================

// AccountRecord is the minimal account identity the ledger tracks alongside
// batches: denomination and creation instant, both needed for snapshots.
type AccountRecord struct {
	ID           string
	Denomination string
	CreatedAt    time.Time
}

// AccountStore resolves account identity records.
type AccountStore interface {
	Account(ctx context.Context, accountID string) (AccountRecord, error)
}

type DefaultLedger struct {
	Store    Store
	Accounts AccountStore
}

func NewLedger(store Store, accounts AccountStore) *DefaultLedger {
	return &DefaultLedger{Store: store, Accounts: accounts}
}

func (l *DefaultLedger) Apply(ctx context.Context, batch PostingBatch) error {
	if batch.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, batch.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, batch)
}

func (l *DefaultLedger) Snapshot(ctx context.Context, accountID string, asOf time.Time) (BalanceSnapshot, error) {
	record, err := l.Accounts.Account(ctx, accountID)
	if err != nil {
		return BalanceSnapshot{}, err
	}

	batches, err := l.Store.Load(ctx, accountID)
	if err != nil {
		return BalanceSnapshot{}, err
	}

	snapshot := NewSnapshot(record.ID, record.Denomination, asOf, record.CreatedAt, nil)
	for _, batch := range batches {
		if batch.EffectiveAt.After(asOf) {
			break
		}
		snapshot = snapshot.Apply(batch)
	}
	// Apply advances AsOf to each batch's effective time; pin it back to the
	// requested read instant.
	snapshot.AsOf = asOf
	return snapshot, nil
}

func (l *DefaultLedger) LastExecution(ctx context.Context, accountID string, trigger TriggerType) (time.Time, error) {
	return l.Store.LastExecution(ctx, accountID, trigger)
}
