/*
store.go - Persistence interface for posting batches

PURPOSE:
  Defines the interface between the engine outputs and durable storage.
  The Store is APPEND-ONLY: batches are recorded, never updated or deleted.
  Corrections are made by applying compensating batches.

IDEMPOTENCY:
  Every batch carries an idempotency key. If the key already exists the
  write is rejected, which is how trigger replays become no-ops.

ATOMIC BATCHES:
  Append persists a whole batch or nothing. A due-calculation batch that
  moves interest, moves principal, and bumps the event counter can never
  be half applied.

IMPLEMENTATIONS:
  - engine/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite-backed reference ledger
*/
package engine

import (
	"context"
	"time"
)

// Store handles persistence of posting batches. Append-only.
type Store interface {
	// Append persists a batch atomically. Returns ErrDuplicateIdempotencyKey
	// if the batch's idempotency key was seen before.
	Append(ctx context.Context, batch PostingBatch) error

	// Load returns all batches for an account ordered by EffectiveAt.
	Load(ctx context.Context, accountID string) ([]PostingBatch, error)

	// Exists checks whether an idempotency key has been recorded.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)

	// LastExecution returns the effective time of the most recent batch of
	// the given event type for the account, or zero time if none.
	LastExecution(ctx context.Context, accountID string, eventType TriggerType) (time.Time, error)
}
