/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements engine.Store and engine.AccountStore using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  The Store enforces append-only semantics:
  - No UPDATE statements on the batches or postings tables
  - No DELETE statements on the batches or postings tables
  - Corrections via compensating batches only

KEY TABLES:
  accounts:  Account identity (denomination, creation instant)
  batches:   One row per applied atomic posting batch
  postings:  Signed address deltas belonging to a batch

ATOMICITY:
  A batch and its postings insert inside one SQL transaction. The unique
  index on the idempotency key makes trigger replays fail the insert, which
  surfaces as engine.ErrDuplicateIdempotencyKey.

AMOUNTS:
  Stored as decimal strings, never as REAL. Arithmetic happens in the
  engine; the database only round-trips exact representations.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/lending.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := engine.NewLedger(store, store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/ledger.go: Higher-level ledger using Store
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/engine"
)

// Store implements engine.Store and engine.AccountStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts (identity needed to serve snapshots)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		denomination TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Batches (append-only; one row per applied atomic batch)
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		denomination TEXT NOT NULL,
		event_type TEXT NOT NULL,
		description TEXT,
		effective_at TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_batches_account_effective
		ON batches(account_id, effective_at);
	CREATE INDEX IF NOT EXISTS idx_batches_idempotency
		ON batches(idempotency_key) WHERE idempotency_key IS NOT NULL;

	-- Composite index for last-execution lookups per trigger type
	CREATE INDEX IF NOT EXISTS idx_batches_account_event
		ON batches(account_id, event_type, effective_at DESC);

	-- Postings (signed address deltas; meaningless outside their batch)
	CREATE TABLE IF NOT EXISTS postings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_id TEXT NOT NULL REFERENCES batches(id),
		seq INTEGER NOT NULL,
		address TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_postings_batch
		ON postings(batch_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

// RegisterAccount records account identity so snapshots can be served.
func (s *Store) RegisterAccount(ctx context.Context, record engine.AccountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, denomination, created_at) VALUES (?, ?, ?)`,
		record.ID, record.Denomination, record.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to register account: %w", err)
	}
	return nil
}

func (s *Store) Account(ctx context.Context, accountID string) (engine.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var record engine.AccountRecord
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, denomination, created_at FROM accounts WHERE id = ?`,
		accountID,
	).Scan(&record.ID, &record.Denomination, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.AccountRecord{}, engine.ErrAccountNotFound
	}
	if err != nil {
		return engine.AccountRecord{}, fmt.Errorf("failed to load account: %w", err)
	}

	record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return engine.AccountRecord{}, fmt.Errorf("corrupt created_at for account %s: %w", accountID, err)
	}
	return record, nil
}

// =============================================================================
// BATCH STORE (append-only)
// =============================================================================

// Append persists a batch and its postings atomically.
func (s *Store) Append(ctx context.Context, batch engine.PostingBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	idempotencyKey := sql.NullString{String: batch.IdempotencyKey, Valid: batch.IdempotencyKey != ""}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO batches (id, account_id, denomination, event_type, description, effective_at, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.AccountID, batch.Denomination, string(batch.EventType), batch.Description,
		batch.EffectiveAt.UTC().Format(time.RFC3339Nano), idempotencyKey,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return engine.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	for seq, posting := range batch.Postings {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO postings (batch_id, seq, address, amount, reason) VALUES (?, ?, ?, ?, ?)`,
			batch.ID, seq, string(posting.Address), posting.Amount.String(), posting.Reason,
		)
		if err != nil {
			return fmt.Errorf("failed to insert posting: %w", err)
		}
	}

	return tx.Commit()
}

// Load returns all batches for an account ordered by effective time.
func (s *Store) Load(ctx context.Context, accountID string) ([]engine.PostingBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, denomination, event_type, description, effective_at, COALESCE(idempotency_key, '')
		 FROM batches WHERE account_id = ? ORDER BY effective_at, created_at`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches []engine.PostingBatch
	index := make(map[string]int)
	for rows.Next() {
		var batch engine.PostingBatch
		var eventType, effectiveAt string
		if err := rows.Scan(&batch.ID, &batch.AccountID, &batch.Denomination, &eventType,
			&batch.Description, &effectiveAt, &batch.IdempotencyKey); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batch.EventType = engine.TriggerType(eventType)
		batch.EffectiveAt, err = time.Parse(time.RFC3339Nano, effectiveAt)
		if err != nil {
			return nil, fmt.Errorf("corrupt effective_at for batch %s: %w", batch.ID, err)
		}
		index[batch.ID] = len(batches)
		batches = append(batches, batch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadPostings(ctx, accountID, batches, index); err != nil {
		return nil, err
	}
	return batches, nil
}

// loadPostings attaches postings to their batches in one pass.
func (s *Store) loadPostings(ctx context.Context, accountID string, batches []engine.PostingBatch, index map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.batch_id, p.address, p.amount, COALESCE(p.reason, '')
		 FROM postings p JOIN batches b ON b.id = p.batch_id
		 WHERE b.account_id = ? ORDER BY p.batch_id, p.seq`,
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to query postings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var batchID, address, amount, reason string
		if err := rows.Scan(&batchID, &address, &amount, &reason); err != nil {
			return fmt.Errorf("failed to scan posting: %w", err)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("corrupt amount in batch %s: %w", batchID, err)
		}
		i, ok := index[batchID]
		if !ok {
			continue
		}
		batches[i].Postings = append(batches[i].Postings, engine.Posting{
			Address: engine.Address(address),
			Amount:  value,
			Reason:  reason,
		})
	}
	return rows.Err()
}

// Exists checks whether an idempotency key has been recorded.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM batches WHERE idempotency_key = ?`, idempotencyKey,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return count > 0, nil
}

// LastExecution returns the effective time of the most recent batch of the
// given event type, or zero time if none.
func (s *Store) LastExecution(ctx context.Context, accountID string, eventType engine.TriggerType) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var effectiveAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT effective_at FROM batches WHERE account_id = ? AND event_type = ?
		 ORDER BY effective_at DESC LIMIT 1`,
		accountID, string(eventType),
	).Scan(&effectiveAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last execution: %w", err)
	}
	return time.Parse(time.RFC3339Nano, effectiveAt)
}

// isUniqueViolation detects the sqlite unique-constraint error on the
// idempotency key index.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
