// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/lending-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	batches     map[string][]engine.PostingBatch
	idempotency map[string]bool
	accounts    map[string]engine.AccountRecord
}

func NewMemory() *Memory {
	return &Memory{
		batches:     make(map[string][]engine.PostingBatch),
		idempotency: make(map[string]bool),
		accounts:    make(map[string]engine.AccountRecord),
	}
}

// RegisterAccount records account identity so snapshots can be served.
func (m *Memory) RegisterAccount(_ context.Context, record engine.AccountRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[record.ID] = record
	return nil
}

func (m *Memory) Account(_ context.Context, accountID string) (engine.AccountRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.accounts[accountID]
	if !ok {
		return engine.AccountRecord{}, engine.ErrAccountNotFound
	}
	return record, nil
}

// Append persists a batch atomically. Append-only.
func (m *Memory) Append(_ context.Context, batch engine.PostingBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if batch.IdempotencyKey != "" && m.idempotency[batch.IdempotencyKey] {
		return engine.ErrDuplicateIdempotencyKey
	}

	list := m.batches[batch.AccountID]

	// Binary search for the insertion point to keep EffectiveAt order.
	i := sort.Search(len(list), func(i int) bool {
		return list[i].EffectiveAt.After(batch.EffectiveAt)
	})
	list = append(list, engine.PostingBatch{})
	copy(list[i+1:], list[i:])
	list[i] = batch
	m.batches[batch.AccountID] = list

	if batch.IdempotencyKey != "" {
		m.idempotency[batch.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) Load(_ context.Context, accountID string) ([]engine.PostingBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.batches[accountID]
	out := make([]engine.PostingBatch, len(list))
	copy(out, list)
	return out, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) LastExecution(_ context.Context, accountID string, eventType engine.TriggerType) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last time.Time
	for _, batch := range m.batches[accountID] {
		if batch.EventType == eventType && batch.EffectiveAt.After(last) {
			last = batch.EffectiveAt
		}
	}
	return last, nil
}
