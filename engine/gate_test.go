package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/lending-engine/engine"
)

func TestFlagGate_WindowIsHalfOpen(t *testing.T) {
	// GIVEN: A due-calculation block over February
	// WHEN: Probing before, at start, inside, at end, and after
	// THEN: [from, to) semantics apply

	from := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	gate := engine.NewFlagGate()
	gate.Set(engine.GateDueCalculation, from, to)

	assert.False(t, gate.IsBlocked(engine.GateDueCalculation, from.Add(-time.Second)))
	assert.True(t, gate.IsBlocked(engine.GateDueCalculation, from))
	assert.True(t, gate.IsBlocked(engine.GateDueCalculation, from.AddDate(0, 0, 14)))
	assert.False(t, gate.IsBlocked(engine.GateDueCalculation, to))
	assert.False(t, gate.IsBlocked(engine.GateDueCalculation, to.Add(time.Hour)))
}

func TestFlagGate_GatesAreIndependent(t *testing.T) {
	from := time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	gate := engine.NewFlagGate()
	gate.Set(engine.GateDueCalculation, from, to)

	inside := from.AddDate(0, 0, 10)
	assert.True(t, gate.IsBlocked(engine.GateDueCalculation, inside))
	assert.False(t, gate.IsBlocked(engine.GateRepayment, inside))
	assert.False(t, gate.IsBlocked(engine.GatePenaltyAccrual, inside))
}

func TestOpenGate_NeverBlocks(t *testing.T) {
	gate := engine.OpenGate{}
	assert.False(t, gate.IsBlocked(engine.GateDueCalculation, time.Now()))
	assert.False(t, gate.IsBlocked(engine.GateRepayment, time.Now()))
}
