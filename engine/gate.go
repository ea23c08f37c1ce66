package engine

import (
	"sort"
	"time"
)

// =============================================================================
// POLICY GATE - Blocking predicates evaluated against external flags
// =============================================================================

// Gate names a calculation that can be suspended by externally-managed flags
// (repayment holidays, collections freezes). The engine never inspects flag
// storage; it only asks "is this gate blocked right now?".
type Gate string

const (
	GateDueCalculation  Gate = "due_amount_calculation"
	GateOverdueCheck    Gate = "overdue_check"
	GatePenaltyAccrual  Gate = "penalty_accrual"
	GateDelinquency     Gate = "delinquency_check"
	GateRepayment       Gate = "repayment"
	GateDelinquencyFlag Gate = "delinquency_flag" // set once an account is marked delinquent
)

// PolicyGate is the injected blocking capability.
type PolicyGate interface {
	IsBlocked(gate Gate, at time.Time) bool
}

// =============================================================================
// FLAG GATE - Time-window flag evaluation for hosts and tests
// =============================================================================

// FlagWindow activates a gate within [From, To). A zero To means open-ended.
type FlagWindow struct {
	Gate Gate
	From time.Time
	To   time.Time
}

func (w FlagWindow) active(at time.Time) bool {
	if at.Before(w.From) {
		return false
	}
	return w.To.IsZero() || at.Before(w.To)
}

// FlagGate evaluates gates against a set of activation windows.
type FlagGate struct {
	windows []FlagWindow
}

func NewFlagGate(windows ...FlagWindow) *FlagGate {
	sorted := append([]FlagWindow(nil), windows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].From.Before(sorted[j].From) })
	return &FlagGate{windows: sorted}
}

// Set appends an activation window for a gate.
func (g *FlagGate) Set(gate Gate, from, to time.Time) {
	g.windows = append(g.windows, FlagWindow{Gate: gate, From: from, To: to})
}

func (g *FlagGate) IsBlocked(gate Gate, at time.Time) bool {
	for _, w := range g.windows {
		if w.Gate == gate && w.active(at) {
			return true
		}
	}
	return false
}

// OpenGate blocks nothing. The default for accounts without active flags.
type OpenGate struct{}

func (OpenGate) IsBlocked(Gate, time.Time) bool { return false }
