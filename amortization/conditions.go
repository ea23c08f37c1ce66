package amortization

import (
	"github.com/warp/lending-engine/engine"
)

// =============================================================================
// RE-AMORTISATION CONDITIONS - Ordered vector, any() semantics
// =============================================================================

// Evaluation carries everything a condition may inspect at a due event.
// RateChanged is resolved by the caller (it needs the rate resolver).
type Evaluation struct {
	Config      *engine.LoanConfig
	Snapshot    engine.BalanceSnapshot
	Elapsed     int
	RateChanged bool
}

// Condition signals that the EMI must be recomputed this period.
type Condition interface {
	Name() string
	Triggered(eval Evaluation) bool
}

// DefaultConditions is the ordered condition set evaluated at every due
// calculation. Ordering matters only for reporting; triggering is any().
func DefaultConditions() []Condition {
	return []Condition{
		RateChangeCondition{},
		HolidayEndedCondition{},
		OverpaymentCondition{},
		InterestOnlyBoundaryCondition{},
	}
}

// AnyTriggered folds the condition vector with any() semantics and returns
// the name of the first triggered condition for the batch description.
func AnyTriggered(conditions []Condition, eval Evaluation) (bool, string) {
	for _, condition := range conditions {
		if condition.Triggered(eval) {
			return true, condition.Name()
		}
	}
	return false, ""
}

// RateChangeCondition fires when the resolved monthly rate moved between the
// previous and the current due event.
type RateChangeCondition struct{}

func (RateChangeCondition) Name() string { return "rate_change" }

func (RateChangeCondition) Triggered(eval Evaluation) bool { return eval.RateChanged }

// HolidayEndedCondition fires when interest was capitalised since the last
// due event, i.e. a repayment holiday ended inside this period. Only the
// increase-EMI preference re-amortises; increase-term keeps the EMI and lets
// the term stretch.
type HolidayEndedCondition struct{}

func (HolidayEndedCondition) Name() string { return "repayment_holiday_ended" }

func (HolidayEndedCondition) Triggered(eval Evaluation) bool {
	if eval.Config.HolidayPreference != engine.HolidayIncreaseEMI {
		return false
	}
	return !eval.Snapshot.Balance(engine.AddrCapitalisedThisPeriod).IsZero()
}

// OverpaymentCondition fires when an overpayment arrived this period and the
// product prefers a reduced EMI over a shortened term.
type OverpaymentCondition struct{}

func (OverpaymentCondition) Name() string { return "overpayment" }

func (OverpaymentCondition) Triggered(eval Evaluation) bool {
	if eval.Config.OverpaymentPreference != engine.OverpaymentReduceEMI {
		return false
	}
	return !eval.Snapshot.Balance(engine.AddrOverpaymentThisPeriod).IsZero()
}

// InterestOnlyBoundaryCondition fires at the due event where the interest-only
// term ends and principal repayment begins.
type InterestOnlyBoundaryCondition struct{}

func (InterestOnlyBoundaryCondition) Name() string { return "interest_only_term_end" }

func (InterestOnlyBoundaryCondition) Triggered(eval Evaluation) bool {
	return eval.Config.InterestOnlyTermMonths > 0 &&
		eval.Elapsed == eval.Config.InterestOnlyTermMonths
}
