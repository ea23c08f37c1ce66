/*
config.go - Strongly-typed per-product loan configuration

PURPOSE:
  Replaces dynamic parameter lookup with one validated struct per product.
  LoanConfig is resolved at account load time; no runtime type coercion
  happens inside the calculation components.

POLICY SWITCHES:
  RateRegime            fixed / variable / fixed-to-variable
  AmortisationMethod    declining principal, flat, rule of 78, interest only,
                        minimum repayment with balloon, no repayment
  OverpaymentPreference reduce term (EMI unchanged) or reduce EMI (term held)
  HolidayPreference     increase EMI (term held) or increase term after a
                        repayment holiday capitalisation
  AccrualRest           daily or monthly rest for the accrual principal base
*/
package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POLICY ENUMS
// =============================================================================

type RateRegime string

const (
	RateFixed           RateRegime = "fixed"
	RateVariable        RateRegime = "variable"
	RateFixedToVariable RateRegime = "fixed_to_variable"
)

type AmortisationMethod string

const (
	MethodDecliningPrincipal AmortisationMethod = "declining_principal"
	MethodFlatInterest       AmortisationMethod = "flat_interest"
	MethodRuleOf78           AmortisationMethod = "rule_of_78"
	MethodInterestOnly       AmortisationMethod = "interest_only"
	MethodMinimumRepayment   AmortisationMethod = "minimum_repayment_with_balloon"
	MethodNoRepayment        AmortisationMethod = "no_repayment"
)

type OverpaymentPreference string

const (
	OverpaymentReduceTerm OverpaymentPreference = "reduce_term"
	OverpaymentReduceEMI  OverpaymentPreference = "reduce_emi"
)

type HolidayPreference string

const (
	HolidayIncreaseEMI  HolidayPreference = "increase_emi"
	HolidayIncreaseTerm HolidayPreference = "increase_term"
)

type AccrualRest string

const (
	RestDaily   AccrualRest = "daily"
	RestMonthly AccrualRest = "monthly"
)

// =============================================================================
// RATE SPEC
// =============================================================================

// RateSpec holds the annual rate inputs valid as of an instant. Cap and floor
// are optional: nil floor means -inf, nil cap means +inf.
type RateSpec struct {
	FixedRate          decimal.Decimal
	VariableTemplate   decimal.Decimal
	VariableAdjustment decimal.Decimal
	Cap                *decimal.Decimal
	Floor              *decimal.Decimal

	// FixedTermMonths applies to the fixed-to-variable regime: the account
	// behaves as fixed while elapsed term is below this boundary.
	FixedTermMonths int
}

// =============================================================================
// LOAN CONFIG
// =============================================================================

// LoanConfig is the complete parameter set for one account. Policy flags are
// immutable after disbursement except via explicit parameter-change events.
type LoanConfig struct {
	Denomination string

	// OriginalPrincipal is the disbursement amount. Used by amortisation
	// methods whose interest allocation is fixed at origination (rule of 78).
	OriginalPrincipal decimal.Decimal

	TotalTermMonths        int
	InterestOnlyTermMonths int
	BalloonAmount          decimal.Decimal // lump sum repaid at maturity, zero for pure declining principal

	Regime RateRegime
	Rates  RateSpec

	Method      AmortisationMethod
	DayCount    DayCount
	AccrualRest AccrualRest

	OverpaymentAllowed    bool
	OverpaymentPreference OverpaymentPreference
	OverpaymentFeeRate    decimal.Decimal

	AllowancePercentage decimal.Decimal // of principal at window start, fee-free per year
	AllowanceFeeRate    decimal.Decimal // on usage above the allowance

	HolidayPreference HolidayPreference

	PenaltyRate              decimal.Decimal
	PenaltyIncludesBaseRate  bool
	PenaltyOnOverdueInterest bool
	PenaltyCapitalised       bool
	LateRepaymentFee         decimal.Decimal
	GracePeriodDays          int

	EarlyRepaymentFeeRate decimal.Decimal

	// Due-calculation schedule parameters. DueDay overrides the end-of-month
	// day (e.g. balloon schedules); zero means last day of month.
	DueDay    int
	DueHour   int
	DueMinute int
	DueSecond int

	// Ordered application of incoming payments. Defaulted by Validate.
	RepaymentHierarchy []Address
}

// DefaultRepaymentHierarchy orders payment application across obligation buckets.
func DefaultRepaymentHierarchy() []Address {
	return []Address{
		AddrPenalties,
		AddrFees,
		AddrInterestOverdue,
		AddrPrincipalOverdue,
		AddrInterestDue,
		AddrPrincipalDue,
	}
}

// Validate checks the configuration once at account load time.
func (c *LoanConfig) Validate() error {
	if c.Denomination == "" {
		return fmt.Errorf("%w: denomination required", ErrInvalidConfig)
	}
	if c.TotalTermMonths <= 0 && c.Method != MethodNoRepayment {
		return fmt.Errorf("%w: total term must be positive", ErrInvalidConfig)
	}
	if c.InterestOnlyTermMonths < 0 || c.InterestOnlyTermMonths > c.TotalTermMonths {
		return fmt.Errorf("%w: interest-only term out of range", ErrInvalidConfig)
	}
	switch c.Regime {
	case RateFixed, RateVariable, RateFixedToVariable:
	default:
		return fmt.Errorf("%w: unknown rate regime %q", ErrInvalidConfig, c.Regime)
	}
	switch c.Method {
	case MethodDecliningPrincipal, MethodFlatInterest, MethodRuleOf78,
		MethodInterestOnly, MethodMinimumRepayment, MethodNoRepayment:
	default:
		return fmt.Errorf("%w: unknown amortisation method %q", ErrInvalidConfig, c.Method)
	}
	switch c.DayCount {
	case DayCount360, DayCount365, DayCount366, DayCountActual:
	default:
		return fmt.Errorf("%w: unknown day count %q", ErrInvalidConfig, c.DayCount)
	}
	if c.Rates.Cap != nil && c.Rates.Floor != nil && c.Rates.Floor.GreaterThan(*c.Rates.Cap) {
		return fmt.Errorf("%w: rate floor above cap", ErrInvalidConfig)
	}
	if c.Regime == RateFixedToVariable && c.Rates.FixedTermMonths <= 0 {
		return fmt.Errorf("%w: fixed-to-variable requires a fixed term", ErrInvalidConfig)
	}
	if c.BalloonAmount.IsNegative() {
		return fmt.Errorf("%w: balloon amount must not be negative", ErrInvalidConfig)
	}
	if c.AllowancePercentage.IsNegative() || c.AllowancePercentage.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: allowance percentage must be in [0, 1]", ErrInvalidConfig)
	}
	if c.GracePeriodDays < 0 {
		return fmt.Errorf("%w: grace period must not be negative", ErrInvalidConfig)
	}
	if c.AccrualRest == "" {
		c.AccrualRest = RestDaily
	}
	if c.OverpaymentPreference == "" {
		c.OverpaymentPreference = OverpaymentReduceTerm
	}
	if c.HolidayPreference == "" {
		c.HolidayPreference = HolidayIncreaseEMI
	}
	if len(c.RepaymentHierarchy) == 0 {
		c.RepaymentHierarchy = DefaultRepaymentHierarchy()
	}
	return nil
}

// DueScheduleFor returns the due-calculation instant for the month containing
// at, honoring the DueDay override and the configured time of day.
func (c *LoanConfig) DueScheduleFor(at time.Time) time.Time {
	day := c.DueDay
	lastDay := time.Date(at.Year(), at.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1).Day()
	if day <= 0 || day > lastDay {
		day = lastDay
	}
	return time.Date(at.Year(), at.Month(), day, c.DueHour, c.DueMinute, c.DueSecond, 0, time.UTC)
}
