package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAY COUNT - Yearly to daily/monthly rate conversion
// =============================================================================

// DayCount selects the days-in-year denominator for daily rate conversion.
type DayCount string

const (
	DayCount360    DayCount = "360"
	DayCount365    DayCount = "365"
	DayCount366    DayCount = "366"
	DayCountActual DayCount = "actual" // 365 or 366 by the calendar year of the effective date
)

var monthsPerYear = decimal.NewFromInt(12)

// DaysInYear resolves the denominator for the given convention at an instant.
func (dc DayCount) DaysInYear(at time.Time) decimal.Decimal {
	switch dc {
	case DayCount360:
		return decimal.NewFromInt(360)
	case DayCount366:
		return decimal.NewFromInt(366)
	case DayCountActual:
		if isLeapYear(at.Year()) {
			return decimal.NewFromInt(366)
		}
		return decimal.NewFromInt(365)
	default:
		return decimal.NewFromInt(365)
	}
}

// DailyRate converts an annual rate using this convention, rounded to 10dp.
func (dc DayCount) DailyRate(annual decimal.Decimal, at time.Time) decimal.Decimal {
	return RoundRate(annual.Div(dc.DaysInYear(at)))
}

// MonthlyRate converts an annual rate to a monthly rate, rounded to 10dp.
func MonthlyRate(annual decimal.Decimal) decimal.Decimal {
	return RoundRate(annual.Div(monthsPerYear))
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
