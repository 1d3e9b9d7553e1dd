package domain

import (
	"fmt"
	"time"
)

// YearMonth identifies one calendar month bucket.
type YearMonth struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// ValidateSettlementMonth rejects months outside the 1-12 range.
func ValidateSettlementMonth(m time.Month) error {
	if m < time.January || m > time.December {
		return fmt.Errorf("%w: %d", ErrInvalidSettlementMonth, int(m))
	}
	return nil
}

// ValidateFiscalYear rejects years no record store row could carry.
func ValidateFiscalYear(year int) error {
	if year < 1900 || year > 9999 {
		return fmt.Errorf("%w: %d", ErrInvalidFiscalYear, year)
	}
	return nil
}

// startMonth is the first month of a fiscal year: the month after settlement,
// wrapping December settlement to a January start.
func startMonth(settlementMonth time.Month) time.Month {
	if settlementMonth == time.December {
		return time.January
	}
	return settlementMonth + 1
}

// FiscalYearOf classifies a calendar date into its fiscal year for the given
// settlement month. Dates in or after the start month belong to their own
// calendar year; earlier dates belong to the previous one.
func FiscalYearOf(date time.Time, settlementMonth time.Month) int {
	if date.Month() >= startMonth(settlementMonth) {
		return date.Year()
	}
	return date.Year() - 1
}

// MonthsInFiscalYear lists the 12 month buckets of a fiscal year in fiscal
// order, starting the month after settlement. Callers render and total in this
// order, never January-December.
func MonthsInFiscalYear(fiscalYear int, settlementMonth time.Month) []YearMonth {
	months := make([]YearMonth, 0, 12)
	for i := 0; i < 12; i++ {
		d := time.Date(fiscalYear, startMonth(settlementMonth)+time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		months = append(months, YearMonth{Year: d.Year(), Month: d.Month()})
	}
	return months
}

// FiscalWindow returns the half-open [start, end) date range of a fiscal year.
func FiscalWindow(fiscalYear int, settlementMonth time.Month) (time.Time, time.Time) {
	start := time.Date(fiscalYear, startMonth(settlementMonth), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}

// InFiscalYear reports whether a month bucket belongs to the fiscal year.
func InFiscalYear(ym YearMonth, fiscalYear int, settlementMonth time.Month) bool {
	probe := time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
	return FiscalYearOf(probe, settlementMonth) == fiscalYear
}
