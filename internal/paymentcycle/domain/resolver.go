package domain

import (
	"errors"
	"fmt"
	"time"
)

// CycleType selects how a client's payment date is derived from a
// completion date.
type CycleType string

const (
	CycleMonthEnd     CycleType = "month_end"
	CycleSpecificDate CycleType = "specific_date"
)

// Defaults applied when a client row leaves a cycle field unset.
const (
	DefaultClosingDay         = 25
	DefaultPaymentMonthOffset = 1
	DefaultPaymentDay         = 15
)

// Cycle is a fully resolved billing-cycle rule. Nullable client columns are
// converted to a Cycle exactly once at the data-access boundary; the resolver
// itself never fills defaults.
type Cycle struct {
	Type               CycleType
	ClosingDay         int
	PaymentMonthOffset int
	PaymentDay         int
}

var (
	ErrUnsupportedCycleType = errors.New("unsupported_cycle_type")
	ErrInvalidClosingDay    = errors.New("invalid_closing_day")
	ErrInvalidPaymentDay    = errors.New("invalid_payment_day")
	ErrInvalidMonthOffset   = errors.New("invalid_month_offset")
)

// Validate rejects a malformed cycle before any date arithmetic.
func (c Cycle) Validate() error {
	switch c.Type {
	case CycleMonthEnd:
	case CycleSpecificDate:
		if c.ClosingDay < 1 || c.ClosingDay > 31 {
			return fmt.Errorf("%w: %d", ErrInvalidClosingDay, c.ClosingDay)
		}
		if c.PaymentDay < 1 || c.PaymentDay > 31 {
			return fmt.Errorf("%w: %d", ErrInvalidPaymentDay, c.PaymentDay)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedCycleType, string(c.Type))
	}
	if c.PaymentMonthOffset < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMonthOffset, c.PaymentMonthOffset)
	}
	return nil
}

// Resolve maps a completion date to the concrete payment date under the
// cycle rule. It is pure and total: every input yields either a date or a
// typed error, never a fallback to the current time.
//
// month_end pays on the last calendar day of completion month + offset.
// specific_date closes the billing month on ClosingDay (completions after it
// fall into the next month) and pays on PaymentDay of billing month + offset,
// clamped to the target month's length rather than overflowing.
func Resolve(completion time.Time, cycle Cycle) (time.Time, error) {
	if err := cycle.Validate(); err != nil {
		return time.Time{}, err
	}

	switch cycle.Type {
	case CycleMonthEnd:
		// Day zero of the following month normalizes to the last calendar
		// day, so leap February needs no special case.
		return time.Date(
			completion.Year(),
			completion.Month()+time.Month(cycle.PaymentMonthOffset)+1,
			0, 0, 0, 0, 0, time.UTC,
		), nil

	case CycleSpecificDate:
		billingMonth := time.Date(completion.Year(), completion.Month(), 1, 0, 0, 0, 0, time.UTC)
		if completion.Day() > cycle.ClosingDay {
			billingMonth = billingMonth.AddDate(0, 1, 0)
		}
		target := billingMonth.AddDate(0, cycle.PaymentMonthOffset, 0)
		day := cycle.PaymentDay
		if last := daysIn(target.Year(), target.Month()); day > last {
			day = last
		}
		return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, time.UTC), nil

	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnsupportedCycleType, string(cycle.Type))
	}
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
