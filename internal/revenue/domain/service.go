package domain

import (
	"context"
	"errors"
	"time"

	fiscaldomain "github.com/buildwise/kessan/internal/fiscal/domain"
)

// MonthlyTotal is one fiscal month bucket of projected revenue.
type MonthlyTotal struct {
	Year   int        `json:"year"`
	Month  time.Month `json:"month"`
	Amount int64      `json:"amount"`
}

// Schedule is a fiscal-year revenue projection: twelve buckets in fiscal
// order plus the annual total.
type Schedule struct {
	FiscalYear       int            `json:"fiscal_year"`
	MonthlyTotals    []MonthlyTotal `json:"monthly_totals"`
	AnnualTotal      int64          `json:"annual_total"`
	FiscalStartMonth time.Month     `json:"fiscal_start_month"`
	FiscalEndMonth   time.Month     `json:"fiscal_end_month"`
}

// Service builds revenue schedules.
type Service interface {
	GetRevenueSchedule(ctx context.Context, fc fiscaldomain.FiscalContext) (Schedule, error)
}

var (
	ErrUnresolvedPaymentDate = errors.New("unresolved_payment_date")
)
