package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service exposes the mutating fiscal operations plus the read-only change
// analyzer. The aggregator lives in the revenue domain.
type Service interface {
	GetFiscalInfo(ctx context.Context, companyID snowflake.ID) (FiscalInfo, error)
	AnalyzeChange(ctx context.Context, req AnalyzeChangeRequest) (ImpactReport, error)
	ChangeFiscalPeriod(ctx context.Context, req ChangeFiscalPeriodRequest) (ChangeFiscalPeriodResult, error)
	Rollover(ctx context.Context, req RolloverRequest) (RolloverResult, error)
}

// AnalyzeChangeRequest describes a prospective settlement-month change.
type AnalyzeChangeRequest struct {
	CompanyID           snowflake.ID
	FromSettlementMonth time.Month
	ToSettlementMonth   time.Month
}

// Validate rejects malformed analyze requests before any computation.
func (r AnalyzeChangeRequest) Validate() error {
	if r.CompanyID == 0 {
		return ErrInvalidCompany
	}
	if err := ValidateSettlementMonth(r.FromSettlementMonth); err != nil {
		return err
	}
	return ValidateSettlementMonth(r.ToSettlementMonth)
}

// ImpactReport is the read-only diff of fiscal-year assignment produced by
// the analyzer. Signed amounts are positive when a record moves to a later
// fiscal year under the new settlement month.
type ImpactReport struct {
	ProjectCount    int   `json:"project_count"`
	AffectedRecords int   `json:"affected_records"`
	RevenueImpact   int64 `json:"revenue_impact"`
	CostImpact      int64 `json:"cost_impact"`
}

// ChangeFiscalPeriodRequest commits a settlement-month change.
type ChangeFiscalPeriodRequest struct {
	CompanyID         snowflake.ID
	ChangeDate        time.Time
	ToFiscalYear      int
	ToSettlementMonth time.Month
	Reason            string
}

// ChangeFiscalPeriodResult returns the approved analysis together with the
// committed settings.
type ChangeFiscalPeriodResult struct {
	Impact        ImpactReport       `json:"impact_analysis"`
	Change        FiscalPeriodChange `json:"change_result"`
	NewFiscalInfo FiscalInfo         `json:"new_fiscal_info"`
}

// RolloverRequest starts a year-end rollover for one company.
type RolloverRequest struct {
	CompanyID      snowflake.ID
	FromFiscalYear int
}

// RolloverProjectDetail is the per-project outcome of a rollover.
type RolloverProjectDetail struct {
	ProjectID snowflake.ID `json:"project_id"`
	Contract  int64        `json:"contract"`
	Earned    int64        `json:"earned"`
	Carryover int64        `json:"carryover"`
}

// RolloverResult summarizes one committed fiscal-year transition.
type RolloverResult struct {
	FromFiscalYear     int                     `json:"from_fiscal_year"`
	ToFiscalYear       int                     `json:"to_fiscal_year"`
	ProjectsUpdated    int                     `json:"projects_updated"`
	TotalCarryover     int64                   `json:"total_carryover"`
	OpeningBankBalance int64                   `json:"opening_bank_balance"`
	Details            []RolloverProjectDetail `json:"details"`
}

var (
	ErrInvalidCompany         = errors.New("invalid_company")
	ErrInvalidFiscalYear      = errors.New("invalid_fiscal_year")
	ErrInvalidSettlementMonth = errors.New("invalid_settlement_month")
	ErrFiscalInfoNotFound     = errors.New("fiscal_info_not_found")
	ErrRolloverConflict       = errors.New("rollover_conflict")
	ErrChangeNotConfirmed     = errors.New("change_not_confirmed")
)
