package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// FiscalContext carries the fiscal settings every computation runs under.
// Callers build it from the company's authoritative FiscalInfo row; it is
// never read from ambient session state.
type FiscalContext struct {
	CompanyID       snowflake.ID
	FiscalYear      int
	SettlementMonth time.Month
}

// Validate rejects a context no classifier call could satisfy.
func (c FiscalContext) Validate() error {
	if c.CompanyID == 0 {
		return ErrInvalidCompany
	}
	if err := ValidateFiscalYear(c.FiscalYear); err != nil {
		return err
	}
	return ValidateSettlementMonth(c.SettlementMonth)
}

// FiscalInfo is the current fiscal settings row for a company. Exactly one
// row exists per company; superseded values live in fiscal_period_changes.
type FiscalInfo struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID       snowflake.ID `gorm:"not null;uniqueIndex" json:"company_id"`
	FiscalYear      int          `gorm:"not null" json:"fiscal_year"`
	SettlementMonth int          `gorm:"not null" json:"settlement_month"`
	CurrentPeriod   int          `gorm:"not null;default:1" json:"current_period"`
	BankBalance     int64        `gorm:"not null;default:0" json:"bank_balance"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (FiscalInfo) TableName() string { return "fiscal_info" }

// Context builds the FiscalContext for this row.
func (f FiscalInfo) Context() FiscalContext {
	return FiscalContext{
		CompanyID:       f.CompanyID,
		FiscalYear:      f.FiscalYear,
		SettlementMonth: time.Month(f.SettlementMonth),
	}
}

// ProjectFiscalSummary is the per-project year-end closing record written by
// the rollover engine. closing_carryover_amount is never negative.
type ProjectFiscalSummary struct {
	ID                    snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID             snowflake.ID `gorm:"not null;uniqueIndex:ux_project_fiscal_summary,priority:1" json:"project_id"`
	FiscalYear            int          `gorm:"not null;uniqueIndex:ux_project_fiscal_summary,priority:2" json:"fiscal_year"`
	OpeningContractAmount int64        `gorm:"not null" json:"opening_contract_amount"`
	YearRevenueRecognized int64        `gorm:"not null" json:"year_revenue_recognized"`
	ClosingCarryover      int64        `gorm:"column:closing_carryover_amount;not null" json:"closing_carryover_amount"`
	CreatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ProjectFiscalSummary) TableName() string { return "project_fiscal_summaries" }

// BankBalanceHistory seeds a fiscal year's opening bank balance. One row per
// company and fiscal year, appended during rollover.
type BankBalanceHistory struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID      snowflake.ID `gorm:"not null;uniqueIndex:ux_bank_balance_year,priority:1" json:"company_id"`
	FiscalYear     int          `gorm:"not null;uniqueIndex:ux_bank_balance_year,priority:2" json:"fiscal_year"`
	BalanceDate    time.Time    `gorm:"not null" json:"balance_date"`
	OpeningBalance int64        `gorm:"not null" json:"opening_balance"`
	ClosingBalance int64        `gorm:"not null" json:"closing_balance"`
	TotalIncome    int64        `gorm:"not null;default:0" json:"total_income"`
	TotalExpense   int64        `gorm:"not null;default:0" json:"total_expense"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (BankBalanceHistory) TableName() string { return "bank_balance_histories" }

// FiscalPeriodChange records a confirmed settlement-month change together
// with the impact analysis the user approved.
type FiscalPeriodChange struct {
	ID                  snowflake.ID      `gorm:"primaryKey" json:"id"`
	CompanyID           snowflake.ID      `gorm:"not null;index" json:"company_id"`
	ChangeDate          time.Time         `gorm:"not null" json:"change_date"`
	FromFiscalYear      int               `gorm:"not null" json:"from_fiscal_year"`
	FromSettlementMonth int               `gorm:"not null" json:"from_settlement_month"`
	ToFiscalYear        int               `gorm:"not null" json:"to_fiscal_year"`
	ToSettlementMonth   int               `gorm:"not null" json:"to_settlement_month"`
	Reason              string            `gorm:"type:text" json:"reason"`
	Impact              datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"impact"`
	CreatedAt           time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (FiscalPeriodChange) TableName() string { return "fiscal_period_changes" }
