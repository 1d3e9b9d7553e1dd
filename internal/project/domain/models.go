package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	paymentcycle "github.com/buildwise/kessan/internal/paymentcycle/domain"
)

// Classification buckets a project by how it earns revenue.
type Classification string

const (
	// ClassificationNormal recognizes the contract amount at completion.
	ClassificationNormal Classification = "normal"
	// ClassificationCaddon bills through monthly CADDON statements; the
	// contract amount itself never enters a revenue bucket.
	ClassificationCaddon Classification = "caddon"
	// ClassificationOverhead carries internal costs and contributes no
	// revenue at all.
	ClassificationOverhead Classification = "overhead"
)

// Project code prefixes and name markers the classifier matches on.
var (
	caddonCodePrefix   = "CD-"
	caddonNameMarker   = "CADDON"
	overheadCodePrefix = "OH-"
	overheadNameMarker = "OVERHEAD"
)

// Client defines how projects billed to it resolve their payment dates.
// Cycle fields are nullable; defaults apply once, in BillingCycle.
type Client struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID          snowflake.ID `gorm:"not null;index" json:"company_id"`
	Name               string       `gorm:"type:text;not null" json:"name"`
	PaymentCycleType   string       `gorm:"type:text;not null" json:"payment_cycle_type"`
	ClosingDay         *int         `json:"closing_day,omitempty"`
	PaymentMonthOffset *int         `json:"payment_month_offset,omitempty"`
	PaymentDay         *int         `json:"payment_day,omitempty"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Client) TableName() string { return "clients" }

// BillingCycle converts the row's nullable cycle columns into a concrete
// rule, applying documented defaults for unset fields. This is the only
// place defaults are filled in.
func (c Client) BillingCycle() paymentcycle.Cycle {
	cycle := paymentcycle.Cycle{
		Type:               paymentcycle.CycleType(c.PaymentCycleType),
		ClosingDay:         paymentcycle.DefaultClosingDay,
		PaymentMonthOffset: paymentcycle.DefaultPaymentMonthOffset,
		PaymentDay:         paymentcycle.DefaultPaymentDay,
	}
	if c.ClosingDay != nil {
		cycle.ClosingDay = *c.ClosingDay
	}
	if c.PaymentMonthOffset != nil {
		cycle.PaymentMonthOffset = *c.PaymentMonthOffset
	}
	if c.PaymentDay != nil {
		cycle.PaymentDay = *c.PaymentDay
	}
	return cycle
}

// Project is a construction job owned by a company.
type Project struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	CompanyID      snowflake.ID  `gorm:"not null;index" json:"company_id"`
	ClientID       *snowflake.ID `gorm:"index" json:"client_id,omitempty"`
	Code           string        `gorm:"type:text;not null;index" json:"code"`
	Name           string        `gorm:"type:text;not null" json:"name"`
	ContractAmount *int64        `json:"contract_amount,omitempty"`
	EndDate        *time.Time    `json:"end_date,omitempty"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Project) TableName() string { return "projects" }

// Classification derives the project's revenue model from its business
// number and name.
func (p Project) Classification() Classification {
	code := strings.ToUpper(strings.TrimSpace(p.Code))
	name := strings.ToUpper(p.Name)
	switch {
	case strings.HasPrefix(code, caddonCodePrefix) || strings.Contains(name, caddonNameMarker):
		return ClassificationCaddon
	case strings.HasPrefix(code, overheadCodePrefix) || strings.Contains(name, overheadNameMarker):
		return ClassificationOverhead
	default:
		return ClassificationNormal
	}
}

// CaddonBilling is one CADDON statement for a billing month.
type CaddonBilling struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID    snowflake.ID `gorm:"not null;index" json:"project_id"`
	BillingYear  int          `gorm:"not null" json:"billing_year"`
	BillingMonth int          `gorm:"not null" json:"billing_month"`
	TotalAmount  int64        `gorm:"not null" json:"total_amount"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (CaddonBilling) TableName() string { return "caddon_billings" }

// SplitBilling is one row of an explicit month-by-month billing schedule.
// Any split rows for a project replace its end-date recognition model.
type SplitBilling struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID    snowflake.ID `gorm:"not null;index" json:"project_id"`
	BillingYear  int          `gorm:"not null" json:"billing_year"`
	BillingMonth int          `gorm:"not null" json:"billing_month"`
	Amount       int64        `gorm:"not null" json:"amount"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (SplitBilling) TableName() string { return "split_billings" }

// ProjectProgress is a percentage-of-completion snapshot. RevenueRecognition
// holds the money recognized as of the record's date.
type ProjectProgress struct {
	ID                 snowflake.ID    `gorm:"primaryKey" json:"id"`
	ProjectID          snowflake.ID    `gorm:"not null;index" json:"project_id"`
	ProgressDate       time.Time       `gorm:"not null;index" json:"progress_date"`
	ProgressRate       decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"progress_rate"`
	RevenueRecognition int64           `gorm:"not null" json:"revenue_recognition"`
	CreatedAt          time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (ProjectProgress) TableName() string { return "project_progress" }

// RecognizedRevenue computes contract x rate in yen, rounding half up.
func RecognizedRevenue(contractAmount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(contractAmount).Mul(rate).Round(0).IntPart()
}

// CostEntry is a dated cost record, input to the fiscal change analyzer.
type CostEntry struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	CompanyID snowflake.ID  `gorm:"not null;index" json:"company_id"`
	ProjectID *snowflake.ID `gorm:"index" json:"project_id,omitempty"`
	EntryDate time.Time     `gorm:"not null;index" json:"entry_date"`
	Amount    int64         `gorm:"not null" json:"amount"`
	Category  string        `gorm:"type:text" json:"category"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (CostEntry) TableName() string { return "cost_entries" }
