package events

// Fiscal event types published through the outbox.
const (
	EventRolloverCompleted   = "rollover.completed"
	EventFiscalPeriodChanged = "fiscal_period.changed"
)

// RolloverPayload captures the minimal data downstream consumers need to
// react to a completed year-end rollover.
type RolloverPayload struct {
	CompanyID      string `json:"company_id"`
	FromFiscalYear int    `json:"from_fiscal_year"`
	ToFiscalYear   int    `json:"to_fiscal_year"`
	TotalCarryover int64  `json:"total_carryover"`
}

// ToMap converts the payload into an outbox-friendly map.
func (p RolloverPayload) ToMap() map[string]any {
	return map[string]any{
		"company_id":       p.CompanyID,
		"from_fiscal_year": p.FromFiscalYear,
		"to_fiscal_year":   p.ToFiscalYear,
		"total_carryover":  p.TotalCarryover,
	}
}

// PeriodChangePayload describes a committed settlement-month change.
type PeriodChangePayload struct {
	CompanyID           string `json:"company_id"`
	FromSettlementMonth int    `json:"from_settlement_month"`
	ToSettlementMonth   int    `json:"to_settlement_month"`
	ToFiscalYear        int    `json:"to_fiscal_year"`
}

// ToMap converts the payload into an outbox-friendly map.
func (p PeriodChangePayload) ToMap() map[string]any {
	return map[string]any{
		"company_id":            p.CompanyID,
		"from_settlement_month": p.FromSettlementMonth,
		"to_settlement_month":   p.ToSettlementMonth,
		"to_fiscal_year":        p.ToFiscalYear,
	}
}
