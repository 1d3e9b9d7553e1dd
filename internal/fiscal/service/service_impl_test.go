package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/buildwise/kessan/internal/audit"
	auditdomain "github.com/buildwise/kessan/internal/audit/domain"
	"github.com/buildwise/kessan/internal/clock"
	companydomain "github.com/buildwise/kessan/internal/company/domain"
	"github.com/buildwise/kessan/internal/events"
	fiscaldomain "github.com/buildwise/kessan/internal/fiscal/domain"
	projectdomain "github.com/buildwise/kessan/internal/project/domain"
)

var testNow = time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db  *gorm.DB
	svc *Service
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&companydomain.Company{},
		&projectdomain.Client{},
		&projectdomain.Project{},
		&projectdomain.CaddonBilling{},
		&projectdomain.SplitBilling{},
		&projectdomain.ProjectProgress{},
		&projectdomain.CostEntry{},
		&fiscaldomain.FiscalInfo{},
		&fiscaldomain.ProjectFiscalSummary{},
		&fiscaldomain.BankBalanceHistory{},
		&fiscaldomain.FiscalPeriodChange{},
		&events.FiscalEvent{},
		&auditdomain.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	svc := &Service{
		db:     db,
		log:    zap.NewNop(),
		genID:  node,
		clock:  clock.Fixed(testNow),
		outbox: events.NewOutbox(db, node),
		audit:  audit.NewRepository(node),
	}
	return &fixture{db: db, svc: svc}
}

var fixtureIDs snowflake.ID = 1 << 20

func nextID() snowflake.ID {
	fixtureIDs++
	return fixtureIDs
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("parse %s: %v", value, err)
	}
	return d
}

func (f *fixture) seedCompany(t *testing.T, fiscalYear, settlementMonth int, bankBalance int64) snowflake.ID {
	t.Helper()
	company := companydomain.Company{ID: nextID(), Name: fmt.Sprintf("company-%d", nextID())}
	if err := f.db.Create(&company).Error; err != nil {
		t.Fatalf("insert company: %v", err)
	}
	info := fiscaldomain.FiscalInfo{
		ID:              nextID(),
		CompanyID:       company.ID,
		FiscalYear:      fiscalYear,
		SettlementMonth: settlementMonth,
		CurrentPeriod:   1,
		BankBalance:     bankBalance,
	}
	if err := f.db.Create(&info).Error; err != nil {
		t.Fatalf("insert fiscal info: %v", err)
	}
	return company.ID
}

func (f *fixture) seedProject(t *testing.T, companyID snowflake.ID, code string, contract *int64, endDate *time.Time) snowflake.ID {
	t.Helper()
	p := projectdomain.Project{
		ID:             nextID(),
		CompanyID:      companyID,
		Code:           code,
		Name:           "project " + code,
		ContractAmount: contract,
		EndDate:        endDate,
	}
	if err := f.db.Create(&p).Error; err != nil {
		t.Fatalf("insert project: %v", err)
	}
	return p.ID
}

func (f *fixture) seedProgress(t *testing.T, projectID snowflake.ID, date string, earned int64) {
	t.Helper()
	row := projectdomain.ProjectProgress{
		ID:                 nextID(),
		ProjectID:          projectID,
		ProgressDate:       mustDate(t, date),
		RevenueRecognition: earned,
	}
	if err := f.db.Create(&row).Error; err != nil {
		t.Fatalf("insert progress: %v", err)
	}
}

func amount(v int64) *int64 { return &v }

func TestRolloverCarriesForwardUnrecognizedValue(t *testing.T) {
	f := setupFixture(t)
	companyID := f.seedCompany(t, 2025, 3, 2_500_000)

	p1 := f.seedProject(t, companyID, "P-1", amount(1_000_000), nil)
	f.seedProgress(t, p1, "2025-06-30", 600_000)
	// Progress before the fiscal window must not count.
	f.seedProgress(t, p1, "2025-03-31", 250_000)

	// Recognized revenue above the contract clamps carryover at zero.
	p2 := f.seedProject(t, companyID, "P-2", amount(2_000_000), nil)
	f.seedProgress(t, p2, "2026-01-15", 2_500_000)

	// No contract amount: excluded from the rollover entirely.
	f.seedProject(t, companyID, "P-3", nil, nil)

	result, err := f.svc.Rollover(context.Background(), fiscaldomain.RolloverRequest{
		CompanyID:      companyID,
		FromFiscalYear: 2025,
	})
	if err != nil {
		t.Fatalf("rollover: %v", err)
	}

	if result.FromFiscalYear != 2025 || result.ToFiscalYear != 2026 {
		t.Errorf("transition = %d->%d", result.FromFiscalYear, result.ToFiscalYear)
	}
	if result.ProjectsUpdated != 2 {
		t.Fatalf("projects updated = %d, want 2", result.ProjectsUpdated)
	}
	if result.TotalCarryover != 400_000 {
		t.Errorf("total carryover = %d, want 400000", result.TotalCarryover)
	}
	if result.OpeningBankBalance != 2_500_000 {
		t.Errorf("opening bank balance = %d", result.OpeningBankBalance)
	}
	for _, detail := range result.Details {
		if detail.Carryover < 0 {
			t.Errorf("project %s carryover negative: %d", detail.ProjectID, detail.Carryover)
		}
	}

	var closing fiscaldomain.ProjectFiscalSummary
	if err := f.db.Where("project_id = ? AND fiscal_year = ?", p1, 2025).First(&closing).Error; err != nil {
		t.Fatalf("load closing summary: %v", err)
	}
	if closing.OpeningContractAmount != 1_000_000 || closing.YearRevenueRecognized != 600_000 || closing.ClosingCarryover != 400_000 {
		t.Errorf("closing summary = %+v", closing)
	}

	var opening fiscaldomain.ProjectFiscalSummary
	if err := f.db.Where("project_id = ? AND fiscal_year = ?", p1, 2026).First(&opening).Error; err != nil {
		t.Fatalf("load opening summary: %v", err)
	}
	if opening.OpeningContractAmount != 400_000 {
		t.Errorf("opening contract = %d, want carryover 400000", opening.OpeningContractAmount)
	}

	var overEarned fiscaldomain.ProjectFiscalSummary
	if err := f.db.Where("project_id = ? AND fiscal_year = ?", p2, 2025).First(&overEarned).Error; err != nil {
		t.Fatalf("load over-earned summary: %v", err)
	}
	if overEarned.ClosingCarryover != 0 {
		t.Errorf("over-earned carryover = %d, want 0", overEarned.ClosingCarryover)
	}

	var history fiscaldomain.BankBalanceHistory
	if err := f.db.Where("company_id = ? AND fiscal_year = ?", companyID, 2026).First(&history).Error; err != nil {
		t.Fatalf("load bank history: %v", err)
	}
	if history.OpeningBalance != 2_500_000 || history.ClosingBalance != 2_500_000 {
		t.Errorf("bank history = %+v", history)
	}
	if history.TotalIncome != 0 || history.TotalExpense != 0 {
		t.Errorf("new-year income/expense must start at zero: %+v", history)
	}

	var info fiscaldomain.FiscalInfo
	if err := f.db.Where("company_id = ?", companyID).First(&info).Error; err != nil {
		t.Fatalf("load fiscal info: %v", err)
	}
	if info.FiscalYear != 2026 {
		t.Errorf("fiscal year pointer = %d, want 2026", info.FiscalYear)
	}
	if info.CurrentPeriod != 2 {
		t.Errorf("current period = %d, want 2", info.CurrentPeriod)
	}

	var eventCount int64
	if err := f.db.Model(&events.FiscalEvent{}).Where("company_id = ?", companyID).Count(&eventCount).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 1 {
		t.Errorf("event count = %d, want 1", eventCount)
	}
}

func TestRolloverIdempotent(t *testing.T) {
	f := setupFixture(t)
	companyID := f.seedCompany(t, 2025, 3, 1_000_000)
	p1 := f.seedProject(t, companyID, "P-1", amount(1_000_000), nil)
	f.seedProgress(t, p1, "2025-08-10", 300_000)

	first, err := f.svc.Rollover(context.Background(), fiscaldomain.RolloverRequest{
		CompanyID:      companyID,
		FromFiscalYear: 2025,
	})
	if err != nil {
		t.Fatalf("first rollover: %v", err)
	}
	second, err := f.svc.Rollover(context.Background(), fiscaldomain.RolloverRequest{
		CompanyID:      companyID,
		FromFiscalYear: 2025,
	})
	if err != nil {
		t.Fatalf("second rollover: %v", err)
	}

	if first.TotalCarryover != second.TotalCarryover {
		t.Errorf("carryover differs across runs: %d vs %d", first.TotalCarryover, second.TotalCarryover)
	}

	var summaryCount int64
	if err := f.db.Model(&fiscaldomain.ProjectFiscalSummary{}).Where("project_id = ?", p1).Count(&summaryCount).Error; err != nil {
		t.Fatalf("count summaries: %v", err)
	}
	if summaryCount != 2 {
		t.Errorf("summary rows = %d, want 2 (one per fiscal year, no duplicates)", summaryCount)
	}

	var closing fiscaldomain.ProjectFiscalSummary
	if err := f.db.Where("project_id = ? AND fiscal_year = ?", p1, 2025).First(&closing).Error; err != nil {
		t.Fatalf("load summary: %v", err)
	}
	if closing.ClosingCarryover != 700_000 {
		t.Errorf("carryover = %d, want 700000", closing.ClosingCarryover)
	}

	var historyCount int64
	if err := f.db.Model(&fiscaldomain.BankBalanceHistory{}).Where("company_id = ?", companyID).Count(&historyCount).Error; err != nil {
		t.Fatalf("count history: %v", err)
	}
	if historyCount != 1 {
		t.Errorf("bank history rows = %d, want 1", historyCount)
	}

	var info fiscaldomain.FiscalInfo
	if err := f.db.Where("company_id = ?", companyID).First(&info).Error; err != nil {
		t.Fatalf("load fiscal info: %v", err)
	}
	if info.FiscalYear != 2026 {
		t.Errorf("fiscal year = %d, want 2026", info.FiscalYear)
	}
	if info.CurrentPeriod != 2 {
		t.Errorf("current period = %d, want 2 (re-run must not advance again)", info.CurrentPeriod)
	}
}

func TestRolloverConflict(t *testing.T) {
	f := setupFixture(t)
	companyID := f.seedCompany(t, 2027, 3, 0)

	_, err := f.svc.Rollover(context.Background(), fiscaldomain.RolloverRequest{
		CompanyID:      companyID,
		FromFiscalYear: 2025,
	})
	if !errors.Is(err, fiscaldomain.ErrRolloverConflict) {
		t.Fatalf("expected ErrRolloverConflict, got %v", err)
	}

	var summaryCount int64
	if err := f.db.Model(&fiscaldomain.ProjectFiscalSummary{}).Count(&summaryCount).Error; err != nil {
		t.Fatalf("count summaries: %v", err)
	}
	if summaryCount != 0 {
		t.Errorf("rejected rollover must not write summaries, found %d", summaryCount)
	}
}

func TestRolloverUnknownCompany(t *testing.T) {
	f := setupFixture(t)
	_, err := f.svc.Rollover(context.Background(), fiscaldomain.RolloverRequest{
		CompanyID:      nextID(),
		FromFiscalYear: 2025,
	})
	if !errors.Is(err, fiscaldomain.ErrFiscalInfoNotFound) {
		t.Fatalf("expected ErrFiscalInfoNotFound, got %v", err)
	}
}

func TestAnalyzeChangeReadOnlyAndRepeatable(t *testing.T) {
	f := setupFixture(t)
	companyID := f.seedCompany(t, 2025, 3, 0)

	// End date June 2025: FY2025 under March settlement, FY2024 under June.
	end := mustDate(t, "2025-06-10")
	f.seedProject(t, companyID, "P-1", amount(1_000_000), &end)

	// Cost in May 2025 moves the same way; cost in October does not move.
	for _, entry := range []projectdomain.CostEntry{
		{ID: nextID(), CompanyID: companyID, EntryDate: mustDate(t, "2025-05-10"), Amount: 120_000, Category: "materials"},
		{ID: nextID(), CompanyID: companyID, EntryDate: mustDate(t, "2025-10-05"), Amount: 80_000, Category: "labor"},
	} {
		if err := f.db.Create(&entry).Error; err != nil {
			t.Fatalf("insert cost entry: %v", err)
		}
	}

	req := fiscaldomain.AnalyzeChangeRequest{
		CompanyID:           companyID,
		FromSettlementMonth: time.March,
		ToSettlementMonth:   time.June,
	}
	report, err := f.svc.AnalyzeChange(context.Background(), req)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if report.AffectedRecords != 2 {
		t.Errorf("affected records = %d, want 2", report.AffectedRecords)
	}
	if report.ProjectCount != 1 {
		t.Errorf("project count = %d, want 1", report.ProjectCount)
	}
	if report.RevenueImpact != -1_000_000 {
		t.Errorf("revenue impact = %d, want -1000000 (moves to earlier year)", report.RevenueImpact)
	}
	if report.CostImpact != -120_000 {
		t.Errorf("cost impact = %d, want -120000", report.CostImpact)
	}

	again, err := f.svc.AnalyzeChange(context.Background(), req)
	if err != nil {
		t.Fatalf("re-analyze: %v", err)
	}
	if again != report {
		t.Errorf("analysis not repeatable: %+v vs %+v", report, again)
	}

	var info fiscaldomain.FiscalInfo
	if err := f.db.Where("company_id = ?", companyID).First(&info).Error; err != nil {
		t.Fatalf("load fiscal info: %v", err)
	}
	if info.SettlementMonth != 3 {
		t.Errorf("analyzer mutated settlement month to %d", info.SettlementMonth)
	}
}

func TestAnalyzeChangeValidation(t *testing.T) {
	f := setupFixture(t)
	_, err := f.svc.AnalyzeChange(context.Background(), fiscaldomain.AnalyzeChangeRequest{
		CompanyID:           nextID(),
		FromSettlementMonth: time.March,
		ToSettlementMonth:   0,
	})
	if !errors.Is(err, fiscaldomain.ErrInvalidSettlementMonth) {
		t.Fatalf("expected ErrInvalidSettlementMonth, got %v", err)
	}
}

func TestChangeFiscalPeriodCommits(t *testing.T) {
	f := setupFixture(t)
	companyID := f.seedCompany(t, 2025, 3, 0)
	end := mustDate(t, "2025-06-10")
	f.seedProject(t, companyID, "P-1", amount(1_000_000), &end)

	result, err := f.svc.ChangeFiscalPeriod(context.Background(), fiscaldomain.ChangeFiscalPeriodRequest{
		CompanyID:         companyID,
		ToFiscalYear:      2025,
		ToSettlementMonth: time.June,
		Reason:            "align with parent company",
	})
	if err != nil {
		t.Fatalf("change: %v", err)
	}

	if result.NewFiscalInfo.SettlementMonth != 6 {
		t.Errorf("new settlement month = %d, want 6", result.NewFiscalInfo.SettlementMonth)
	}
	if result.Impact.ProjectCount != 1 {
		t.Errorf("impact project count = %d, want 1", result.Impact.ProjectCount)
	}

	var change fiscaldomain.FiscalPeriodChange
	if err := f.db.Where("company_id = ?", companyID).First(&change).Error; err != nil {
		t.Fatalf("load change row: %v", err)
	}
	if change.FromSettlementMonth != 3 || change.ToSettlementMonth != 6 {
		t.Errorf("change row = %+v", change)
	}
	if change.Reason != "align with parent company" {
		t.Errorf("reason = %q", change.Reason)
	}

	var auditCount int64
	if err := f.db.Model(&auditdomain.AuditLog{}).
		Where("action = ?", auditdomain.ActionFiscalPeriodChanged).
		Count(&auditCount).Error; err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if auditCount != 1 {
		t.Errorf("audit rows = %d, want 1", auditCount)
	}

	var eventCount int64
	if err := f.db.Model(&events.FiscalEvent{}).
		Where("company_id = ? AND event_type = ?", companyID, events.EventFiscalPeriodChanged).
		Count(&eventCount).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 1 {
		t.Errorf("event rows = %d, want 1", eventCount)
	}
}

func TestGetFiscalInfoNotFound(t *testing.T) {
	f := setupFixture(t)
	_, err := f.svc.GetFiscalInfo(context.Background(), nextID())
	if !errors.Is(err, fiscaldomain.ErrFiscalInfoNotFound) {
		t.Fatalf("expected ErrFiscalInfoNotFound, got %v", err)
	}
}
