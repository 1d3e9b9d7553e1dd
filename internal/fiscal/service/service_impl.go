package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	auditdomain "github.com/buildwise/kessan/internal/audit/domain"
	"github.com/buildwise/kessan/internal/clock"
	"github.com/buildwise/kessan/internal/events"
	fiscaldomain "github.com/buildwise/kessan/internal/fiscal/domain"
	paymentcycle "github.com/buildwise/kessan/internal/paymentcycle/domain"
	projectdomain "github.com/buildwise/kessan/internal/project/domain"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Outbox *events.Outbox
	Audit  auditdomain.Repository
}

// Service implements the fiscal period engine's mutating side plus the
// read-only change analyzer.
type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	outbox *events.Outbox
	audit  auditdomain.Repository
}

func NewService(p ServiceParam) fiscaldomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("fiscal.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		outbox: p.Outbox,
		audit:  p.Audit,
	}
}

// GetFiscalInfo loads the authoritative fiscal settings row for a company.
func (s *Service) GetFiscalInfo(ctx context.Context, companyID snowflake.ID) (fiscaldomain.FiscalInfo, error) {
	if companyID == 0 {
		return fiscaldomain.FiscalInfo{}, fiscaldomain.ErrInvalidCompany
	}
	var info fiscaldomain.FiscalInfo
	err := s.db.WithContext(ctx).Where("company_id = ?", companyID).First(&info).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiscaldomain.FiscalInfo{}, fiscaldomain.ErrFiscalInfoNotFound
	}
	if err != nil {
		return fiscaldomain.FiscalInfo{}, err
	}
	return info, nil
}

// fiscalRecord is one dated, amount-bearing record the analyzer classifies.
type fiscalRecord struct {
	projectID snowflake.ID
	date      time.Time
	amount    int64
	isCost    bool
}

// AnalyzeChange computes the read-only fiscal-year diff for a prospective
// settlement-month change. It mutates nothing and can be re-run freely.
func (s *Service) AnalyzeChange(ctx context.Context, req fiscaldomain.AnalyzeChangeRequest) (fiscaldomain.ImpactReport, error) {
	if err := req.Validate(); err != nil {
		return fiscaldomain.ImpactReport{}, err
	}

	records, err := s.collectRecords(ctx, req.CompanyID)
	if err != nil {
		return fiscaldomain.ImpactReport{}, err
	}

	report := fiscaldomain.ImpactReport{}
	affectedProjects := make(map[snowflake.ID]struct{})
	for _, rec := range records {
		fromYear := fiscaldomain.FiscalYearOf(rec.date, req.FromSettlementMonth)
		toYear := fiscaldomain.FiscalYearOf(rec.date, req.ToSettlementMonth)
		if fromYear == toYear {
			continue
		}
		report.AffectedRecords++
		if rec.projectID != 0 {
			affectedProjects[rec.projectID] = struct{}{}
		}
		moved := rec.amount
		if toYear < fromYear {
			moved = -moved
		}
		if rec.isCost {
			report.CostImpact += moved
		} else {
			report.RevenueImpact += moved
		}
	}
	report.ProjectCount = len(affectedProjects)
	return report, nil
}

// ChangeFiscalPeriod runs the analyzer and then commits the new settlement
// month, recording the approved impact alongside the change.
func (s *Service) ChangeFiscalPeriod(ctx context.Context, req fiscaldomain.ChangeFiscalPeriodRequest) (fiscaldomain.ChangeFiscalPeriodResult, error) {
	if req.CompanyID == 0 {
		return fiscaldomain.ChangeFiscalPeriodResult{}, fiscaldomain.ErrInvalidCompany
	}
	if err := fiscaldomain.ValidateSettlementMonth(req.ToSettlementMonth); err != nil {
		return fiscaldomain.ChangeFiscalPeriodResult{}, err
	}
	if err := fiscaldomain.ValidateFiscalYear(req.ToFiscalYear); err != nil {
		return fiscaldomain.ChangeFiscalPeriodResult{}, err
	}

	info, err := s.GetFiscalInfo(ctx, req.CompanyID)
	if err != nil {
		return fiscaldomain.ChangeFiscalPeriodResult{}, err
	}

	impact, err := s.AnalyzeChange(ctx, fiscaldomain.AnalyzeChangeRequest{
		CompanyID:           req.CompanyID,
		FromSettlementMonth: time.Month(info.SettlementMonth),
		ToSettlementMonth:   req.ToSettlementMonth,
	})
	if err != nil {
		return fiscaldomain.ChangeFiscalPeriodResult{}, err
	}

	changeDate := req.ChangeDate
	if changeDate.IsZero() {
		changeDate = s.clock.Now()
	}
	change := fiscaldomain.FiscalPeriodChange{
		ID:                  s.genID.Generate(),
		CompanyID:           req.CompanyID,
		ChangeDate:          changeDate,
		FromFiscalYear:      info.FiscalYear,
		FromSettlementMonth: info.SettlementMonth,
		ToFiscalYear:        req.ToFiscalYear,
		ToSettlementMonth:   int(req.ToSettlementMonth),
		Reason:              req.Reason,
		Impact: datatypes.JSONMap{
			"project_count":    impact.ProjectCount,
			"affected_records": impact.AffectedRecords,
			"revenue_impact":   impact.RevenueImpact,
			"cost_impact":      impact.CostImpact,
		},
		CreatedAt: s.clock.Now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.lockFiscalInfo(ctx, tx, req.CompanyID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := tx.WithContext(ctx).Model(&fiscaldomain.FiscalInfo{}).
			Where("id = ?", locked.ID).
			Updates(map[string]any{
				"fiscal_year":      req.ToFiscalYear,
				"settlement_month": int(req.ToSettlementMonth),
				"updated_at":       now,
			}).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Create(&change).Error; err != nil {
			return err
		}
		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			CompanyID: req.CompanyID,
			Type:      events.EventFiscalPeriodChanged,
			Payload: events.PeriodChangePayload{
				CompanyID:           req.CompanyID.String(),
				FromSettlementMonth: info.SettlementMonth,
				ToSettlementMonth:   int(req.ToSettlementMonth),
				ToFiscalYear:        req.ToFiscalYear,
			}.ToMap(),
			DedupeKey: fmt.Sprintf("period-change:%s:%s", req.CompanyID, changeDate.Format("2006-01-02T15:04:05")),
		}); err != nil {
			return err
		}
		return s.recordAudit(ctx, tx, req.CompanyID, auditdomain.ActionFiscalPeriodChanged, map[string]any{
			"from_settlement_month": info.SettlementMonth,
			"to_settlement_month":   int(req.ToSettlementMonth),
			"reason":                req.Reason,
		})
	})
	if err != nil {
		return fiscaldomain.ChangeFiscalPeriodResult{}, err
	}

	newInfo, err := s.GetFiscalInfo(ctx, req.CompanyID)
	if err != nil {
		return fiscaldomain.ChangeFiscalPeriodResult{}, err
	}
	s.log.Info("fiscal period changed",
		zap.String("company_id", req.CompanyID.String()),
		zap.Int("from_settlement_month", info.SettlementMonth),
		zap.Int("to_settlement_month", int(req.ToSettlementMonth)),
	)
	return fiscaldomain.ChangeFiscalPeriodResult{
		Impact:        impact,
		Change:        change,
		NewFiscalInfo: newInfo,
	}, nil
}

// Rollover carries unrecognized contract value into the next fiscal year and
// re-seeds the opening bank balance. The whole transition commits as one
// transaction serialized on the company's fiscal_info row; re-running the
// same transition rewrites identical rows instead of duplicating them.
func (s *Service) Rollover(ctx context.Context, req fiscaldomain.RolloverRequest) (fiscaldomain.RolloverResult, error) {
	if req.CompanyID == 0 {
		return fiscaldomain.RolloverResult{}, fiscaldomain.ErrInvalidCompany
	}
	if err := fiscaldomain.ValidateFiscalYear(req.FromFiscalYear); err != nil {
		return fiscaldomain.RolloverResult{}, err
	}

	var result fiscaldomain.RolloverResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		info, err := s.lockFiscalInfo(ctx, tx, req.CompanyID)
		if err != nil {
			return err
		}
		switch info.FiscalYear {
		case req.FromFiscalYear:
			// First run of this transition.
		case req.FromFiscalYear + 1:
			// Idempotent re-run after a committed transition.
		default:
			return fmt.Errorf("%w: fiscal_info at year %d, requested transition %d->%d",
				fiscaldomain.ErrRolloverConflict, info.FiscalYear, req.FromFiscalYear, req.FromFiscalYear+1)
		}

		earned, err := s.sumRecognizedRevenue(ctx, tx, req.CompanyID, req.FromFiscalYear, time.Month(info.SettlementMonth))
		if err != nil {
			return err
		}

		var projects []projectdomain.Project
		if err := tx.WithContext(ctx).
			Where("company_id = ? AND contract_amount IS NOT NULL", req.CompanyID).
			Order("id").
			Find(&projects).Error; err != nil {
			return err
		}

		now := s.clock.Now()
		result = fiscaldomain.RolloverResult{
			FromFiscalYear:     req.FromFiscalYear,
			ToFiscalYear:       req.FromFiscalYear + 1,
			OpeningBankBalance: info.BankBalance,
		}
		for _, p := range projects {
			contract := *p.ContractAmount
			yearRevenue := earned[p.ID]
			carryover := contract - yearRevenue
			if carryover < 0 {
				carryover = 0
			}
			if err := s.upsertSummary(ctx, tx, fiscaldomain.ProjectFiscalSummary{
				ID:                    s.genID.Generate(),
				ProjectID:             p.ID,
				FiscalYear:            req.FromFiscalYear,
				OpeningContractAmount: contract,
				YearRevenueRecognized: yearRevenue,
				ClosingCarryover:      carryover,
				CreatedAt:             now,
				UpdatedAt:             now,
			}); err != nil {
				return fmt.Errorf("project %s: closing summary: %w", p.ID, err)
			}
			if err := s.upsertSummary(ctx, tx, fiscaldomain.ProjectFiscalSummary{
				ID:                    s.genID.Generate(),
				ProjectID:             p.ID,
				FiscalYear:            req.FromFiscalYear + 1,
				OpeningContractAmount: carryover,
				YearRevenueRecognized: 0,
				ClosingCarryover:      carryover,
				CreatedAt:             now,
				UpdatedAt:             now,
			}); err != nil {
				return fmt.Errorf("project %s: opening summary: %w", p.ID, err)
			}
			result.Details = append(result.Details, fiscaldomain.RolloverProjectDetail{
				ProjectID: p.ID,
				Contract:  contract,
				Earned:    yearRevenue,
				Carryover: carryover,
			})
			result.TotalCarryover += carryover
		}
		result.ProjectsUpdated = len(result.Details)

		if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "company_id"}, {Name: "fiscal_year"}},
			DoNothing: true,
		}).Create(&fiscaldomain.BankBalanceHistory{
			ID:             s.genID.Generate(),
			CompanyID:      req.CompanyID,
			FiscalYear:     req.FromFiscalYear + 1,
			BalanceDate:    now,
			OpeningBalance: info.BankBalance,
			ClosingBalance: info.BankBalance,
			CreatedAt:      now,
		}).Error; err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Model(&fiscaldomain.FiscalInfo{}).
			Where("id = ?", info.ID).
			Updates(map[string]any{
				"fiscal_year":    req.FromFiscalYear + 1,
				"current_period": gorm.Expr("current_period + ?", boolToInt(info.FiscalYear == req.FromFiscalYear)),
				"updated_at":     now,
			}).Error; err != nil {
			return err
		}

		if err := s.outbox.PublishTx(ctx, tx, events.Event{
			CompanyID: req.CompanyID,
			Type:      events.EventRolloverCompleted,
			Payload: events.RolloverPayload{
				CompanyID:      req.CompanyID.String(),
				FromFiscalYear: req.FromFiscalYear,
				ToFiscalYear:   req.FromFiscalYear + 1,
				TotalCarryover: result.TotalCarryover,
			}.ToMap(),
			DedupeKey: fmt.Sprintf("rollover:%s:%d", req.CompanyID, req.FromFiscalYear),
		}); err != nil {
			return err
		}
		return s.recordAudit(ctx, tx, req.CompanyID, auditdomain.ActionRolloverExecuted, map[string]any{
			"from_fiscal_year": req.FromFiscalYear,
			"to_fiscal_year":   req.FromFiscalYear + 1,
			"projects_updated": result.ProjectsUpdated,
			"total_carryover":  result.TotalCarryover,
		})
	})
	if err != nil {
		return fiscaldomain.RolloverResult{}, err
	}

	s.log.Info("fiscal year rolled over",
		zap.String("company_id", req.CompanyID.String()),
		zap.Int("from_fiscal_year", result.FromFiscalYear),
		zap.Int("to_fiscal_year", result.ToFiscalYear),
		zap.Int("projects_updated", result.ProjectsUpdated),
		zap.Int64("total_carryover", result.TotalCarryover),
	)
	return result, nil
}

// lockFiscalInfo loads the company's fiscal_info row under an exclusive row
// lock. Postgres needs FOR UPDATE to serialize concurrent rollovers; sqlite
// serializes writing transactions on its own.
func (s *Service) lockFiscalInfo(ctx context.Context, tx *gorm.DB, companyID snowflake.ID) (fiscaldomain.FiscalInfo, error) {
	query := tx.WithContext(ctx)
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var info fiscaldomain.FiscalInfo
	err := query.Where("company_id = ?", companyID).First(&info).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiscaldomain.FiscalInfo{}, fiscaldomain.ErrFiscalInfoNotFound
	}
	if err != nil {
		return fiscaldomain.FiscalInfo{}, err
	}
	return info, nil
}

func (s *Service) upsertSummary(ctx context.Context, tx *gorm.DB, summary fiscaldomain.ProjectFiscalSummary) error {
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}, {Name: "fiscal_year"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"opening_contract_amount",
			"year_revenue_recognized",
			"closing_carryover_amount",
			"updated_at",
		}),
	}).Create(&summary).Error
}

// sumRecognizedRevenue totals percentage-of-completion revenue per project
// over the fiscal window.
func (s *Service) sumRecognizedRevenue(ctx context.Context, tx *gorm.DB, companyID snowflake.ID, fiscalYear int, settlementMonth time.Month) (map[snowflake.ID]int64, error) {
	start, end := fiscaldomain.FiscalWindow(fiscalYear, settlementMonth)
	var rows []struct {
		ProjectID snowflake.ID
		Earned    int64
	}
	if err := tx.WithContext(ctx).Raw(
		`SELECT pp.project_id AS project_id, COALESCE(SUM(pp.revenue_recognition), 0) AS earned
		 FROM project_progress pp
		 JOIN projects p ON p.id = pp.project_id
		 WHERE p.company_id = ? AND pp.progress_date >= ? AND pp.progress_date < ?
		 GROUP BY pp.project_id`,
		companyID, start, end,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}
	earned := make(map[snowflake.ID]int64, len(rows))
	for _, row := range rows {
		earned[row.ProjectID] = row.Earned
	}
	return earned, nil
}

// collectRecords gathers every revenue/cost-bearing record for the analyzer:
// resolved payment dates (or split/CADDON billing months) on the revenue
// side, cost entry dates on the cost side.
func (s *Service) collectRecords(ctx context.Context, companyID snowflake.ID) ([]fiscalRecord, error) {
	var projects []projectdomain.Project
	if err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("id").
		Find(&projects).Error; err != nil {
		return nil, err
	}
	var clients []projectdomain.Client
	if err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Find(&clients).Error; err != nil {
		return nil, err
	}
	clientByID := make(map[snowflake.ID]projectdomain.Client, len(clients))
	for _, c := range clients {
		clientByID[c.ID] = c
	}

	var records []fiscalRecord
	for _, p := range projects {
		switch p.Classification() {
		case projectdomain.ClassificationOverhead:
			continue
		case projectdomain.ClassificationCaddon:
			var rows []projectdomain.CaddonBilling
			if err := s.db.WithContext(ctx).Where("project_id = ?", p.ID).Find(&rows).Error; err != nil {
				return nil, err
			}
			for _, row := range rows {
				if row.TotalAmount <= 0 {
					continue
				}
				records = append(records, fiscalRecord{
					projectID: p.ID,
					date:      time.Date(row.BillingYear, time.Month(row.BillingMonth), 1, 0, 0, 0, 0, time.UTC),
					amount:    row.TotalAmount,
				})
			}
		default:
			var splits []projectdomain.SplitBilling
			if err := s.db.WithContext(ctx).Where("project_id = ?", p.ID).Find(&splits).Error; err != nil {
				return nil, err
			}
			if len(splits) > 0 {
				for _, row := range splits {
					if row.Amount <= 0 {
						continue
					}
					records = append(records, fiscalRecord{
						projectID: p.ID,
						date:      time.Date(row.BillingYear, time.Month(row.BillingMonth), 1, 0, 0, 0, 0, time.UTC),
						amount:    row.Amount,
					})
				}
				continue
			}
			if p.EndDate == nil || p.ContractAmount == nil || *p.ContractAmount <= 0 {
				continue
			}
			recognitionDate := *p.EndDate
			if p.ClientID != nil {
				client, ok := clientByID[*p.ClientID]
				if !ok {
					return nil, fmt.Errorf("project %s references missing client %s", p.ID, *p.ClientID)
				}
				resolved, err := paymentcycle.Resolve(*p.EndDate, client.BillingCycle())
				if err != nil {
					return nil, fmt.Errorf("project %s: %w", p.ID, err)
				}
				recognitionDate = resolved
			}
			records = append(records, fiscalRecord{
				projectID: p.ID,
				date:      recognitionDate,
				amount:    contractOrZero(p),
			})
		}
	}

	var costs []projectdomain.CostEntry
	if err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Find(&costs).Error; err != nil {
		return nil, err
	}
	for _, entry := range costs {
		pid := snowflake.ID(0)
		if entry.ProjectID != nil {
			pid = *entry.ProjectID
		}
		records = append(records, fiscalRecord{
			projectID: pid,
			date:      entry.EntryDate,
			amount:    entry.Amount,
			isCost:    true,
		})
	}
	return records, nil
}

func (s *Service) recordAudit(ctx context.Context, tx *gorm.DB, companyID snowflake.ID, action string, metadata map[string]any) error {
	if s.audit == nil {
		return nil
	}
	target := companyID.String()
	return s.audit.Insert(ctx, tx, &auditdomain.AuditLog{
		CompanyID:  &companyID,
		ActorType:  string(auditdomain.ActorTypeSystem),
		Action:     action,
		TargetType: "fiscal_info",
		TargetID:   &target,
		Metadata:   datatypes.JSONMap(metadata),
	})
}

func contractOrZero(p projectdomain.Project) int64 {
	if p.ContractAmount == nil {
		return 0
	}
	return *p.ContractAmount
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
