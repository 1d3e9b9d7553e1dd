package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	fiscaldomain "github.com/buildwise/kessan/internal/fiscal/domain"
	paymentcycle "github.com/buildwise/kessan/internal/paymentcycle/domain"
	projectdomain "github.com/buildwise/kessan/internal/project/domain"
	revenuedomain "github.com/buildwise/kessan/internal/revenue/domain"
)

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Service aggregates revenue-bearing records into fiscal month buckets.
type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p ServiceParam) revenuedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("revenue.service"),
	}
}

// GetRevenueSchedule builds the fiscal-year projection for a company in a
// single pass over its projects and billing rows. Overhead projects are
// skipped, CADDON projects contribute only their billing statements, split
// schedules replace the end-date model, and everything else books the
// contract amount at the payment date resolved from the client's cycle.
// Buckets outside the fiscal window are dropped, not shifted.
func (s *Service) GetRevenueSchedule(ctx context.Context, fc fiscaldomain.FiscalContext) (revenuedomain.Schedule, error) {
	if err := fc.Validate(); err != nil {
		return revenuedomain.Schedule{}, err
	}

	projects, err := s.loadProjects(ctx, fc)
	if err != nil {
		return revenuedomain.Schedule{}, err
	}
	clients, err := s.loadClients(ctx, fc)
	if err != nil {
		return revenuedomain.Schedule{}, err
	}
	caddonRows, err := s.loadCaddonBillings(ctx, fc)
	if err != nil {
		return revenuedomain.Schedule{}, err
	}
	splitRows, err := s.loadSplitBillings(ctx, fc)
	if err != nil {
		return revenuedomain.Schedule{}, err
	}

	buckets := make(map[fiscaldomain.YearMonth]int64, 12)
	for _, p := range projects {
		switch p.Classification() {
		case projectdomain.ClassificationOverhead:
			continue

		case projectdomain.ClassificationCaddon:
			for _, row := range caddonRows[p.ID] {
				if row.TotalAmount <= 0 {
					continue
				}
				buckets[fiscaldomain.YearMonth{Year: row.BillingYear, Month: time.Month(row.BillingMonth)}] += row.TotalAmount
			}

		default:
			if rows, ok := splitRows[p.ID]; ok {
				for _, row := range rows {
					if row.Amount <= 0 {
						continue
					}
					buckets[fiscaldomain.YearMonth{Year: row.BillingYear, Month: time.Month(row.BillingMonth)}] += row.Amount
				}
				continue
			}
			if p.EndDate == nil || p.ContractAmount == nil || *p.ContractAmount <= 0 {
				continue
			}
			ym, err := s.recognitionMonth(p, clients)
			if err != nil {
				return revenuedomain.Schedule{}, err
			}
			buckets[ym] += *p.ContractAmount
		}
	}

	months := fiscaldomain.MonthsInFiscalYear(fc.FiscalYear, fc.SettlementMonth)
	schedule := revenuedomain.Schedule{
		FiscalYear:       fc.FiscalYear,
		MonthlyTotals:    make([]revenuedomain.MonthlyTotal, 0, len(months)),
		FiscalStartMonth: months[0].Month,
		FiscalEndMonth:   months[len(months)-1].Month,
	}
	for _, ym := range months {
		amount := buckets[ym]
		schedule.MonthlyTotals = append(schedule.MonthlyTotals, revenuedomain.MonthlyTotal{
			Year:   ym.Year,
			Month:  ym.Month,
			Amount: amount,
		})
		schedule.AnnualTotal += amount
	}
	return schedule, nil
}

// recognitionMonth resolves where a completion-date project books its
// contract. With a client configured, the payment date from the billing
// cycle decides the bucket; without one there is no cycle to apply and the
// end date itself does.
func (s *Service) recognitionMonth(p projectdomain.Project, clients map[snowflake.ID]projectdomain.Client) (fiscaldomain.YearMonth, error) {
	if p.ClientID == nil {
		return fiscaldomain.YearMonth{Year: p.EndDate.Year(), Month: p.EndDate.Month()}, nil
	}
	client, ok := clients[*p.ClientID]
	if !ok {
		return fiscaldomain.YearMonth{}, fmt.Errorf("%w: project %d references missing client %d",
			revenuedomain.ErrUnresolvedPaymentDate, p.ID, *p.ClientID)
	}
	paymentDate, err := paymentcycle.Resolve(*p.EndDate, client.BillingCycle())
	if err != nil {
		return fiscaldomain.YearMonth{}, fmt.Errorf("%w: project %d: %v",
			revenuedomain.ErrUnresolvedPaymentDate, p.ID, err)
	}
	return fiscaldomain.YearMonth{Year: paymentDate.Year(), Month: paymentDate.Month()}, nil
}

func (s *Service) loadProjects(ctx context.Context, fc fiscaldomain.FiscalContext) ([]projectdomain.Project, error) {
	var projects []projectdomain.Project
	if err := s.db.WithContext(ctx).
		Where("company_id = ?", fc.CompanyID).
		Order("id").
		Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *Service) loadClients(ctx context.Context, fc fiscaldomain.FiscalContext) (map[snowflake.ID]projectdomain.Client, error) {
	var clients []projectdomain.Client
	if err := s.db.WithContext(ctx).
		Where("company_id = ?", fc.CompanyID).
		Find(&clients).Error; err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]projectdomain.Client, len(clients))
	for _, c := range clients {
		byID[c.ID] = c
	}
	return byID, nil
}

func (s *Service) loadCaddonBillings(ctx context.Context, fc fiscaldomain.FiscalContext) (map[snowflake.ID][]projectdomain.CaddonBilling, error) {
	var rows []projectdomain.CaddonBilling
	if err := s.db.WithContext(ctx).
		Joins("JOIN projects ON projects.id = caddon_billings.project_id").
		Where("projects.company_id = ?", fc.CompanyID).
		Order("caddon_billings.billing_year, caddon_billings.billing_month").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	byProject := make(map[snowflake.ID][]projectdomain.CaddonBilling)
	for _, row := range rows {
		byProject[row.ProjectID] = append(byProject[row.ProjectID], row)
	}
	return byProject, nil
}

func (s *Service) loadSplitBillings(ctx context.Context, fc fiscaldomain.FiscalContext) (map[snowflake.ID][]projectdomain.SplitBilling, error) {
	var rows []projectdomain.SplitBilling
	if err := s.db.WithContext(ctx).
		Joins("JOIN projects ON projects.id = split_billings.project_id").
		Where("projects.company_id = ?", fc.CompanyID).
		Order("split_billings.billing_year, split_billings.billing_month").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	byProject := make(map[snowflake.ID][]projectdomain.SplitBilling)
	for _, row := range rows {
		byProject[row.ProjectID] = append(byProject[row.ProjectID], row)
	}
	return byProject, nil
}
