package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	companydomain "github.com/buildwise/kessan/internal/company/domain"
	fiscaldomain "github.com/buildwise/kessan/internal/fiscal/domain"
)

// EnsureDefaultCompany bootstraps one company with current fiscal settings
// so a fresh install is immediately usable.
func EnsureDefaultCompany(db *gorm.DB, name string, settlementMonth int) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if name == "" {
		return errors.New("seed company name is required")
	}
	if settlementMonth < 1 || settlementMonth > 12 {
		return fiscaldomain.ErrInvalidSettlementMonth
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var company companydomain.Company
		err := tx.WithContext(ctx).Where("name = ?", name).First(&company).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			company = companydomain.Company{
				ID:   node.Generate(),
				Name: name,
			}
			if err := tx.WithContext(ctx).Create(&company).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		var info fiscaldomain.FiscalInfo
		err = tx.WithContext(ctx).Where("company_id = ?", company.ID).First(&info).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			now := time.Now().UTC()
			info = fiscaldomain.FiscalInfo{
				ID:              node.Generate(),
				CompanyID:       company.ID,
				FiscalYear:      fiscaldomain.FiscalYearOf(now, time.Month(settlementMonth)),
				SettlementMonth: settlementMonth,
				CurrentPeriod:   1,
			}
			return tx.WithContext(ctx).Create(&info).Error
		}
		return err
	})
}
