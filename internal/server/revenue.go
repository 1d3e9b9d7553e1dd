package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	fiscaldomain "github.com/buildwise/kessan/internal/fiscal/domain"
)

// GetRevenueSchedule returns the fiscal-year revenue projection. The fiscal
// year defaults to the company's current one; the settlement month always
// comes from the authoritative fiscal_info row.
func (s *Server) GetRevenueSchedule(c *gin.Context) {
	companyID, err := s.resolveCompanyID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	info, err := s.fiscalInfo(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	fiscalYear := info.FiscalYear
	if raw := c.Query("fiscal_year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, newValidationError("fiscal_year", "invalid", "fiscal_year must be an integer"))
			return
		}
		fiscalYear = year
	}

	schedule, err := s.revenueSvc.GetRevenueSchedule(c.Request.Context(), fiscaldomain.FiscalContext{
		CompanyID:       companyID,
		FiscalYear:      fiscalYear,
		SettlementMonth: time.Month(info.SettlementMonth),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}
