package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	fiscaldomain "github.com/buildwise/kessan/internal/fiscal/domain"
)

// GetFiscalInfo returns the company's current fiscal settings.
func (s *Server) GetFiscalInfo(c *gin.Context) {
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
	c.JSON(http.StatusOK, gin.H{"fiscal_info": info})
}

type analyzeRequest struct {
	ToSettlementMonth int `json:"to_settlement_month"`
}

// AnalyzeFiscalPeriodChange runs the read-only impact analysis for a
// prospective settlement-month change.
func (s *Server) AnalyzeFiscalPeriodChange(c *gin.Context) {
	companyID, err := s.resolveCompanyID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	info, err := s.fiscalSvc.GetFiscalInfo(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	report, err := s.fiscalSvc.AnalyzeChange(c.Request.Context(), fiscaldomain.AnalyzeChangeRequest{
		CompanyID:           companyID,
		FromSettlementMonth: time.Month(info.SettlementMonth),
		ToSettlementMonth:   time.Month(req.ToSettlementMonth),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"impact": report})
}

type changeRequest struct {
	ChangeDate        *time.Time `json:"change_date,omitempty"`
	ToFiscalYear      int        `json:"to_fiscal_year"`
	ToSettlementMonth int        `json:"to_settlement_month"`
	Reason            string     `json:"reason"`
}

// ChangeFiscalPeriod commits a settlement-month change after re-running the
// impact analysis.
func (s *Server) ChangeFiscalPeriod(c *gin.Context) {
	companyID, err := s.resolveCompanyID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req changeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	svcReq := fiscaldomain.ChangeFiscalPeriodRequest{
		CompanyID:         companyID,
		ToFiscalYear:      req.ToFiscalYear,
		ToSettlementMonth: time.Month(req.ToSettlementMonth),
		Reason:            req.Reason,
	}
	if req.ChangeDate != nil {
		svcReq.ChangeDate = *req.ChangeDate
	}
	result, err := s.fiscalSvc.ChangeFiscalPeriod(c.Request.Context(), svcReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.fiscalCache.Delete(companyID)
	c.JSON(http.StatusOK, result)
}

type rolloverRequest struct {
	Confirm bool `json:"confirm"`
}

// Rollover executes the year-end carry-forward for the current fiscal year.
func (s *Server) Rollover(c *gin.Context) {
	companyID, err := s.resolveCompanyID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req rolloverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if !req.Confirm {
		AbortWithError(c, fiscaldomain.ErrChangeNotConfirmed)
		return
	}

	info, err := s.fiscalSvc.GetFiscalInfo(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	result, err := s.fiscalSvc.Rollover(c.Request.Context(), fiscaldomain.RolloverRequest{
		CompanyID:      companyID,
		FromFiscalYear: info.FiscalYear,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.fiscalCache.Delete(companyID)
	c.JSON(http.StatusOK, result)
}
