package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/buildwise/kessan/internal/cache"
	companydomain "github.com/buildwise/kessan/internal/company/domain"
	"github.com/buildwise/kessan/internal/config"
	fiscaldomain "github.com/buildwise/kessan/internal/fiscal/domain"
	revenuedomain "github.com/buildwise/kessan/internal/revenue/domain"
)

// companyHeader selects the acting company. Authentication and role checks
// live in front of this service.
const companyHeader = "X-Company-ID"

type ServerParam struct {
	fx.In

	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	FiscalSvc  fiscaldomain.Service
	RevenueSvc revenuedomain.Service
}

// Server holds the HTTP handlers for the fiscal period engine.
type Server struct {
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	fiscalSvc  fiscaldomain.Service
	revenueSvc revenuedomain.Service

	// fiscalCache is a freshness hint only; mutations invalidate it and
	// always read the fiscal_info row directly.
	fiscalCache *cache.TTLCache[snowflake.ID, fiscaldomain.FiscalInfo]
}

func NewServer(p ServerParam) *Server {
	return &Server{
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("server"),
		fiscalSvc:   p.FiscalSvc,
		revenueSvc:  p.RevenueSvc,
		fiscalCache: cache.NewTTLCache[snowflake.ID, fiscaldomain.FiscalInfo](),
	}
}

// NewEngine builds the gin engine with the shared middleware stack.
func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(RequestID(), AccessLog(log), gin.Recovery())
	return engine
}

// RegisterAPIRoutes mounts the fiscal engine endpoints.
func (s *Server) RegisterAPIRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.Health)

	api := engine.Group("/api/v1")
	api.GET("/fiscal/info", s.GetFiscalInfo)
	api.GET("/revenue/schedule", s.GetRevenueSchedule)
	api.POST("/fiscal/analyze", s.AnalyzeFiscalPeriodChange)
	api.POST("/fiscal/change", s.ChangeFiscalPeriod)
	api.POST("/fiscal/rollover", s.Rollover)
}

// Health reports process liveness.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RunHTTP starts the HTTP listener under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// resolveCompanyID picks the acting company from the request header,
// falling back to the seeded default company.
func (s *Server) resolveCompanyID(c *gin.Context) (snowflake.ID, error) {
	if raw := c.GetHeader(companyHeader); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return 0, newValidationError("company_id", "invalid", "company id header is not a valid id")
		}
		return id, nil
	}
	var company companydomain.Company
	err := s.db.WithContext(c.Request.Context()).
		Where("name = ?", s.cfg.DefaultCompany).
		First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return company.ID, nil
}

// fiscalInfo loads the company's fiscal settings through the TTL cache.
func (s *Server) fiscalInfo(ctx context.Context, companyID snowflake.ID) (fiscaldomain.FiscalInfo, error) {
	if info, ok := s.fiscalCache.Get(companyID); ok {
		return info, nil
	}
	info, err := s.fiscalSvc.GetFiscalInfo(ctx, companyID)
	if err != nil {
		return fiscaldomain.FiscalInfo{}, err
	}
	s.fiscalCache.Set(companyID, info, s.cfg.FiscalCacheTTL)
	return info, nil
}
