package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/buildwise/kessan/internal/audit"
	"github.com/buildwise/kessan/internal/clock"
	"github.com/buildwise/kessan/internal/config"
	"github.com/buildwise/kessan/internal/events"
	"github.com/buildwise/kessan/internal/fiscal"
	"github.com/buildwise/kessan/internal/logger"
	"github.com/buildwise/kessan/internal/migration"
	"github.com/buildwise/kessan/internal/revenue"
	"github.com/buildwise/kessan/internal/seed"
	"github.com/buildwise/kessan/internal/server"
	"github.com/buildwise/kessan/pkg/db"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			return seed.EnsureDefaultCompany(conn, cfg.DefaultCompany, cfg.SettlementMonth)
		}),

		fx.Provide(events.NewOutbox),
		audit.Module,
		fiscal.Module,
		revenue.Module,

		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Invoke(func(s *server.Server, engine *gin.Engine) {
			s.RegisterAPIRoutes(engine)
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
