package revenue

import (
	"go.uber.org/fx"

	"github.com/buildwise/kessan/internal/revenue/service"
)

var Module = fx.Module("revenue.service",
	fx.Provide(service.NewService),
)
