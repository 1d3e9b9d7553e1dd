package fiscal

import (
	"go.uber.org/fx"

	"github.com/buildwise/kessan/internal/fiscal/service"
)

var Module = fx.Module("fiscal.service",
	fx.Provide(service.NewService),
)
