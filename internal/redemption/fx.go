package redemption

import (
	"github.com/smallbiznis/storefront/internal/redemption/service"
	"go.uber.org/fx"
)

var Module = fx.Module("redemption.service",
	fx.Provide(service.New),
)
