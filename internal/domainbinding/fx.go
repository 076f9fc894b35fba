package domainbinding

import (
	"github.com/smallbiznis/storefront/internal/domainbinding/repository"
	"github.com/smallbiznis/storefront/internal/domainbinding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("domainbinding.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
