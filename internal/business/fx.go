package business

import (
	"github.com/smallbiznis/storefront/internal/business/domain"
	"github.com/smallbiznis/storefront/internal/business/repository"
	"github.com/smallbiznis/storefront/internal/business/service"
	domainbindingdomain "github.com/smallbiznis/storefront/internal/domainbinding/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("business.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(registry domainbindingdomain.Registry) domain.DomainUnbinder { return registry }),
)
