package tenant

import (
	"github.com/bwmarrin/snowflake"
	businessdomain "github.com/smallbiznis/storefront/internal/business/domain"
	"github.com/smallbiznis/storefront/internal/cache"
	"github.com/smallbiznis/storefront/internal/clock"
	domainbindingdomain "github.com/smallbiznis/storefront/internal/domainbinding/domain"
	"github.com/smallbiznis/storefront/internal/tenant/domain"
	"github.com/smallbiznis/storefront/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(func(clk clock.Clock) cache.TenantResolutionCache {
		return cache.NewTenantResolutionCache(cache.WithClock(clk))
	}),
	fx.Provide(
		service.New,
		func(r *service.Resolver) domain.Resolver { return r },
	),
	fx.Invoke(registerInvalidation),
)

// registerInvalidation drops cached resolutions whenever routing data changes.
func registerInvalidation(c cache.TenantResolutionCache, registry domainbindingdomain.Registry, businesses businessdomain.Service) {
	registry.OnChange(c.InvalidateKey)
	businesses.OnChange(func(id snowflake.ID) {
		c.InvalidateBusiness(id)
	})
}
