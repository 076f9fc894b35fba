package cache

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/pkg/tenantctx"
)

// TenantResolutionCache stores hot-path host and slug resolutions, including misses.
type TenantResolutionCache interface {
	Get(key string) (ref tenantctx.BusinessRef, found bool, ok bool)
	SetFound(key string, ref tenantctx.BusinessRef, ttl time.Duration)
	SetMissing(key string, ttl time.Duration)
	InvalidateKey(key string)
	InvalidateBusiness(businessID snowflake.ID)
	Purge()
}

type resolution struct {
	ref   tenantctx.BusinessRef
	found bool
}

type tenantResolutionCache struct {
	entries Cache[string, resolution]
}

func NewTenantResolutionCache(opts ...Option) TenantResolutionCache {
	return &tenantResolutionCache{entries: NewTTLCache[string, resolution](opts...)}
}

// Get reports ok=false on a cache miss. found=false with ok=true is a cached negative result.
func (c *tenantResolutionCache) Get(key string) (tenantctx.BusinessRef, bool, bool) {
	item, ok := c.entries.Get(cacheKey(key))
	if !ok {
		return tenantctx.BusinessRef{}, false, false
	}
	return item.ref, item.found, true
}

func (c *tenantResolutionCache) SetFound(key string, ref tenantctx.BusinessRef, ttl time.Duration) {
	if ref.IsZero() {
		return
	}
	c.entries.Set(cacheKey(key), resolution{ref: ref, found: true}, ttl)
}

func (c *tenantResolutionCache) SetMissing(key string, ttl time.Duration) {
	c.entries.Set(cacheKey(key), resolution{}, ttl)
}

func (c *tenantResolutionCache) InvalidateKey(key string) {
	c.entries.Delete(cacheKey(key))
}

// InvalidateBusiness drops positive entries of the business. Cached misses stay,
// a business only ever loses routes through this path.
func (c *tenantResolutionCache) InvalidateBusiness(businessID snowflake.ID) {
	c.entries.DeleteFunc(func(_ string, item resolution) bool {
		return item.found && item.ref.ID == businessID
	})
}

func (c *tenantResolutionCache) Purge() {
	c.entries.Purge()
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
