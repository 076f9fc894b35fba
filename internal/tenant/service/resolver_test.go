package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	businessdomain "github.com/smallbiznis/storefront/internal/business/domain"
	businessrepository "github.com/smallbiznis/storefront/internal/business/repository"
	"github.com/smallbiznis/storefront/internal/cache"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	domainbindingdomain "github.com/smallbiznis/storefront/internal/domainbinding/domain"
	domainbindingrepository "github.com/smallbiznis/storefront/internal/domainbinding/repository"
	domainbindingservice "github.com/smallbiznis/storefront/internal/domainbinding/service"
	"github.com/smallbiznis/storefront/internal/migration"
	"github.com/smallbiznis/storefront/internal/tenant/domain"
	"github.com/smallbiznis/storefront/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	resolver *Resolver
	registry domainbindingdomain.Registry
	cache    cache.TenantResolutionCache
	clock    *clock.FakeClock
}

func setup(t *testing.T, ttl time.Duration) fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(epoch)
	cfg := config.Config{PlatformDomain: "shops.example.com"}

	registry := domainbindingservice.New(domainbindingservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Cfg:   cfg,
		Repo:  domainbindingrepository.Provide(),
	})

	policy := config.DefaultPolicy()
	policy.Tenant.CacheTTL = ttl
	resolutions := cache.NewTenantResolutionCache(cache.WithClock(fake))

	resolver := New(Params{
		DB:         conn,
		Log:        zap.NewNop(),
		Cfg:        cfg,
		Policy:     config.NewStaticPolicyHolder(policy),
		Businesses: businessrepository.Provide(),
		Registry:   registry,
		Cache:      resolutions,
	})
	return fixture{db: conn, resolver: resolver, registry: registry, cache: resolutions, clock: fake}
}

func (f fixture) seedBusiness(t *testing.T, id snowflake.ID, slug string, status businessdomain.Status) {
	t.Helper()
	require.NoError(t, f.db.Exec(
		`INSERT INTO businesses (id, name, slug, status, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, slug, slug, status, "{}", epoch, epoch,
	).Error)
}

func (f fixture) bindVerified(t *testing.T, host string, businessID snowflake.ID) {
	t.Helper()
	ctx := context.Background()
	_, err := f.registry.Bind(ctx, host, businessID)
	require.NoError(t, err)
	_, err = f.registry.RecordVerification(ctx, domainbindingdomain.RecordVerificationRequest{
		Hostname: host, Status: "verified", CheckedAt: epoch,
	})
	require.NoError(t, err)
}

func TestResolveSlugAndSubdomain(t *testing.T) {
	f := setup(t, 0)
	f.seedBusiness(t, 1, "acme", businessdomain.StatusActive)
	ctx := context.Background()

	for _, input := range []string{"acme", " ACME ", "acme.shops.example.com", "Acme.Shops.Example.com.:8443"} {
		ref, err := f.resolver.Resolve(ctx, input)
		require.NoError(t, err, input)
		assert.Equal(t, snowflake.ID(1), ref.ID, input)
		assert.Equal(t, "acme", ref.Slug, input)
	}

	res, err := f.resolver.ResolveWithSource(ctx, "acme.shops.example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceSubdomain, res.Source)

	res, err = f.resolver.ResolveWithSource(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceSlug, res.Source)
}

func TestResolveNotFound(t *testing.T) {
	f := setup(t, 0)
	f.seedBusiness(t, 1, "acme", businessdomain.StatusActive)
	f.seedBusiness(t, 2, "www", businessdomain.StatusActive)
	f.seedBusiness(t, 3, "closed", businessdomain.StatusDeactivated)
	ctx := context.Background()

	inputs := []string{
		"",
		"   ",
		"shops.example.com",
		"a.acme.shops.example.com",
		"www",
		"www.shops.example.com",
		"closed",
		"missing",
		"not a slug",
		"unknown.example.org",
		"bad_host.example.org",
		"::::",
	}
	for _, input := range inputs {
		_, err := f.resolver.Resolve(ctx, input)
		assert.ErrorIs(t, err, domain.ErrNotFound, input)
	}
}

func TestResolveCustomDomainRequiresVerification(t *testing.T) {
	f := setup(t, 0)
	f.seedBusiness(t, 1, "acme", businessdomain.StatusActive)
	ctx := context.Background()

	_, err := f.registry.Bind(ctx, "shop.acme.test", 1)
	require.NoError(t, err)

	_, err = f.resolver.Resolve(ctx, "shop.acme.test")
	assert.ErrorIs(t, err, domain.ErrNotFound, "pending bindings do not route")

	_, err = f.registry.RecordVerification(ctx, domainbindingdomain.RecordVerificationRequest{
		Hostname: "shop.acme.test", Status: "failed", CheckedAt: epoch, DNSError: "missing TXT",
	})
	require.NoError(t, err)
	_, err = f.resolver.Resolve(ctx, "shop.acme.test")
	assert.ErrorIs(t, err, domain.ErrNotFound, "failed bindings do not route")

	_, err = f.registry.RecordVerification(ctx, domainbindingdomain.RecordVerificationRequest{
		Hostname: "shop.acme.test", Status: "verified", CheckedAt: epoch,
	})
	require.NoError(t, err)

	res, err := f.resolver.ResolveWithSource(ctx, "SHOP.acme.test:443")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1), res.Ref.ID)
	assert.Equal(t, domain.SourceCustomDomain, res.Source)
}

func TestResolveCustomDomainOfInactiveBusiness(t *testing.T) {
	f := setup(t, 0)
	f.seedBusiness(t, 1, "acme", businessdomain.StatusActive)
	f.bindVerified(t, "shop.acme.test", 1)

	require.NoError(t, f.db.Exec(`UPDATE businesses SET status = 'deactivated' WHERE id = ?`, 1).Error)

	_, err := f.resolver.Resolve(context.Background(), "shop.acme.test")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveCachesUntilTTL(t *testing.T) {
	f := setup(t, 30*time.Second)
	f.seedBusiness(t, 1, "acme", businessdomain.StatusActive)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, "acme")
	require.NoError(t, err)

	require.NoError(t, f.db.Exec(`DELETE FROM businesses WHERE id = ?`, 1).Error)

	ref, err := f.resolver.Resolve(ctx, "acme")
	require.NoError(t, err, "served from cache")
	assert.Equal(t, snowflake.ID(1), ref.ID)

	f.clock.Advance(31 * time.Second)
	_, err = f.resolver.Resolve(ctx, "acme")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolveCachesMisses(t *testing.T) {
	f := setup(t, 30*time.Second)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, "acme")
	require.ErrorIs(t, err, domain.ErrNotFound)

	f.seedBusiness(t, 1, "acme", businessdomain.StatusActive)
	_, err = f.resolver.Resolve(ctx, "acme")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f.cache.InvalidateKey("acme")
	_, err = f.resolver.Resolve(ctx, "acme")
	assert.NoError(t, err)
}

func TestRegistryChangesInvalidateCache(t *testing.T) {
	f := setup(t, time.Hour)
	f.seedBusiness(t, 1, "acme", businessdomain.StatusActive)
	f.registry.OnChange(f.cache.InvalidateKey)
	ctx := context.Background()

	f.bindVerified(t, "shop.acme.test", 1)
	_, err := f.resolver.Resolve(ctx, "shop.acme.test")
	require.NoError(t, err)

	require.NoError(t, f.registry.Unbind(ctx, "shop.acme.test"))

	_, err = f.resolver.Resolve(ctx, "shop.acme.test")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBusinessInvalidationDropsPositiveEntries(t *testing.T) {
	f := setup(t, time.Hour)
	f.seedBusiness(t, 1, "acme", businessdomain.StatusActive)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, "acme.shops.example.com")
	require.NoError(t, err)

	require.NoError(t, f.db.Exec(`UPDATE businesses SET status = 'deactivated' WHERE id = ?`, 1).Error)
	f.cache.InvalidateBusiness(1)

	_, err = f.resolver.Resolve(ctx, "acme.shops.example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
