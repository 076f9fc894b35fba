package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/business/domain"
	"github.com/smallbiznis/storefront/internal/business/repository"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	domainbindingdomain "github.com/smallbiznis/storefront/internal/domainbinding/domain"
	domainbindingrepository "github.com/smallbiznis/storefront/internal/domainbinding/repository"
	domainbindingservice "github.com/smallbiznis/storefront/internal/domainbinding/service"
	"github.com/smallbiznis/storefront/internal/migration"
	"github.com/smallbiznis/storefront/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc      domain.Service
	registry domainbindingdomain.Registry
	clock    *clock.FakeClock
}

func setup(t *testing.T) fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	registry := domainbindingservice.New(domainbindingservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Cfg:   config.Config{PlatformDomain: "shops.example.com"},
		Repo:  domainbindingrepository.Provide(),
	})

	svc := New(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fake,
		Policy:  config.NewStaticPolicyHolder(config.DefaultPolicy()),
		Repo:    repository.Provide(),
		Domains: registry,
	})
	return fixture{svc: svc, registry: registry, clock: fake}
}

func TestCreateDerivesSlugFromName(t *testing.T) {
	f := setup(t)

	business, err := f.svc.Create(context.Background(), domain.CreateBusinessRequest{
		Name:         "  Acme Pharmacy ",
		ContactEmail: "owner@acme.test",
		Metadata:     map[string]any{"plan": "basic"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Acme Pharmacy", business.Name)
	assert.Equal(t, "acme-pharmacy", business.Slug)
	assert.Equal(t, domain.StatusActive, business.Status)
	require.NotNil(t, business.ContactEmail)
	assert.Equal(t, "owner@acme.test", *business.ContactEmail)

	found, err := f.svc.GetBySlug(context.Background(), "ACME-PHARMACY")
	require.NoError(t, err)
	assert.Equal(t, business.ID, found.ID)
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateBusinessRequest{Name: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = f.svc.Create(ctx, domain.CreateBusinessRequest{Name: "Acme", Slug: "not a slug!"})
	assert.ErrorIs(t, err, domain.ErrInvalidSlug)

	_, err = f.svc.Create(ctx, domain.CreateBusinessRequest{Name: "Acme", Slug: "WWW"})
	assert.ErrorIs(t, err, domain.ErrReservedSlug)

	_, err = f.svc.Create(ctx, domain.CreateBusinessRequest{Name: "Acme", ContactEmail: "nobody"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestCreateRejectsTakenSlug(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateBusinessRequest{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, domain.CreateBusinessRequest{Name: "Another Acme", Slug: "acme"})
	assert.ErrorIs(t, err, domain.ErrSlugTaken)
}

func TestGetNotFound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.GetByID(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = f.svc.GetByID(ctx, 12345)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.GetBySlug(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeactivateReleasesDomainsAndNotifies(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	business, err := f.svc.Create(ctx, domain.CreateBusinessRequest{Name: "Acme"})
	require.NoError(t, err)
	_, err = f.registry.Bind(ctx, "shop.acme.test", business.ID)
	require.NoError(t, err)

	var notified []snowflake.ID
	f.svc.OnChange(func(id snowflake.ID) { notified = append(notified, id) })

	deactivated, err := f.svc.Deactivate(ctx, business.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeactivated, deactivated.Status)
	assert.NotNil(t, deactivated.DeactivatedAt)

	_, err = f.registry.Lookup(ctx, "shop.acme.test")
	assert.ErrorIs(t, err, domainbindingdomain.ErrNotFound)

	again, err := f.svc.Deactivate(ctx, business.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeactivated, again.Status)

	assert.Equal(t, []snowflake.ID{business.ID}, notified)
}

func TestPublishTemplate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	business, err := f.svc.Create(ctx, domain.CreateBusinessRequest{Name: "Acme"})
	require.NoError(t, err)
	assert.Nil(t, business.TemplateVersion)

	_, err = f.svc.PublishTemplate(ctx, business.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidTemplateVersion)

	published, err := f.svc.PublishTemplate(ctx, business.ID, 3)
	require.NoError(t, err)
	require.NotNil(t, published.TemplateVersion)
	assert.Equal(t, 3, *published.TemplateVersion)

	_, err = f.svc.Deactivate(ctx, business.ID)
	require.NoError(t, err)

	_, err = f.svc.PublishTemplate(ctx, business.ID, 4)
	assert.ErrorIs(t, err, domain.ErrInactive)
}
