package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/domainbinding/domain"
	"github.com/smallbiznis/storefront/internal/domainbinding/repository"
	"github.com/smallbiznis/storefront/internal/migration"
	"github.com/smallbiznis/storefront/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func setupRegistry(t *testing.T) (*gorm.DB, domain.Registry, *clock.FakeClock) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(epoch)
	registry := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Cfg:   config.Config{PlatformDomain: "shops.example.com"},
		Repo:  repository.Provide(),
	})
	return conn, registry, fake
}

func seedBusiness(t *testing.T, conn *gorm.DB, id snowflake.ID, status string) {
	t.Helper()
	require.NoError(t, conn.Exec(
		`INSERT INTO businesses (id, name, slug, status, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, "Biz", "biz-"+id.String(), status, "{}", epoch, epoch,
	).Error)
}

func TestBindCreatesPendingBinding(t *testing.T) {
	conn, registry, _ := setupRegistry(t)
	seedBusiness(t, conn, 1, "active")

	binding, err := registry.Bind(context.Background(), "Shop.Acme.COM.", 1)
	require.NoError(t, err)

	assert.Equal(t, "shop.acme.com", binding.Hostname)
	assert.Equal(t, domain.StatusPending, binding.Status)
	assert.NotEmpty(t, binding.VerificationToken)

	found, err := registry.Lookup(context.Background(), "shop.acme.com:443")
	require.NoError(t, err)
	assert.Equal(t, binding.ID, found.ID)
}

func TestRebindSameBusinessIsNoop(t *testing.T) {
	conn, registry, _ := setupRegistry(t)
	seedBusiness(t, conn, 1, "active")
	ctx := context.Background()

	first, err := registry.Bind(ctx, "shop.acme.com", 1)
	require.NoError(t, err)
	_, err = registry.RecordVerification(ctx, domain.RecordVerificationRequest{
		Hostname: "shop.acme.com", Status: "verified", CheckedAt: epoch,
	})
	require.NoError(t, err)

	second, err := registry.Bind(ctx, "shop.acme.com", 1)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.StatusVerified, second.Status)
}

func TestBindToDifferentBusinessConflicts(t *testing.T) {
	conn, registry, _ := setupRegistry(t)
	seedBusiness(t, conn, 1, "active")
	seedBusiness(t, conn, 2, "active")
	ctx := context.Background()

	_, err := registry.Bind(ctx, "shop.acme.com", 1)
	require.NoError(t, err)

	_, err = registry.Bind(ctx, "SHOP.acme.com", 2)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestBindRejectsInvalidInput(t *testing.T) {
	conn, registry, _ := setupRegistry(t)
	seedBusiness(t, conn, 1, "active")
	seedBusiness(t, conn, 2, "deactivated")
	ctx := context.Background()

	_, err := registry.Bind(ctx, "localhost", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidHostname)

	_, err = registry.Bind(ctx, "-bad-.example.com", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidHostname)

	_, err = registry.Bind(ctx, "acme.shops.example.com", 1)
	assert.ErrorIs(t, err, domain.ErrPlatformHostname)

	_, err = registry.Bind(ctx, "shop.acme.com", 2)
	assert.ErrorIs(t, err, domain.ErrBusinessNotFound)

	_, err = registry.Bind(ctx, "shop.acme.com", 99)
	assert.ErrorIs(t, err, domain.ErrBusinessNotFound)
}

func TestConcurrentBindHasSingleOwner(t *testing.T) {
	conn, registry, _ := setupRegistry(t)
	seedBusiness(t, conn, 1, "active")
	seedBusiness(t, conn, 2, "active")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = registry.Bind(context.Background(), "shop.acme.com", snowflake.ID(i+1))
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrConflict)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
}

func TestUnbindIsIdempotent(t *testing.T) {
	conn, registry, _ := setupRegistry(t)
	seedBusiness(t, conn, 1, "active")
	ctx := context.Background()

	_, err := registry.Bind(ctx, "shop.acme.com", 1)
	require.NoError(t, err)

	require.NoError(t, registry.Unbind(ctx, "shop.acme.com"))
	require.NoError(t, registry.Unbind(ctx, "shop.acme.com"))
	require.NoError(t, registry.Unbind(ctx, "never-bound.example.com"))

	_, err = registry.Lookup(ctx, "shop.acme.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordVerification(t *testing.T) {
	conn, registry, _ := setupRegistry(t)
	seedBusiness(t, conn, 1, "active")
	ctx := context.Background()

	_, err := registry.Bind(ctx, "shop.acme.com", 1)
	require.NoError(t, err)

	checked := epoch.Add(time.Minute)
	failed, err := registry.RecordVerification(ctx, domain.RecordVerificationRequest{
		Hostname: "shop.acme.com", Status: "failed", CheckedAt: checked, DNSError: "no TXT record",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	require.NotNil(t, failed.DNSError)
	assert.Equal(t, "no TXT record", *failed.DNSError)
	assert.Nil(t, failed.VerifiedAt)

	verifiedAt := epoch.Add(2 * time.Minute)
	verified, err := registry.RecordVerification(ctx, domain.RecordVerificationRequest{
		Hostname: "shop.acme.com", Status: "verified", CheckedAt: verifiedAt,
	})
	require.NoError(t, err)
	assert.Nil(t, verified.DNSError)
	require.NotNil(t, verified.VerifiedAt)
	assert.True(t, verified.VerifiedAt.Equal(verifiedAt))

	stored, err := registry.Lookup(ctx, "shop.acme.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, stored.Status)
	require.NotNil(t, stored.LastCheckedAt)
	assert.True(t, stored.LastCheckedAt.Equal(verifiedAt))

	_, err = registry.RecordVerification(ctx, domain.RecordVerificationRequest{Hostname: "shop.acme.com", Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = registry.RecordVerification(ctx, domain.RecordVerificationRequest{Hostname: "other.acme.com", Status: "verified"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChangeListenersFire(t *testing.T) {
	conn, registry, _ := setupRegistry(t)
	seedBusiness(t, conn, 1, "active")
	ctx := context.Background()

	var changed []string
	registry.OnChange(func(hostname string) { changed = append(changed, hostname) })

	_, err := registry.Bind(ctx, "shop.acme.com", 1)
	require.NoError(t, err)
	_, err = registry.RecordVerification(ctx, domain.RecordVerificationRequest{Hostname: "shop.acme.com", Status: "verified"})
	require.NoError(t, err)
	require.NoError(t, registry.Unbind(ctx, "shop.acme.com"))

	assert.Equal(t, []string{"shop.acme.com", "shop.acme.com", "shop.acme.com"}, changed)
}

func TestUnbindAllForBusiness(t *testing.T) {
	conn, registry, _ := setupRegistry(t)
	seedBusiness(t, conn, 1, "active")
	seedBusiness(t, conn, 2, "active")
	ctx := context.Background()

	for _, host := range []string{"a.acme.com", "b.acme.com"} {
		_, err := registry.Bind(ctx, host, 1)
		require.NoError(t, err)
	}
	_, err := registry.Bind(ctx, "other.example.org", 2)
	require.NoError(t, err)

	released, err := registry.UnbindAllForBusiness(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	remaining, err := registry.ListByBusiness(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	other, err := registry.ListByBusiness(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestListDueForVerification(t *testing.T) {
	conn, registry, _ := setupRegistry(t)
	seedBusiness(t, conn, 1, "active")
	ctx := context.Background()

	for _, host := range []string{"pending.acme.com", "fresh.acme.com", "stale.acme.com"} {
		_, err := registry.Bind(ctx, host, 1)
		require.NoError(t, err)
	}
	now := epoch.Add(12 * time.Hour)
	_, err := registry.RecordVerification(ctx, domain.RecordVerificationRequest{
		Hostname: "fresh.acme.com", Status: "verified", CheckedAt: now.Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = registry.RecordVerification(ctx, domain.RecordVerificationRequest{
		Hostname: "stale.acme.com", Status: "verified", CheckedAt: now.Add(-7 * time.Hour),
	})
	require.NoError(t, err)

	due, err := registry.ListDueForVerification(ctx, now, 6*time.Hour, 10)
	require.NoError(t, err)

	hosts := make([]string, 0, len(due))
	for _, b := range due {
		hosts = append(hosts, b.Hostname)
	}
	assert.Equal(t, []string{"pending.acme.com", "stale.acme.com"}, hosts)
}
