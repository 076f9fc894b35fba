package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/coupon/domain"
	"github.com/smallbiznis/storefront/internal/migration"
	"github.com/smallbiznis/storefront/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*gorm.DB, domain.Repository) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	return conn, Provide()
}

func insertCoupon(t *testing.T, conn *gorm.DB, repo domain.Repository, id snowflake.ID, limit *int64) domain.Coupon {
	t.Helper()
	coupon := domain.Coupon{
		ID:                  id,
		BusinessID:          7,
		Code:                "CODE" + id.String(),
		DiscountType:        domain.DiscountFixedAmount,
		DiscountValue:       decimal.NewFromInt(5),
		UsageLimit:          limit,
		IsActive:            true,
		AppliesToProducts:   datatypes.JSONSlice[string]{},
		AppliesToCategories: datatypes.JSONSlice[string]{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	require.NoError(t, repo.Insert(context.Background(), conn, &coupon))
	return coupon
}

func TestFindReturnsNilWhenMissing(t *testing.T) {
	conn, repo := setup(t)

	coupon, err := repo.FindByCode(context.Background(), conn, 7, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, coupon)

	redemption, err := repo.FindRedemptionByOrder(context.Background(), conn, 1, "order-1")
	require.NoError(t, err)
	assert.Nil(t, redemption)
}

func TestTryIncrementUsageIsCompareAndSwap(t *testing.T) {
	conn, repo := setup(t)
	ctx := context.Background()
	limit := int64(2)
	coupon := insertCoupon(t, conn, repo, 1, &limit)

	ok, err := repo.TryIncrementUsage(ctx, conn, coupon.ID, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TryIncrementUsage(ctx, conn, coupon.ID, 0)
	require.NoError(t, err)
	assert.False(t, ok, "stale expected count must not apply")

	ok, err = repo.TryIncrementUsage(ctx, conn, coupon.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TryIncrementUsage(ctx, conn, coupon.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok, "usage limit reached")

	stored, err := repo.FindByID(ctx, conn, 7, coupon.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.UsageCount)
}

func TestDecrementUsageNeverGoesNegative(t *testing.T) {
	conn, repo := setup(t)
	ctx := context.Background()
	coupon := insertCoupon(t, conn, repo, 1, nil)

	ok, err := repo.DecrementUsage(ctx, conn, coupon.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.TryIncrementUsage(ctx, conn, coupon.ID, 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.DecrementUsage(ctx, conn, coupon.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordRedemptionConflicts(t *testing.T) {
	conn, repo := setup(t)
	ctx := context.Background()
	coupon := insertCoupon(t, conn, repo, 1, nil)

	first := domain.Redemption{
		ID: 10, CouponID: coupon.ID, BusinessID: 7,
		CustomerID: "cust-1", OrderID: "order-1", CustomerSeq: 1,
		DiscountAmount: decimal.NewFromInt(5), RedeemedAt: now,
	}
	require.NoError(t, repo.RecordRedemption(ctx, conn, &first))

	sameOrder := first
	sameOrder.ID = 11
	sameOrder.CustomerSeq = 2
	assert.ErrorIs(t, repo.RecordRedemption(ctx, conn, &sameOrder), domain.ErrConflict)

	sameSeq := first
	sameSeq.ID = 12
	sameSeq.OrderID = "order-2"
	assert.ErrorIs(t, repo.RecordRedemption(ctx, conn, &sameSeq), domain.ErrConflict)

	next := sameSeq
	next.CustomerSeq = 2
	require.NoError(t, repo.RecordRedemption(ctx, conn, &next))

	count, err := repo.CountCustomerRedemptions(ctx, conn, coupon.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	found, err := repo.FindRedemptionByOrder(ctx, conn, coupon.ID, "order-2")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, snowflake.ID(12), found.ID)
}
