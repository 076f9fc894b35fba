package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository is the coupon store. Lookups return nil, nil when nothing matches.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, coupon *Coupon) error
	FindByID(ctx context.Context, db *gorm.DB, businessID, id snowflake.ID) (*Coupon, error)
	FindByCode(ctx context.Context, db *gorm.DB, businessID snowflake.ID, code string) (*Coupon, error)
	List(ctx context.Context, db *gorm.DB, businessID snowflake.ID, filter ListCouponFilter, page pagination.Pagination) ([]*Coupon, error)
	Deactivate(ctx context.Context, db *gorm.DB, businessID, id snowflake.ID, now time.Time) (bool, error)

	// TryIncrementUsage bumps usage_count only if it still equals expected and
	// the usage limit allows it. It reports whether the row was updated.
	TryIncrementUsage(ctx context.Context, db *gorm.DB, couponID snowflake.ID, expected int64) (bool, error)
	// DecrementUsage undoes a reservation whose redemption was never recorded.
	DecrementUsage(ctx context.Context, db *gorm.DB, couponID snowflake.ID) (bool, error)

	RecordRedemption(ctx context.Context, db *gorm.DB, redemption *Redemption) error
	CountCustomerRedemptions(ctx context.Context, db *gorm.DB, couponID snowflake.ID, customerID string) (int64, error)
	FindRedemptionByOrder(ctx context.Context, db *gorm.DB, couponID snowflake.ID, orderID string) (*Redemption, error)
	ListRedemptions(ctx context.Context, db *gorm.DB, couponID snowflake.ID, page pagination.Pagination) ([]*Redemption, error)
}

type ListCouponFilter struct {
	ActiveOnly bool
}
