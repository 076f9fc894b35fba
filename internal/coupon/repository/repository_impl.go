package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/coupon/domain"
	"github.com/smallbiznis/storefront/pkg/db"
	"github.com/smallbiznis/storefront/pkg/db/option"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
	"gorm.io/gorm"
)

const couponColumns = `id, business_id, code, discount_type, discount_value, min_order_amount, max_discount_amount,
	usage_limit, usage_count, per_customer_limit, is_active, starts_at, ends_at,
	applies_to_products, applies_to_categories, created_at, updated_at, deactivated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, coupon *domain.Coupon) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO coupons (`+couponColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		coupon.ID,
		coupon.BusinessID,
		coupon.Code,
		coupon.DiscountType,
		coupon.DiscountValue,
		coupon.MinOrderAmount,
		coupon.MaxDiscountAmount,
		coupon.UsageLimit,
		coupon.UsageCount,
		coupon.PerCustomerLimit,
		coupon.IsActive,
		coupon.StartsAt,
		coupon.EndsAt,
		coupon.AppliesToProducts,
		coupon.AppliesToCategories,
		coupon.CreatedAt,
		coupon.UpdatedAt,
		coupon.DeactivatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, businessID, id snowflake.ID) (*domain.Coupon, error) {
	return r.findOne(ctx, conn, `business_id = ? AND id = ?`, businessID, id)
}

func (r *repo) FindByCode(ctx context.Context, conn *gorm.DB, businessID snowflake.ID, code string) (*domain.Coupon, error) {
	return r.findOne(ctx, conn, `business_id = ? AND code = ?`, businessID, code)
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, cond string, args ...any) (*domain.Coupon, error) {
	var coupon domain.Coupon
	err := conn.WithContext(ctx).Raw(
		`SELECT `+couponColumns+` FROM coupons WHERE `+cond,
		args...,
	).Scan(&coupon).Error
	if err != nil {
		return nil, err
	}
	if coupon.ID == 0 {
		return nil, nil
	}
	return &coupon, nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, businessID snowflake.ID, filter domain.ListCouponFilter, page pagination.Pagination) ([]*domain.Coupon, error) {
	var coupons []*domain.Coupon
	stmt := conn.WithContext(ctx).
		Model(&domain.Coupon{}).
		Where("business_id = ?", businessID)
	if filter.ActiveOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Order("id desc").Find(&coupons).Error; err != nil {
		return nil, err
	}
	return coupons, nil
}

func (r *repo) Deactivate(ctx context.Context, conn *gorm.DB, businessID, id snowflake.ID, now time.Time) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE coupons SET is_active = ?, deactivated_at = ?, updated_at = ?
		 WHERE business_id = ? AND id = ? AND is_active = ?`,
		false,
		now,
		now,
		businessID,
		id,
		true,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) TryIncrementUsage(ctx context.Context, conn *gorm.DB, couponID snowflake.ID, expected int64) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE coupons SET usage_count = usage_count + 1
		 WHERE id = ? AND usage_count = ? AND (usage_limit IS NULL OR usage_count < usage_limit)`,
		couponID,
		expected,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) DecrementUsage(ctx context.Context, conn *gorm.DB, couponID snowflake.ID) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE coupons SET usage_count = usage_count - 1 WHERE id = ? AND usage_count > 0`,
		couponID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RecordRedemption returns domain.ErrConflict when either unique index rejects the row.
func (r *repo) RecordRedemption(ctx context.Context, conn *gorm.DB, redemption *domain.Redemption) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO coupon_redemptions (id, coupon_id, business_id, customer_id, order_id, customer_seq, discount_amount, redeemed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		redemption.ID,
		redemption.CouponID,
		redemption.BusinessID,
		redemption.CustomerID,
		redemption.OrderID,
		redemption.CustomerSeq,
		redemption.DiscountAmount,
		redemption.RedeemedAt,
	).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *repo) CountCustomerRedemptions(ctx context.Context, conn *gorm.DB, couponID snowflake.ID, customerID string) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM coupon_redemptions WHERE coupon_id = ? AND customer_id = ?`,
		couponID,
		customerID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) FindRedemptionByOrder(ctx context.Context, conn *gorm.DB, couponID snowflake.ID, orderID string) (*domain.Redemption, error) {
	var redemption domain.Redemption
	err := conn.WithContext(ctx).Raw(
		`SELECT id, coupon_id, business_id, customer_id, order_id, customer_seq, discount_amount, redeemed_at
		 FROM coupon_redemptions WHERE coupon_id = ? AND order_id = ?`,
		couponID,
		orderID,
	).Scan(&redemption).Error
	if err != nil {
		return nil, err
	}
	if redemption.ID == 0 {
		return nil, nil
	}
	return &redemption, nil
}

func (r *repo) ListRedemptions(ctx context.Context, conn *gorm.DB, couponID snowflake.ID, page pagination.Pagination) ([]*domain.Redemption, error) {
	var redemptions []*domain.Redemption
	stmt := conn.WithContext(ctx).
		Model(&domain.Redemption{}).
		Where("coupon_id = ?", couponID)
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Order("id desc").Find(&redemptions).Error; err != nil {
		return nil, err
	}
	return redemptions, nil
}
