// Package domain contains coupon models, the eligibility validator and store contracts.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type DiscountType string

const (
	DiscountPercentage   DiscountType = "percentage"
	DiscountFixedAmount  DiscountType = "fixed_amount"
	DiscountFreeShipping DiscountType = "free_shipping"
)

func (t DiscountType) Valid() bool {
	switch t {
	case DiscountPercentage, DiscountFixedAmount, DiscountFreeShipping:
		return true
	default:
		return false
	}
}

// Coupon is a business-scoped discount code. Code is unique per business and
// stored upper-cased.
type Coupon struct {
	ID                  snowflake.ID                `gorm:"primaryKey" json:"id"`
	BusinessID          snowflake.ID                `gorm:"not null;uniqueIndex:ux_coupons_business_code,priority:1" json:"business_id"`
	Code                string                      `gorm:"type:varchar(64);not null;uniqueIndex:ux_coupons_business_code,priority:2" json:"code"`
	DiscountType        DiscountType                `gorm:"type:varchar(16);not null" json:"discount_type"`
	DiscountValue       decimal.Decimal             `gorm:"type:numeric(18,2);not null" json:"discount_value"`
	MinOrderAmount      decimal.NullDecimal         `gorm:"type:numeric(18,2)" json:"min_order_amount"`
	MaxDiscountAmount   decimal.NullDecimal         `gorm:"type:numeric(18,2)" json:"max_discount_amount"`
	UsageLimit          *int64                      `json:"usage_limit,omitempty"`
	UsageCount          int64                       `gorm:"not null;default:0" json:"usage_count"`
	PerCustomerLimit    *int64                      `json:"per_customer_limit,omitempty"`
	IsActive            bool                        `gorm:"not null" json:"is_active"`
	StartsAt            *time.Time                  `json:"starts_at,omitempty"`
	EndsAt              *time.Time                  `json:"ends_at,omitempty"`
	AppliesToProducts   datatypes.JSONSlice[string] `gorm:"not null" json:"applies_to_products"`
	AppliesToCategories datatypes.JSONSlice[string] `gorm:"not null" json:"applies_to_categories"`
	CreatedAt           time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time                   `gorm:"not null" json:"updated_at"`
	DeactivatedAt       *time.Time                  `json:"deactivated_at,omitempty"`
}

func (Coupon) TableName() string { return "coupons" }

// HasScope reports whether the coupon is restricted to specific products or categories.
func (c Coupon) HasScope() bool {
	return len(c.AppliesToProducts) > 0 || len(c.AppliesToCategories) > 0
}

// Redemption records one committed use of a coupon on an order.
// CustomerSeq numbers the customer's redemptions of the coupon starting at 1.
type Redemption struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	CouponID       snowflake.ID    `gorm:"not null;uniqueIndex:ux_coupon_redemptions_order,priority:1;uniqueIndex:ux_coupon_redemptions_customer_seq,priority:1" json:"coupon_id"`
	BusinessID     snowflake.ID    `gorm:"not null;index" json:"business_id"`
	CustomerID     string          `gorm:"type:varchar(128);not null;uniqueIndex:ux_coupon_redemptions_customer_seq,priority:2" json:"customer_id"`
	OrderID        string          `gorm:"type:varchar(128);not null;uniqueIndex:ux_coupon_redemptions_order,priority:2" json:"order_id"`
	CustomerSeq    int64           `gorm:"not null;uniqueIndex:ux_coupon_redemptions_customer_seq,priority:3" json:"customer_seq"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(18,2);not null" json:"discount_amount"`
	RedeemedAt     time.Time       `gorm:"not null" json:"redeemed_at"`
}

func (Redemption) TableName() string { return "coupon_redemptions" }

// NormalizeCode trims and upper-cases a shopper-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
