package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
)

type CreateCouponRequest struct {
	Code                string
	DiscountType        string
	DiscountValue       decimal.Decimal
	MinOrderAmount      decimal.NullDecimal
	MaxDiscountAmount   decimal.NullDecimal
	UsageLimit          *int64
	PerCustomerLimit    *int64
	StartsAt            *time.Time
	EndsAt              *time.Time
	AppliesToProducts   []string
	AppliesToCategories []string
}

type ListCouponRequest struct {
	PageToken  string
	PageSize   int32
	ActiveOnly bool
}

type ListCouponResponse struct {
	pagination.PageInfo
	Coupons []Coupon `json:"coupons"`
}

type ListRedemptionRequest struct {
	Code      string
	PageToken string
	PageSize  int32
}

type ListRedemptionResponse struct {
	pagination.PageInfo
	Redemptions []Redemption `json:"redemptions"`
}

// Service manages coupons on behalf of business administrators.
type Service interface {
	Create(ctx context.Context, businessID snowflake.ID, req CreateCouponRequest) (Coupon, error)
	GetByCode(ctx context.Context, businessID snowflake.ID, code string) (Coupon, error)
	List(ctx context.Context, businessID snowflake.ID, req ListCouponRequest) (ListCouponResponse, error)
	Deactivate(ctx context.Context, businessID snowflake.ID, code string) (Coupon, error)
	ListRedemptions(ctx context.Context, businessID snowflake.ID, req ListRedemptionRequest) (ListRedemptionResponse, error)
}

var (
	ErrInvalidBusiness      = errors.New("invalid_business")
	ErrBusinessNotFound     = errors.New("business_not_found")
	ErrInvalidCode          = errors.New("invalid_code")
	ErrInvalidDiscountType  = errors.New("invalid_discount_type")
	ErrInvalidDiscountValue = errors.New("invalid_discount_value")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidLimit         = errors.New("invalid_limit")
	ErrInvalidWindow        = errors.New("invalid_window")
	ErrCodeExists           = errors.New("code_exists")
	ErrNotFound             = errors.New("not_found")
	ErrConflict             = errors.New("conflict")
)
