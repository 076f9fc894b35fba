// Package domain defines the coupon redemption contract used at checkout.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	coupondomain "github.com/smallbiznis/storefront/internal/coupon/domain"
)

type ApplyRequest struct {
	BusinessID snowflake.ID
	Code       string
	Order      coupondomain.OrderContext
}

// QuoteRequest previews a coupon. Order.OrderID and Order.CustomerID are optional.
type QuoteRequest struct {
	BusinessID snowflake.ID
	Code       string
	Order      coupondomain.OrderContext
}

// Result is returned for both accepted and rejected coupons. A rejection is
// not an error: Accepted is false and Reason says why.
type Result struct {
	Accepted       bool                `json:"accepted"`
	Reason         coupondomain.Reason `json:"reason,omitempty"`
	DiscountAmount decimal.Decimal     `json:"discount_amount"`
	RedemptionID   snowflake.ID        `json:"redemption_id,omitempty"`
	CouponID       snowflake.ID        `json:"coupon_id,omitempty"`
}

// Coordinator validates coupons against an order and records redemptions
// without ever exceeding a usage limit.
type Coordinator interface {
	Apply(ctx context.Context, req ApplyRequest) (Result, error)
	Quote(ctx context.Context, req QuoteRequest) (Result, error)
}

var (
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrNotFound        = errors.New("coupon_not_found")
	ErrContended       = errors.New("contended")
	ErrAlreadyRedeemed = errors.New("already_redeemed")
)
