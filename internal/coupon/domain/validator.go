package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Reason string

const (
	ReasonInactive             Reason = "inactive"
	ReasonOutOfWindow          Reason = "out_of_window"
	ReasonBelowMinimum         Reason = "below_minimum"
	ReasonUsageLimitReached    Reason = "usage_limit_reached"
	ReasonCustomerLimitReached Reason = "customer_limit_reached"
	ReasonNotApplicable        Reason = "not_applicable"
)

// Decision is the outcome of Validate. DiscountAmount is set only when Accepted.
type Decision struct {
	Accepted       bool            `json:"accepted"`
	Reason         Reason          `json:"reason,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	// UsageCount is the counter value the decision was made against.
	UsageCount int64 `json:"-"`
}

func reject(reason Reason, usageCount int64) Decision {
	return Decision{Reason: reason, DiscountAmount: decimal.Zero, UsageCount: usageCount}
}

const amountPlaces = 2

var hundred = decimal.NewFromInt(100)

// Validate runs the eligibility rules in a fixed order and computes the discount.
// The first failing rule decides the reason. It performs no I/O and reads no clock.
func Validate(coupon Coupon, order OrderContext, priorCustomerRedemptions int64, now time.Time) Decision {
	if !coupon.IsActive {
		return reject(ReasonInactive, coupon.UsageCount)
	}
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return reject(ReasonOutOfWindow, coupon.UsageCount)
	}
	if coupon.EndsAt != nil && now.After(*coupon.EndsAt) {
		return reject(ReasonOutOfWindow, coupon.UsageCount)
	}

	subtotal := order.OrderSubtotal()
	if coupon.MinOrderAmount.Valid && subtotal.LessThan(coupon.MinOrderAmount.Decimal) {
		return reject(ReasonBelowMinimum, coupon.UsageCount)
	}
	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return reject(ReasonUsageLimitReached, coupon.UsageCount)
	}
	if coupon.PerCustomerLimit != nil && priorCustomerRedemptions >= *coupon.PerCustomerLimit {
		return reject(ReasonCustomerLimitReached, coupon.UsageCount)
	}

	eligible := subtotal
	if coupon.HasScope() {
		var matched bool
		eligible, matched = eligibleSubtotal(coupon, order.LineItems)
		if !matched {
			return reject(ReasonNotApplicable, coupon.UsageCount)
		}
	}

	return Decision{
		Accepted:       true,
		DiscountAmount: computeDiscount(coupon, eligible, order.ShippingCost),
		UsageCount:     coupon.UsageCount,
	}
}

func eligibleSubtotal(coupon Coupon, items []LineItem) (decimal.Decimal, bool) {
	products := toSet(coupon.AppliesToProducts)
	categories := toSet(coupon.AppliesToCategories)

	total := decimal.Zero
	matched := false
	for _, item := range items {
		_, productHit := products[item.ProductID]
		_, categoryHit := categories[item.CategoryID]
		if (item.ProductID != "" && productHit) || (item.CategoryID != "" && categoryHit) {
			matched = true
			total = total.Add(item.Total())
		}
	}
	return total, matched
}

func computeDiscount(coupon Coupon, eligible, shipping decimal.Decimal) decimal.Decimal {
	var discount, ceiling decimal.Decimal

	switch coupon.DiscountType {
	case DiscountPercentage:
		ceiling = eligible
		discount = eligible.Mul(coupon.DiscountValue).Div(hundred)
		if coupon.MaxDiscountAmount.Valid && discount.GreaterThan(coupon.MaxDiscountAmount.Decimal) {
			discount = coupon.MaxDiscountAmount.Decimal
		}
	case DiscountFixedAmount:
		ceiling = eligible
		discount = decimal.Min(coupon.DiscountValue, eligible)
	case DiscountFreeShipping:
		ceiling = shipping
		discount = shipping
	default:
		return decimal.Zero
	}

	return clamp(discount, ceiling).Round(amountPlaces)
}

func clamp(value, ceiling decimal.Decimal) decimal.Decimal {
	if ceiling.IsNegative() {
		ceiling = decimal.Zero
	}
	if value.IsNegative() {
		return decimal.Zero
	}
	if value.GreaterThan(ceiling) {
		return ceiling
	}
	return value
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
