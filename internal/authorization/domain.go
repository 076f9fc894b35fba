package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

const (
	ObjectBusiness   = "business"
	ObjectDomain     = "domain"
	ObjectCoupon     = "coupon"
	ObjectRedemption = "redemption"
	ObjectTenant     = "tenant"
)

const (
	ActionBusinessView            = "business.view"
	ActionBusinessDeactivate      = "business.deactivate"
	ActionBusinessPublishTemplate = "business.publish_template"

	ActionDomainView               = "domain.view"
	ActionDomainBind               = "domain.bind"
	ActionDomainUnbind             = "domain.unbind"
	ActionDomainRecordVerification = "domain.record_verification"

	ActionCouponView       = "coupon.view"
	ActionCouponCreate     = "coupon.create"
	ActionCouponDeactivate = "coupon.deactivate"
	ActionCouponApply      = "coupon.apply"
	ActionCouponQuote      = "coupon.quote"

	ActionRedemptionView = "redemption.view"

	ActionTenantResolve = "tenant.resolve"
)

const (
	RoleOwner    = "owner"
	RoleAdmin    = "admin"
	RoleCheckout = "checkout"
	RoleSystem   = "system"
)

// Service answers whether an actor may perform an action inside one business.
//
// Actors are "user:<id>", whose roles are granted per business, or
// "system:<role>" for service callers carrying a platform role.
type Service interface {
	Authorize(ctx context.Context, actor string, businessID snowflake.ID, object string, action string) error
	// AuthorizePlatform checks actions that are not scoped to a business.
	AuthorizePlatform(ctx context.Context, actor string, object string, action string) error
	GrantRole(ctx context.Context, actor string, businessID snowflake.ID, role string) error
	RolesFor(ctx context.Context, actor string, businessID snowflake.ID) ([]string, error)
}

var (
	ErrInvalidActor    = errors.New("invalid_actor")
	ErrInvalidBusiness = errors.New("invalid_business")
	ErrInvalidObject   = errors.New("invalid_object")
	ErrInvalidAction   = errors.New("invalid_action")
	ErrInvalidRole     = errors.New("invalid_role")
	ErrForbidden       = errors.New("forbidden")
)
