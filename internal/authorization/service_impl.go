package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const platformDomain = "platform"

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, businessID snowflake.ID, object string, action string) error {
	if businessID == 0 {
		return ErrInvalidBusiness
	}
	return s.enforce(ctx, actor, businessDomain(businessID), object, action)
}

func (s *ServiceImpl) AuthorizePlatform(ctx context.Context, actor string, object string, action string) error {
	return s.enforce(ctx, actor, platformDomain, object, action)
}

func (s *ServiceImpl) enforce(ctx context.Context, actor string, domain string, object string, action string) error {
	subject, err := subjectOf(actor)
	if err != nil {
		return err
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("domain", domain),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// GrantRole assigns a business role to a user, replacing any previous role.
func (s *ServiceImpl) GrantRole(ctx context.Context, actor string, businessID snowflake.ID, role string) error {
	subject, err := subjectOf(actor)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(subject, "user:") {
		return ErrInvalidActor
	}
	if businessID == 0 {
		return ErrInvalidBusiness
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role != RoleOwner && role != RoleAdmin {
		return ErrInvalidRole
	}

	domain := businessDomain(businessID)
	roleName := fmt.Sprintf("role:%s", role)

	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	if _, err := s.enforcer.AddGroupingPolicy(subject, roleName, domain); err != nil {
		return err
	}

	s.log.Info("role granted",
		zap.String("subject", subject),
		zap.String("business_id", businessID.String()),
		zap.String("role", role),
	)
	return nil
}

func (s *ServiceImpl) RolesFor(ctx context.Context, actor string, businessID snowflake.ID) ([]string, error) {
	subject, err := subjectOf(actor)
	if err != nil {
		return nil, err
	}
	roles := s.enforcer.GetRolesForUserInDomain(subject, businessDomain(businessID))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, strings.TrimPrefix(role, "role:"))
	}
	return out, nil
}

// subjectOf maps an actor string to its casbin subject. System actors act
// directly as their role.
func subjectOf(actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	switch {
	case strings.HasPrefix(actor, "user:"):
		if strings.TrimSpace(strings.TrimPrefix(actor, "user:")) == "" {
			return "", ErrInvalidActor
		}
		return actor, nil
	case strings.HasPrefix(actor, "system:"):
		role := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(actor, "system:")))
		if role != RoleCheckout && role != RoleSystem {
			return "", ErrInvalidActor
		}
		return "role:" + role, nil
	default:
		return "", ErrInvalidActor
	}
}

func businessDomain(id snowflake.ID) string {
	return fmt.Sprintf("business:%s", id.String())
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	adminActions := [][]string{
		{ObjectBusiness, ActionBusinessView},
		{ObjectBusiness, ActionBusinessPublishTemplate},
		{ObjectDomain, ActionDomainView},
		{ObjectDomain, ActionDomainBind},
		{ObjectDomain, ActionDomainUnbind},
		{ObjectCoupon, ActionCouponView},
		{ObjectCoupon, ActionCouponCreate},
		{ObjectCoupon, ActionCouponDeactivate},
		{ObjectCoupon, ActionCouponQuote},
		{ObjectRedemption, ActionRedemptionView},
	}
	checkoutActions := [][]string{
		{ObjectCoupon, ActionCouponApply},
		{ObjectCoupon, ActionCouponQuote},
		{ObjectTenant, ActionTenantResolve},
	}

	policies := make([][]string, 0, 32)
	for _, role := range []string{RoleAdmin, RoleOwner} {
		for _, rule := range adminActions {
			policies = append(policies, []string{"role:" + role, rule[0], rule[1]})
		}
	}
	policies = append(policies, []string{"role:" + RoleOwner, ObjectBusiness, ActionBusinessDeactivate})

	for _, role := range []string{RoleCheckout, RoleSystem} {
		for _, rule := range checkoutActions {
			policies = append(policies, []string{"role:" + role, rule[0], rule[1]})
		}
	}
	policies = append(policies,
		[]string{"role:" + RoleSystem, ObjectDomain, ActionDomainRecordVerification},
		[]string{"role:" + RoleSystem, ObjectBusiness, ActionBusinessView},
	)

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
