package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)

	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	return NewService(Params{DB: conn, Log: zap.NewNop(), Enforcer: enforcer})
}

func TestOwnerAndAdminPermissions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	biz := snowflake.ID(10)

	require.NoError(t, svc.GrantRole(ctx, "user:alice", biz, "owner"))
	require.NoError(t, svc.GrantRole(ctx, "user:bob", biz, "ADMIN"))

	assert.NoError(t, svc.Authorize(ctx, "user:alice", biz, ObjectBusiness, ActionBusinessDeactivate))
	assert.NoError(t, svc.Authorize(ctx, "user:bob", biz, ObjectCoupon, ActionCouponCreate))
	assert.ErrorIs(t, svc.Authorize(ctx, "user:bob", biz, ObjectBusiness, ActionBusinessDeactivate), ErrForbidden)

	assert.ErrorIs(t, svc.Authorize(ctx, "user:alice", biz+1, ObjectCoupon, ActionCouponView), ErrForbidden,
		"roles do not leak across businesses")
	assert.ErrorIs(t, svc.Authorize(ctx, "user:alice", biz, ObjectCoupon, ActionCouponApply), ErrForbidden,
		"applying coupons is a checkout action")
}

func TestGrantRoleReplacesPreviousRole(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	biz := snowflake.ID(10)

	require.NoError(t, svc.GrantRole(ctx, "user:alice", biz, RoleOwner))
	require.NoError(t, svc.GrantRole(ctx, "user:alice", biz, RoleAdmin))

	roles, err := svc.RolesFor(ctx, "user:alice", biz)
	require.NoError(t, err)
	assert.Equal(t, []string{RoleAdmin}, roles)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:alice", biz, ObjectBusiness, ActionBusinessDeactivate), ErrForbidden)
}

func TestSystemActors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	biz := snowflake.ID(10)

	assert.NoError(t, svc.Authorize(ctx, "system:checkout", biz, ObjectCoupon, ActionCouponApply))
	assert.NoError(t, svc.AuthorizePlatform(ctx, "system:checkout", ObjectTenant, ActionTenantResolve))
	assert.ErrorIs(t, svc.AuthorizePlatform(ctx, "system:checkout", ObjectDomain, ActionDomainRecordVerification), ErrForbidden)
	assert.NoError(t, svc.AuthorizePlatform(ctx, "system:system", ObjectDomain, ActionDomainRecordVerification))
	assert.ErrorIs(t, svc.Authorize(ctx, "system:checkout", biz, ObjectCoupon, ActionCouponCreate), ErrForbidden)
}

func TestInvalidInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "", 10, ObjectCoupon, ActionCouponView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:", 10, ObjectCoupon, ActionCouponView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "system:owner", 10, ObjectCoupon, ActionCouponView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:alice", 0, ObjectCoupon, ActionCouponView), ErrInvalidBusiness)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:alice", 10, "", ActionCouponView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, "user:alice", 10, ObjectCoupon, " "), ErrInvalidAction)

	assert.ErrorIs(t, svc.GrantRole(ctx, "user:alice", 10, "superuser"), ErrInvalidRole)
	assert.ErrorIs(t, svc.GrantRole(ctx, "system:system", 10, RoleOwner), ErrInvalidActor)
}

func TestSeedingIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	first, err := NewEnforcer(conn)
	require.NoError(t, err)
	before, err := first.GetPolicy()
	require.NoError(t, err)

	second, err := NewEnforcer(conn)
	require.NoError(t, err)
	after, err := second.GetPolicy()
	require.NoError(t, err)

	assert.Len(t, after, len(before))
}
