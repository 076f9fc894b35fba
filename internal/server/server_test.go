package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/authorization"
	businessrepository "github.com/smallbiznis/storefront/internal/business/repository"
	businessservice "github.com/smallbiznis/storefront/internal/business/service"
	"github.com/smallbiznis/storefront/internal/cache"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	coupondomain "github.com/smallbiznis/storefront/internal/coupon/domain"
	couponrepository "github.com/smallbiznis/storefront/internal/coupon/repository"
	couponservice "github.com/smallbiznis/storefront/internal/coupon/service"
	domainbindingrepository "github.com/smallbiznis/storefront/internal/domainbinding/repository"
	domainbindingservice "github.com/smallbiznis/storefront/internal/domainbinding/service"
	"github.com/smallbiznis/storefront/internal/migration"
	"github.com/smallbiznis/storefront/internal/observability"
	"github.com/smallbiznis/storefront/internal/ratelimit"
	redemptiondomain "github.com/smallbiznis/storefront/internal/redemption/domain"
	redemptionservice "github.com/smallbiznis/storefront/internal/redemption/service"
	tenantservice "github.com/smallbiznis/storefront/internal/tenant/service"
	"github.com/smallbiznis/storefront/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

var (
	owner    = map[string]string{HeaderActorType: "user", HeaderActorID: "alice"}
	stranger = map[string]string{HeaderActorType: "user", HeaderActorID: "mallory"}
	checkout = map[string]string{HeaderActorType: "system", HeaderActorID: "checkout-svc", HeaderActorRole: "checkout"}
	system   = map[string]string{HeaderActorType: "system", HeaderActorRole: "system"}
)

type testOptions struct {
	rateLimit config.RateLimitConfig
}

func newTestServer(t *testing.T, opts testOptions) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		PlatformDomain: "shops.example.com",
		Authorization:  config.AuthorizationConfig{Enabled: true},
		RateLimit:      opts.rateLimit,
	}
	fake := clock.NewFakeClock(epoch)
	log := zap.NewNop()
	policy := config.NewStaticPolicyHolder(config.DefaultPolicy())

	registry := domainbindingservice.New(domainbindingservice.Params{
		DB: conn, Log: log, GenID: node, Clock: fake, Cfg: cfg,
		Repo: domainbindingrepository.Provide(),
	})
	businessRepo := businessrepository.Provide()
	businesses := businessservice.New(businessservice.Params{
		DB: conn, Log: log, GenID: node, Clock: fake, Policy: policy,
		Repo: businessRepo, Domains: registry,
	})
	couponRepo := couponrepository.Provide()
	coupons := couponservice.New(couponservice.Params{
		DB: conn, Log: log, GenID: node, Clock: fake, Repo: couponRepo,
		Businesses: businessRepo,
	})
	coordinator := redemptionservice.New(redemptionservice.Params{
		DB: conn, Log: log, GenID: node, Clock: fake, Policy: policy,
		Coupons: couponRepo, Businesses: businessRepo,
	})
	resolver := tenantservice.New(tenantservice.Params{
		DB: conn, Log: log, Cfg: cfg, Policy: policy,
		Businesses: businessRepo, Registry: registry,
		Cache: cache.NewTenantResolutionCache(cache.WithClock(fake)),
	})

	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{DB: conn, Log: log, Enforcer: enforcer})

	limiter, err := ratelimit.NewCouponApplyLimiter(cfg, nil, fake, log)
	require.NoError(t, err)

	engine, err := NewEngine(observability.Config{LogLevel: "info", Environment: "test"}, nil)
	require.NoError(t, err)

	srv := NewServer(ServerParams{
		Gin:            engine,
		Cfg:            cfg,
		Log:            log,
		BusinessSvc:    businesses,
		Registry:       registry,
		CouponSvc:      coupons,
		Coordinator:    coordinator,
		TenantResolver: resolver,
		AuthzSvc:       authz,
		ApplyLimiter:   limiter,
	})
	srv.RegisterRoutes()
	return srv.Engine()
}

func do(t *testing.T, engine *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if host, ok := headers["Host"]; ok {
		req.Host = host
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func createBusiness(t *testing.T, engine *gin.Engine, name string) snowflake.ID {
	t.Helper()
	w := do(t, engine, http.MethodPost, "/admin/businesses", gin.H{"name": name}, owner)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var biz struct {
		ID   snowflake.ID `json:"id"`
		Slug string       `json:"slug"`
	}
	decodeData(t, w, &biz)
	require.NotZero(t, biz.ID)
	return biz.ID
}

func createCoupon(t *testing.T, engine *gin.Engine, businessID snowflake.ID, body gin.H) {
	t.Helper()
	w := do(t, engine, http.MethodPost, "/admin/businesses/"+businessID.String()+"/coupons", body, owner)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func applyPath(businessID snowflake.ID) string {
	return "/api/businesses/" + businessID.String() + "/coupons/apply"
}

func TestHealth(t *testing.T) {
	engine := newTestServer(t, testOptions{})
	w := do(t, engine, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateBusinessGrantsOwner(t *testing.T) {
	engine := newTestServer(t, testOptions{})
	id := createBusiness(t, engine, "Acme Pharmacy")
	path := "/admin/businesses/" + id.String()

	w := do(t, engine, http.MethodGet, path, nil, owner)
	require.Equal(t, http.StatusOK, w.Code)
	var biz struct {
		Slug string `json:"slug"`
	}
	decodeData(t, w, &biz)
	assert.Equal(t, "acme-pharmacy", biz.Slug)

	assert.Equal(t, http.StatusForbidden, do(t, engine, http.MethodGet, path, nil, stranger).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, engine, http.MethodGet, path, nil, nil).Code)
}

func TestCreateBusinessRequiresUser(t *testing.T) {
	engine := newTestServer(t, testOptions{})

	w := do(t, engine, http.MethodPost, "/admin/businesses", gin.H{"name": "Acme"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, engine, http.MethodPost, "/admin/businesses", gin.H{"name": "Acme"}, checkout)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateBusinessValidation(t *testing.T) {
	engine := newTestServer(t, testOptions{})

	w := do(t, engine, http.MethodPost, "/admin/businesses", gin.H{"slug": "acme"}, owner)
	require.Equal(t, http.StatusBadRequest, w.Code)
	payload := decodeError(t, w)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "name", payload.Errors[0].Field)
	assert.Equal(t, "required", payload.Errors[0].Code)

	w = do(t, engine, http.MethodPost, "/admin/businesses", gin.H{"name": "Admin", "slug": "admin"}, owner)
	require.Equal(t, http.StatusBadRequest, w.Code)
	payload = decodeError(t, w)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "reserved_slug", payload.Errors[0].Code)

	createBusiness(t, engine, "Acme")
	w = do(t, engine, http.MethodPost, "/admin/businesses", gin.H{"name": "Acme"}, owner)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInvalidBusinessID(t *testing.T) {
	engine := newTestServer(t, testOptions{})
	w := do(t, engine, http.MethodGet, "/admin/businesses/not-a-number", nil, owner)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "business_id", decodeError(t, w).Errors[0].Field)
}

func TestApplyCouponFlow(t *testing.T) {
	engine := newTestServer(t, testOptions{})
	id := createBusiness(t, engine, "Acme")
	createCoupon(t, engine, id, gin.H{
		"code":             "SAVE10",
		"discount_type":    "percentage",
		"discount_value":   "10",
		"min_order_amount": "100",
	})

	order := gin.H{"order_id": "o-1", "customer_id": "c-1", "subtotal": "250.00"}
	w := do(t, engine, http.MethodPost, applyPath(id), gin.H{"code": "save10", "order": order}, checkout)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result redemptiondomain.Result
	decodeData(t, w, &result)
	assert.True(t, result.Accepted)
	assert.True(t, result.DiscountAmount.Equal(decimal.RequireFromString("25")), result.DiscountAmount.String())
	assert.NotZero(t, result.RedemptionID)

	w = do(t, engine, http.MethodPost, applyPath(id), gin.H{"code": "SAVE10", "order": order}, checkout)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_redeemed", decodeError(t, w).Type)

	small := gin.H{"order_id": "o-2", "customer_id": "c-1", "subtotal": "50.00"}
	w = do(t, engine, http.MethodPost, applyPath(id), gin.H{"code": "SAVE10", "order": small}, checkout)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	payload := decodeError(t, w)
	assert.Equal(t, "coupon_rejected", payload.Type)
	assert.Equal(t, "below_minimum", payload.Reason)

	w = do(t, engine, http.MethodGet, "/admin/businesses/"+id.String()+"/coupons/SAVE10/redemptions", nil, owner)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Redemptions []struct {
			OrderID string `json:"order_id"`
		} `json:"redemptions"`
	}
	decodeData(t, w, &page)
	require.Len(t, page.Redemptions, 1)
	assert.Equal(t, "o-1", page.Redemptions[0].OrderID)
}

func TestApplyCouponAuthorization(t *testing.T) {
	engine := newTestServer(t, testOptions{})
	id := createBusiness(t, engine, "Acme")
	createCoupon(t, engine, id, gin.H{"code": "SAVE10", "discount_type": "percentage", "discount_value": "10"})

	body := gin.H{"code": "SAVE10", "order": gin.H{"order_id": "o-1", "customer_id": "c-1", "subtotal": "10"}}
	assert.Equal(t, http.StatusForbidden, do(t, engine, http.MethodPost, applyPath(id), body, owner).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, engine, http.MethodPost, applyPath(id), body, nil).Code)
}

func TestApplyCouponValidation(t *testing.T) {
	engine := newTestServer(t, testOptions{})
	id := createBusiness(t, engine, "Acme")

	w := do(t, engine, http.MethodPost, applyPath(id), gin.H{"code": "no spaces!", "order": gin.H{}}, checkout)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "coupon_code", decodeError(t, w).Errors[0].Code)

	w = do(t, engine, http.MethodPost, applyPath(id), gin.H{"code": "SAVE10", "order": gin.H{"subtotal": "10"}}, checkout)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_request", decodeError(t, w).Errors[0].Code)

	w = do(t, engine, http.MethodPost, applyPath(id), gin.H{"code": "MISSING", "order": gin.H{"order_id": "o", "customer_id": "c"}}, checkout)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplyCouponRateLimited(t *testing.T) {
	engine := newTestServer(t, testOptions{rateLimit: config.RateLimitConfig{
		Enabled: true, CouponApplyRate: 0.01, CouponApplyBurst: 1,
	}})
	id := createBusiness(t, engine, "Acme")
	createCoupon(t, engine, id, gin.H{"code": "SAVE10", "discount_type": "percentage", "discount_value": "10"})

	first := gin.H{"code": "SAVE10", "order": gin.H{"order_id": "o-1", "customer_id": "c-1", "subtotal": "10"}}
	require.Equal(t, http.StatusOK, do(t, engine, http.MethodPost, applyPath(id), first, checkout).Code)

	second := gin.H{"code": "SAVE10", "order": gin.H{"order_id": "o-2", "customer_id": "c-2", "subtotal": "10"}}
	w := do(t, engine, http.MethodPost, applyPath(id), second, checkout)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, w).Type)
}

func TestQuoteHasNoSideEffects(t *testing.T) {
	engine := newTestServer(t, testOptions{})
	id := createBusiness(t, engine, "Acme")
	createCoupon(t, engine, id, gin.H{"code": "ONCE", "discount_type": "fixed_amount", "discount_value": "5", "usage_limit": 1})

	body := gin.H{"code": "ONCE", "order": gin.H{"subtotal": "20"}}
	for i := 0; i < 3; i++ {
		w := do(t, engine, http.MethodPost, "/api/businesses/"+id.String()+"/coupons/quote", body, checkout)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var result redemptiondomain.Result
		decodeData(t, w, &result)
		assert.True(t, result.Accepted)
		assert.True(t, result.DiscountAmount.Equal(decimal.NewFromInt(5)))
	}

	w := do(t, engine, http.MethodGet, "/admin/businesses/"+id.String()+"/coupons/ONCE", nil, owner)
	require.Equal(t, http.StatusOK, w.Code)
	var coupon struct {
		UsageCount int64 `json:"usage_count"`
	}
	decodeData(t, w, &coupon)
	assert.Equal(t, int64(0), coupon.UsageCount)
}

func TestStorefrontRoutesBySubdomain(t *testing.T) {
	engine := newTestServer(t, testOptions{})
	id := createBusiness(t, engine, "Acme Pharmacy")

	w := do(t, engine, http.MethodGet, "/storefront/tenant", nil, map[string]string{"Host": "acme-pharmacy.shops.example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ref struct {
		ID   snowflake.ID `json:"id"`
		Slug string       `json:"slug"`
	}
	decodeData(t, w, &ref)
	assert.Equal(t, id, ref.ID)
	assert.Equal(t, "acme-pharmacy", ref.Slug)

	w = do(t, engine, http.MethodGet, "/storefront/tenant", nil, map[string]string{
		"Host":               "internal-lb:8080",
		HeaderStorefrontHost: "Acme-Pharmacy.shops.example.com.",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, engine, http.MethodGet, "/storefront/tenant", nil, map[string]string{"Host": "nobody.shops.example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStorefrontQuote(t *testing.T) {
	engine := newTestServer(t, testOptions{})
	id := createBusiness(t, engine, "Acme")
	createCoupon(t, engine, id, gin.H{"code": "SHIPFREE", "discount_type": "free_shipping", "discount_value": "0"})

	body := gin.H{"code": "shipfree", "order": gin.H{"subtotal": "40", "shipping_cost": "7.50"}}
	w := do(t, engine, http.MethodPost, "/storefront/coupons/quote", body, map[string]string{"Host": "acme.shops.example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result redemptiondomain.Result
	decodeData(t, w, &result)
	assert.True(t, result.Accepted)
	assert.True(t, result.DiscountAmount.Equal(decimal.RequireFromString("7.5")))
}

func TestCustomDomainLifecycle(t *testing.T) {
	engine := newTestServer(t, testOptions{})
	id := createBusiness(t, engine, "Acme")
	domains := "/admin/businesses/" + id.String() + "/domains"

	w := do(t, engine, http.MethodPost, domains, gin.H{"hostname": "Shop.Acme.com"}, owner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var bound struct {
		Binding struct {
			Hostname string `json:"hostname"`
			Status   string `json:"status"`
		} `json:"binding"`
		VerificationName string `json:"verification_name"`
	}
	decodeData(t, w, &bound)
	assert.Equal(t, "shop.acme.com", bound.Binding.Hostname)
	assert.Equal(t, "pending", bound.Binding.Status)
	assert.Equal(t, "_storefront-verify.shop.acme.com", bound.VerificationName)

	verify := "/api/domains/shop.acme.com/verification"
	assert.Equal(t, http.StatusForbidden, do(t, engine, http.MethodPut, verify, gin.H{"status": "verified"}, checkout).Code)
	w = do(t, engine, http.MethodPut, verify, gin.H{"status": "verified"}, system)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, engine, http.MethodGet, "/storefront/tenant", nil, map[string]string{"Host": "shop.acme.com"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, engine, http.MethodGet, "/api/tenants/resolve?host=shop.acme.com", nil, checkout)
	require.Equal(t, http.StatusOK, w.Code)
	var resolved struct {
		Source string `json:"source"`
	}
	decodeData(t, w, &resolved)
	assert.Equal(t, "custom_domain", resolved.Source)

	w = do(t, engine, http.MethodGet, domains, nil, owner)
	require.Equal(t, http.StatusOK, w.Code)
	var list []struct {
		Hostname string `json:"hostname"`
	}
	decodeData(t, w, &list)
	require.Len(t, list, 1)

	w = do(t, engine, http.MethodDelete, domains+"/shop.acme.com", nil, owner)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDomainValidationAndOwnership(t *testing.T) {
	engine := newTestServer(t, testOptions{})
	first := createBusiness(t, engine, "Acme")
	second := createBusiness(t, engine, "Globex")

	w := do(t, engine, http.MethodPost, "/admin/businesses/"+first.String()+"/domains", gin.H{"hostname": "not a host"}, owner)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "hostname_fqdn", decodeError(t, w).Errors[0].Code)

	require.Equal(t, http.StatusOK,
		do(t, engine, http.MethodPost, "/admin/businesses/"+first.String()+"/domains", gin.H{"hostname": "shop.acme.com"}, owner).Code)

	w = do(t, engine, http.MethodPost, "/admin/businesses/"+second.String()+"/domains", gin.H{"hostname": "shop.acme.com"}, owner)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, engine, http.MethodDelete, "/admin/businesses/"+second.String()+"/domains/shop.acme.com", nil, owner)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTenantResolveRequiresPlatformRole(t *testing.T) {
	engine := newTestServer(t, testOptions{})
	createBusiness(t, engine, "Acme")

	assert.Equal(t, http.StatusForbidden, do(t, engine, http.MethodGet, "/api/tenants/resolve?host=acme", nil, owner).Code)
	assert.Equal(t, http.StatusOK, do(t, engine, http.MethodGet, "/api/tenants/resolve?host=acme", nil, checkout).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, engine, http.MethodGet, "/api/tenants/resolve", nil, checkout).Code)
}

func TestDeactivatedBusinessStopsRouting(t *testing.T) {
	engine := newTestServer(t, testOptions{})
	id := createBusiness(t, engine, "Acme")

	w := do(t, engine, http.MethodPost, "/admin/businesses/"+id.String()+"/deactivate", nil, owner)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, engine, http.MethodGet, "/api/tenants/resolve?host=acme", nil, checkout)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, engine, http.MethodPut, "/admin/businesses/"+id.String()+"/template", gin.H{"version": 2}, owner)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "business_inactive", decodeError(t, w).Type)

	w = do(t, engine, http.MethodPost, "/admin/businesses/"+id.String()+"/coupons",
		gin.H{"code": "LATE10", "discount_type": "percentage", "discount_value": "10"}, owner)
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestContendedSetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.GET("/x", func(c *gin.Context) { AbortWithError(c, redemptiondomain.ErrContended) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{redemptiondomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{coupondomain.ErrBusinessNotFound, http.StatusNotFound, "not_found"},
		{redemptiondomain.ErrAlreadyRedeemed, http.StatusConflict, "already_redeemed"},
		{&CouponRejectedError{Reason: "inactive"}, http.StatusUnprocessableEntity, "coupon_rejected"},
		{ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.kind, payload.Type, tc.err.Error())
	}

	kind, code := classifyErrorForLog(&CouponRejectedError{Reason: "below_minimum"})
	assert.Equal(t, "coupon_rejected", kind)
	assert.Equal(t, "below_minimum", code)
}
