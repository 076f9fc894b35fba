package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/storefront/internal/authorization"
	businessdomain "github.com/smallbiznis/storefront/internal/business/domain"
	"github.com/smallbiznis/storefront/internal/config"
	coupondomain "github.com/smallbiznis/storefront/internal/coupon/domain"
	domainbindingdomain "github.com/smallbiznis/storefront/internal/domainbinding/domain"
	"github.com/smallbiznis/storefront/internal/observability"
	obsmiddleware "github.com/smallbiznis/storefront/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	obstracing "github.com/smallbiznis/storefront/internal/observability/tracing"
	"github.com/smallbiznis/storefront/internal/ratelimit"
	redemptiondomain "github.com/smallbiznis/storefront/internal/redemption/domain"
	tenantdomain "github.com/smallbiznis/storefront/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves every route group on one listener.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) (*gin.Engine, error) {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := registerValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())
	r.Use(ActorFromHeaders())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r, nil
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	businessSvc    businessdomain.Service
	registry       domainbindingdomain.Registry
	couponSvc      coupondomain.Service
	coordinator    redemptiondomain.Coordinator
	tenantResolver tenantdomain.Resolver
	authzSvc       authorization.Service
	applyLimiter   *ratelimit.CouponApplyLimiter
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	BusinessSvc    businessdomain.Service
	Registry       domainbindingdomain.Registry
	CouponSvc      coupondomain.Service
	Coordinator    redemptiondomain.Coordinator
	TenantResolver tenantdomain.Resolver
	AuthzSvc       authorization.Service        `optional:"true"`
	ApplyLimiter   *ratelimit.CouponApplyLimiter `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics           `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		businessSvc:    p.BusinessSvc,
		registry:       p.Registry,
		couponSvc:      p.CouponSvc,
		coordinator:    p.Coordinator,
		tenantResolver: p.TenantResolver,
		authzSvc:       p.AuthzSvc,
		applyLimiter:   p.ApplyLimiter,
		obsMetrics:     p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	s.RegisterStorefrontRoutes()
	s.RegisterAPIRoutes()
	s.RegisterAdminRoutes()
}

// RegisterStorefrontRoutes serves shopper traffic routed by host.
func (s *Server) RegisterStorefrontRoutes() {
	storefront := s.engine.Group("/storefront", s.ResolveTenant())

	storefront.GET("/tenant", s.StorefrontTenant)
	storefront.POST("/coupons/quote", s.StorefrontQuote)
}

// RegisterAPIRoutes serves checkout and platform collaborators.
func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/tenants/resolve", s.authorizePlatformAction(authorization.ObjectTenant, authorization.ActionTenantResolve), s.ResolveTenantByHost)

	// -------- Redemption --------
	api.POST("/businesses/:business_id/coupons/apply",
		s.authorizeBusinessAction(authorization.ObjectCoupon, authorization.ActionCouponApply),
		s.CouponApplyRateLimit(),
		s.ApplyCoupon,
	)
	api.POST("/businesses/:business_id/coupons/quote", s.authorizeBusinessAction(authorization.ObjectCoupon, authorization.ActionCouponQuote), s.QuoteCoupon)

	// -------- Verification --------
	api.PUT("/domains/:hostname/verification", s.authorizePlatformAction(authorization.ObjectDomain, authorization.ActionDomainRecordVerification), s.RecordVerification)
}

// RegisterAdminRoutes serves business administrators.
func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/businesses", s.CreateBusiness)

	biz := admin.Group("/businesses/:business_id")

	// -------- Business --------
	biz.GET("", s.authorizeBusinessAction(authorization.ObjectBusiness, authorization.ActionBusinessView), s.GetBusiness)
	biz.POST("/deactivate", s.authorizeBusinessAction(authorization.ObjectBusiness, authorization.ActionBusinessDeactivate), s.DeactivateBusiness)
	biz.PUT("/template", s.authorizeBusinessAction(authorization.ObjectBusiness, authorization.ActionBusinessPublishTemplate), s.PublishTemplate)

	// -------- Domains --------
	biz.GET("/domains", s.authorizeBusinessAction(authorization.ObjectDomain, authorization.ActionDomainView), s.ListDomains)
	biz.POST("/domains", s.authorizeBusinessAction(authorization.ObjectDomain, authorization.ActionDomainBind), s.BindDomain)
	biz.DELETE("/domains/:hostname", s.authorizeBusinessAction(authorization.ObjectDomain, authorization.ActionDomainUnbind), s.UnbindDomain)

	// -------- Coupons --------
	biz.GET("/coupons", s.authorizeBusinessAction(authorization.ObjectCoupon, authorization.ActionCouponView), s.ListCoupons)
	biz.POST("/coupons", s.authorizeBusinessAction(authorization.ObjectCoupon, authorization.ActionCouponCreate), s.CreateCoupon)
	biz.GET("/coupons/:code", s.authorizeBusinessAction(authorization.ObjectCoupon, authorization.ActionCouponView), s.GetCoupon)
	biz.POST("/coupons/:code/deactivate", s.authorizeBusinessAction(authorization.ObjectCoupon, authorization.ActionCouponDeactivate), s.DeactivateCoupon)
	biz.GET("/coupons/:code/redemptions", s.authorizeBusinessAction(authorization.ObjectRedemption, authorization.ActionRedemptionView), s.ListRedemptions)
}
