package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	"go.uber.org/zap"
)

const rateLimitReasonCallerRate = "caller-rate"

// CouponApplyRateLimit throttles apply calls per business and caller.
func (s *Server) CouponApplyRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.applyLimiter == nil || !s.applyLimiter.Enabled() {
			c.Next()
			return
		}

		businessID := strings.TrimSpace(c.Param("business_id"))
		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.applyLimiter.Allow(ctx, businessID, s.rateLimitCaller(c))
		if err != nil {
			logger.FromContext(ctx).Warn("coupon apply rate limit check failed", zap.Error(err))
		}
		if result != nil && !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			denyCouponApply(c, endpoint, businessID, retryAfter, s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, endpoint, businessID, s.obsMetrics)
		c.Next()
	}
}

func (s *Server) rateLimitCaller(c *gin.Context) string {
	if actor, ok := s.actorFromContext(c); ok {
		return actor.subject()
	}
	return "ip:" + c.ClientIP()
}

func denyCouponApply(c *gin.Context, endpoint, businessID string, retryAfter int, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("coupon apply rate limit exceeded",
		zap.String("reason", rateLimitReasonCallerRate),
		zap.String("endpoint", endpoint),
	)
	recordRateLimitDenied(ctx, endpoint, businessID, rateLimitReasonCallerRate, metrics)

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonCallerRate)
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitAllowed(ctx context.Context, endpoint, businessID string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, businessID, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, businessID, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, businessID, endpoint, reason)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
