package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	"go.uber.org/zap"
)

const keyCouponApply = "coupon:apply:%s:%s"

// CouponApplyLimiter throttles coupon apply calls per business and caller.
// It uses the shared redis bucket when redis is configured and falls back to
// per-process buckets otherwise.
type CouponApplyLimiter struct {
	enabled bool
	rate    float64
	burst   int

	bucket *TokenBucket
	local  *LocalStore
	log    *zap.Logger
}

func NewCouponApplyLimiter(cfg config.Config, client *redis.Client, clk clock.Clock, log *zap.Logger) (*CouponApplyLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return &CouponApplyLimiter{}, nil
	}
	if limitCfg.CouponApplyRate <= 0 || limitCfg.CouponApplyBurst <= 0 {
		return nil, errors.New("coupon apply rate limit must be positive")
	}

	limiter := &CouponApplyLimiter{
		enabled: true,
		rate:    limitCfg.CouponApplyRate,
		burst:   limitCfg.CouponApplyBurst,
		log:     log.Named("ratelimit.coupon_apply"),
	}
	if client != nil {
		limiter.bucket = NewTokenBucket(client)
	} else {
		limiter.local = NewLocalStore(limitCfg.CouponApplyRate, limitCfg.CouponApplyBurst, clk)
	}
	return limiter, nil
}

func (l *CouponApplyLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow consumes one token for the caller. A redis failure fails open so a
// cache outage never blocks checkout.
func (l *CouponApplyLimiter) Allow(ctx context.Context, businessID, caller string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyCouponApply, strings.TrimSpace(businessID), strings.TrimSpace(caller))

	if l.bucket == nil {
		return l.local.Allow(key), nil
	}

	result, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request", zap.Error(err))
		return &RateLimitResult{Allowed: true, Limit: l.burst}, err
	}
	return result, nil
}
