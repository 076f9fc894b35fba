package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	businessdomain "github.com/smallbiznis/storefront/internal/business/domain"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	coupondomain "github.com/smallbiznis/storefront/internal/coupon/domain"
	"github.com/smallbiznis/storefront/internal/observability/metrics"
	"github.com/smallbiznis/storefront/internal/observability/tracing"
	"github.com/smallbiznis/storefront/internal/redemption/domain"
	"github.com/smallbiznis/storefront/pkg/rls"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	outcomeAccepted        = "accepted"
	outcomeRejected        = "rejected"
	outcomeAlreadyRedeemed = "already_redeemed"
	outcomeContended       = "contended"
	outcomeError           = "error"
)

var (
	errOrderTaken       = errors.New("order already redeemed")
	errCustomerSeqTaken = errors.New("customer sequence taken")
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Policy     *config.PolicyHolder
	Coupons    coupondomain.Repository
	Businesses businessdomain.Repository
	Metrics    *metrics.Metrics `optional:"true"`
}

type Coordinator struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	policy     *config.PolicyHolder
	coupons    coupondomain.Repository
	businesses businessdomain.Repository
	metrics    *metrics.Metrics
}

func New(p Params) domain.Coordinator {
	return &Coordinator{
		db:         p.DB,
		log:        p.Log.Named("redemption.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     p.Policy,
		coupons:    p.Coupons,
		businesses: p.Businesses,
		metrics:    p.Metrics,
	}
}

// Apply validates the coupon and, when accepted, reserves a use and records
// the redemption. Losing the usage_count race re-reads and re-validates, up to
// the configured number of attempts.
func (s *Coordinator) Apply(ctx context.Context, req domain.ApplyRequest) (result domain.Result, err error) {
	code := coupondomain.NormalizeCode(req.Code)
	order := req.Order
	order.OrderID = strings.TrimSpace(order.OrderID)
	order.CustomerID = strings.TrimSpace(order.CustomerID)
	if req.BusinessID == 0 || code == "" || order.OrderID == "" || order.CustomerID == "" {
		return domain.Result{}, domain.ErrInvalidRequest
	}

	ctx, span := otel.Tracer("storefront/redemption").Start(ctx, "redemption.apply")
	businessID := req.BusinessID.String()
	attempts := 0
	defer func() {
		outcome, reason := outcomeOf(result, err)
		s.metrics.RecordRedemption(ctx, businessID, outcome, reason)
		span.SetAttributes(tracing.SafeAttributes(
			attribute.String("business_id", businessID),
			attribute.String("coupon.outcome", outcome),
			attribute.String("coupon.reason", reason),
			attribute.Int("coupon.attempts", attempts),
		)...)
		if outcome == outcomeError {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "redemption failed")
		}
		span.End()
	}()

	maxAttempts := s.policy.Get().Redemption.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempts < maxAttempts {
		attempts++

		coupon, err := s.fetch(ctx, req.BusinessID, code)
		if err != nil {
			return domain.Result{}, err
		}

		existing, err := s.coupons.FindRedemptionByOrder(ctx, s.db, coupon.ID, order.OrderID)
		if err != nil {
			return domain.Result{}, err
		}
		if existing != nil {
			return domain.Result{}, domain.ErrAlreadyRedeemed
		}

		prior, err := s.coupons.CountCustomerRedemptions(ctx, s.db, coupon.ID, order.CustomerID)
		if err != nil {
			return domain.Result{}, err
		}

		decision := coupondomain.Validate(*coupon, order, prior, s.clock.Now())
		if !decision.Accepted {
			return domain.Result{Reason: decision.Reason, DiscountAmount: decimal.Zero, CouponID: coupon.ID}, nil
		}

		reserved, err := s.coupons.TryIncrementUsage(ctx, s.db, coupon.ID, decision.UsageCount)
		if err != nil {
			return domain.Result{}, err
		}
		if !reserved {
			s.metrics.RecordRedemptionRetry(ctx, businessID)
			continue
		}

		redemption, err := s.commit(ctx, coupon, order, prior+1, decision.DiscountAmount)
		switch {
		case err == nil:
			s.log.Info("coupon redeemed",
				zap.String("business_id", businessID),
				zap.String("coupon_id", coupon.ID.String()),
				zap.String("redemption_id", redemption.ID.String()),
				zap.Int("attempts", attempts),
			)
			return domain.Result{
				Accepted:       true,
				DiscountAmount: redemption.DiscountAmount,
				RedemptionID:   redemption.ID,
				CouponID:       coupon.ID,
			}, nil
		case errors.Is(err, errOrderTaken):
			return domain.Result{}, domain.ErrAlreadyRedeemed
		case errors.Is(err, errCustomerSeqTaken):
			s.metrics.RecordRedemptionRetry(ctx, businessID)
			continue
		default:
			return domain.Result{}, err
		}
	}

	s.log.Warn("coupon redemption contended",
		zap.String("business_id", businessID),
		zap.Int("attempts", attempts),
	)
	return domain.Result{}, domain.ErrContended
}

// Quote runs the same checks as Apply without reserving anything.
func (s *Coordinator) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Result, error) {
	code := coupondomain.NormalizeCode(req.Code)
	if req.BusinessID == 0 || code == "" {
		return domain.Result{}, domain.ErrInvalidRequest
	}

	coupon, err := s.fetch(ctx, req.BusinessID, code)
	if err != nil {
		return domain.Result{}, err
	}

	var prior int64
	if customerID := strings.TrimSpace(req.Order.CustomerID); customerID != "" {
		prior, err = s.coupons.CountCustomerRedemptions(ctx, s.db, coupon.ID, customerID)
		if err != nil {
			return domain.Result{}, err
		}
	}

	decision := coupondomain.Validate(*coupon, req.Order, prior, s.clock.Now())
	return domain.Result{
		Accepted:       decision.Accepted,
		Reason:         decision.Reason,
		DiscountAmount: decision.DiscountAmount,
		CouponID:       coupon.ID,
	}, nil
}

func (s *Coordinator) fetch(ctx context.Context, businessID snowflake.ID, code string) (*coupondomain.Coupon, error) {
	business, err := s.businesses.FindActiveByID(ctx, s.db, businessID)
	if err != nil {
		return nil, err
	}
	if business == nil {
		return nil, domain.ErrNotFound
	}
	coupon, err := s.coupons.FindByCode(ctx, s.db, businessID, code)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, domain.ErrNotFound
	}
	return coupon, nil
}

// commit records the redemption for a reserved use. It runs detached from the
// caller's cancellation so a reservation is always either recorded or released.
func (s *Coordinator) commit(ctx context.Context, coupon *coupondomain.Coupon, order coupondomain.OrderContext, seq int64, amount decimal.Decimal) (coupondomain.Redemption, error) {
	timeout := s.policy.Get().Redemption.CommitTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	redemption := coupondomain.Redemption{
		ID:             s.genID.Generate(),
		CouponID:       coupon.ID,
		BusinessID:     coupon.BusinessID,
		CustomerID:     order.CustomerID,
		OrderID:        order.OrderID,
		CustomerSeq:    seq,
		DiscountAmount: amount,
		RedeemedAt:     s.clock.Now(),
	}

	err := s.db.WithContext(commitCtx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := rls.WithBusiness(tx, coupon.BusinessID); err != nil {
				return err
			}
		}
		return s.coupons.RecordRedemption(commitCtx, tx, &redemption)
	})
	if err == nil {
		return redemption, nil
	}

	cause := err
	if errors.Is(err, coupondomain.ErrConflict) {
		existing, findErr := s.coupons.FindRedemptionByOrder(commitCtx, s.db, coupon.ID, order.OrderID)
		switch {
		case findErr != nil:
			cause = findErr
		case existing != nil:
			cause = errOrderTaken
		default:
			cause = errCustomerSeqTaken
		}
	}

	if _, decErr := s.coupons.DecrementUsage(commitCtx, s.db, coupon.ID); decErr != nil {
		s.log.Error("redemption.fatal_inconsistency",
			zap.String("business_id", coupon.BusinessID.String()),
			zap.String("coupon_id", coupon.ID.String()),
			zap.String("order_id", order.OrderID),
			zap.String("customer_id", order.CustomerID),
			zap.NamedError("record_error", err),
			zap.Error(decErr),
		)
		s.metrics.RecordFatalInconsistency(commitCtx, coupon.BusinessID.String())
		return coupondomain.Redemption{}, errors.Join(cause, decErr)
	}
	return coupondomain.Redemption{}, cause
}

func outcomeOf(result domain.Result, err error) (string, string) {
	switch {
	case err == nil && result.Accepted:
		return outcomeAccepted, ""
	case err == nil:
		return outcomeRejected, string(result.Reason)
	case errors.Is(err, domain.ErrAlreadyRedeemed):
		return outcomeAlreadyRedeemed, ""
	case errors.Is(err, domain.ErrContended):
		return outcomeContended, ""
	case errors.Is(err, domain.ErrNotFound):
		return outcomeRejected, "not_found"
	default:
		return outcomeError, ""
	}
}
