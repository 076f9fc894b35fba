package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	businessdomain "github.com/smallbiznis/storefront/internal/business/domain"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/coupon/domain"
	"github.com/smallbiznis/storefront/pkg/db"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{1,63}$`)

// ValidCode reports whether a normalized code is acceptable for a new coupon.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Businesses businessdomain.Repository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	businesses businessdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("coupon.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		businesses: p.Businesses,
	}
}

func (s *Service) Create(ctx context.Context, businessID snowflake.ID, req domain.CreateCouponRequest) (domain.Coupon, error) {
	if businessID == 0 {
		return domain.Coupon{}, domain.ErrInvalidBusiness
	}

	code := domain.NormalizeCode(req.Code)
	if !ValidCode(code) {
		return domain.Coupon{}, domain.ErrInvalidCode
	}

	discountType := domain.DiscountType(strings.ToLower(strings.TrimSpace(req.DiscountType)))
	if !discountType.Valid() {
		return domain.Coupon{}, domain.ErrInvalidDiscountType
	}

	value, err := validateValue(discountType, req.DiscountValue)
	if err != nil {
		return domain.Coupon{}, err
	}
	if err := validateOptionalAmount(req.MinOrderAmount); err != nil {
		return domain.Coupon{}, err
	}
	if err := validateOptionalAmount(req.MaxDiscountAmount); err != nil {
		return domain.Coupon{}, err
	}
	if !validLimit(req.UsageLimit) || !validLimit(req.PerCustomerLimit) {
		return domain.Coupon{}, domain.ErrInvalidLimit
	}
	if req.StartsAt != nil && req.EndsAt != nil && req.StartsAt.After(*req.EndsAt) {
		return domain.Coupon{}, domain.ErrInvalidWindow
	}

	business, err := s.businesses.FindActiveByID(ctx, s.db, businessID)
	if err != nil {
		return domain.Coupon{}, err
	}
	if business == nil {
		return domain.Coupon{}, domain.ErrBusinessNotFound
	}

	existing, err := s.repo.FindByCode(ctx, s.db, businessID, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	if existing != nil {
		return domain.Coupon{}, domain.ErrCodeExists
	}

	now := s.clock.Now()
	coupon := domain.Coupon{
		ID:                  s.genID.Generate(),
		BusinessID:          businessID,
		Code:                code,
		DiscountType:        discountType,
		DiscountValue:       value,
		MinOrderAmount:      req.MinOrderAmount,
		MaxDiscountAmount:   req.MaxDiscountAmount,
		UsageLimit:          req.UsageLimit,
		PerCustomerLimit:    req.PerCustomerLimit,
		IsActive:            true,
		StartsAt:            utcPtr(req.StartsAt),
		EndsAt:              utcPtr(req.EndsAt),
		AppliesToProducts:   datatypes.JSONSlice[string](cleanList(req.AppliesToProducts)),
		AppliesToCategories: datatypes.JSONSlice[string](cleanList(req.AppliesToCategories)),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repo.Insert(ctx, s.db, &coupon); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Coupon{}, domain.ErrCodeExists
		}
		return domain.Coupon{}, err
	}

	s.log.Info("coupon created",
		zap.String("business_id", businessID.String()),
		zap.String("coupon_id", coupon.ID.String()),
		zap.String("discount_type", string(discountType)),
	)
	return coupon, nil
}

func (s *Service) GetByCode(ctx context.Context, businessID snowflake.ID, code string) (domain.Coupon, error) {
	if businessID == 0 {
		return domain.Coupon{}, domain.ErrInvalidBusiness
	}
	normalized := domain.NormalizeCode(code)
	if normalized == "" {
		return domain.Coupon{}, domain.ErrNotFound
	}
	coupon, err := s.repo.FindByCode(ctx, s.db, businessID, normalized)
	if err != nil {
		return domain.Coupon{}, err
	}
	if coupon == nil {
		return domain.Coupon{}, domain.ErrNotFound
	}
	return *coupon, nil
}

func (s *Service) List(ctx context.Context, businessID snowflake.ID, req domain.ListCouponRequest) (domain.ListCouponResponse, error) {
	if businessID == 0 {
		return domain.ListCouponResponse{}, domain.ErrInvalidBusiness
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, businessID, domain.ListCouponFilter{ActiveOnly: req.ActiveOnly}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListCouponResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(coupon *domain.Coupon) string {
		return cursorToken(coupon.ID, coupon.CreatedAt)
	})
	if len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	coupons := make([]domain.Coupon, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		coupons = append(coupons, *item)
	}

	resp := domain.ListCouponResponse{Coupons: coupons}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// Deactivate stops the coupon from validating. Deactivating twice is a no-op.
func (s *Service) Deactivate(ctx context.Context, businessID snowflake.ID, code string) (domain.Coupon, error) {
	coupon, err := s.GetByCode(ctx, businessID, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	if !coupon.IsActive {
		return coupon, nil
	}

	now := s.clock.Now()
	if _, err := s.repo.Deactivate(ctx, s.db, businessID, coupon.ID, now); err != nil {
		return domain.Coupon{}, err
	}

	s.log.Info("coupon deactivated",
		zap.String("business_id", businessID.String()),
		zap.String("coupon_id", coupon.ID.String()),
	)
	return s.GetByCode(ctx, businessID, code)
}

func (s *Service) ListRedemptions(ctx context.Context, businessID snowflake.ID, req domain.ListRedemptionRequest) (domain.ListRedemptionResponse, error) {
	coupon, err := s.GetByCode(ctx, businessID, req.Code)
	if err != nil {
		return domain.ListRedemptionResponse{}, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.ListRedemptions(ctx, s.db, coupon.ID, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListRedemptionResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(r *domain.Redemption) string {
		return cursorToken(r.ID, r.RedeemedAt)
	})
	if len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	redemptions := make([]domain.Redemption, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		redemptions = append(redemptions, *item)
	}

	resp := domain.ListRedemptionResponse{Redemptions: redemptions}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func validateValue(discountType domain.DiscountType, value decimal.Decimal) (decimal.Decimal, error) {
	switch discountType {
	case domain.DiscountPercentage:
		if !value.IsPositive() || value.GreaterThan(decimal.NewFromInt(100)) {
			return decimal.Zero, domain.ErrInvalidDiscountValue
		}
	case domain.DiscountFixedAmount:
		if !value.IsPositive() {
			return decimal.Zero, domain.ErrInvalidDiscountValue
		}
	case domain.DiscountFreeShipping:
		return decimal.Zero, nil
	}
	return value.Round(2), nil
}

func validateOptionalAmount(amount decimal.NullDecimal) error {
	if amount.Valid && amount.Decimal.IsNegative() {
		return domain.ErrInvalidAmount
	}
	return nil
}

func validLimit(limit *int64) bool {
	return limit == nil || *limit >= 1
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func cursorToken(id snowflake.ID, createdAt time.Time) string {
	token, err := pagination.EncodeCursor(pagination.Cursor{
		ID:        id.String(),
		CreatedAt: createdAt.Format(time.RFC3339),
	})
	if err != nil {
		return ""
	}
	return token
}
