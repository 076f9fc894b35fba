package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	coupondomain "github.com/smallbiznis/storefront/internal/coupon/domain"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
)

type createCouponRequest struct {
	Code                string              `json:"code" binding:"required,coupon_code"`
	DiscountType        string              `json:"discount_type" binding:"required,oneof=percentage fixed_amount free_shipping"`
	DiscountValue       decimal.Decimal     `json:"discount_value"`
	MinOrderAmount      decimal.NullDecimal `json:"min_order_amount"`
	MaxDiscountAmount   decimal.NullDecimal `json:"max_discount_amount"`
	UsageLimit          *int64              `json:"usage_limit" binding:"omitempty,gte=1"`
	PerCustomerLimit    *int64              `json:"per_customer_limit" binding:"omitempty,gte=1"`
	StartsAt            *time.Time          `json:"starts_at"`
	EndsAt              *time.Time          `json:"ends_at"`
	AppliesToProducts   []string            `json:"applies_to_products" binding:"max=500,dive,max=128"`
	AppliesToCategories []string            `json:"applies_to_categories" binding:"max=500,dive,max=128"`
}

func (s *Server) CreateCoupon(c *gin.Context) {
	businessID, err := businessIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	resp, err := s.couponSvc.Create(c.Request.Context(), businessID, coupondomain.CreateCouponRequest{
		Code:                req.Code,
		DiscountType:        req.DiscountType,
		DiscountValue:       req.DiscountValue,
		MinOrderAmount:      req.MinOrderAmount,
		MaxDiscountAmount:   req.MaxDiscountAmount,
		UsageLimit:          req.UsageLimit,
		PerCustomerLimit:    req.PerCustomerLimit,
		StartsAt:            req.StartsAt,
		EndsAt:              req.EndsAt,
		AppliesToProducts:   req.AppliesToProducts,
		AppliesToCategories: req.AppliesToCategories,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListCoupons(c *gin.Context) {
	businessID, err := businessIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query struct {
		pagination.Pagination
		ActiveOnly string `form:"active_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	activeOnly, err := parseOptionalBool(query.ActiveOnly)
	if err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "invalid active_only"))
		return
	}

	req := coupondomain.ListCouponRequest{
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	}
	if activeOnly != nil {
		req.ActiveOnly = *activeOnly
	}

	resp, err := s.couponSvc.List(c.Request.Context(), businessID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCoupon(c *gin.Context) {
	businessID, err := businessIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.couponSvc.GetByCode(c.Request.Context(), businessID, strings.TrimSpace(c.Param("code")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateCoupon(c *gin.Context) {
	businessID, err := businessIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.couponSvc.Deactivate(c.Request.Context(), businessID, strings.TrimSpace(c.Param("code")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRedemptions(c *gin.Context) {
	businessID, err := businessIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.couponSvc.ListRedemptions(c.Request.Context(), businessID, coupondomain.ListRedemptionRequest{
		Code:      strings.TrimSpace(c.Param("code")),
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
