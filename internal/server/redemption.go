package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	coupondomain "github.com/smallbiznis/storefront/internal/coupon/domain"
	redemptiondomain "github.com/smallbiznis/storefront/internal/redemption/domain"
)

type lineItemRequest struct {
	ProductID  string          `json:"product_id" binding:"max=128"`
	CategoryID string          `json:"category_id" binding:"max=128"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int64           `json:"quantity" binding:"gte=0"`
}

type orderRequest struct {
	OrderID      string            `json:"order_id" binding:"max=128"`
	CustomerID   string            `json:"customer_id" binding:"max=128"`
	Subtotal     decimal.Decimal   `json:"subtotal"`
	ShippingCost decimal.Decimal   `json:"shipping_cost"`
	LineItems    []lineItemRequest `json:"line_items" binding:"max=500,dive"`
}

type couponRequest struct {
	Code  string       `json:"code" binding:"required,coupon_code"`
	Order orderRequest `json:"order"`
}

func (o orderRequest) toDomain() coupondomain.OrderContext {
	items := make([]coupondomain.LineItem, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		items = append(items, coupondomain.LineItem{
			ProductID:  item.ProductID,
			CategoryID: item.CategoryID,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
		})
	}
	return coupondomain.OrderContext{
		OrderID:      o.OrderID,
		CustomerID:   o.CustomerID,
		Subtotal:     o.Subtotal,
		ShippingCost: o.ShippingCost,
		LineItems:    items,
	}
}

// ApplyCoupon redeems a coupon for an order. A rejected coupon answers 422
// with the reason; nothing is recorded for it.
func (s *Server) ApplyCoupon(c *gin.Context) {
	businessID, err := businessIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	result, err := s.coordinator.Apply(c.Request.Context(), redemptiondomain.ApplyRequest{
		BusinessID: businessID,
		Code:       req.Code,
		Order:      req.Order.toDomain(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !result.Accepted {
		AbortWithError(c, &CouponRejectedError{Reason: result.Reason})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) QuoteCoupon(c *gin.Context) {
	businessID, err := businessIDParam(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.quote(c, businessID)
}

// StorefrontQuote previews a coupon for the business routed by host.
func (s *Server) StorefrontQuote(c *gin.Context) {
	ref, ok := businessFromContext(c)
	if !ok {
		AbortWithError(c, ErrNotFound)
		return
	}
	s.quote(c, ref.ID)
}

func (s *Server) quote(c *gin.Context, businessID snowflake.ID) {
	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindingError(err))
		return
	}

	result, err := s.coordinator.Quote(c.Request.Context(), redemptiondomain.QuoteRequest{
		BusinessID: businessID,
		Code:       req.Code,
		Order:      req.Order.toDomain(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
