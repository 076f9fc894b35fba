package domain

import "github.com/shopspring/decimal"

// OrderContext is the cart snapshot supplied by the checkout collaborator.
type OrderContext struct {
	OrderID      string          `json:"order_id"`
	CustomerID   string          `json:"customer_id"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	LineItems    []LineItem      `json:"line_items"`
}

type LineItem struct {
	ProductID  string          `json:"product_id"`
	CategoryID string          `json:"category_id"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Quantity   int64           `json:"quantity"`
}

func (i LineItem) Total() decimal.Decimal {
	if i.Quantity <= 0 || i.UnitPrice.IsNegative() {
		return decimal.Zero
	}
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// OrderSubtotal is the supplied subtotal when positive, else the line item sum.
func (o OrderContext) OrderSubtotal() decimal.Decimal {
	if o.Subtotal.IsPositive() {
		return o.Subtotal
	}
	total := decimal.Zero
	for _, item := range o.LineItems {
		total = total.Add(item.Total())
	}
	return total
}
