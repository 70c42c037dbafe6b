package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Address is the shipping destination. It is ignored for pickup orders.
type Address struct {
	Line        string `json:"address"`
	CivicNumber string `json:"civic_number"`
	City        string `json:"city"`
	Province    string `json:"province"`
	PostalCode  string `json:"cap"`
}

// CustomerInfo is the checkout form as submitted.
type CustomerInfo struct {
	Name        string                  `json:"name"`
	Phone       string                  `json:"phone"`
	Email       string                  `json:"email,omitempty"`
	Fulfillment enums.FulfillmentMethod `json:"fulfillment"`
	Address     Address                 `json:"shipping_address"`
	Notes       string                  `json:"notes,omitempty"`
}

// LineRequest is one cart line. UnitPriceCents is the price the client
// displayed; it is carried for logging only and never priced.
type LineRequest struct {
	ProductID      uuid.UUID `json:"product_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents *int      `json:"unit_price_cents,omitempty"`
}

// CreateRequest is the order-creation call issued by the submission flow.
type CreateRequest struct {
	IdempotencyKey string        `json:"-"`
	SessionID      string        `json:"-"`
	Customer       CustomerInfo  `json:"customer"`
	Lines          []LineRequest `json:"lines"`
	CouponCode     string        `json:"coupon_code,omitempty"`
}

// CreateResult describes the stored order. Replayed is true when the
// idempotency key matched an order created by an earlier call.
type CreateResult struct {
	OrderID       uuid.UUID         `json:"order_id"`
	OrderNumber   string            `json:"order_number"`
	SubtotalCents int               `json:"subtotal_cents"`
	DiscountCents int               `json:"discount_cents"`
	TotalCents    int               `json:"total_cents"`
	Discount      *coupons.Discount `json:"discount,omitempty"`
	Warning       string            `json:"warning,omitempty"`
	Replayed      bool              `json:"replayed"`
	CreatedAt     time.Time         `json:"created_at"`
	Order         *models.Order     `json:"-"`
}

func resultFromOrder(order *models.Order, replayed bool) *CreateResult {
	result := &CreateResult{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		SubtotalCents: order.SubtotalCents,
		DiscountCents: order.DiscountCents,
		TotalCents:    order.TotalCents,
		Replayed:      replayed,
		CreatedAt:     order.CreatedAt,
		Order:         order,
	}
	if order.Warning != nil {
		result.Warning = *order.Warning
	}
	if order.DiscountCode != nil {
		discount := &coupons.Discount{
			Code:        *order.DiscountCode,
			AmountCents: order.DiscountCents,
		}
		if order.DiscountType != nil {
			discount.Type = *order.DiscountType
		}
		if order.DiscountValue != nil {
			discount.Value = *order.DiscountValue
		}
		result.Discount = discount
	}
	return result
}
