package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderLine is the per-line snapshot carried by order events.
type OrderLine struct {
	ProductID      uuid.UUID `json:"product_id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int       `json:"unit_price_cents"`
	TotalCents     int       `json:"total_cents"`
}

// OrderCreatedEvent is emitted in the same transaction that inserts an order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID               `json:"order_id"`
	OrderNumber   string                  `json:"order_number"`
	Fulfillment   enums.FulfillmentMethod `json:"fulfillment"`
	SubtotalCents int                     `json:"subtotal_cents"`
	DiscountCode  *string                 `json:"discount_code,omitempty"`
	DiscountCents int                     `json:"discount_cents"`
	TotalCents    int                     `json:"total_cents"`
	Currency      string                  `json:"currency"`
	Lines         []OrderLine             `json:"lines"`
	CreatedAt     time.Time               `json:"created_at"`
}

// OrderDeletedEvent records an admin deletion.
type OrderDeletedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	DeletedAt   time.Time `json:"deleted_at"`
}

// CouponRedeemedEvent is emitted after a coupon usage increment succeeds.
type CouponRedeemedEvent struct {
	Code        string    `json:"code"`
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	RedeemedAt  time.Time `json:"redeemed_at"`
}

// PurchaseTrackedEvent is the analytics "purchase" event.
type PurchaseTrackedEvent struct {
	TransactionID string      `json:"transaction_id"`
	OrderID       uuid.UUID   `json:"order_id"`
	SessionID     string      `json:"session_id,omitempty"`
	ValueCents    int         `json:"value_cents"`
	DiscountCents int         `json:"discount_cents"`
	Coupon        string      `json:"coupon,omitempty"`
	Currency      string      `json:"currency"`
	Items         []OrderLine `json:"items"`
	OccurredAt    time.Time   `json:"occurred_at"`
}
