package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is a placed checkout. Rows are unique per idempotency key and are not
// mutated after creation apart from admin status changes.
type Order struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber    string                  `gorm:"column:order_number;not null"`
	IdempotencyKey string                  `gorm:"column:idempotency_key;not null;uniqueIndex"`
	RequestHash    string                  `gorm:"column:request_hash;not null"`
	CustomerName   string                  `gorm:"column:customer_name;not null"`
	CustomerPhone  string                  `gorm:"column:customer_phone;not null"`
	CustomerEmail  *string                 `gorm:"column:customer_email"`
	Fulfillment    enums.FulfillmentMethod `gorm:"column:fulfillment;not null"`
	AddressLine    *string                 `gorm:"column:address_line"`
	CivicNumber    *string                 `gorm:"column:civic_number"`
	City           *string                 `gorm:"column:city"`
	Province       *string                 `gorm:"column:province"`
	PostalCode     *string                 `gorm:"column:postal_code"`
	Notes          *string                 `gorm:"column:notes"`
	SubtotalCents  int                     `gorm:"column:subtotal_cents;not null"`
	DiscountCode   *string                 `gorm:"column:discount_code"`
	DiscountType   *enums.DiscountType     `gorm:"column:discount_type"`
	DiscountValue  *int                    `gorm:"column:discount_value"`
	DiscountCents  int                     `gorm:"column:discount_cents;not null;default:0"`
	TotalCents     int                     `gorm:"column:total_cents;not null"`
	Currency       string                  `gorm:"column:currency;not null;default:'EUR'"`
	Status         enums.OrderStatus       `gorm:"column:status;not null;default:'new'"`
	Warning        *string                 `gorm:"column:warning"`
	LineItems      []OrderLineItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
