package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Coupon stores a discount code and its redemption rules. Value holds whole
// percentage points for percent coupons and cents for fixed ones.
type Coupon struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code             string             `gorm:"column:code;not null;uniqueIndex"`
	DiscountType     enums.DiscountType `gorm:"column:discount_type;not null"`
	Value            int                `gorm:"column:value;not null"`
	UsageLimit       *int               `gorm:"column:usage_limit"`
	UsageCount       int                `gorm:"column:usage_count;not null;default:0"`
	MinPurchaseCents int                `gorm:"column:min_purchase_cents;not null;default:0"`
	ExpiresAt        *time.Time         `gorm:"column:expires_at"`
	Active           bool               `gorm:"column:active;not null"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
