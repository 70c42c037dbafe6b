package coupons

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// Discount is the amount a validated coupon takes off a subtotal. It exists
// only in memory until an order is created.
type Discount struct {
	Code        string             `json:"code"`
	Type        enums.DiscountType `json:"type"`
	Value       int                `json:"value"`
	AmountCents int                `json:"amount_cents"`
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(code))
}

// ComputeDiscount applies coupon to subtotalCents. The amount never exceeds
// the subtotal, so a total can not go negative.
func ComputeDiscount(coupon models.Coupon, subtotalCents int) Discount {
	var amount int
	switch coupon.DiscountType {
	case enums.DiscountTypePercent:
		amount = money.PercentOf(subtotalCents, coupon.Value)
	case enums.DiscountTypeFixed:
		amount = coupon.Value
	}
	if amount > subtotalCents {
		amount = subtotalCents
	}
	if amount < 0 {
		amount = 0
	}
	return Discount{
		Code:        coupon.Code,
		Type:        coupon.DiscountType,
		Value:       coupon.Value,
		AmountCents: amount,
	}
}
