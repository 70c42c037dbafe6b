package coupons

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type couponStore interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	IncrementUsage(ctx context.Context, code string) (bool, error)
}

// Service validates and redeems discount codes.
type Service interface {
	Validate(ctx context.Context, code string, subtotalCents int, now time.Time) (Discount, error)
	IncrementUsage(ctx context.Context, code string) error
}

type service struct {
	repo couponStore
}

// NewService builds the coupon service.
func NewService(repo couponStore) (Service, error) {
	if repo == nil {
		return nil, ErrRepositoryMissing
	}
	return &service{repo: repo}, nil
}

// Validate runs the coupon checks in a fixed order and stops at the first
// failure: not found, inactive, expired, usage limit, minimum purchase.
func (s *service) Validate(ctx context.Context, code string, subtotalCents int, now time.Time) (Discount, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Discount{}, &RejectionError{Code: normalized, Reason: enums.CouponNotFound}
	}

	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return Discount{}, err
	}
	if reason, ok := check(coupon, subtotalCents, now); !ok {
		return Discount{}, &RejectionError{Code: normalized, Reason: reason}
	}
	return ComputeDiscount(*coupon, subtotalCents), nil
}

func check(coupon *models.Coupon, subtotalCents int, now time.Time) (enums.CouponRejectionReason, bool) {
	switch {
	case coupon == nil:
		return enums.CouponNotFound, false
	case !coupon.Active:
		return enums.CouponInactive, false
	case coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(now):
		return enums.CouponExpired, false
	case coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit:
		return enums.CouponLimitReached, false
	case subtotalCents < coupon.MinPurchaseCents:
		return enums.CouponMinimumNotMet, false
	}
	return "", true
}

// IncrementUsage records one redemption of code.
func (s *service) IncrementUsage(ctx context.Context, code string) error {
	normalized := NormalizeCode(code)
	updated, err := s.repo.IncrementUsage(ctx, normalized)
	if err != nil {
		return &IncrementError{Code: normalized, Err: err}
	}
	if !updated {
		return &IncrementError{Code: normalized, Err: ErrIncrementRejected}
	}
	return nil
}
