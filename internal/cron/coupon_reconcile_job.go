package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type couponLister interface {
	List(ctx context.Context) ([]models.Coupon, error)
}

type orderCouponCounter interface {
	CountByDiscountCode(ctx context.Context) (map[string]int64, error)
}

type CouponReconcileJobParams struct {
	Logger  *logger.Logger
	Coupons couponLister
	Orders  orderCouponCounter
}

// UsageDriftError reports a coupon whose usage_count is lower than the number
// of stored orders that applied it.
type UsageDriftError struct {
	Code       string
	UsageCount int64
	Orders     int64
}

func (e *UsageDriftError) Error() string {
	return fmt.Sprintf("coupon %s: usage_count %d below %d orders", e.Code, e.UsageCount, e.Orders)
}

func NewCouponReconcileJob(params CouponReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	return &couponReconcileJob{
		logg:    params.Logger,
		coupons: params.Coupons,
		orders:  params.Orders,
	}, nil
}

type couponReconcileJob struct {
	logg    *logger.Logger
	coupons couponLister
	orders  orderCouponCounter
}

func (j *couponReconcileJob) Name() string { return "coupon-usage-reconciliation" }

// Run compares usage counters with stored orders. Under-counted coupons fail
// the job; a counter above the order count is only logged since deleted
// orders keep their usage.
func (j *couponReconcileJob) Run(ctx context.Context) error {
	coupons, err := j.coupons.List(ctx)
	if err != nil {
		return fmt.Errorf("list coupons: %w", err)
	}
	counts, err := j.orders.CountByDiscountCode(ctx)
	if err != nil {
		return fmt.Errorf("count coupon orders: %w", err)
	}

	var errs error
	for _, coupon := range coupons {
		orders := counts[coupon.Code]
		delete(counts, coupon.Code)
		usage := int64(coupon.UsageCount)
		switch {
		case usage < orders:
			errs = multierr.Append(errs, &UsageDriftError{Code: coupon.Code, UsageCount: usage, Orders: orders})
		case usage > orders:
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"coupon_code": coupon.Code,
				"usage_count": usage,
				"orders":      orders,
			}), "coupon usage above order count")
		}
	}
	for code, orders := range counts {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"coupon_code": code,
			"orders":      orders,
		}), "orders reference an unknown coupon")
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"coupons_checked": len(coupons),
		"drifted":         len(multierr.Errors(errs)),
	}), "coupon usage reconciliation complete")
	return errs
}
