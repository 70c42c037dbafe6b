package coupons

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RedeemRequest identifies the order a coupon redemption belongs to.
type RedeemRequest struct {
	Code        string
	OrderID     uuid.UUID
	OrderNumber string
}

// Redeemer increments coupon usage and records a coupon_redeemed event in the
// same transaction.
type Redeemer struct {
	tx     txRunner
	repo   *Repository
	outbox outboxPublisher
	now    func() time.Time
}

func NewRedeemer(tx txRunner, repo *Repository, publisher outboxPublisher) (*Redeemer, error) {
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if repo == nil {
		return nil, ErrRepositoryMissing
	}
	if publisher == nil {
		return nil, errors.New("outbox publisher required")
	}
	return &Redeemer{tx: tx, repo: repo, outbox: publisher, now: time.Now}, nil
}

// Redeem records one use of req.Code. A coupon that is missing, inactive or
// at its limit yields an *IncrementError wrapping ErrIncrementRejected.
func (r *Redeemer) Redeem(ctx context.Context, req RedeemRequest) error {
	code := NormalizeCode(req.Code)
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		coupon, err := repo.FindByCode(ctx, code)
		if err != nil {
			return err
		}
		if coupon == nil {
			return ErrIncrementRejected
		}
		updated, err := repo.IncrementUsage(ctx, code)
		if err != nil {
			return err
		}
		if !updated {
			return ErrIncrementRejected
		}
		now := r.now().UTC()
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCouponRedeemed,
			AggregateType: enums.AggregateCoupon,
			AggregateID:   coupon.ID,
			Data: payloads.CouponRedeemedEvent{
				Code:        code,
				OrderID:     req.OrderID,
				OrderNumber: req.OrderNumber,
				RedeemedAt:  now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return &IncrementError{Code: code, Err: err}
	}
	return nil
}
