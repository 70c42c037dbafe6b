package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PurchaseEvent is the ecommerce "purchase" fired once an order is committed.
type PurchaseEvent struct {
	OrderID       uuid.UUID
	OrderNumber   string
	SessionID     string
	ValueCents    int
	DiscountCents int
	Coupon        string
	Items         []payloads.OrderLine
	OccurredAt    time.Time
}

// Tracker queues analytics events through the transactional outbox.
type Tracker struct {
	tx     txRunner
	outbox eventEmitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewTracker builds a purchase tracker.
func NewTracker(tx txRunner, emitter eventEmitter, logg *logger.Logger) (*Tracker, error) {
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if emitter == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &Tracker{tx: tx, outbox: emitter, logg: logg, now: time.Now}, nil
}

// TrackPurchase records a purchase_tracked event. At most one event is queued per order.
func (t *Tracker) TrackPurchase(ctx context.Context, event PurchaseEvent) error {
	if event.OrderID == uuid.Nil {
		return errors.New("order id required")
	}
	transactionID := strings.TrimSpace(event.OrderNumber)
	if transactionID == "" {
		transactionID = event.OrderID.String()
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = t.now()
	}
	occurred = occurred.UTC()

	payload := payloads.PurchaseTrackedEvent{
		TransactionID: transactionID,
		OrderID:       event.OrderID,
		SessionID:     event.SessionID,
		ValueCents:    event.ValueCents,
		DiscountCents: event.DiscountCents,
		Coupon:        event.Coupon,
		Currency:      money.Currency,
		Items:         event.Items,
		OccurredAt:    occurred,
	}

	var actor *outbox.ActorRef
	if event.SessionID != "" {
		actor = &outbox.ActorRef{SessionID: event.SessionID, Role: "shopper"}
	}

	err := t.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return t.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchaseTracked,
			AggregateType: enums.AggregateOrder,
			AggregateID:   event.OrderID,
			Actor:         actor,
			Data:          payload,
			OccurredAt:    occurred,
		})
	})
	if err != nil {
		return fmt.Errorf("track purchase: %w", err)
	}

	if t.logg != nil {
		t.logg.Info(t.logg.WithOrderNumber(ctx, transactionID), "purchase tracked")
	}
	return nil
}
