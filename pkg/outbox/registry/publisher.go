package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// EventDescriptor is where an event type is published and which aggregate
// it must belong to.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is an outbox row that passed validation and decoding.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks rows that will never publish and belong in the DLQ.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// EventRegistry resolves outbox rows to topics. Order lifecycle and coupon
// events share the orders topic; purchases go to analytics.
type EventRegistry struct {
	descriptors map[enums.OutboxEventType]EventDescriptor
	decoders    *Decoders
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.OrdersTopic == "":
		return nil, errors.New("orders topic is required")
	case cfg.AnalyticsTopic == "":
		return nil, errors.New("analytics topic is required")
	}

	reg := &EventRegistry{
		descriptors: make(map[enums.OutboxEventType]EventDescriptor),
		decoders:    StorefrontDecoders(),
	}
	reg.route(enums.EventOrderCreated, enums.AggregateOrder, cfg.OrdersTopic)
	reg.route(enums.EventOrderDeleted, enums.AggregateOrder, cfg.OrdersTopic)
	reg.route(enums.EventCouponRedeemed, enums.AggregateCoupon, cfg.OrdersTopic)
	reg.route(enums.EventPurchaseTracked, enums.AggregateOrder, cfg.AnalyticsTopic)
	return reg, nil
}

func (r *EventRegistry) route(eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) {
	r.descriptors[eventType] = EventDescriptor{EventType: eventType, AggregateType: aggregate, Topic: topic}
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable: the row itself is wrong.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.descriptors[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%s belongs to %s aggregates, row says %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	payload, err := r.decoders.Decode(event.EventType, envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
