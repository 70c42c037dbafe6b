package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/analytics/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer is the BigQuery side of the analytics pipeline.
type Writer interface {
	InsertPurchase(ctx context.Context, row types.PurchaseRow) error
}

// Handler consumes one decoded analytics event.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// Router decodes envelopes with the shared outbox decoders and picks the
// handler registered for the event type.
type Router struct {
	decoders *registry.Decoders
	handlers map[enums.OutboxEventType]Handler
}

// NewRouter installs the purchase handler. overrides replace handlers for
// event types the router already knows; unknown types are ignored.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	switch {
	case writer == nil:
		return nil, errors.New("writer is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}

	handlers := map[enums.OutboxEventType]Handler{
		enums.EventPurchaseTracked: &purchaseHandler{writer: writer, logg: logg},
	}
	for eventType, h := range overrides {
		if _, known := handlers[eventType]; known && h != nil {
			handlers[eventType] = h
		}
	}
	return &Router{decoders: registry.StorefrontDecoders(), handlers: handlers}, nil
}

func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	h, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	payload, err := r.decoders.Decode(envelope.EventType, envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode %s: %w", envelope.EventType, err)
	}
	return h.Handle(ctx, envelope, payload)
}
