package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/analytics/router"
	"github.com/angelmondragon/storefront-backend/internal/analytics/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const consumerName = "analytics-worker"

// Handler processes one analytics envelope.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type claimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type failureRecorder interface {
	AnalyticsFailure(stage string)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type verdict int

const (
	ack verdict = iota
	nack
)

// Service pulls the analytics subscription. Each event id is claimed in
// Redis first so redeliveries do not write duplicate rows.
type Service struct {
	sub      receiver
	handler  Handler
	claims   claimer
	logg     *logger.Logger
	failures failureRecorder
}

func NewService(sub *gcppubsub.Subscriber, handler Handler, claims claimer, logg *logger.Logger) (*Service, error) {
	switch {
	case sub == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case claims == nil:
		return nil, errors.New("idempotency guard is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{sub: sub, handler: handler, claims: claims, logg: logg}, nil
}

// WithMetrics counts failures per stage: envelope, idempotency or handler.
func (s *Service) WithMetrics(recorder failureRecorder) *Service {
	s.failures = recorder
	return s
}

// Run blocks until ctx is cancelled or the subscription fails.
func (s *Service) Run(ctx context.Context) error {
	return s.sub.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		if s.process(msgCtx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) verdict {
	ctx = s.logg.WithFields(ctx, map[string]any{"message_id": msg.ID})

	envelope, err := decodeMessage(msg)
	if err != nil {
		// Poison messages are acked; redelivery cannot fix them.
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"error": err.Error()}), "analytics.bad_envelope")
		s.fail("envelope")
		return ack
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     envelope.EventID,
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(ctx, "analytics.bad_event_id")
		s.fail("envelope")
		return ack
	}

	won, err := s.claims.Claim(ctx, consumerName, eventID)
	if err != nil {
		s.logg.Error(ctx, "analytics.claim_failed", err)
		s.fail("idempotency")
		return nack
	}
	if !won {
		s.logg.Info(ctx, "analytics.duplicate_skipped")
		return ack
	}

	err = s.handler.Handle(ctx, envelope)
	switch {
	case err == nil:
		s.logg.Info(ctx, "analytics.event_handled")
		return ack
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Warn(ctx, "analytics.unsupported_event")
		return ack
	default:
		s.logg.Error(ctx, "analytics.handler_failed", err)
		s.fail("handler")
		if relErr := s.claims.Release(ctx, consumerName, eventID); relErr != nil {
			s.logg.Error(ctx, "analytics.release_failed", relErr)
		}
		return nack
	}
}

func (s *Service) fail(stage string) {
	if s.failures != nil {
		s.failures.AnalyticsFailure(stage)
	}
}

// decodeMessage reads the outbox envelope from the body and the routing
// fields from attributes set by the outbox publisher.
func decodeMessage(msg *gcppubsub.Message) (types.Envelope, error) {
	var body outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		return types.Envelope{}, fmt.Errorf("decode payload envelope: %w", err)
	}
	attr := func(key string) string { return strings.TrimSpace(msg.Attributes[key]) }

	eventType, err := enums.ParseOutboxEventType(attr("event_type"))
	if err != nil {
		return types.Envelope{}, err
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attr("aggregate_type"))
	if err != nil {
		return types.Envelope{}, err
	}
	aggregateID := attr("aggregate_id")
	if aggregateID == "" {
		return types.Envelope{}, errors.New("aggregate_id attribute missing")
	}

	eventID := strings.TrimSpace(body.EventID)
	if eventID == "" {
		eventID = attr("event_id")
	}
	if eventID == "" {
		return types.Envelope{}, errors.New("event_id missing")
	}

	occurredAt := body.OccurredAt
	if occurredAt.IsZero() {
		occurredAt, _ = time.Parse(time.RFC3339Nano, attr("created_at"))
	}

	return types.Envelope{
		MessageID:     msg.ID,
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       body.Data,
	}, nil
}
