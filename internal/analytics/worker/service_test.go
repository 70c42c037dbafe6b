package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/analytics/router"
	"github.com/angelmondragon/storefront-backend/internal/analytics/types"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

func TestDecodeMessage(t *testing.T) {
	occurred := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := message(outbox.PayloadEnvelope{
		EventID:    "evt-1",
		OccurredAt: occurred,
		Data:       json.RawMessage(`{"order_id":"ord-1"}`),
	}, purchaseAttrs())

	env, err := decodeMessage(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.EventType != enums.EventPurchaseTracked || env.AggregateType != enums.AggregateOrder {
		t.Fatalf("unexpected routing fields %+v", env)
	}
	if env.EventID != "evt-1" || env.AggregateID != "ord-1" || env.MessageID != "msg-1" {
		t.Fatalf("unexpected ids %+v", env)
	}
	if !env.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected occurred at %v", env.OccurredAt)
	}
}

func TestDecodeMessageFallsBackToAttributes(t *testing.T) {
	attrs := purchaseAttrs()
	attrs["event_id"] = "evt-attr"
	attrs["created_at"] = "2025-03-01T08:00:00Z"

	env, err := decodeMessage(message(outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)}, attrs))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.EventID != "evt-attr" || env.OccurredAt.Hour() != 8 {
		t.Fatalf("expected attribute fallbacks, got %+v", env)
	}
}

func TestDecodeMessageRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown event":     {"event_type": "ad_click", "aggregate_type": "order", "aggregate_id": "ord-1"},
		"unknown aggregate": {"event_type": "purchase_tracked", "aggregate_type": "store", "aggregate_id": "ord-1"},
		"no aggregate id":   {"event_type": "purchase_tracked", "aggregate_type": "order"},
	}
	for name, attrs := range cases {
		if _, err := decodeMessage(message(outbox.PayloadEnvelope{EventID: "evt-1"}, attrs)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestProcessDuplicateSkipsHandler(t *testing.T) {
	claims := &stubClaims{lose: true}
	handler := &stubHandler{}
	svc := testService(handler, claims)

	if got := svc.process(context.Background(), purchaseMessage()); got != ack {
		t.Fatal("expected ack for duplicate")
	}
	if handler.called || len(claims.claimed) != 1 {
		t.Fatalf("handler called=%v claims=%d", handler.called, len(claims.claimed))
	}
}

func TestProcessHandlerErrorReleasesAndNacks(t *testing.T) {
	claims := &stubClaims{}
	recorder := &stubRecorder{}
	svc := testService(&stubHandler{err: errors.New("bq down")}, claims).WithMetrics(recorder)

	if got := svc.process(context.Background(), purchaseMessage()); got != nack {
		t.Fatal("expected nack on handler error")
	}
	if len(claims.released) != 1 {
		t.Fatal("expected claim to be released")
	}
	if len(recorder.stages) != 1 || recorder.stages[0] != "handler" {
		t.Fatalf("unexpected stages %v", recorder.stages)
	}
}

func TestProcessPoisonMessageAcks(t *testing.T) {
	claims := &stubClaims{}
	handler := &stubHandler{}
	recorder := &stubRecorder{}
	svc := testService(handler, claims).WithMetrics(recorder)

	if got := svc.process(context.Background(), &gcppubsub.Message{Data: []byte("not json")}); got != ack {
		t.Fatal("poison message should be acked")
	}
	if handler.called || len(claims.claimed) != 0 {
		t.Fatal("nothing downstream should run")
	}
	if len(recorder.stages) != 1 || recorder.stages[0] != "envelope" {
		t.Fatalf("unexpected stages %v", recorder.stages)
	}
}

func TestProcessNonUUIDEventIDAcks(t *testing.T) {
	claims := &stubClaims{}
	msg := message(outbox.PayloadEnvelope{EventID: "evt-1", Data: json.RawMessage(`{}`)}, purchaseAttrs())
	if got := testService(&stubHandler{}, claims).process(context.Background(), msg); got != ack {
		t.Fatal("expected ack")
	}
	if len(claims.claimed) != 0 {
		t.Fatal("claim should not run for bad ids")
	}
}

func TestProcessUnsupportedEventKeepsClaim(t *testing.T) {
	claims := &stubClaims{}
	svc := testService(&stubHandler{err: router.ErrUnsupportedEventType}, claims)

	if got := svc.process(context.Background(), purchaseMessage()); got != ack {
		t.Fatal("unsupported event should ack")
	}
	if len(claims.released) != 0 {
		t.Fatal("claim should be kept")
	}
}

func TestProcessClaimErrorNacks(t *testing.T) {
	handler := &stubHandler{}
	recorder := &stubRecorder{}
	svc := testService(handler, &stubClaims{err: errors.New("redis down")}).WithMetrics(recorder)

	if got := svc.process(context.Background(), purchaseMessage()); got != nack {
		t.Fatal("expected nack when claim fails")
	}
	if handler.called {
		t.Fatal("handler should not run")
	}
	if len(recorder.stages) != 1 || recorder.stages[0] != "idempotency" {
		t.Fatalf("unexpected stages %v", recorder.stages)
	}
}

func TestProcessHandledAcks(t *testing.T) {
	claims := &stubClaims{}
	handler := &stubHandler{}
	if got := testService(handler, claims).process(context.Background(), purchaseMessage()); got != ack {
		t.Fatal("expected ack")
	}
	if handler.envelope.EventType != enums.EventPurchaseTracked {
		t.Fatalf("unexpected envelope %+v", handler.envelope)
	}
	if len(claims.claimed) != 1 || len(claims.released) != 0 {
		t.Fatalf("claimed=%d released=%d", len(claims.claimed), len(claims.released))
	}
}

func purchaseAttrs() map[string]string {
	return map[string]string{
		"event_type":     "purchase_tracked",
		"aggregate_type": "order",
		"aggregate_id":   "ord-1",
	}
}

func purchaseMessage() *gcppubsub.Message {
	return message(outbox.PayloadEnvelope{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"transaction_id":"PN-0103-AB1"}`),
	}, purchaseAttrs())
}

func message(body outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	data, _ := json.Marshal(body)
	return &gcppubsub.Message{ID: "msg-1", Data: data, Attributes: attrs}
}

func testService(handler Handler, claims *stubClaims) *Service {
	return &Service{
		handler: handler,
		claims:  claims,
		logg:    logger.New(logger.Options{ServiceName: "analytics-test"}),
	}
}

type stubHandler struct {
	called   bool
	envelope types.Envelope
	err      error
}

func (h *stubHandler) Handle(_ context.Context, envelope types.Envelope) error {
	h.called = true
	h.envelope = envelope
	return h.err
}

type stubClaims struct {
	lose     bool
	err      error
	claimed  []uuid.UUID
	released []uuid.UUID
}

func (s *stubClaims) Claim(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	s.claimed = append(s.claimed, eventID)
	return !s.lose && s.err == nil, s.err
}

func (s *stubClaims) Release(_ context.Context, _ string, eventID uuid.UUID) error {
	s.released = append(s.released, eventID)
	return nil
}

type stubRecorder struct {
	stages []string
}

func (s *stubRecorder) AnalyticsFailure(stage string) {
	s.stages = append(s.stages, stage)
}
