package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

func orderEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	return models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelopePayload(t, id.String()),
		AttemptCount:  attempts,
	}
}

func TestDrainSettlesEachRowIndependently(t *testing.T) {
	first, second := orderEvent(t, 0), orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakeResult{err: errors.New("deadline exceeded")},
		fakeResult{},
	}}
	relay := newTestRelay(t, repo, pub, &fakeRegistry{topic: "orders"}, &fakeDLQ{}, config.OutboxConfig{MaxAttempts: 5})

	n, err := relay.drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 claimed rows, got %d", n)
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
}

func TestDrainCarriesEventAttributes(t *testing.T) {
	event := orderEvent(t, 0)
	pub := &fakePublisher{results: []publishResult{fakeResult{}}}
	relay := newTestRelay(t, &fakeRepo{events: []models.OutboxEvent{event}}, pub, &fakeRegistry{topic: "orders"}, &fakeDLQ{}, config.OutboxConfig{})

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.sent))
	}
	msg := pub.sent[0]
	if msg.Attributes["event_type"] != string(enums.EventOrderCreated) {
		t.Fatalf("unexpected event_type %q", msg.Attributes["event_type"])
	}
	if msg.Attributes["aggregate_id"] != event.AggregateID.String() {
		t.Fatalf("unexpected aggregate_id %q", msg.Attributes["aggregate_id"])
	}
	if !bytes.Equal(msg.Data, event.Payload) {
		t.Fatalf("payload not forwarded verbatim")
	}
}

func TestDrainDeadLettersUnresolvableRows(t *testing.T) {
	event := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	resolver := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("unsupported event type"))}
	relay := newTestRelay(t, repo, &fakePublisher{}, resolver, dlq, config.OutboxConfig{})

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.EventID != event.ID || entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected dlq entry %+v", entry)
	}
	if !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row marked terminal")
	}
}

func TestDrainDeadLettersAtMaxAttempts(t *testing.T) {
	event := orderEvent(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{results: []publishResult{
		fakeResult{err: errors.New("unavailable")},
		fakeResult{},
	}}
	relay := newTestRelay(t, repo, pub, &fakeRegistry{topic: "orders"}, dlq, config.OutboxConfig{MaxAttempts: 2})
	relay.dlqTopic = "outbox-dlq"

	if _, err := relay.drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("expected max_attempts dlq entry, got %+v", dlq.entries)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal row should not be marked for retry")
	}
	if len(pub.sent) != 2 || pub.sent[1].Attributes["error_reason"] != string(enums.OutboxDLQReasonMaxAttempts) {
		t.Fatalf("expected dlq notice after failed publish, got %d messages", len(pub.sent))
	}
}

func TestDrainWithEmptyOutbox(t *testing.T) {
	relay := newTestRelay(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{topic: "orders"}, &fakeDLQ{}, config.OutboxConfig{})
	n, err := relay.drain(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected empty drain, got n=%d err=%v", n, err)
	}
}

func TestNewRelayAppliesDefaults(t *testing.T) {
	relay := newTestRelay(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQ{}, config.OutboxConfig{})
	if relay.batchSize != defaultBatchSize || relay.maxAttempts != defaultMaxAttempts || relay.poll != defaultPollInterval {
		t.Fatalf("unexpected defaults batch=%d attempts=%d poll=%s", relay.batchSize, relay.maxAttempts, relay.poll)
	}
}

func newTestRelay(t *testing.T, repo outboxRepository, pub topicPublisher, resolver eventResolver, dlq dlqRepository, cfg config.OutboxConfig) *Relay {
	t.Helper()
	relay, err := NewRelay(RelayParams{
		Outbox:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "outbox-relay-test", Output: io.Discard}),
		DB:         fakeDB{},
		Broker:     fakeDB{},
		Repository: repo,
		DLQ:        dlq,
		Registry:   resolver,
		Topics:     func(string) topicPublisher { return pub },
	})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	return relay
}

func envelopePayload(t *testing.T, eventID string) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{"order_number":"PN-1403-X7K"}`),
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error {
	return nil
}

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakeResult struct {
	err error
}

func (f fakeResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

type fakeRegistry struct {
	topic string
	err   error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{EventType: event.EventType, AggregateType: event.AggregateType, Topic: f.topic},
		Envelope:   outbox.PayloadEnvelope{EventID: event.ID.String(), OccurredAt: time.Now()},
		Payload:    &payloads.OrderCreatedEvent{},
	}, nil
}

type fakeDLQ struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
