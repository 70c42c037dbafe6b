package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type topicPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// RelayParams wires a Relay. Metrics is optional.
type RelayParams struct {
	Outbox     config.OutboxConfig
	DLQTopic   string
	Logger     *logger.Logger
	DB         txRunner
	Broker     pinger
	Repository outboxRepository
	DLQ        dlqRepository
	Registry   eventResolver
	Topics     func(topic string) topicPublisher
	Metrics    *metrics.OutboxMetrics
}

// Relay moves committed outbox rows onto Pub/Sub. Rows are claimed inside a
// transaction, so concurrent relays never publish the same batch.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	broker      pinger
	repo        outboxRepository
	dlq         dlqRepository
	registry    eventResolver
	topics      func(topic string) topicPublisher
	metrics     *metrics.OutboxMetrics
	dlqTopic    string
	batchSize   int
	maxAttempts int
	poll        time.Duration
	jitter      *rand.Rand
	now         func() time.Time
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Broker == nil:
		return nil, errors.New("pubsub client is required")
	case p.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Topics == nil:
		return nil, errors.New("topic publisher factory is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		broker:      p.Broker,
		repo:        p.Repository,
		dlq:         p.DLQ,
		registry:    p.Registry,
		topics:      p.Topics,
		metrics:     p.Metrics,
		dlqTopic:    p.DLQTopic,
		batchSize:   p.Outbox.BatchSize,
		maxAttempts: p.Outbox.MaxAttempts,
		poll:        time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond,
		jitter:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultPollInterval
	}
	return r, nil
}

// Run drains the outbox until ctx is canceled. An empty or failed batch backs
// off, doubling up to maxIdleBackoff after consecutive errors.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.broker.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	wait := r.poll
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay context canceled")
			return err
		}

		n, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case n > 0:
			wait = r.poll
			continue
		default:
			wait = r.poll
		}

		if err := sleep(ctx, wait+r.jitterDelay()); err != nil {
			return err
		}
	}
}

// drain claims one batch and settles every row in it. It returns the number
// of rows claimed.
func (r *Relay) drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)
		for _, event := range events {
			if err := r.settle(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	eventCtx := r.logg.WithFields(ctx, eventFields(event))
	result, reason, pubErr := r.deliver(eventCtx, event)

	switch result {
	case outcomePublished:
		if err := r.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.metrics.Published(string(event.EventType))
		r.logg.Info(eventCtx, "outbox event published")
	case outcomeRetry:
		if err := r.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		r.metrics.Failed(string(event.EventType))
		r.logg.Warn(r.logg.WithField(eventCtx, "error", pubErr.Error()), "outbox publish failed; will retry")
	case outcomeDeadLetter:
		if err := r.deadLetter(eventCtx, tx, event, reason, pubErr); err != nil {
			return err
		}
	}
	return nil
}

// deliver publishes one row. Registry rejections and missing topics are
// terminal; a broker error is retried until the row reaches maxAttempts.
func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) (outcome, enums.OutboxDLQErrorReason, error) {
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
	}

	topic := resolved.Descriptor.Topic
	pub := r.topics(topic)
	if pub == nil {
		return outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, fmt.Errorf("no publisher for topic %s", topic)
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	res := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved.Envelope.EventID),
	})
	if res == nil {
		return outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, fmt.Errorf("publisher returned no result for topic %s", topic)
	}
	if _, err := res.Get(publishCtx); err != nil {
		var terminal registry.NonRetryableError
		if errors.As(err, &terminal) {
			return outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
		}
		if event.AttemptCount+1 >= r.maxAttempts {
			return outcomeDeadLetter, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err)
		}
		return outcomeRetry, "", err
	}
	return outcomePublished, "", nil
}

// deadLetter copies the row to outbox_dlq, stops further attempts and, when a
// DLQ topic is configured, announces the failure there.
func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.repo.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	r.metrics.DeadLettered(string(event.EventType))
	ctx = r.logg.WithFields(ctx, map[string]any{"error_reason": reason, "error": msg})
	r.logg.Warn(ctx, "outbox event dead-lettered")

	r.announceDeadLetter(ctx, event, reason)
	return nil
}

func (r *Relay) announceDeadLetter(ctx context.Context, event models.OutboxEvent, reason enums.OutboxDLQErrorReason) {
	if r.dlqTopic == "" {
		return
	}
	pub := r.topics(r.dlqTopic)
	if pub == nil {
		return
	}
	attrs := messageAttributes(event, "")
	attrs["error_reason"] = string(reason)

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	res := pub.Publish(publishCtx, &gcppubsub.Message{Data: event.Payload, Attributes: attrs})
	if res == nil {
		return
	}
	if _, err := res.Get(publishCtx); err != nil {
		r.logg.Error(ctx, "dlq notice not published", err)
	}
}

func messageAttributes(event models.OutboxEvent, eventID string) map[string]string {
	if eventID == "" {
		eventID = event.ID.String()
	}
	return map[string]string{
		"event_id":       eventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (r *Relay) jitterDelay() time.Duration {
	return time.Duration(r.jitter.Int63n(int64(jitterWindow)))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
