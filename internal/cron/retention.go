package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	outboxRetention = 30 * 24 * time.Hour
	draftRetention  = 30 * 24 * time.Hour
)

// retentionJob deletes whatever purge finds older than now minus retention.
type retentionJob struct {
	name      string
	logg      *logger.Logger
	retention time.Duration
	purge     func(ctx context.Context, cutoff time.Time) (int64, error)
	now       func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	removed, err := j.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"removed": removed,
	}), "retention cleanup complete")
	return nil
}

func newRetentionJob(name string, logg *logger.Logger, retention, fallback time.Duration, purge func(context.Context, time.Time) (int64, error)) (Job, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if retention <= 0 {
		retention = fallback
	}
	return &retentionJob{name: name, logg: logg, retention: retention, purge: purge, now: time.Now}, nil
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository interface {
		DeletePublishedBefore(tx *gorm.DB, cutoff time.Time) (int64, error)
	}
	Retention time.Duration
}

// NewOutboxRetentionJob removes published outbox rows. Pending and parked
// rows are kept.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.DB == nil || params.Repository == nil {
		return nil, errors.New("db runner and outbox repository required")
	}
	return newRetentionJob("outbox-retention", params.Logger, params.Retention, outboxRetention,
		func(ctx context.Context, cutoff time.Time) (int64, error) {
			var removed int64
			err := params.DB.WithTx(ctx, func(tx *gorm.DB) error {
				n, err := params.Repository.DeletePublishedBefore(tx, cutoff)
				removed = n
				return err
			})
			return removed, err
		})
}

type DraftRetentionJobParams struct {
	Logger *logger.Logger
	Drafts interface {
		PurgeOlderThan(cutoff time.Time) (int, error)
	}
	Retention time.Duration
}

// NewDraftRetentionJob drops locally persisted checkout drafts nobody
// resumed. It has to run inside the api process since the draft file is
// locked by its owner.
func NewDraftRetentionJob(params DraftRetentionJobParams) (Job, error) {
	if params.Drafts == nil {
		return nil, errors.New("draft store required")
	}
	return newRetentionJob("draft-retention", params.Logger, params.Retention, draftRetention,
		func(_ context.Context, cutoff time.Time) (int64, error) {
			n, err := params.Drafts.PurgeOlderThan(cutoff)
			return int64(n), err
		})
}
