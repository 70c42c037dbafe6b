// Package writer streams analytics rows into BigQuery.
package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/storefront-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/storefront-backend/pkg/bigquery"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

type Config struct {
	PurchasesTable string
	// BatchSize above 1 acks messages before their rows are written.
	BatchSize   int
	RetryPolicy RetryPolicy
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(defaultMaximumBackoff, p.InitialBackoff)
	}
	return p
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.NewExponential(p.InitialBackoff)
	b = retry.WithCappedDuration(p.MaximumBackoff, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter buffers purchase rows and streams them in batches.
type BigQueryWriter struct {
	client         tableInserter
	purchasesTable string
	batchSize      int
	retry          RetryPolicy

	mu      sync.Mutex
	pending []types.PurchaseRow
}

func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.PurchasesTable)
	if table == "" {
		return nil, errors.New("purchases table is required")
	}
	return &BigQueryWriter{
		client:         client,
		purchasesTable: table,
		batchSize:      max(cfg.BatchSize, defaultBatchSize),
		retry:          cfg.RetryPolicy.withDefaults(),
	}, nil
}

// InsertPurchase queues row and flushes when the batch is full. When the
// flush fails, row is dropped from the batch so the caller's nack can
// redeliver it; rows from earlier calls stay queued.
func (w *BigQueryWriter) InsertPurchase(ctx context.Context, row types.PurchaseRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, row)
	if len(w.pending) < w.batchSize {
		return nil
	}
	if err := w.flushLocked(ctx); err != nil {
		w.pending = w.pending[:len(w.pending)-1]
		return err
	}
	return nil
}

// Flush writes whatever is queued. Called on shutdown.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *BigQueryWriter) flushLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := make([]any, 0, len(w.pending))
	for i := range w.pending {
		rows = append(rows, &w.pending[i])
	}

	err := retry.Do(ctx, w.retry.backoff(), func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, w.purchasesTable, rows)
		if err != nil && isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), w.purchasesTable, err)
	}
	w.pending = w.pending[:0]
	return nil
}
