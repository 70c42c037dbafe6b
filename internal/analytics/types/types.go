// Package types holds the analytics worker's message and row shapes.
package types

import (
	"encoding/json"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Envelope is one analytics message after it has been read off Pub/Sub.
// Payload is still the raw event data.
type Envelope struct {
	MessageID     string
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	OccurredAt    time.Time
	Payload       json.RawMessage
}

// PurchaseRow is one row of the purchases table.
type PurchaseRow struct {
	EventID       string             `bigquery:"event_id"`
	TransactionID string             `bigquery:"transaction_id"`
	OrderID       string             `bigquery:"order_id"`
	SessionID     *string            `bigquery:"session_id"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	Currency      string             `bigquery:"currency"`
	ValueCents    int64              `bigquery:"value_cents"`
	DiscountCents int64              `bigquery:"discount_cents"`
	Coupon        *string            `bigquery:"coupon"`
	ItemCount     int64              `bigquery:"item_count"`
	Items         cbigquery.NullJSON `bigquery:"items"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}
