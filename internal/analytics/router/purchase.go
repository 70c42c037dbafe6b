package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/storefront-backend/internal/analytics/writer"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type purchaseHandler struct {
	writer Writer
	logg   *logger.Logger
}

func (h *purchaseHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.PurchaseTrackedEvent)
	if !ok {
		return fmt.Errorf("purchase handler got %T", payload)
	}
	ctx = h.logg.WithFields(ctx, map[string]any{
		"order_id":       event.OrderID,
		"transaction_id": event.TransactionID,
	})

	row, err := purchaseRow(envelope, event)
	if err != nil {
		return err
	}
	if err := h.writer.InsertPurchase(ctx, row); err != nil {
		return fmt.Errorf("insert purchase %s: %w", event.TransactionID, err)
	}
	h.logg.Info(ctx, "analytics.purchase_recorded")
	return nil
}

func purchaseRow(envelope types.Envelope, event *payloads.PurchaseTrackedEvent) (types.PurchaseRow, error) {
	items, err := analyticswriter.EncodeJSON(event.Items)
	if err != nil {
		return types.PurchaseRow{}, fmt.Errorf("items json: %w", err)
	}
	raw, err := analyticswriter.EncodeJSON(event)
	if err != nil {
		return types.PurchaseRow{}, fmt.Errorf("payload json: %w", err)
	}

	row := types.PurchaseRow{
		EventID:       envelope.EventID,
		TransactionID: event.TransactionID,
		OrderID:       event.OrderID.String(),
		SessionID:     optional(event.SessionID),
		OccurredAt:    event.OccurredAt.UTC(),
		Currency:      event.Currency,
		ValueCents:    int64(event.ValueCents),
		DiscountCents: int64(event.DiscountCents),
		Coupon:        optional(event.Coupon),
		Items:         items,
		Payload:       raw,
	}
	if event.OccurredAt.IsZero() {
		row.OccurredAt = envelope.OccurredAt.UTC()
	}
	if row.Currency == "" {
		row.Currency = money.Currency
	}
	for _, line := range event.Items {
		row.ItemCount += int64(line.Quantity)
	}
	return row, nil
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
