package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	ordersvc "github.com/angelmondragon/storefront-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const idempotencyHeader = "Idempotency-Key"

type orderCreator interface {
	Create(ctx context.Context, req ordersvc.CreateRequest) (*ordersvc.CreateResult, error)
}

type orderDeleter interface {
	Delete(ctx context.Context, id uuid.UUID) error
}

// CreateOrderRequest is the body of POST /api/orders. The idempotency key may
// come from the body or the Idempotency-Key header; when both are set they
// must match.
type CreateOrderRequest struct {
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	Customer       ordersvc.CustomerInfo  `json:"customer"`
	Lines          []ordersvc.LineRequest `json:"lines"`
	CouponCode     string                 `json:"coupon_code,omitempty"`
}

// Create places an order. A replayed key answers 200 with the stored order,
// a new order answers 201.
func Create(svc orderCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload CreateOrderRequest
		if err := validators.DecodeJSON(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key, err := resolveKey(strings.TrimSpace(payload.IdempotencyKey), strings.TrimSpace(r.Header.Get(idempotencyHeader)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), ordersvc.CreateRequest{
			IdempotencyKey: key,
			Customer:       payload.Customer,
			Lines:          payload.Lines,
			CouponCode:     payload.CouponCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.Replayed {
			responses.WriteSuccess(w, result)
			return
		}
		responses.WriteCreated(w, result)
	}
}

// AdminDelete removes an order. Coupon usage recorded for it is kept.
func AdminDelete(svc orderDeleter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "order_id", id.String())
		}
		if err := svc.Delete(ctx, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(ctx, "order deleted by admin")
		}
		responses.WriteNoContent(w)
	}
}

func resolveKey(body, header string) (string, error) {
	switch {
	case body == "" && header == "":
		return "", pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required").
			WithDetails(map[string]string{"idempotency_key": "is required"})
	case body != "" && header != "" && body != header:
		return "", pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key in body and header differ")
	case body != "":
		return body, nil
	default:
		return header, nil
	}
}
