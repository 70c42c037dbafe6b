package coupons

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	couponsvc "github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type validator interface {
	Validate(ctx context.Context, code string, subtotalCents int, now time.Time) (couponsvc.Discount, error)
}

type redeemer interface {
	Redeem(ctx context.Context, req couponsvc.RedeemRequest) error
}

type orderLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type ValidateRequest struct {
	Code          string `json:"code" validate:"required,max=64"`
	SubtotalCents int    `json:"subtotal_cents" validate:"min=0"`
}

type ValidateResponse struct {
	Valid    bool               `json:"valid"`
	Discount couponsvc.Discount `json:"discount"`
}

type RedeemRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
}

type RedeemResponse struct {
	Code        string    `json:"code"`
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
}

// Validate checks a code against a subtotal without recording usage.
func Validate(svc validator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload ValidateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		discount, err := svc.Validate(r.Context(), payload.Code, payload.SubtotalCents, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, couponsvc.ToAPIError(err))
			return
		}
		responses.WriteSuccess(w, ValidateResponse{Valid: true, Discount: discount})
	}
}

// Redeem records one use of the coupon in the path for an existing order.
// The order must carry the same discount code.
func Redeem(svc redeemer, orders orderLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := validators.PathString(r, "code")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		code := couponsvc.NormalizeCode(raw)

		var payload RedeemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"coupon_code": code, "order_id": payload.OrderID.String()})
		}

		order, err := orders.Get(ctx, payload.OrderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if order.DiscountCode == nil || couponsvc.NormalizeCode(*order.DiscountCode) != code {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order was not placed with this coupon").
				WithDetails(map[string]string{"order_id": "discount code does not match"}))
			return
		}

		if err := svc.Redeem(ctx, couponsvc.RedeemRequest{Code: code, OrderID: order.ID, OrderNumber: order.OrderNumber}); err != nil {
			responses.WriteError(ctx, logg, w, couponsvc.ToAPIError(err))
			return
		}
		responses.WriteSuccess(w, RedeemResponse{Code: code, OrderID: order.ID, OrderNumber: order.OrderNumber})
	}
}
