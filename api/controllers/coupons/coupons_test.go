package coupons

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	couponsvc "github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type stubValidator struct {
	discount couponsvc.Discount
	err      error
	code     string
	subtotal int
}

func (s *stubValidator) Validate(_ context.Context, code string, subtotalCents int, _ time.Time) (couponsvc.Discount, error) {
	s.code = code
	s.subtotal = subtotalCents
	return s.discount, s.err
}

type stubRedeemer struct {
	err  error
	reqs []couponsvc.RedeemRequest
}

func (s *stubRedeemer) Redeem(_ context.Context, req couponsvc.RedeemRequest) error {
	s.reqs = append(s.reqs, req)
	return s.err
}

type stubOrders struct {
	order *models.Order
	err   error
}

func (s stubOrders) Get(context.Context, uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

func TestValidateReturnsDiscount(t *testing.T) {
	svc := &stubValidator{discount: couponsvc.Discount{Code: "SAVE10", Type: enums.DiscountTypePercent, Value: 10, AmountCents: 500}}
	req := httptest.NewRequest(http.MethodPost, "/api/coupons/validate", strings.NewReader(`{"code":"save10","subtotal_cents":5000}`))
	resp := httptest.NewRecorder()
	Validate(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.code != "save10" || svc.subtotal != 5000 {
		t.Fatalf("unexpected call %q %d", svc.code, svc.subtotal)
	}
	if !strings.Contains(resp.Body.String(), `"amount_cents":500`) {
		t.Fatalf("discount missing from body: %s", resp.Body.String())
	}
}

func TestValidateRejection(t *testing.T) {
	svc := &stubValidator{err: &couponsvc.RejectionError{Code: "OLD", Reason: enums.CouponExpired}}
	req := httptest.NewRequest(http.MethodPost, "/api/coupons/validate", strings.NewReader(`{"code":"old","subtotal_cents":100}`))
	resp := httptest.NewRecorder()
	Validate(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestValidateRequiresCode(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/coupons/validate", strings.NewReader(`{"subtotal_cents":100}`))
	resp := httptest.NewRecorder()
	Validate(&stubValidator{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func redeemRequest(code string, orderID uuid.UUID) *http.Request {
	body := `{"order_id":"` + orderID.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/coupons/"+code+"/redeem", strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.URLParams.Add("code", code)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestRedeemRecordsUsage(t *testing.T) {
	code := "save10"
	order := &models.Order{ID: uuid.New(), OrderNumber: "PN-1403-X7K", DiscountCode: &code}
	svc := &stubRedeemer{}
	resp := httptest.NewRecorder()
	Redeem(svc, stubOrders{order: order}, nil).ServeHTTP(resp, redeemRequest("Save10", order.ID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.reqs) != 1 {
		t.Fatalf("expected one redeem, got %d", len(svc.reqs))
	}
	got := svc.reqs[0]
	if got.Code != "SAVE10" || got.OrderID != order.ID || got.OrderNumber != order.OrderNumber {
		t.Fatalf("unexpected redeem request %+v", got)
	}
}

func TestRedeemRejectsMismatchedOrder(t *testing.T) {
	order := &models.Order{ID: uuid.New(), OrderNumber: "PN-1403-X7K"}
	svc := &stubRedeemer{}
	resp := httptest.NewRecorder()
	Redeem(svc, stubOrders{order: order}, nil).ServeHTTP(resp, redeemRequest("SAVE10", order.ID))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if len(svc.reqs) != 0 {
		t.Fatalf("redeem should not run")
	}
}

func TestRedeemLimitReached(t *testing.T) {
	code := "SAVE10"
	order := &models.Order{ID: uuid.New(), DiscountCode: &code}
	svc := &stubRedeemer{err: &couponsvc.IncrementError{Code: code, Err: couponsvc.ErrIncrementRejected}}
	resp := httptest.NewRecorder()
	Redeem(svc, stubOrders{order: order}, nil).ServeHTTP(resp, redeemRequest(code, order.ID))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestRedeemOrderLookupFailure(t *testing.T) {
	resp := httptest.NewRecorder()
	Redeem(&stubRedeemer{}, stubOrders{err: errors.New("db down")}, nil).ServeHTTP(resp, redeemRequest("SAVE10", uuid.New()))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
