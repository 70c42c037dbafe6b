package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type couponBody struct {
	Code          string `json:"code" validate:"required,max=64"`
	SubtotalCents int    `json:"subtotal_cents" validate:"min=0"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"subtotal_cents": -1}`))
	var body couponBody
	err := DecodeJSONBody(req, &body)

	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", typed.Details())
	}
	if details["code"] != "is required" || details["subtotal_cents"] != "must be at least 0" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"SAVE10","price":1}`))
	var body couponBody
	if err := DecodeJSON(req, &body); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestDecodeJSONBodyShape(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", "request body required"},
		{"trailing value", `{"code":"SAVE10"} {"code":"X"}`, "request body must hold a single JSON value"},
		{"too large", `{"code":"` + strings.Repeat("a", MaxBodyBytes) + `"}`, "invalid request body"},
		{"trailing whitespace", "{\"code\":\"SAVE10\"}\n  ", ""},
	}
	for _, tc := range cases {
		var body couponBody
		err := DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body)), &body)
		if tc.want == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		typed := pkgerrors.As(err)
		if typed == nil || typed.Message() != tc.want {
			t.Fatalf("%s: expected %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestDecodeJSONBodyFormatsParams(t *testing.T) {
	type lineBody struct {
		Quantity int    `json:"quantity" validate:"gt=0"`
		Method   string `json:"method" validate:"oneof=shipping pickup"`
	}
	var body lineBody
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0,"method":"drone"}`)), &body)
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	if details["quantity"] != "must be greater than 0" || details["method"] != "must be one of: shipping pickup" {
		t.Fatalf("unexpected details %v", details)
	}
}

func withParam(req *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestPathUUID(t *testing.T) {
	req := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderID", "0e0b1c7e-8a4f-4d8e-9a53-000000000001")
	id, err := PathUUID(req, "orderID")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.String() != "0e0b1c7e-8a4f-4d8e-9a53-000000000001" {
		t.Fatalf("unexpected id %s", id)
	}

	bad := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderID", "nope")
	if _, err := PathUUID(bad, "orderID"); err == nil {
		t.Fatalf("expected invalid uuid to fail")
	}
}

func TestPathStringRequiresValue(t *testing.T) {
	req := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "code", "  ")
	if _, err := PathString(req, "code"); err == nil {
		t.Fatalf("expected blank parameter to fail")
	}
}
