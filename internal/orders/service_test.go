package orders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type stubOrdersRepo struct {
	byKey     map[string]*models.Order
	findErr   error
	createErr error
	deleted   []uuid.UUID
}

func newStubOrdersRepo() *stubOrdersRepo {
	return &stubOrdersRepo{byKey: map[string]*models.Order{}}
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubOrdersRepo) CreateIdempotent(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	if s.createErr != nil {
		return nil, false, s.createErr
	}
	if existing, ok := s.byKey[order.IdempotencyKey]; ok {
		return existing, false, nil
	}
	s.byKey[order.IdempotencyKey] = order
	return order, true, nil
}

func (s *stubOrdersRepo) FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.byKey[key], nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	for _, order := range s.byKey {
		if order.ID == id {
			return order, nil
		}
	}
	return nil, nil
}

func (s *stubOrdersRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	for key, order := range s.byKey {
		if order.ID == id {
			delete(s.byKey, key)
			s.deleted = append(s.deleted, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *stubOrdersRepo) CountByDiscountCode(ctx context.Context) (map[string]int64, error) {
	return nil, nil
}

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubCatalog struct {
	entries pricing.Catalog
	err     error
}

func (s stubCatalog) Snapshot(ctx context.Context, ids []uuid.UUID) (pricing.Catalog, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := pricing.Catalog{}
	for _, id := range ids {
		if entry, ok := s.entries[id]; ok {
			out[id] = entry
		}
	}
	return out, nil
}

type stubCoupons struct {
	discount coupons.Discount
	err      error
	calls    int
}

func (s *stubCoupons) Validate(ctx context.Context, code string, subtotalCents int, now time.Time) (coupons.Discount, error) {
	s.calls++
	if s.err != nil {
		return coupons.Discount{}, s.err
	}
	return s.discount, nil
}

type fixture struct {
	svc     Service
	repo    *stubOrdersRepo
	outbox  *stubOutbox
	coupons *stubCoupons
	product uuid.UUID
}

var fixedNow = time.Date(2026, time.March, 14, 18, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	product := uuid.New()
	f := &fixture{
		repo:    newStubOrdersRepo(),
		outbox:  &stubOutbox{},
		coupons: &stubCoupons{},
		product: product,
	}
	svc, err := NewService(ServiceParams{
		Repository: f.repo,
		Tx:         stubTx{},
		Outbox:     f.outbox,
		Catalog: stubCatalog{entries: pricing.Catalog{
			product: {ProductID: product, Code: "PIZ-01", Name: "Margherita", UnitPriceCents: 1000},
		}},
		Coupons: f.coupons,
		Clock:   func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) request(key string, qty int) CreateRequest {
	return CreateRequest{
		IdempotencyKey: key,
		SessionID:      "01J0SESSION",
		Customer: CustomerInfo{
			Name:        "Maria Rossi",
			Phone:       "+39 333 1234567",
			Fulfillment: enums.FulfillmentPickup,
		},
		Lines: []LineRequest{{ProductID: f.product, Quantity: qty}},
	}
}

func TestCreatePricesFromCatalog(t *testing.T) {
	f := newFixture(t)
	req := f.request("key-1", 2)
	tampered := 1
	req.Lines[0].UnitPriceCents = &tampered

	result, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if result.SubtotalCents != 2000 || result.TotalCents != 2000 {
		t.Fatalf("expected catalog pricing, got subtotal=%d total=%d", result.SubtotalCents, result.TotalCents)
	}
	if result.Replayed {
		t.Fatal("first create must not be a replay")
	}
	if !strings.HasPrefix(result.OrderNumber, "PN-1403-") {
		t.Fatalf("unexpected order number %q", result.OrderNumber)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventOrderCreated {
		t.Fatalf("expected one order_created event, got %+v", f.outbox.events)
	}
	payload, ok := f.outbox.events[0].Data.(payloads.OrderCreatedEvent)
	if !ok || payload.TotalCents != 2000 || len(payload.Lines) != 1 {
		t.Fatalf("unexpected event payload %+v", f.outbox.events[0].Data)
	}
}

func TestCreateOrderNumberUsesStoreZone(t *testing.T) {
	f := newFixture(t)
	lateUTC := time.Date(2026, time.March, 14, 23, 30, 0, 0, time.UTC)
	svc, err := NewService(ServiceParams{
		Repository: f.repo,
		Tx:         stubTx{},
		Outbox:     f.outbox,
		Catalog: stubCatalog{entries: pricing.Catalog{
			f.product: {ProductID: f.product, Code: "PIZ-01", Name: "Margherita", UnitPriceCents: 1000},
		}},
		Coupons:  f.coupons,
		Clock:    func() time.Time { return lateUTC },
		Location: time.FixedZone("CET", 3600),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	result, err := svc.Create(context.Background(), f.request("key-1", 1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(result.OrderNumber, "PN-1503-") {
		t.Fatalf("order number should use the store date, got %q", result.OrderNumber)
	}
	if !result.CreatedAt.Equal(lateUTC) {
		t.Fatalf("created_at should stay the instant, got %v", result.CreatedAt)
	}
}

func TestCreateReplaysSameKey(t *testing.T) {
	f := newFixture(t)
	req := f.request("key-1", 2)

	first, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	second, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if !second.Replayed {
		t.Fatal("expected replay on second create")
	}
	if first.OrderID != second.OrderID || first.OrderNumber != second.OrderNumber || first.TotalCents != second.TotalCents {
		t.Fatalf("replay mismatch: %+v vs %+v", first, second)
	}
	if len(f.repo.byKey) != 1 {
		t.Fatalf("expected one stored order, got %d", len(f.repo.byKey))
	}
	if len(f.outbox.events) != 1 {
		t.Fatalf("expected a single outbox event, got %d", len(f.outbox.events))
	}
}

func TestCreateRejectsKeyReuseWithDifferentPayload(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Create(context.Background(), f.request("key-1", 2)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err := f.svc.Create(context.Background(), f.request("key-1", 3))
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeIdempotency {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
	if pkgerrors.IsRetryable(err) {
		t.Fatal("idempotency conflicts must not be retried")
	}
}

func TestFindByIdempotencyKeyReturnsStoredOrder(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), f.request("key-1", 2))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	found, err := f.svc.FindByIdempotencyKey(context.Background(), " key-1 ")
	if err != nil {
		t.Fatalf("FindByIdempotencyKey: %v", err)
	}
	if found.OrderID != created.OrderID || found.TotalCents != 2000 || !found.Replayed {
		t.Fatalf("unexpected lookup result %+v", found)
	}
	if found.Order == nil || len(found.Order.LineItems) != 1 {
		t.Fatalf("lookup should carry the stored order, got %+v", found.Order)
	}

	_, err = f.svc.FindByIdempotencyKey(context.Background(), "key-2")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found for an unknown key, got %v", err)
	}
}

func TestCreateUnknownProduct(t *testing.T) {
	f := newFixture(t)
	req := f.request("key-1", 1)
	missing := uuid.New()
	req.Lines = append(req.Lines, LineRequest{ProductID: missing, Quantity: 1})

	_, err := f.svc.Create(context.Background(), req)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInvalidItem {
		t.Fatalf("expected invalid item error, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok || details["product_id"] != missing.String() {
		t.Fatalf("unexpected details %+v", typed.Details())
	}
	if len(f.repo.byKey) != 0 {
		t.Fatal("no order may be stored for an invalid cart")
	}
}

func TestCreateAppliesDiscount(t *testing.T) {
	f := newFixture(t)
	f.coupons.discount = coupons.Discount{Code: "SAVE10", Type: enums.DiscountTypeFixed, Value: 1000, AmountCents: 1000}
	req := f.request("key-1", 2)
	req.CouponCode = " save10 "

	result, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if result.SubtotalCents != 2000 || result.DiscountCents != 1000 || result.TotalCents != 1000 {
		t.Fatalf("unexpected totals %+v", result)
	}
	if result.Discount == nil || result.Discount.Code != "SAVE10" {
		t.Fatalf("expected SAVE10 discount, got %+v", result.Discount)
	}
	stored := f.repo.byKey["key-1"]
	if stored.DiscountCode == nil || *stored.DiscountCode != "SAVE10" {
		t.Fatalf("stored order missing discount code")
	}
}

func TestCreateRejectedCouponAddsWarning(t *testing.T) {
	f := newFixture(t)
	f.coupons.err = &coupons.RejectionError{Code: "SAVE10", Reason: enums.CouponMinimumNotMet}
	req := f.request("key-1", 2)
	req.CouponCode = "SAVE10"

	result, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if result.TotalCents != 2000 || result.DiscountCents != 0 || result.Discount != nil {
		t.Fatalf("expected undiscounted order, got %+v", result)
	}
	if !strings.Contains(result.Warning, string(enums.CouponMinimumNotMet)) {
		t.Fatalf("unexpected warning %q", result.Warning)
	}
}

func TestCreateCouponLookupFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.coupons.err = errors.New("connection reset")
	req := f.request("key-1", 1)
	req.CouponCode = "SAVE10"

	_, err := f.svc.Create(context.Background(), req)
	if err == nil || !pkgerrors.IsRetryable(err) {
		t.Fatalf("expected retryable dependency error, got %v", err)
	}
}

func TestCreateClampsQuantity(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.request("key-1", 5000))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := result.Order.LineItems[0].Qty; got != MaxQuantity {
		t.Fatalf("expected quantity clamped to %d, got %d", MaxQuantity, got)
	}

	result, err = f.svc.Create(context.Background(), f.request("key-2", 0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := result.Order.LineItems[0].Qty; got != MinQuantity {
		t.Fatalf("expected quantity clamped to %d, got %d", MinQuantity, got)
	}
}

func TestCreateSanitizesCustomerText(t *testing.T) {
	f := newFixture(t)
	req := f.request("key-1", 1)
	req.Customer.Notes = "<script>alert(1)</script>Citofono <b>Rossi</b>"
	req.Customer.Name = "  Maria   Rossi "

	result, err := f.svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	order := result.Order
	if order.CustomerName != "Maria Rossi" {
		t.Fatalf("unexpected name %q", order.CustomerName)
	}
	if order.Notes == nil || *order.Notes != "Citofono Rossi" {
		t.Fatalf("unexpected notes %v", order.Notes)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.request("", 1))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for missing key, got %v", err)
	}

	req := f.request("key-1", 1)
	req.Lines = nil
	_, err = f.svc.Create(context.Background(), req)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for empty cart, got %v", err)
	}
}

func TestCreateRepositoryFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.repo.createErr = errors.New("connection refused")

	_, err := f.svc.Create(context.Background(), f.request("key-1", 1))
	if err == nil || !pkgerrors.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestDeleteEmitsEvent(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.Create(context.Background(), f.request("key-1", 1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.svc.Delete(context.Background(), result.OrderID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(f.repo.deleted) != 1 {
		t.Fatalf("expected order deleted")
	}
	last := f.outbox.events[len(f.outbox.events)-1]
	if last.EventType != enums.EventOrderDeleted || last.AggregateID != result.OrderID {
		t.Fatalf("unexpected event %+v", last)
	}

	err = f.svc.Delete(context.Background(), result.OrderID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetMissingOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
