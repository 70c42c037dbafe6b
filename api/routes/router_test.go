package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/drafts"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/sessions"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	checkoutform "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
	hits map[string]int64
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: map[string]string{}, hits: map[string]int64{}}
}

func (m *memoryKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return v, nil
}

func (m *memoryKV) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	_, exists := m.data[key]
	m.mu.Unlock()
	if exists {
		return false, nil
	}
	return true, m.Set(ctx, key, value, ttl)
}

func (m *memoryKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryKV) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[key]++
	return m.hits[key], nil
}

func (m *memoryKV) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryKV) SessionKey(id string) string {
	return "session:" + id
}

type stubFlow struct{}

func (stubFlow) Preview(context.Context, string) (*checkoutsvc.Preview, error) {
	return &checkoutsvc.Preview{}, nil
}

func (stubFlow) Submit(context.Context, checkoutsvc.SubmitInput) (*checkoutsvc.Outcome, error) {
	return &checkoutsvc.Outcome{OrderNumber: "PN-1403-X7K"}, nil
}

func (stubFlow) Close(context.Context, string, bool) (*sessions.Session, error) {
	return nil, nil
}

func (stubFlow) Cancel(context.Context, string) (*sessions.Session, error) {
	return nil, nil
}

type stubCatalog struct{}

func (stubCatalog) FindByID(context.Context, uuid.UUID) (*models.Product, error) {
	return nil, nil
}

func (stubCatalog) ListActive(context.Context) ([]models.Product, error) {
	return nil, nil
}

type stubDrafts struct{}

func (stubDrafts) Get(string) (*drafts.Draft, error) {
	return nil, drafts.ErrNotFound
}

func (stubDrafts) Delete(string) error {
	return nil
}

func (stubDrafts) Save(string, checkoutform.Form) {}

func (stubDrafts) Discard(string) {}

type stubCoupons struct{}

func (stubCoupons) Validate(context.Context, string, int, time.Time) (coupons.Discount, error) {
	return coupons.Discount{Code: "SAVE10"}, nil
}

func (stubCoupons) IncrementUsage(context.Context, string) error { return nil }

func (stubCoupons) Redeem(context.Context, coupons.RedeemRequest) error { return nil }

type stubOrders struct {
	mu      sync.Mutex
	creates int
	deletes int
}

func (s *stubOrders) Create(context.Context, orders.CreateRequest) (*orders.CreateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	return &orders.CreateResult{OrderNumber: "PN-1403-X7K"}, nil
}

func (s *stubOrders) FindByIdempotencyKey(context.Context, string) (*orders.CreateResult, error) {
	return &orders.CreateResult{OrderNumber: "PN-1403-X7K", Replayed: true}, nil
}

func (s *stubOrders) Get(context.Context, uuid.UUID) (*models.Order, error) {
	return &models.Order{}, nil
}

func (s *stubOrders) Delete(context.Context, uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Env: "dev", CORSOrigins: []string{"https://shop.example"}},
		AdminAuth: config.AdminAuthConfig{Secret: "router-secret", Issuer: "storefront", TokenTTL: time.Hour},
		RateLimit: config.RateLimitConfig{Window: time.Minute, CouponIPLimit: 2, SubmitIPLimit: 1},
	}
}

func newTestRouter(t *testing.T, kv *memoryKV, svc *stubOrders) http.Handler {
	t.Helper()
	manager, err := sessions.NewManager(kv, sessions.Options{TTL: time.Hour})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return NewRouter(
		testConfig(),
		nil,
		stubPinger{},
		stubPinger{},
		nil,
		kv,
		manager,
		stubFlow{},
		stubCatalog{},
		stubDrafts{},
		stubDrafts{},
		stubCoupons{},
		stubCoupons{},
		svc,
	)
}

func TestHealthRoutes(t *testing.T) {
	router := newTestRouter(t, newMemoryKV(), &stubOrders{})
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestSessionStartAndFetch(t *testing.T) {
	router := newTestRouter(t, newMemoryKV(), &stubOrders{})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/checkout/sessions", nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/checkout/sessions/missing", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session got %d", resp.Code)
	}
}

func TestSubmitIsRateLimited(t *testing.T) {
	router := newTestRouter(t, newMemoryKV(), &stubOrders{})

	statuses := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/checkout/sessions/abc/submit", strings.NewReader(`{}`))
		req.Header.Set("X-Real-IP", "10.0.0.1")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		statuses = append(statuses, resp.Code)
	}
	if statuses[0] == http.StatusTooManyRequests {
		t.Fatalf("first submit should reach the handler")
	}
	if statuses[1] != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second submit got %d", statuses[1])
	}
}

func TestOrderCreateRequiresIdempotencyKey(t *testing.T) {
	svc := &stubOrders{}
	router := newTestRouter(t, newMemoryKV(), svc)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.creates != 0 {
		t.Fatalf("service should not be reached")
	}
}

func TestOrderCreateReplaysStoredResponse(t *testing.T) {
	svc := &stubOrders{}
	router := newTestRouter(t, newMemoryKV(), svc)
	body := `{"customer":{"name":"Mario Rossi","phone":"3331234567","fulfillment":"pickup"},"lines":[]}`

	var first string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "order-key-1")
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d: %s", i, resp.Code, resp.Body.String())
		}
		if i == 0 {
			first = resp.Body.String()
		} else if resp.Body.String() != first {
			t.Fatalf("replayed body differs")
		}
	}
	if svc.creates != 1 {
		t.Fatalf("expected one create got %d", svc.creates)
	}
}

func TestAdminDeleteRequiresToken(t *testing.T) {
	svc := &stubOrders{}
	router := newTestRouter(t, newMemoryKV(), svc)
	path := "/api/admin/orders/" + uuid.NewString()

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, path, nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	token, err := pkgAuth.MintAdminToken(testConfig().AdminAuth, time.Now(), "ops@shop")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	req := httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", "delete-1")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.deletes != 1 {
		t.Fatalf("expected one delete got %d", svc.deletes)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, newMemoryKV(), &stubOrders{})

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
