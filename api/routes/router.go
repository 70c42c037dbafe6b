package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	checkoutcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/checkout"
	couponcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/coupons"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/drafts"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/sessions"
	checkoutform "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// kvStore is the redis surface the HTTP guards need.
type kvStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type sessionStore interface {
	Start(ctx context.Context) (*sessions.Session, error)
	Load(ctx context.Context, id string) (*sessions.Session, error)
}

type checkoutFlow interface {
	Preview(ctx context.Context, sessionID string) (*checkoutsvc.Preview, error)
	Submit(ctx context.Context, in checkoutsvc.SubmitInput) (*checkoutsvc.Outcome, error)
	Close(ctx context.Context, sessionID string, confirmed bool) (*sessions.Session, error)
	Cancel(ctx context.Context, sessionID string) (*sessions.Session, error)
}

type productCatalog interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListActive(ctx context.Context) ([]models.Product, error)
}

type draftStore interface {
	Get(sessionID string) (*drafts.Draft, error)
	Delete(sessionID string) error
}

type draftScheduler interface {
	Save(sessionID string, form checkoutform.Form)
	Discard(sessionID string)
}

type couponRedeemer interface {
	Redeem(ctx context.Context, req coupons.RedeemRequest) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	bigqueryP controllers.Pinger,
	kv kvStore,
	sessionsStore sessionStore,
	flow checkoutFlow,
	catalog productCatalog,
	draftsStore draftStore,
	draftWriter draftScheduler,
	couponService coupons.Service,
	redeemer couponRedeemer,
	ordersSvc orders.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	submitPolicy := middleware.NewRateLimitPolicy("submit", cfg.RateLimit.Window, cfg.RateLimit.SubmitIPLimit)
	couponPolicy := middleware.NewRateLimitPolicy("coupon", cfg.RateLimit.Window, cfg.RateLimit.CouponIPLimit)
	idempotent := middleware.Idempotency(kv, middleware.IdempotencyTTL, logg)
	orderIdempotent := middleware.Idempotency(kv, middleware.OrderIdempotencyTTL, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":       dbP,
			"redis":    redisP,
			"bigquery": bigqueryP,
		}))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api/products", controllers.ProductList(catalog, logg))

	r.Route("/api/checkout/sessions", func(r chi.Router) {
		r.Post("/", checkoutcontrollers.SessionStart(sessionsStore, logg))
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", checkoutcontrollers.SessionFetch(sessionsStore, logg))

			r.Put("/cart", checkoutcontrollers.CartUpsert(sessionsStore, catalog, logg))
			r.Delete("/cart", checkoutcontrollers.CartClear(sessionsStore, logg))
			r.Delete("/cart/{productID}", checkoutcontrollers.CartRemoveLine(sessionsStore, logg))

			r.With(middleware.RateLimit(couponPolicy, kv, logg)).Put("/coupon", checkoutcontrollers.CouponApply(sessionsStore, flow, logg))
			r.Delete("/coupon", checkoutcontrollers.CouponRemove(sessionsStore, flow, logg))

			r.Get("/preview", checkoutcontrollers.CheckoutPreview(flow, logg))
			r.With(middleware.RateLimit(submitPolicy, kv, logg)).Post("/submit", checkoutcontrollers.CheckoutSubmit(flow, draftsStore, draftWriter, logg))
			r.Post("/close", checkoutcontrollers.CheckoutClose(flow, logg))
			r.Post("/cancel", checkoutcontrollers.CheckoutCancel(flow, logg))

			r.Get("/draft", checkoutcontrollers.DraftFetch(draftsStore, logg))
			r.Put("/draft", checkoutcontrollers.DraftSave(sessionsStore, draftWriter, logg))
		})
	})

	r.With(orderIdempotent).Post("/api/orders", ordercontrollers.Create(ordersSvc, logg))

	r.Route("/api/coupons", func(r chi.Router) {
		r.With(middleware.RateLimit(couponPolicy, kv, logg)).Post("/validate", couponcontrollers.Validate(couponService, logg))
		r.With(idempotent).Post("/{code}/redeem", couponcontrollers.Redeem(redeemer, ordersSvc, logg))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.AdminAuth, logg))
		r.With(idempotent).Delete("/orders/{orderID}", ordercontrollers.AdminDelete(ordersSvc, logg))
	})

	return r
}
