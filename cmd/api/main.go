package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/analytics"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/drafts"
	"github.com/angelmondragon/storefront-backend/internal/messaging"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/sessions"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/env"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	draftStore, err := drafts.Open(cfg.Drafts.Path)
	if err != nil {
		logg.Error(context.Background(), "failed to open drafts store", err)
		os.Exit(1)
	}
	defer func() {
		if err := draftStore.Close(); err != nil {
			logg.Error(context.Background(), "error closing drafts store", err)
		}
	}()
	draftWriter := drafts.NewDebouncer(draftStore, cfg.Checkout.DraftDebounce, logg)

	sessionManager, err := sessions.NewManager(redisClient, sessions.Options{TTL: cfg.Checkout.SessionTTL, Logger: logg})
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	catalogRepo := catalog.NewRepository(dbClient.DB())
	couponRepo := coupons.NewRepository(dbClient.DB())

	couponService, err := coupons.NewService(couponRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create coupon service", err)
		os.Exit(1)
	}
	redeemer, err := coupons.NewRedeemer(dbClient, couponRepo, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create coupon redeemer", err)
		os.Exit(1)
	}

	storeLoc, err := cfg.App.StoreLocation()
	if err != nil {
		logg.Error(context.Background(), "failed to load store time zone", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(dbClient.DB()),
		Tx:         dbClient,
		Outbox:     outboxService,
		Catalog:    catalogRepo,
		Coupons:    couponService,
		Logger:     logg,
		Location:   storeLoc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	tracker, err := analytics.NewTracker(dbClient, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create purchase tracker", err)
		os.Exit(1)
	}

	messages, err := messaging.NewBuilder(cfg.Messaging, storeLoc)
	if err != nil {
		logg.Error(context.Background(), "failed to create message builder", err)
		os.Exit(1)
	}

	orchestrator, err := checkout.NewOrchestrator(checkout.Params{
		Sessions:   sessionManager,
		Guard:      redisClient,
		Catalog:    catalogRepo,
		Coupons:    couponService,
		Redeemer:   redeemer,
		Orders:     ordersService,
		Tracker:    tracker,
		Messages:   messages,
		Metrics:    metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer),
		Logger:     logg,
		Cooldown:   cfg.Checkout.SubmitCooldown,
		RetryDelay: cfg.Checkout.RetryDelay,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout orchestrator", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	id := instance.GetID()
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			nil,
			redisClient,
			sessionManager,
			orchestrator,
			catalogRepo,
			draftStore,
			draftWriter,
			couponService,
			redeemer,
			ordersService,
		),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The drafts file belongs to this process, so its retention runs here
	// rather than in cron-worker.
	draftJobs, err := draftRetention(cfg, logg, redisClient, draftStore, id)
	if err != nil {
		logg.Error(ctx, "failed to create draft retention", err)
		os.Exit(1)
	}
	go func() {
		if err := draftJobs.Run(sigCtx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "draft retention stopped", err)
		}
	}()

	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}

	if err := draftWriter.Flush(); err != nil {
		logg.Error(ctx, "failed to flush pending drafts", err)
	}
	logg.Info(ctx, "api server shutting down gracefully")
}

func draftRetention(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, store *drafts.Store, instanceID string) (*cron.Service, error) {
	job, err := cron.NewDraftRetentionJob(cron.DraftRetentionJobParams{
		Logger:    logg,
		Drafts:    store,
		Retention: cfg.Drafts.Retention,
	})
	if err != nil {
		return nil, err
	}
	lock, err := cron.NewRedisLock(redisClient, "draft-retention:"+instanceID, cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}
	registry, err := cron.NewRegistry(job)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
}
