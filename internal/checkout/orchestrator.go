// Package checkout drives one order submission through its lifecycle:
// validation, server-side pricing, idempotent order creation with a single
// retry, and the best-effort finalization that follows a committed order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/analytics"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/messaging"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/sessions"
	checkoutform "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	maxAttempts       = 2
	redeemAttempts    = 2
	defaultLockTTL    = 30 * time.Second
	redeemMarkerTTL   = 7 * 24 * time.Hour
	couponUsageScope  = "coupon-usage"
	submitLockPrefix  = "checkout-submit:"
	outcomeCommitted  = "committed"
	outcomeFailed     = "failed"
	outcomeRejected   = "rejected"
	trackerStageLabel = "tracker"
)

var ErrSubmissionInProgress = errors.New("checkout submission already in progress")

type sessionStore interface {
	Load(ctx context.Context, id string) (*sessions.Session, error)
	Save(ctx context.Context, sess *sessions.Session) error
	RotateKey(ctx context.Context, sess *sessions.Session) (string, error)
}

// submitGuard is the Redis surface used for locks, cooldowns and dedupe markers.
type submitGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
	CooldownKey(sessionID string) string
	IdempotencyKey(scope, id string) string
}

type catalogReader interface {
	Snapshot(ctx context.Context, ids []uuid.UUID) (pricing.Catalog, error)
}

type couponValidator interface {
	Validate(ctx context.Context, code string, subtotalCents int, now time.Time) (coupons.Discount, error)
}

type couponRedeemer interface {
	Redeem(ctx context.Context, req coupons.RedeemRequest) error
}

type orderCreator interface {
	Create(ctx context.Context, req orders.CreateRequest) (*orders.CreateResult, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*orders.CreateResult, error)
}

type purchaseTracker interface {
	TrackPurchase(ctx context.Context, event analytics.PurchaseEvent) error
}

type messageRenderer interface {
	Render(order *models.Order) messaging.Message
}

// Params wires an Orchestrator. Metrics, Clock and Sleep are optional.
type Params struct {
	Sessions   sessionStore
	Guard      submitGuard
	Catalog    catalogReader
	Coupons    couponValidator
	Redeemer   couponRedeemer
	Orders     orderCreator
	Tracker    purchaseTracker
	Messages   messageRenderer
	Metrics    *metrics.CheckoutMetrics
	Logger     *logger.Logger
	Cooldown   time.Duration
	RetryDelay time.Duration
	LockTTL    time.Duration
	Clock      func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error
}

// Orchestrator owns the submission state machine of checkout sessions.
type Orchestrator struct {
	sessions   sessionStore
	guard      submitGuard
	catalog    catalogReader
	coupons    couponValidator
	redeemer   couponRedeemer
	orders     orderCreator
	tracker    purchaseTracker
	messages   messageRenderer
	metrics    *metrics.CheckoutMetrics
	logg       *logger.Logger
	cooldown   time.Duration
	retryDelay time.Duration
	lockTTL    time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// SubmitInput is a submission request for one session.
type SubmitInput struct {
	SessionID string
	Form      checkoutform.Form
}

// Outcome is the success view of a committed order.
type Outcome struct {
	State         enums.SubmissionState `json:"state"`
	OrderID       uuid.UUID             `json:"order_id"`
	OrderNumber   string                `json:"order_number"`
	SubtotalCents int                   `json:"subtotal_cents"`
	DiscountCents int                   `json:"discount_cents"`
	TotalCents    int                   `json:"total_cents"`
	Discount      *coupons.Discount     `json:"discount,omitempty"`
	Warning       string                `json:"warning,omitempty"`
	Message       string                `json:"message"`
	Link          string                `json:"link"`
	Replayed      bool                  `json:"replayed"`
	Attempts      int                   `json:"attempts"`
}

// Preview is the display pricing of a cart. CouponError explains why the
// cart coupon was not applied.
type Preview struct {
	Lines         []pricing.PricedLine `json:"lines"`
	SubtotalCents int                  `json:"subtotal_cents"`
	DiscountCents int                  `json:"discount_cents"`
	TotalCents    int                  `json:"total_cents"`
	Discount      *coupons.Discount    `json:"discount,omitempty"`
	CouponError   string               `json:"coupon_error,omitempty"`
}

func NewOrchestrator(p Params) (*Orchestrator, error) {
	switch {
	case p.Sessions == nil:
		return nil, errors.New("session store required")
	case p.Guard == nil:
		return nil, errors.New("redis guard required")
	case p.Catalog == nil:
		return nil, errors.New("catalog reader required")
	case p.Coupons == nil:
		return nil, errors.New("coupon validator required")
	case p.Redeemer == nil:
		return nil, errors.New("coupon redeemer required")
	case p.Orders == nil:
		return nil, errors.New("order creator required")
	case p.Tracker == nil:
		return nil, errors.New("purchase tracker required")
	case p.Messages == nil:
		return nil, errors.New("message renderer required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.Cooldown < 0 || p.RetryDelay < 0:
		return nil, errors.New("cooldown and retry delay must not be negative")
	}

	o := &Orchestrator{
		sessions:   p.Sessions,
		guard:      p.Guard,
		catalog:    p.Catalog,
		coupons:    p.Coupons,
		redeemer:   p.Redeemer,
		orders:     p.Orders,
		tracker:    p.Tracker,
		messages:   p.Messages,
		metrics:    p.Metrics,
		logg:       p.Logger,
		cooldown:   p.Cooldown,
		retryDelay: p.RetryDelay,
		lockTTL:    p.LockTTL,
		now:        p.Clock,
		sleep:      p.Sleep,
	}
	if o.lockTTL <= 0 {
		o.lockTTL = defaultLockTTL
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	return o, nil
}

// Submit runs one submission for the session. Every failure before the order
// is committed leaves the session idle with its cart untouched.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (*Outcome, error) {
	started := o.now()
	ctx = o.logg.WithSessionID(ctx, in.SessionID)

	release, err := o.lock(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := o.load(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	ctx = o.logg.WithIdempotencyKey(ctx, sess.IdempotencyKey)

	fsm := o.resume(ctx, sess)
	if fsm.State() != enums.SubmissionIdle {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "close the order confirmation before submitting again").
			WithDetails(map[string]any{"state": fsm.State()})
	}

	if err := o.checkCooldown(ctx, sess.ID); err != nil {
		return nil, err
	}

	if err := o.advance(fsm, enums.SubmissionValidating); err != nil {
		return nil, err
	}
	snap := sess.Cart().Snapshot()
	form := in.Form.Normalize()
	if err := validateSubmission(form, snap); err != nil {
		o.reject(ctx, fsm, started)
		return nil, err
	}

	if err := o.advance(fsm, enums.SubmissionPricing); err != nil {
		return nil, err
	}
	_, discount, err := o.price(ctx, snap)
	if err != nil {
		o.reject(ctx, fsm, started)
		return nil, err
	}

	req := buildCreateRequest(sess, form, snap, discount)
	result, err := o.submit(ctx, fsm, req)
	if err != nil {
		o.metrics.Submission(outcomeFailed, o.now().Sub(started))
		return nil, err
	}
	ctx = o.logg.WithOrderNumber(ctx, result.OrderNumber)

	if err := o.advance(fsm, enums.SubmissionCommitted); err != nil {
		return nil, err
	}
	if err := o.guard.Set(ctx, o.guard.CooldownKey(sess.ID), result.OrderID.String(), o.cooldown); err != nil {
		o.logg.Warn(ctx, fmt.Sprintf("record submit cooldown: %v", err))
	}

	if err := o.advance(fsm, enums.SubmissionFinalizing); err != nil {
		return nil, err
	}
	msg := o.finalize(ctx, sess, result)

	sess.LastOrder = &sessions.Confirmation{
		OrderID:       result.OrderID.String(),
		OrderNumber:   result.OrderNumber,
		SubtotalCents: result.SubtotalCents,
		DiscountCents: result.DiscountCents,
		TotalCents:    result.TotalCents,
		Warning:       result.Warning,
		Message:       msg.Text,
		Link:          msg.Link,
	}
	if err := o.advance(fsm, enums.SubmissionDone); err != nil {
		return nil, err
	}

	o.metrics.Submission(outcomeCommitted, o.now().Sub(started))
	o.logg.Info(ctx, "order submitted")

	return &Outcome{
		State:         fsm.State(),
		OrderID:       result.OrderID,
		OrderNumber:   result.OrderNumber,
		SubtotalCents: result.SubtotalCents,
		DiscountCents: result.DiscountCents,
		TotalCents:    result.TotalCents,
		Discount:      result.Discount,
		Warning:       result.Warning,
		Message:       msg.Text,
		Link:          msg.Link,
		Replayed:      result.Replayed,
		Attempts:      fsm.attempts,
	}, nil
}

// Preview prices the session cart without validating the form.
func (o *Orchestrator) Preview(ctx context.Context, sessionID string) (*Preview, error) {
	ctx = o.logg.WithSessionID(ctx, sessionID)
	sess, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := sess.Cart().Snapshot()
	if snap.IsEmpty() {
		return &Preview{Lines: []pricing.PricedLine{}}, nil
	}

	subtotal, err := o.subtotal(ctx, snap)
	if err != nil {
		return nil, err
	}
	preview := &Preview{
		Lines:         subtotal.Lines,
		SubtotalCents: subtotal.Cents,
		TotalCents:    subtotal.Cents,
	}
	if snap.CouponCode == "" {
		return preview, nil
	}

	discount, err := o.applyCoupon(ctx, snap.CouponCode, subtotal.Cents)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeCouponInvalid) {
			preview.CouponError = pkgerrors.As(err).Message()
			return preview, nil
		}
		return nil, err
	}
	preview.Discount = discount
	preview.DiscountCents = discount.AmountCents
	preview.TotalCents = subtotal.Cents - discount.AmountCents
	return preview, nil
}

// Close dismisses the success view. Only a confirmed close clears the cart
// and its coupon and starts a new purchase intent with a fresh key.
func (o *Orchestrator) Close(ctx context.Context, sessionID string, confirmed bool) (*sessions.Session, error) {
	ctx = o.logg.WithSessionID(ctx, sessionID)
	release, err := o.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.State != enums.SubmissionDone || !confirmed {
		return sess, nil
	}

	fsm := o.machineFor(ctx, sess, enums.SubmissionDone)
	sess.Cart().Clear()
	sess.LastOrder = nil
	if err := o.advance(fsm, enums.SubmissionIdle); err != nil {
		return nil, err
	}
	if _, err := o.sessions.RotateKey(ctx, sess); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate idempotency key")
	}
	o.logg.Info(ctx, "checkout closed")
	return sess, nil
}

// Cancel abandons a submission that has not been committed. A session
// showing a committed order must be closed instead.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) (*sessions.Session, error) {
	ctx = o.logg.WithSessionID(ctx, sessionID)
	release, err := o.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	fsm := o.resume(ctx, sess)
	if fsm.State() == enums.SubmissionDone {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already placed").
			WithDetails(map[string]any{"state": fsm.State()})
	}
	return sess, nil
}

// lock takes the per-session submit lock. Release leaves the key alone when
// the lock expired and another submission now holds it.
func (o *Orchestrator) lock(ctx context.Context, sessionID string) (func(), error) {
	l, err := cron.NewRedisLock(o.guard, submitLockPrefix+sessionID, o.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "submit lock")
	}
	unlock, ok, err := l.TryLock(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire submit lock")
	}
	if !ok {
		return nil, pkgerrors.Wrap(pkgerrors.CodeSubmitInProgress, ErrSubmissionInProgress, "a submission is already in progress")
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			o.logg.Warn(ctx, fmt.Sprintf("release submit lock: %v", err))
		}
	}, nil
}

func (o *Orchestrator) load(ctx context.Context, sessionID string) (*sessions.Session, error) {
	sess, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "checkout session not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	return sess, nil
}

// resume rebuilds the machine from the persisted state. failed settles to
// idle; states that only exist while a submission holds the lock come from an
// interrupted run and are reset.
func (o *Orchestrator) resume(ctx context.Context, sess *sessions.Session) *machine {
	switch sess.State {
	case enums.SubmissionIdle, enums.SubmissionDone:
		return o.machineFor(ctx, sess, sess.State)
	case enums.SubmissionFailed:
		fsm := o.machineFor(ctx, sess, enums.SubmissionFailed)
		_ = fsm.to(enums.SubmissionIdle)
		return fsm
	default:
		o.logg.Warn(ctx, fmt.Sprintf("resetting interrupted submission in state %q", sess.State))
		sess.State = enums.SubmissionIdle
		return o.machineFor(ctx, sess, enums.SubmissionIdle)
	}
}

// machineFor returns a machine whose transitions are persisted on the session.
func (o *Orchestrator) machineFor(ctx context.Context, sess *sessions.Session, start enums.SubmissionState) *machine {
	fsm := newMachine(start)
	fsm.onChange = func(_, to enums.SubmissionState) {
		sess.State = to
		if err := o.sessions.Save(ctx, sess); err != nil {
			o.logg.Error(ctx, "persist checkout session", err)
		}
	}
	return fsm
}

func (o *Orchestrator) advance(fsm *machine, next enums.SubmissionState) error {
	if err := fsm.to(next); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "submission state")
	}
	return nil
}

// reject returns a machine in validating or pricing to idle.
func (o *Orchestrator) reject(ctx context.Context, fsm *machine, started time.Time) {
	if err := fsm.to(enums.SubmissionIdle); err != nil {
		o.logg.Error(ctx, "return submission to idle", err)
	}
	o.metrics.Submission(outcomeRejected, o.now().Sub(started))
}

func (o *Orchestrator) checkCooldown(ctx context.Context, sessionID string) error {
	active, err := o.guard.Exists(ctx, o.guard.CooldownKey(sessionID))
	if err != nil {
		o.logg.Warn(ctx, fmt.Sprintf("check submit cooldown: %v", err))
		return nil
	}
	if active {
		return pkgerrors.New(pkgerrors.CodeSubmitCooldown, "please wait a few seconds before submitting again").
			WithDetails(map[string]any{"cooldown_seconds": int(o.cooldown / time.Second)})
	}
	return nil
}

func validateSubmission(form checkoutform.Form, snap cart.Snapshot) error {
	if form.IsBot() {
		return pkgerrors.New(pkgerrors.CodeValidation, "submission rejected")
	}
	if snap.IsEmpty() {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty").
			WithDetails(map[string]string{"cart": "cart is empty"})
	}
	if fields := checkoutform.Validate(form); fields != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "please correct the highlighted fields").WithDetails(fields)
	}
	return nil
}

func (o *Orchestrator) price(ctx context.Context, snap cart.Snapshot) (pricing.Subtotal, *coupons.Discount, error) {
	subtotal, err := o.subtotal(ctx, snap)
	if err != nil {
		return pricing.Subtotal{}, nil, err
	}
	if snap.CouponCode == "" {
		return subtotal, nil, nil
	}
	discount, err := o.applyCoupon(ctx, snap.CouponCode, subtotal.Cents)
	if err != nil {
		return pricing.Subtotal{}, nil, err
	}
	return subtotal, discount, nil
}

func (o *Orchestrator) subtotal(ctx context.Context, snap cart.Snapshot) (pricing.Subtotal, error) {
	lines := snap.CartLines()
	catalog, err := o.catalog.Snapshot(ctx, pricing.ProductIDs(lines))
	if err != nil {
		return pricing.Subtotal{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog prices")
	}
	subtotal, err := pricing.ComputeSubtotal(lines, catalog)
	if err != nil {
		var invalid *pricing.InvalidItemError
		if errors.As(err, &invalid) {
			return pricing.Subtotal{}, pkgerrors.Wrap(pkgerrors.CodeInvalidItem, err, "a product in the cart is no longer available").
				WithDetails(map[string]any{"product_id": invalid.ProductID})
		}
		return pricing.Subtotal{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "cart could not be priced")
	}
	return subtotal, nil
}

func (o *Orchestrator) applyCoupon(ctx context.Context, code string, subtotalCents int) (*coupons.Discount, error) {
	discount, err := o.coupons.Validate(ctx, code, subtotalCents, o.now())
	if err != nil {
		if reason, ok := coupons.RejectionReason(err); ok {
			o.metrics.CouponRejected(string(reason))
		}
		return nil, coupons.ToAPIError(err)
	}
	return &discount, nil
}

// submit creates the order, retrying once with the same key and payload.
// The machine ends in committed-ready submitting on success and idle on failure.
func (o *Orchestrator) submit(ctx context.Context, fsm *machine, req orders.CreateRequest) (*orders.CreateResult, error) {
	if err := o.advance(fsm, enums.SubmissionSubmitting); err != nil {
		return nil, err
	}
	result, err := o.create(ctx, req)
	if err != nil && pkgerrors.IsRetryable(err) {
		o.logg.Warn(ctx, fmt.Sprintf("order creation failed, retrying in %s: %v", o.retryDelay, err))
		if err := o.advance(fsm, enums.SubmissionRetryScheduled); err != nil {
			return nil, err
		}
		sleepErr := o.sleep(ctx, o.retryDelay)
		if err := o.advance(fsm, enums.SubmissionSubmitting); err != nil {
			return nil, err
		}
		if sleepErr != nil {
			err = sleepErr
		} else {
			result, err = o.create(ctx, req)
		}
	}
	if err == nil {
		return result, nil
	}
	if pkgerrors.HasCode(err, pkgerrors.CodeIdempotency) {
		if stored := o.committedOrder(ctx, req.IdempotencyKey); stored != nil {
			return stored, nil
		}
	}

	_ = fsm.to(enums.SubmissionFailed)
	_ = fsm.to(enums.SubmissionIdle)
	o.logg.Error(ctx, "order submission failed", err)
	if !pkgerrors.IsRetryable(err) {
		return nil, err
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeOrderSubmission, err, "the order could not be placed, please retry or contact us")
}

// committedOrder loads the order an earlier attempt committed under key. The
// key only clashes with a different cart when that attempt's response was
// lost, so the stored order is the one the shopper actually placed.
func (o *Orchestrator) committedOrder(ctx context.Context, key string) *orders.CreateResult {
	stored, err := o.orders.FindByIdempotencyKey(ctx, key)
	if err != nil || stored == nil {
		o.logg.Warn(ctx, fmt.Sprintf("load order committed under reused key: %v", err))
		return nil
	}
	stored.Replayed = true
	o.logg.Warn(o.logg.WithOrderNumber(ctx, stored.OrderNumber), "idempotency key already committed with another cart, resuming stored order")
	return stored
}

func (o *Orchestrator) create(ctx context.Context, req orders.CreateRequest) (*orders.CreateResult, error) {
	o.metrics.SubmissionAttempt()
	result, err := o.orders.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order creation returned no result")
	}
	return result, nil
}

// finalize runs the post-commit side effects. None of them can fail the
// submission.
func (o *Orchestrator) finalize(ctx context.Context, sess *sessions.Session, result *orders.CreateResult) messaging.Message {
	if result.Discount != nil {
		o.redeem(ctx, result)
	}
	o.track(ctx, sess, result)
	if result.Order == nil {
		return messaging.Message{}
	}
	return o.messages.Render(result.Order)
}

// redeem increments coupon usage at most once per order.
func (o *Orchestrator) redeem(ctx context.Context, result *orders.CreateResult) {
	marker := o.guard.IdempotencyKey(couponUsageScope, result.OrderID.String())
	first, err := o.guard.SetNX(ctx, marker, result.Discount.Code, redeemMarkerTTL)
	if err != nil {
		o.logg.Warn(ctx, fmt.Sprintf("coupon usage marker unavailable, incrementing anyway: %v", err))
	} else if !first {
		o.logg.Info(ctx, "coupon usage already recorded for order")
		return
	}

	req := coupons.RedeemRequest{
		Code:        result.Discount.Code,
		OrderID:     result.OrderID,
		OrderNumber: result.OrderNumber,
	}
	for attempt := 1; attempt <= redeemAttempts; attempt++ {
		err = o.redeemer.Redeem(ctx, req)
		if err == nil || errors.Is(err, coupons.ErrIncrementRejected) {
			break
		}
	}
	if err == nil {
		return
	}

	o.metrics.CouponIncrementFailed()
	o.logg.Error(o.logg.WithField(ctx, "coupon_code", result.Discount.Code), "coupon usage increment failed", err)
	if delErr := o.guard.Del(ctx, marker); delErr != nil {
		o.logg.Warn(ctx, fmt.Sprintf("clear coupon usage marker: %v", delErr))
	}
}

func (o *Orchestrator) track(ctx context.Context, sess *sessions.Session, result *orders.CreateResult) {
	event := analytics.PurchaseEvent{
		OrderID:       result.OrderID,
		OrderNumber:   result.OrderNumber,
		SessionID:     sess.ID,
		ValueCents:    result.TotalCents,
		DiscountCents: result.DiscountCents,
		OccurredAt:    result.CreatedAt,
	}
	if result.Discount != nil {
		event.Coupon = result.Discount.Code
	}
	if result.Order != nil {
		event.Items = orders.EventLines(result.Order.LineItems)
	}
	if err := o.tracker.TrackPurchase(ctx, event); err != nil {
		o.metrics.AnalyticsFailure(trackerStageLabel)
		o.logg.Error(ctx, "track purchase", err)
	}
}

func buildCreateRequest(sess *sessions.Session, form checkoutform.Form, snap cart.Snapshot, discount *coupons.Discount) orders.CreateRequest {
	lines := make([]orders.LineRequest, len(snap.Lines))
	for i, line := range snap.Lines {
		lines[i] = orders.LineRequest{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		}
	}
	req := orders.CreateRequest{
		IdempotencyKey: sess.IdempotencyKey,
		SessionID:      sess.ID,
		Customer: orders.CustomerInfo{
			Name:        form.Name,
			Phone:       form.Phone,
			Email:       form.Email,
			Fulfillment: form.Fulfillment,
			Notes:       form.Notes,
		},
		Lines: lines,
	}
	if form.Fulfillment == enums.FulfillmentShipping {
		req.Customer.Address = orders.Address{
			Line:        form.Address,
			CivicNumber: form.CivicNumber,
			City:        form.City,
			Province:    form.Province,
			PostalCode:  form.PostalCode,
		}
	}
	if discount != nil {
		req.CouponCode = discount.Code
	}
	return req
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
