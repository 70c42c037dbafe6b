package orders

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/coupons"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/sanitize"
)

const (
	MinQuantity = 1
	MaxQuantity = 999

	nameMaxLength    = 120
	addressMaxLength = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type catalogReader interface {
	Snapshot(ctx context.Context, ids []uuid.UUID) (pricing.Catalog, error)
}

type couponValidator interface {
	Validate(ctx context.Context, code string, subtotalCents int, now time.Time) (coupons.Discount, error)
}

// ServiceParams wires the order service dependencies.
type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Catalog    catalogReader
	Coupons    couponValidator
	Logger     *logger.Logger
	Clock      func() time.Time
	Rand       io.Reader

	// Location is the store time zone used for the order number date.
	Location *time.Location
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	catalog catalogReader
	coupons couponValidator
	logg    *logger.Logger
	now     func() time.Time
	rand    io.Reader
	loc     *time.Location
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon validator required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		repo:    params.Repository,
		tx:      params.Tx,
		outbox:  params.Outbox,
		catalog: params.Catalog,
		coupons: params.Coupons,
		logg:    params.Logger,
		now:     clock,
		rand:    params.Rand,
		loc:     loc,
	}, nil
}

// Create stores an order exactly once per idempotency key. Prices come from
// the catalog snapshot and the coupon is re-validated; a coupon that no longer
// applies produces a warning and an order without discount.
func (s *service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	req.IdempotencyKey = key
	req = normalizeRequest(req)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	hash, err := requestHash(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash order request")
	}

	ctx = s.withLogFields(ctx, req)

	existing, err := s.repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by idempotency key")
	}
	if existing != nil {
		return s.replay(ctx, existing, hash)
	}

	lines := toCartLines(req.Lines)
	catalog, err := s.catalog.Snapshot(ctx, pricing.ProductIDs(lines))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog snapshot")
	}
	subtotal, err := pricing.ComputeSubtotal(lines, catalog)
	if err != nil {
		return nil, pricingError(err)
	}

	now := s.now().UTC()
	var (
		discount *coupons.Discount
		warning  *string
	)
	if req.CouponCode != "" {
		applied, err := s.coupons.Validate(ctx, req.CouponCode, subtotal.Cents, now)
		switch {
		case err == nil:
			discount = &applied
		case isRejection(err):
			msg := couponWarning(req.CouponCode, err)
			warning = &msg
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "warning", msg), "coupon not applied to order")
			}
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate coupon")
		}
	}

	number, err := NewOrderNumber(now.In(s.loc), s.rand)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
	}

	order := buildOrder(req, hash, number, subtotal, discount, warning, now)

	var (
		stored  *models.Order
		created bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		stored, created, err = s.repo.WithTx(tx).CreateIdempotent(ctx, order)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   stored.ID,
			Actor:         &outbox.ActorRef{SessionID: req.SessionID, Role: "shopper"},
			Data:          orderCreatedPayload(stored),
			OccurredAt:    now,
		})
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
	}
	if !created {
		return s.replay(ctx, stored, hash)
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, stored.OrderNumber)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"order_id":    stored.ID.String(),
			"total_cents": stored.TotalCents,
		})
		s.logg.Info(logCtx, "order created")
	}
	return resultFromOrder(stored, false), nil
}

func (s *service) replay(ctx context.Context, existing *models.Order, hash string) (*CreateResult, error) {
	if existing.RequestHash != hash {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different order").
			WithDetails(map[string]any{"order_number": existing.OrderNumber})
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderNumber(ctx, existing.OrderNumber), "order replayed for idempotency key")
	}
	return resultFromOrder(existing, true), nil
}

// FindByIdempotencyKey returns the order already stored for key as a replayed
// result, regardless of the payload it was created with.
func (s *service) FindByIdempotencyKey(ctx context.Context, key string) (*CreateResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	order, err := s.repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by idempotency key")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return resultFromOrder(order, true), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// Delete removes an order and queues an order_deleted event in the same transaction.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		deleted, err := repo.Delete(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
		}
		if !deleted {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		now := s.now().UTC()
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDeleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   id,
			Actor:         &outbox.ActorRef{Role: "admin"},
			Data: payloads.OrderDeletedEvent{
				OrderID:     id,
				OrderNumber: order.OrderNumber,
				DeletedAt:   now,
			},
			OccurredAt: now,
		})
	})
}

func (s *service) withLogFields(ctx context.Context, req CreateRequest) context.Context {
	if s.logg == nil {
		return ctx
	}
	ctx = s.logg.WithIdempotencyKey(ctx, req.IdempotencyKey)
	if req.SessionID != "" {
		ctx = s.logg.WithSessionID(ctx, req.SessionID)
	}
	return ctx
}

func normalizeRequest(req CreateRequest) CreateRequest {
	c := req.Customer
	c.Name = sanitize.Line(c.Name, nameMaxLength)
	c.Phone = sanitize.Line(c.Phone, nameMaxLength)
	c.Email = strings.ToLower(sanitize.Line(c.Email, nameMaxLength))
	c.Notes = sanitize.Text(c.Notes, sanitize.MaxTextLength)
	c.Fulfillment = enums.FulfillmentMethod(strings.ToLower(strings.TrimSpace(string(c.Fulfillment))))
	if c.Fulfillment == enums.FulfillmentShipping {
		c.Address = Address{
			Line:        sanitize.Line(c.Address.Line, addressMaxLength),
			CivicNumber: sanitize.Line(c.Address.CivicNumber, 20),
			City:        sanitize.Line(c.Address.City, nameMaxLength),
			Province:    strings.ToUpper(sanitize.Line(c.Address.Province, 10)),
			PostalCode:  sanitize.Line(c.Address.PostalCode, 10),
		}
	} else {
		c.Address = Address{}
	}
	req.Customer = c

	lines := make([]LineRequest, len(req.Lines))
	for i, line := range req.Lines {
		line.Quantity = ClampQuantity(line.Quantity)
		lines[i] = line
	}
	req.Lines = lines
	req.CouponCode = coupons.NormalizeCode(req.CouponCode)
	return req
}

// ClampQuantity bounds a requested quantity to MinQuantity..MaxQuantity.
func ClampQuantity(qty int) int {
	if qty < MinQuantity {
		return MinQuantity
	}
	if qty > MaxQuantity {
		return MaxQuantity
	}
	return qty
}

func validateRequest(req CreateRequest) error {
	fields := map[string]string{}
	if req.Customer.Name == "" {
		fields["name"] = "name is required"
	}
	if req.Customer.Phone == "" {
		fields["phone"] = "phone is required"
	}
	if !req.Customer.Fulfillment.IsValid() {
		fields["fulfillment"] = "fulfillment must be shipping or pickup"
	}
	if len(req.Lines) == 0 {
		fields["lines"] = "cart is empty"
	}
	for _, line := range req.Lines {
		if line.ProductID == uuid.Nil {
			fields["lines"] = "product id is required"
			break
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid order request").WithDetails(fields)
}

// requestHash fingerprints the priced content of a request so that a reused
// idempotency key with a different cart or customer is detected. Client prices
// are excluded because they never influence the order.
func requestHash(req CreateRequest) (string, error) {
	type hashedLine struct {
		ProductID uuid.UUID `json:"p"`
		Quantity  int       `json:"q"`
	}
	lines := make([]hashedLine, len(req.Lines))
	for i, line := range req.Lines {
		lines[i] = hashedLine{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	payload, err := json.Marshal(struct {
		Customer CustomerInfo `json:"c"`
		Lines    []hashedLine `json:"l"`
		Coupon   string       `json:"k"`
	}{req.Customer, lines, req.CouponCode})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func toCartLines(lines []LineRequest) []pricing.CartLine {
	out := make([]pricing.CartLine, len(lines))
	for i, line := range lines {
		out[i] = pricing.CartLine{
			ProductID:            line.ProductID,
			Quantity:             line.Quantity,
			ClientUnitPriceCents: line.UnitPriceCents,
		}
	}
	return out
}

func pricingError(err error) error {
	var invalid *pricing.InvalidItemError
	if errors.As(err, &invalid) {
		return pkgerrors.Wrap(pkgerrors.CodeInvalidItem, err, "please review your cart").
			WithDetails(map[string]any{"product_id": invalid.ProductID.String()})
	}
	if errors.Is(err, pricing.ErrInvalidQuantity) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid quantity")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "price cart")
}

func isRejection(err error) bool {
	_, ok := coupons.RejectionReason(err)
	return ok
}

func couponWarning(code string, err error) string {
	reason, _ := coupons.RejectionReason(err)
	return fmt.Sprintf("coupon %s was not applied (%s)", code, reason)
}

func buildOrder(req CreateRequest, hash, number string, subtotal pricing.Subtotal, discount *coupons.Discount, warning *string, now time.Time) *models.Order {
	c := req.Customer
	order := &models.Order{
		ID:             uuid.New(),
		OrderNumber:    number,
		IdempotencyKey: req.IdempotencyKey,
		RequestHash:    hash,
		CustomerName:   c.Name,
		CustomerPhone:  c.Phone,
		CustomerEmail:  optional(c.Email),
		Fulfillment:    c.Fulfillment,
		Notes:          optional(c.Notes),
		SubtotalCents:  subtotal.Cents,
		TotalCents:     subtotal.Cents,
		Currency:       money.Currency,
		Status:         enums.OrderStatusNew,
		Warning:        warning,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if c.Fulfillment == enums.FulfillmentShipping {
		order.AddressLine = optional(c.Address.Line)
		order.CivicNumber = optional(c.Address.CivicNumber)
		order.City = optional(c.Address.City)
		order.Province = optional(c.Address.Province)
		order.PostalCode = optional(c.Address.PostalCode)
	}
	if discount != nil {
		code := discount.Code
		kind := discount.Type
		value := discount.Value
		order.DiscountCode = &code
		order.DiscountType = &kind
		order.DiscountValue = &value
		order.DiscountCents = discount.AmountCents
		order.TotalCents = subtotal.Cents - discount.AmountCents
	}
	order.LineItems = make([]models.OrderLineItem, len(subtotal.Lines))
	for i, line := range subtotal.Lines {
		order.LineItems[i] = models.OrderLineItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			ProductID:      line.ProductID,
			Code:           line.Code,
			Name:           line.Name,
			Qty:            line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			TotalCents:     line.LineTotalCents,
			Position:       i,
			CreatedAt:      now,
		}
	}
	return order
}

func orderCreatedPayload(order *models.Order) payloads.OrderCreatedEvent {
	return payloads.OrderCreatedEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Fulfillment:   order.Fulfillment,
		SubtotalCents: order.SubtotalCents,
		DiscountCode:  order.DiscountCode,
		DiscountCents: order.DiscountCents,
		TotalCents:    order.TotalCents,
		Currency:      order.Currency,
		Lines:         EventLines(order.LineItems),
		CreatedAt:     order.CreatedAt,
	}
}

// EventLines converts stored line items into event payload lines.
func EventLines(items []models.OrderLineItem) []payloads.OrderLine {
	lines := make([]payloads.OrderLine, len(items))
	for i, item := range items {
		lines[i] = payloads.OrderLine{
			ProductID:      item.ProductID,
			Code:           item.Code,
			Name:           item.Name,
			Quantity:       item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents,
		}
	}
	return lines
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
