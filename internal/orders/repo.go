package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

const (
	idempotencyConstraint       = "ux_orders_idempotency_key"
	idempotencyConstraintSQLite = "orders.idempotency_key"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateIdempotent inserts order and its line items unless an order with the
// same idempotency key exists, in which case the stored order is returned with
// created=false. The insert runs in a nested transaction (a savepoint when the
// repository is already bound to one) so a lost race on the unique key does not
// poison the caller's transaction.
func (r *repository) CreateIdempotent(ctx context.Context, order *models.Order) (*models.Order, bool, error) {
	if order == nil {
		return nil, false, errors.New("order is required")
	}
	if order.IdempotencyKey == "" {
		return nil, false, errors.New("idempotency key is required")
	}

	existing, err := r.FindByIdempotencyKey(ctx, order.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.LineItems {
		item := &order.LineItems[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.OrderID = order.ID
		item.Position = i
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("LineItems").Create(order).Error; err != nil {
			return err
		}
		if len(order.LineItems) == 0 {
			return nil
		}
		return tx.Create(&order.LineItems).Error
	})
	if err != nil {
		if isIdempotencyConflict(err) {
			stored, findErr := r.FindByIdempotencyKey(ctx, order.IdempotencyKey)
			if findErr != nil {
				return nil, false, findErr
			}
			if stored != nil {
				return stored, false, nil
			}
		}
		return nil, false, err
	}
	return order, true, nil
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems", orderedLines).
		Where("idempotency_key = ?", key).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("LineItems", orderedLines).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// Delete removes an order and its line items. It reports false when no order
// matched id.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderLineItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Order{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	return deleted, err
}

type discountCodeCount struct {
	DiscountCode string
	Count        int64
}

// CountByDiscountCode returns how many stored orders carry each applied coupon code.
func (r *repository) CountByDiscountCode(ctx context.Context) (map[string]int64, error) {
	var rows []discountCodeCount
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("discount_code, COUNT(*) AS count").
		Where("discount_code IS NOT NULL").
		Group("discount_code").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.DiscountCode] = row.Count
	}
	return counts, nil
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func isIdempotencyConflict(err error) bool {
	return dbpkg.IsUniqueViolation(err, idempotencyConstraint) ||
		dbpkg.IsUniqueViolation(err, idempotencyConstraintSQLite)
}
