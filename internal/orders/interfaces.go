package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository defines persistence operations for the orders tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIdempotent(ctx context.Context, order *models.Order) (*models.Order, bool, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	CountByDiscountCode(ctx context.Context) (map[string]int64, error)
}

// Service exposes order creation and the admin operations on placed orders.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*CreateResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
