// Package catalog reads the product catalog, the pricing authority for
// checkout.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository loads catalog rows.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Snapshot returns the active catalog entries for ids. Unknown or inactive
// products are left out of the result; callers treat absence as an invalid item.
func (r *Repository) Snapshot(ctx context.Context, ids []uuid.UUID) (pricing.Catalog, error) {
	catalog := make(pricing.Catalog, len(ids))
	if len(ids) == 0 {
		return catalog, nil
	}

	var rows []models.Product
	if err := r.db.WithContext(ctx).
		Where("id IN ? AND is_active = ?", ids, true).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		catalog[row.ID] = pricing.CatalogEntry{
			ProductID:      row.ID,
			Code:           row.Code,
			Name:           row.Name,
			UnitPriceCents: row.UnitPriceCents,
		}
	}
	return catalog, nil
}

// ListActive returns the active products ordered by name.
func (r *Repository) ListActive(ctx context.Context) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&rows).Error
	return rows, err
}

// FindByID loads a single product.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// Create inserts a product, assigning an id when absent.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(product).Error
}
