package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type productLister interface {
	ListActive(ctx context.Context) ([]models.Product, error)
}

type ProductView struct {
	ID             uuid.UUID `json:"id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	UnitPriceCents int       `json:"unit_price_cents"`
}

// ProductList returns the active catalog.
func ProductList(repo productLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := repo.ListActive(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products"))
			return
		}
		views := make([]ProductView, 0, len(items))
		for _, p := range items {
			views = append(views, ProductView{ID: p.ID, Code: p.Code, Name: p.Name, UnitPriceCents: p.UnitPriceCents})
		}
		responses.WriteSuccess(w, map[string]any{"products": views})
	}
}
