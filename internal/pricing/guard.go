// Package pricing recomputes cart totals from the catalog. Prices carried by
// the client are never read.
package pricing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CartLine is a cart entry as submitted by the client. ClientUnitPriceCents is
// advisory display data only.
type CartLine struct {
	ProductID            uuid.UUID
	Quantity             int
	ClientUnitPriceCents *int
}

// CatalogEntry is the authoritative price record for a product.
type CatalogEntry struct {
	ProductID      uuid.UUID
	Code           string
	Name           string
	UnitPriceCents int
}

// Catalog indexes catalog entries by product id.
type Catalog map[uuid.UUID]CatalogEntry

// PricedLine is a cart line priced from the catalog.
type PricedLine struct {
	ProductID      uuid.UUID
	Code           string
	Name           string
	Quantity       int
	UnitPriceCents int
	LineTotalCents int
}

// Subtotal is the result of pricing a whole cart.
type Subtotal struct {
	Cents int
	Lines []PricedLine
}

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// InvalidItemError reports a cart line whose product is not in the catalog.
type InvalidItemError struct {
	ProductID uuid.UUID
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("product %s is not available", e.ProductID)
}

// ComputeSubtotal prices every line from catalog. It fails on the first line
// whose product is missing and never returns a partial subtotal.
func ComputeSubtotal(lines []CartLine, catalog Catalog) (Subtotal, error) {
	priced := make([]PricedLine, 0, len(lines))
	total := 0
	for _, line := range lines {
		entry, ok := catalog[line.ProductID]
		if !ok {
			return Subtotal{}, &InvalidItemError{ProductID: line.ProductID}
		}
		if line.Quantity < 1 {
			return Subtotal{}, fmt.Errorf("product %s: %w", line.ProductID, ErrInvalidQuantity)
		}
		lineTotal := entry.UnitPriceCents * line.Quantity
		priced = append(priced, PricedLine{
			ProductID:      line.ProductID,
			Code:           entry.Code,
			Name:           entry.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: entry.UnitPriceCents,
			LineTotalCents: lineTotal,
		})
		total += lineTotal
	}
	return Subtotal{Cents: total, Lines: priced}, nil
}

// ProductIDs returns the distinct product ids referenced by lines, in order.
func ProductIDs(lines []CartLine) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}
