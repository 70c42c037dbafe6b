package checkout

import "github.com/google/uuid"

// CartLineRequest adds a product or sets the quantity of a line already in
// the cart. UnitPriceCents is the price the shopper saw and is display data.
type CartLineRequest struct {
	ProductID      uuid.UUID `json:"product_id" validate:"required"`
	Quantity       int       `json:"quantity" validate:"min=1"`
	UnitPriceCents *int      `json:"unit_price_cents,omitempty" validate:"omitempty,min=0"`
}

type CartUpsertRequest struct {
	Lines []CartLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type CouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type CloseRequest struct {
	Confirmed bool `json:"confirmed"`
}
