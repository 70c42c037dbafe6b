// Package cart holds the in-memory cart of a checkout session.
package cart

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
)

const (
	MinQuantity = 1
	MaxQuantity = 999
)

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")
	ErrLineNotFound    = errors.New("cart: product not in cart")
	ErrMissingProduct  = errors.New("cart: product id is required")
)

// Line is one product in the cart. UnitPriceCents is the price the shopper
// saw when adding the product; it is display data and never priced.
type Line struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name,omitempty"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents *int      `json:"unit_price_cents,omitempty"`
}

// Snapshot is an immutable copy of the cart state.
type Snapshot struct {
	Lines      []Line `json:"lines"`
	CouponCode string `json:"coupon_code,omitempty"`
}

// IsEmpty reports whether the snapshot has no lines.
func (s Snapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// CartLines converts the snapshot into pricing input.
func (s Snapshot) CartLines() []pricing.CartLine {
	out := make([]pricing.CartLine, len(s.Lines))
	for i, line := range s.Lines {
		out[i] = pricing.CartLine{
			ProductID:            line.ProductID,
			Quantity:             line.Quantity,
			ClientUnitPriceCents: line.UnitPriceCents,
		}
	}
	return out
}

// Listener receives a snapshot after every mutation.
type Listener func(Snapshot)

// Store is a mutex-guarded cart with change notifications. Listeners run
// synchronously after the lock is released, in subscription order.
type Store struct {
	mu        sync.Mutex
	lines     []Line
	coupon    string
	listeners map[int]Listener
	order     []int
	nextID    int
}

func NewStore() *Store {
	return &Store{listeners: map[int]Listener{}}
}

// Add puts qty units of a product in the cart, merging with an existing line.
// The resulting quantity is capped at MaxQuantity.
func (s *Store) Add(productID uuid.UUID, name string, qty int, clientPriceCents *int) error {
	if productID == uuid.Nil {
		return ErrMissingProduct
	}
	if qty < MinQuantity {
		return ErrInvalidQuantity
	}
	s.mutate(func() bool {
		for i := range s.lines {
			if s.lines[i].ProductID == productID {
				s.lines[i].Quantity = capQuantity(s.lines[i].Quantity + qty)
				return true
			}
		}
		s.lines = append(s.lines, Line{
			ProductID:      productID,
			Name:           name,
			Quantity:       capQuantity(qty),
			UnitPriceCents: copyInt(clientPriceCents),
		})
		return true
	})
	return nil
}

// Remove drops a product from the cart. It reports whether a line was removed.
func (s *Store) Remove(productID uuid.UUID) bool {
	removed := false
	s.mutate(func() bool {
		for i := range s.lines {
			if s.lines[i].ProductID == productID {
				s.lines = append(s.lines[:i], s.lines[i+1:]...)
				removed = true
				return true
			}
		}
		return false
	})
	return removed
}

// UpdateQuantity sets the quantity of an existing line. Quantities below
// MinQuantity are rejected and leave the cart unchanged.
func (s *Store) UpdateQuantity(productID uuid.UUID, qty int) error {
	if qty < MinQuantity {
		return ErrInvalidQuantity
	}
	found := false
	s.mutate(func() bool {
		for i := range s.lines {
			if s.lines[i].ProductID == productID {
				s.lines[i].Quantity = capQuantity(qty)
				found = true
				return true
			}
		}
		return false
	})
	if !found {
		return ErrLineNotFound
	}
	return nil
}

// Clear empties the cart and drops the coupon.
func (s *Store) Clear() {
	s.mutate(func() bool {
		s.lines = nil
		s.coupon = ""
		return true
	})
}

func (s *Store) SetCouponCode(code string) {
	s.mutate(func() bool {
		if s.coupon == code {
			return false
		}
		s.coupon = code
		return true
	})
}

func (s *Store) ClearCoupon() {
	s.SetCouponCode("")
}

func (s *Store) CouponCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupon
}

func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyLines(s.lines)
}

func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines) == 0
}

// Count returns the total number of units in the cart.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, line := range s.lines {
		total += line.Quantity
	}
	return total
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Restore replaces the cart state without notifying listeners.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = copyLines(snap.Lines)
	s.coupon = snap.CouponCode
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.order = append(s.order, id)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
		for i, candidate := range s.order {
			if candidate == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

func (s *Store) mutate(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	if !changed {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{Lines: copyLines(s.lines), CouponCode: s.coupon}
}

func copyLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, line := range lines {
		line.UnitPriceCents = copyInt(line.UnitPriceCents)
		out[i] = line
	}
	return out
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func capQuantity(qty int) int {
	if qty > MaxQuantity {
		return MaxQuantity
	}
	return qty
}
