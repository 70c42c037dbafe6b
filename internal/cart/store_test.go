package cart

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestAddMergesAndCaps(t *testing.T) {
	store := NewStore()
	id := uuid.New()
	price := 1000

	if err := store.Add(id, "Margherita", 2, &price); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add(id, "Margherita", 3, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	lines := store.Lines()
	if len(lines) != 1 || lines[0].Quantity != 5 {
		t.Fatalf("expected merged line with qty 5, got %+v", lines)
	}

	if err := store.Add(id, "Margherita", 5000, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := store.Lines()[0].Quantity; got != MaxQuantity {
		t.Fatalf("expected qty capped at %d, got %d", MaxQuantity, got)
	}
}

func TestAddRejectsInvalidInput(t *testing.T) {
	store := NewStore()
	if err := store.Add(uuid.New(), "", 0, nil); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if err := store.Add(uuid.Nil, "", 1, nil); !errors.Is(err, ErrMissingProduct) {
		t.Fatalf("expected ErrMissingProduct, got %v", err)
	}
	if !store.IsEmpty() {
		t.Fatal("cart must stay empty")
	}
}

func TestUpdateQuantityAndRemove(t *testing.T) {
	store := NewStore()
	id := uuid.New()
	_ = store.Add(id, "Margherita", 1, nil)

	if err := store.UpdateQuantity(id, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if err := store.UpdateQuantity(id, 4); err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	if store.Count() != 4 {
		t.Fatalf("expected count 4, got %d", store.Count())
	}
	if err := store.UpdateQuantity(uuid.New(), 2); !errors.Is(err, ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
	if !store.Remove(id) {
		t.Fatal("expected line removed")
	}
	if store.Remove(id) {
		t.Fatal("second remove must report false")
	}
}

func TestClearDropsCoupon(t *testing.T) {
	store := NewStore()
	_ = store.Add(uuid.New(), "Margherita", 1, nil)
	store.SetCouponCode("SAVE10")

	store.Clear()
	if !store.IsEmpty() || store.CouponCode() != "" {
		t.Fatalf("expected empty cart without coupon, got %+v", store.Snapshot())
	}
}

func TestSubscribeNotifiesAfterMutation(t *testing.T) {
	store := NewStore()
	var snaps []Snapshot
	unsubscribe := store.Subscribe(func(s Snapshot) {
		snaps = append(snaps, s)
		// listeners may read the store without deadlocking
		_ = store.Count()
	})

	id := uuid.New()
	_ = store.Add(id, "Margherita", 2, nil)
	store.SetCouponCode("SAVE10")
	store.SetCouponCode("SAVE10")
	store.ClearCoupon()

	if len(snaps) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(snaps))
	}
	if snaps[1].CouponCode != "SAVE10" || snaps[2].CouponCode != "" {
		t.Fatalf("unexpected coupon sequence %+v", snaps)
	}

	unsubscribe()
	store.Clear()
	if len(snaps) != 3 {
		t.Fatal("unsubscribed listener must not be called")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewStore()
	price := 1000
	_ = store.Add(uuid.New(), "Margherita", 1, &price)

	snap := store.Snapshot()
	snap.Lines[0].Quantity = 99
	*snap.Lines[0].UnitPriceCents = 1
	if got := store.Lines()[0]; got.Quantity != 1 || *got.UnitPriceCents != 1000 {
		t.Fatalf("store mutated through snapshot: %+v", got)
	}

	restored := NewStore()
	calls := 0
	restored.Subscribe(func(Snapshot) { calls++ })
	restored.Restore(store.Snapshot())
	if calls != 0 || restored.Count() != 1 {
		t.Fatalf("restore must copy state silently, calls=%d count=%d", calls, restored.Count())
	}
}

func TestConcurrentMutations(t *testing.T) {
	store := NewStore()
	id := uuid.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Add(id, "Margherita", 1, nil)
		}()
	}
	wg.Wait()
	if store.Count() != 50 {
		t.Fatalf("expected 50 units, got %d", store.Count())
	}
}
