package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// ErrNoDecoder is returned for event types nobody registered.
var ErrNoDecoder = errors.New("no decoder registered")

// DecodeFunc turns the data field of an outbox envelope into a typed event.
type DecodeFunc func(data json.RawMessage) (any, error)

// Decoders is shared by the relay, which refuses rows it cannot decode, and
// by consumers, which decode what they receive from Pub/Sub.
type Decoders struct {
	mu  sync.RWMutex
	fns map[enums.OutboxEventType]DecodeFunc
}

func NewDecoders() *Decoders {
	return &Decoders{fns: make(map[enums.OutboxEventType]DecodeFunc)}
}

// StorefrontDecoders knows every event this service writes to the outbox.
func StorefrontDecoders() *Decoders {
	d := NewDecoders()
	d.Register(enums.EventOrderCreated, JSON[payloads.OrderCreatedEvent]())
	d.Register(enums.EventOrderDeleted, JSON[payloads.OrderDeletedEvent]())
	d.Register(enums.EventCouponRedeemed, JSON[payloads.CouponRedeemedEvent]())
	d.Register(enums.EventPurchaseTracked, JSON[payloads.PurchaseTrackedEvent]())
	return d
}

func (d *Decoders) Register(eventType enums.OutboxEventType, fn DecodeFunc) {
	d.mu.Lock()
	d.fns[eventType] = fn
	d.mu.Unlock()
}

func (d *Decoders) Has(eventType enums.OutboxEventType) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.fns[eventType]
	return ok
}

func (d *Decoders) Decode(eventType enums.OutboxEventType, data json.RawMessage) (any, error) {
	d.mu.RLock()
	fn, ok := d.fns[eventType]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoDecoder, eventType)
	}
	return fn(data)
}

// JSON decodes into a fresh *T. Empty and null payloads are rejected.
func JSON[T any]() DecodeFunc {
	return func(data json.RawMessage) (any, error) {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return nil, errors.New("payload is empty")
		}
		out := new(T)
		if err := json.Unmarshal(trimmed, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
