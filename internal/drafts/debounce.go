package drafts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type draftWriter interface {
	Put(sessionID string, form checkout.Form) (bool, error)
}

type pending struct {
	form  checkout.Form
	timer *time.Timer
}

// Debouncer coalesces rapid draft saves per session. Only the last form
// submitted within the delay window is written.
type Debouncer struct {
	store   draftWriter
	delay   time.Duration
	logg    *logger.Logger
	mu      sync.Mutex
	pending map[string]*pending
}

func NewDebouncer(store draftWriter, delay time.Duration, logg *logger.Logger) *Debouncer {
	return &Debouncer{
		store:   store,
		delay:   delay,
		logg:    logg,
		pending: map[string]*pending{},
	}
}

// Save schedules a write of form for sessionID, replacing any write still
// waiting for the same session.
func (d *Debouncer) Save(sessionID string, form checkout.Form) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[sessionID]; ok {
		p.timer.Stop()
	}
	p := &pending{form: form}
	p.timer = time.AfterFunc(d.delay, func() { d.fire(sessionID, p) })
	d.pending[sessionID] = p
}

// Pending reports how many sessions have a write waiting.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Discard drops a waiting write for sessionID without storing it.
func (d *Debouncer) Discard(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[sessionID]; ok {
		p.timer.Stop()
		delete(d.pending, sessionID)
	}
}

// Flush writes every waiting draft immediately.
func (d *Debouncer) Flush() error {
	d.mu.Lock()
	waiting := d.pending
	d.pending = map[string]*pending{}
	d.mu.Unlock()

	var errs error
	for sessionID, p := range waiting {
		p.timer.Stop()
		if _, err := d.store.Put(sessionID, p.form); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (d *Debouncer) fire(sessionID string, p *pending) {
	d.mu.Lock()
	if d.pending[sessionID] != p {
		d.mu.Unlock()
		return
	}
	delete(d.pending, sessionID)
	d.mu.Unlock()

	if _, err := d.store.Put(sessionID, p.form); err != nil && d.logg != nil {
		ctx := d.logg.WithSessionID(context.Background(), sessionID)
		d.logg.Error(ctx, "save checkout draft", err)
	}
}
