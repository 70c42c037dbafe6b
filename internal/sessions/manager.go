// Package sessions keeps anonymous checkout sessions in Redis. A session owns
// the cart and the idempotency key of the current purchase intent.
package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const idempotencyKeyBytes = 32

var ErrSessionNotFound = errors.New("checkout session not found")

// Confirmation is the success view of the last committed order. It stays on
// the session until the shopper confirms it closed.
type Confirmation struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	SubtotalCents int    `json:"subtotal_cents"`
	DiscountCents int    `json:"discount_cents"`
	TotalCents    int    `json:"total_cents"`
	Warning       string `json:"warning,omitempty"`
	Message       string `json:"message"`
	Link          string `json:"link"`
}

// Session is the persisted state of one checkout.
type Session struct {
	ID             string                `json:"id"`
	IdempotencyKey string                `json:"idempotency_key"`
	CartSnapshot   cart.Snapshot         `json:"cart"`
	State          enums.SubmissionState `json:"state"`
	LastOrder      *Confirmation         `json:"last_order,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`

	mu    sync.Mutex
	store *cart.Store
}

// Cart returns the live cart store of the session.
func (s *Session) Cart() *cart.Store {
	return s.store
}

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	SessionKey(sessionID string) string
}

// Options tunes a Manager. Zero values use production defaults.
type Options struct {
	TTL     time.Duration
	Clock   func() time.Time
	Entropy io.Reader
	NewID   func() string
	Logger  *logger.Logger
}

// Manager creates, loads and persists checkout sessions.
type Manager struct {
	store   sessionStore
	keyer   sessionKeyer
	ttl     time.Duration
	now     func() time.Time
	entropy io.Reader
	newID   func() string
	logg    *logger.Logger
}

// NewManager constructs a session manager. client usually is *redis.Client,
// which satisfies both the store and keyer surfaces.
func NewManager(client interface {
	sessionStore
	sessionKeyer
}, opts Options) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	m := &Manager{
		store:   client,
		keyer:   client,
		ttl:     opts.TTL,
		now:     opts.Clock,
		entropy: opts.Entropy,
		newID:   opts.NewID,
		logg:    opts.Logger,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.entropy == nil {
		m.entropy = rand.Reader
	}
	if m.newID == nil {
		m.newID = func() string { return ulid.Make().String() }
	}
	return m, nil
}

// Start creates and stores a new session with an empty cart.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	key, err := m.newIdempotencyKey()
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	sess := &Session{
		ID:             m.newID(),
		IdempotencyKey: key,
		State:          enums.SubmissionIdle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.put(ctx, sess); err != nil {
		return nil, err
	}
	m.attach(ctx, sess)
	return sess, nil
}

// Load restores a session and its cart. Cart mutations on the returned
// session are written back to Redis as they happen.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrSessionNotFound
	}
	raw, err := m.store.Get(ctx, m.keyer.SessionKey(id))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.State == "" {
		sess.State = enums.SubmissionIdle
	}
	m.attach(ctx, &sess)
	return &sess, nil
}

// Save writes the session, including the current cart state.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return fmt.Errorf("session is required")
	}
	if sess.store != nil {
		snap := sess.store.Snapshot()
		sess.mu.Lock()
		sess.CartSnapshot = snap
		sess.mu.Unlock()
	}
	return m.put(ctx, sess)
}

// RotateKey issues a fresh idempotency key for the next purchase intent.
func (m *Manager) RotateKey(ctx context.Context, sess *Session) (string, error) {
	if sess == nil {
		return "", fmt.Errorf("session is required")
	}
	key, err := m.newIdempotencyKey()
	if err != nil {
		return "", err
	}
	sess.mu.Lock()
	sess.IdempotencyKey = key
	sess.mu.Unlock()
	if err := m.Save(ctx, sess); err != nil {
		return "", err
	}
	return key, nil
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("session id is required")
	}
	return m.store.Del(ctx, m.keyer.SessionKey(id))
}

func (m *Manager) attach(ctx context.Context, sess *Session) {
	store := cart.NewStore()
	store.Restore(sess.CartSnapshot)
	sess.store = store
	store.Subscribe(func(snap cart.Snapshot) {
		sess.mu.Lock()
		sess.CartSnapshot = snap
		sess.mu.Unlock()
		if err := m.put(ctx, sess); err != nil && m.logg != nil {
			m.logg.Error(m.logg.WithSessionID(ctx, sess.ID), "persist cart snapshot", err)
		}
	})
}

func (m *Manager) put(ctx context.Context, sess *Session) error {
	sess.mu.Lock()
	sess.UpdatedAt = m.now().UTC()
	payload, err := json.Marshal(sess)
	sess.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.Set(ctx, m.keyer.SessionKey(sess.ID), string(payload), m.ttl); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (m *Manager) newIdempotencyKey() (string, error) {
	buf := make([]byte, idempotencyKeyBytes)
	if _, err := io.ReadFull(m.entropy, buf); err != nil {
		return "", fmt.Errorf("generating idempotency key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
