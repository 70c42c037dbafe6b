// Package drafts keeps the checkout form a shopper has typed so far in an
// embedded bolt file. Drafts hold customer fields only; prices and cart
// contents live on the session.
package drafts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/angelmondragon/storefront-backend/pkg/checkout"
)

const bucketName = "drafts"

var ErrNotFound = errors.New("draft not found")

// Draft is the saved checkout form of one session.
type Draft struct {
	SessionID string        `json:"session_id"`
	Form      checkout.Form `json:"form"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Store is a bolt-backed draft store.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens (or creates) the bolt file at path and ensures the drafts bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open drafts file: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create drafts bucket: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores the form for sessionID. The honeypot is never persisted and an
// unchanged form is not rewritten. It reports whether a write happened.
func (s *Store) Put(sessionID string, form checkout.Form) (bool, error) {
	if sessionID == "" {
		return false, errors.New("session id is required")
	}
	form.Website = ""

	written := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if existing := b.Get([]byte(sessionID)); existing != nil {
			var current Draft
			if err := json.Unmarshal(existing, &current); err == nil && current.Form == form {
				return nil
			}
		}
		data, err := json.Marshal(Draft{SessionID: sessionID, Form: form, UpdatedAt: s.now().UTC()})
		if err != nil {
			return err
		}
		written = true
		return b.Put([]byte(sessionID), data)
	})
	if err != nil {
		return false, fmt.Errorf("put draft %s: %w", sessionID, err)
	}
	return written, nil
}

func (s *Store) Get(sessionID string) (*Draft, error) {
	var d Draft
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(sessionID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Delete removes a draft. Deleting a missing draft is not an error.
func (s *Store) Delete(sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(sessionID))
	})
}

// PurgeOlderThan deletes drafts last updated before cutoff and returns how
// many were removed. Unreadable entries are purged as well.
func (s *Store) PurgeOlderThan(cutoff time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var d Draft
			if err := json.Unmarshal(v, &d); err != nil || d.UpdatedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge drafts: %w", err)
	}
	return removed, nil
}
