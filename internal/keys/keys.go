// internal/keys/keys.go
package keys

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrKeyNotFound is returned when no record matches a (kid, private) lookup.
// For a deployment that references the key this is a configuration defect:
// signing cannot proceed and the initiation must fail.
var ErrKeyNotFound = errors.New("keys: key not found")

// KeyRecord holds one half (or both halves) of an RSA key pair.
//
// The tool's own signing keys carry Private=true and usable private material;
// cached platform keys carry Private=false and only public material. Both
// halves may share a kid, which is why (kid, private) is the storage key.
type KeyRecord struct {
	KID        string `json:"kid"`
	Private    bool   `json:"private"`
	PublicPEM  string `json:"public_pem,omitempty"`
	PrivatePEM string `json:"private_pem,omitempty"`
}

// Validate checks the invariant that a record carries the material its
// Private flag promises.
func (k KeyRecord) Validate() error {
	if strings.TrimSpace(k.KID) == "" {
		return errors.New("keys: kid required")
	}
	if k.Private && strings.TrimSpace(k.PrivatePEM) == "" {
		return errors.New("keys: private record without private material")
	}
	if !k.Private && strings.TrimSpace(k.PublicPEM) == "" {
		return errors.New("keys: verification record without public material")
	}
	return nil
}

// Store persists key records keyed by (kid, private).
type Store interface {
	// Get returns the record for (kid, private) or ErrKeyNotFound.
	Get(ctx context.Context, kid string, private bool) (KeyRecord, error)
	// Save inserts or replaces the record for (kid, private). Upsert: a
	// second save with different material takes effect, never errors.
	Save(ctx context.Context, rec KeyRecord) error
}

// InMemoryStore is a process-local Store (dev/tests).
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]KeyRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]KeyRecord)}
}

func memKey(kid string, private bool) string {
	if private {
		return kid + "|private"
	}
	return kid + "|public"
}

func (s *InMemoryStore) Get(_ context.Context, kid string, private bool) (KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[memKey(kid, private)]
	if !ok {
		return KeyRecord{}, ErrKeyNotFound
	}
	return rec, nil
}

func (s *InMemoryStore) Save(_ context.Context, rec KeyRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[memKey(rec.KID, rec.Private)] = rec
	return nil
}
