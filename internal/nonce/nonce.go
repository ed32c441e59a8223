// internal/nonce/nonce.go
package nonce

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

/*
Single-use nonce registry.

Issue generates a 128-bit random value and persists it before handing it to
the caller; the login initiation must fail if persistence fails, since a
lost nonce record makes later verification impossible. Consume is the hook
for the callback-validation step: it marks a value used exactly once and
reports replays and unknowns distinctly. Expired values age out so storage
stays bounded.
*/

// Result classifies a Consume call.
type Result int

const (
	Fresh Result = iota
	AlreadyUsed
	Unknown
)

func (r Result) String() string {
	switch r {
	case Fresh:
		return "fresh"
	case AlreadyUsed:
		return "already-used"
	default:
		return "unknown"
	}
}

// Nonce is a single-use random token.
type Nonce struct {
	Value     string
	CreatedAt time.Time
}

// Registry issues and consumes nonces.
type Registry interface {
	// Issue generates, persists, and returns a fresh nonce in one logically
	// atomic step; two concurrent callers never observe the same value.
	Issue(ctx context.Context) (Nonce, error)
	// Consume marks a value used. Fresh on first use within the TTL,
	// AlreadyUsed on replay, Unknown for values never issued or expired.
	Consume(ctx context.Context, value string) (Result, error)
}

// NewValue returns a hex-encoded 16-byte random token.
func NewValue() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("nonce: entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// InMemoryRegistry is a process-local Registry, safe for concurrent use.
// It purges expired entries opportunistically on writes.
type InMemoryRegistry struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	live     map[string]time.Time // issued, not yet consumed
	spent    map[string]time.Time // consumed, kept until expiry to detect replays
	useCount uint64
}

// NewInMemoryRegistry creates an in-memory registry. ttl bounds how long an
// issued or spent value is remembered; <=0 defaults to one hour.
func NewInMemoryRegistry(ttl time.Duration) *InMemoryRegistry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &InMemoryRegistry{
		ttl:   ttl,
		now:   time.Now,
		live:  make(map[string]time.Time),
		spent: make(map[string]time.Time),
	}
}

// SetClock overrides the clock (tests).
func (r *InMemoryRegistry) SetClock(now func() time.Time) { r.now = now }

func (r *InMemoryRegistry) Issue(_ context.Context) (Nonce, error) {
	v, err := NewValue()
	if err != nil {
		return Nonce{}, err
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.useCount++
	if r.useCount%512 == 0 {
		r.purgeLocked(now)
	}
	r.live[v] = now
	return Nonce{Value: v, CreatedAt: now}, nil
}

func (r *InMemoryRegistry) Consume(_ context.Context, value string) (Result, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Unknown, errors.New("nonce: value required")
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if at, ok := r.live[value]; ok {
		delete(r.live, value)
		if now.Sub(at) > r.ttl {
			return Unknown, nil
		}
		r.spent[value] = now
		return Fresh, nil
	}
	if at, ok := r.spent[value]; ok && now.Sub(at) <= r.ttl {
		return AlreadyUsed, nil
	}
	return Unknown, nil
}

func (r *InMemoryRegistry) purgeLocked(now time.Time) {
	for v, at := range r.live {
		if now.Sub(at) > r.ttl {
			delete(r.live, v)
		}
	}
	for v, at := range r.spent {
		if now.Sub(at) > r.ttl {
			delete(r.spent, v)
		}
	}
}
