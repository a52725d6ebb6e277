// Package checkout holds sanitized provider checkout documents for the
// short window between the purchase call and the shopper opening the
// hosted page. It replaces ambient process-global HTML state with an
// explicit store that owns its eviction.
package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/observability"
)

// ErrNotFound is returned for a missing or already-evicted document.
var ErrNotFound = errors.New("checkout: document not found")

// DefaultTTL bounds how long a checkout document stays retrievable.
const DefaultTTL = 15 * time.Minute

// DocumentStore is a short-TTL put/get/delete store keyed by an opaque
// token.
type DocumentStore interface {
	Put(ctx context.Context, token string, doc []byte, ttl time.Duration) error
	Get(ctx context.Context, token string) ([]byte, error)
	Delete(ctx context.Context, token string) error
}

type memoryEntry struct {
	doc       []byte
	expiresAt time.Time
}

// MemoryStore is an in-process DocumentStore with its own eviction timer.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryStore starts a store whose janitor evicts expired documents
// every sweepInterval. Call Close to stop the janitor.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
	}
	go s.janitor(sweepInterval)
	return s
}

func (s *MemoryStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictExpired(time.Now())
		}
	}
}

func (s *MemoryStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, entry := range s.entries {
		if !entry.expiresAt.After(now) {
			delete(s.entries, token)
			observability.IncrementCheckoutDoc("evicted")
		}
	}
}

// Close stops the eviction timer.
func (s *MemoryStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *MemoryStore) Put(ctx context.Context, token string, doc []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = memoryEntry{
		doc:       append([]byte(nil), doc...),
		expiresAt: time.Now().Add(ttl),
	}
	observability.IncrementCheckoutDoc("stored")
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, token string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[token]
	s.mu.RUnlock()
	if !ok || !entry.expiresAt.After(time.Now()) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.doc...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
	return nil
}
