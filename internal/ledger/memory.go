package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/domain"
)

// MemoryStore is an in-process Store for tests and single-node sandbox
// deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	byKey    map[string]*Record
	byTranID map[string]string
	events   []*AuditEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey:    make(map[string]*Record),
		byTranID: make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[rec.CorrelationKey]; exists {
		return fmt.Errorf("record %q already exists", rec.CorrelationKey)
	}
	clone := *rec
	s.byKey[rec.CorrelationKey] = &clone
	if rec.TranID != "" {
		s.byTranID[rec.TranID] = rec.CorrelationKey
	}
	return nil
}

func (s *MemoryStore) FindByCorrelationKey(ctx context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *MemoryStore) FindByTranID(ctx context.Context, tranID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byTranID[tranID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.byKey[key]
	return &clone, nil
}

func (s *MemoryStore) Transition(ctx context.Context, correlationKey, next string, paidAt *time.Time) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byKey[correlationKey]
	if !ok {
		return nil, false, ErrNotFound
	}
	if !domain.CanTransition(rec.State, next) {
		clone := *rec
		return &clone, false, nil
	}
	rec.State = domain.NormalizeState(next)
	if paidAt != nil {
		rec.PaidAt = paidAt
	}
	clone := *rec
	return &clone, true, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, evt *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *evt
	s.events = append(s.events, &clone)
	return nil
}

// Events returns the audit trail. Test helper.
func (s *MemoryStore) Events() []*AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemoryStore) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	moved := 0
	for _, rec := range s.byKey {
		if limit > 0 && moved >= limit {
			break
		}
		if rec.ExpiresAt.IsZero() || rec.ExpiresAt.After(now) {
			continue
		}
		if !domain.CanTransition(rec.State, domain.StateExpired) {
			continue
		}
		rec.State = domain.StateExpired
		moved++
	}
	return moved, nil
}
