package auth

import (
	"context"
	"sync"
	"time"
)

// DefaultPendingTTL is how long a login may take before its state expires.
const DefaultPendingTTL = 10 * time.Minute

// InMemoryPendingStore provides an in-memory implementation of PendingStore.
type InMemoryPendingStore struct {
	mu      sync.Mutex
	entries map[string]PendingAuthorization
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryPendingStore creates a store whose entries expire after ttl.
// A non-positive ttl uses DefaultPendingTTL.
func NewInMemoryPendingStore(ttl time.Duration) *InMemoryPendingStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &InMemoryPendingStore{
		entries: make(map[string]PendingAuthorization),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores the code verifier for a given state.
func (s *InMemoryPendingStore) Put(ctx context.Context, state, codeVerifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[state] = PendingAuthorization{
		State:        state,
		CodeVerifier: codeVerifier,
		CreatedAt:    s.now(),
	}
	return nil
}

// TakeIfPresent retrieves and deletes the entry for a given state.
func (s *InMemoryPendingStore) TakeIfPresent(ctx context.Context, state string) (*PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[state]
	if !ok {
		return nil, ErrPendingNotFound
	}
	delete(s.entries, state)
	if entry.Expired(s.now(), s.ttl) {
		return nil, ErrPendingExpired
	}
	return &entry, nil
}

// Sweep removes every expired entry.
func (s *InMemoryPendingStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for state, entry := range s.entries {
		if entry.Expired(now, s.ttl) {
			delete(s.entries, state)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of pending entries, expired ones included.
func (s *InMemoryPendingStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

// InMemoryTokenHolder keeps the current token set in process memory.
type InMemoryTokenHolder struct {
	mu    sync.RWMutex
	token *TokenSet
}

// NewInMemoryTokenHolder creates an empty holder.
func NewInMemoryTokenHolder() *InMemoryTokenHolder {
	return &InMemoryTokenHolder{}
}

// Store replaces the held token set.
func (h *InMemoryTokenHolder) Store(ctx context.Context, token *TokenSet) error {
	if token == nil {
		return ErrNoToken
	}
	cp := *token
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = &cp
	return nil
}

// Current returns a copy of the held token set.
func (h *InMemoryTokenHolder) Current(ctx context.Context) (*TokenSet, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.token == nil {
		return nil, ErrNoToken
	}
	cp := *h.token
	return &cp, nil
}

// Clear empties the slot.
func (h *InMemoryTokenHolder) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = nil
	return nil
}
