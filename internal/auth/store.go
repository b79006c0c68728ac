package auth

import (
	"context"
	"time"
)

// PendingAuthorization correlates a callback with the login that started it.
type PendingAuthorization struct {
	State        string
	CodeVerifier string
	CreatedAt    time.Time
}

// Expired reports whether the entry is older than ttl at now.
func (p *PendingAuthorization) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(p.CreatedAt) > ttl
}

// PendingStore holds pending authorizations keyed by state.
type PendingStore interface {
	// Put inserts or overwrites the verifier for state.
	Put(ctx context.Context, state, codeVerifier string) error
	// TakeIfPresent atomically looks up and removes the entry for state.
	// It returns ErrPendingNotFound or ErrPendingExpired when there is
	// nothing usable.
	TakeIfPresent(ctx context.Context, state string) (*PendingAuthorization, error)
	// Sweep removes expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
	// Len returns the number of entries currently held.
	Len(ctx context.Context) (int, error)
}

// TokenHolder is the single slot holding the current token set.
type TokenHolder interface {
	Store(ctx context.Context, token *TokenSet) error
	// Current returns a copy of the stored token set or ErrNoToken.
	Current(ctx context.Context) (*TokenSet, error)
	// Clear empties the slot. Clearing an empty slot is not an error.
	Clear(ctx context.Context) error
}
