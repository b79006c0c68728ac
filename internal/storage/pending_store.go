package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"oauthsample-go/internal/auth"
)

var _ auth.PendingStore = (*SQLitePendingStore)(nil)

// SQLitePendingStore keeps pending authorizations in SQLite so that a login
// survives a restart between redirect and callback.
type SQLitePendingStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewPendingStore creates a pending store whose entries expire after ttl.
func NewPendingStore(s *SQLiteStorage, ttl time.Duration) *SQLitePendingStore {
	if ttl <= 0 {
		ttl = auth.DefaultPendingTTL
	}
	return &SQLitePendingStore{db: s.db, ttl: ttl, now: time.Now}
}

// Put stores or replaces the verifier for state.
func (p *SQLitePendingStore) Put(ctx context.Context, state, codeVerifier string) error {
	if state == "" || codeVerifier == "" {
		return fmt.Errorf("%w: state and code verifier are required", ErrInvalidInput)
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pending_authorizations (state, code_verifier, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(state) DO UPDATE SET
			code_verifier = excluded.code_verifier,
			created_at = excluded.created_at`,
		state, codeVerifier, p.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store pending authorization: %w", err)
	}
	return nil
}

// TakeIfPresent deletes and returns the entry in a single statement, so two
// concurrent callbacks cannot both observe it.
func (p *SQLitePendingStore) TakeIfPresent(ctx context.Context, state string) (*auth.PendingAuthorization, error) {
	var verifier string
	var createdAt int64
	err := p.db.QueryRowContext(ctx, `
		DELETE FROM pending_authorizations
		WHERE state = ?
		RETURNING code_verifier, created_at`,
		state).Scan(&verifier, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrPendingNotFound
		}
		return nil, fmt.Errorf("failed to take pending authorization: %w", err)
	}

	entry := &auth.PendingAuthorization{
		State:        state,
		CodeVerifier: verifier,
		CreatedAt:    time.Unix(0, createdAt),
	}
	if entry.Expired(p.now(), p.ttl) {
		return nil, auth.ErrPendingExpired
	}
	return entry, nil
}

// Sweep deletes entries older than the TTL.
func (p *SQLitePendingStore) Sweep(ctx context.Context) (int, error) {
	cutoff := p.now().Add(-p.ttl).UnixNano()
	result, err := p.db.ExecContext(ctx, `DELETE FROM pending_authorizations WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep pending authorizations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count swept rows: %w", err)
	}
	return int(n), nil
}

// Len counts stored entries.
func (p *SQLitePendingStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_authorizations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending authorizations: %w", err)
	}
	return n, nil
}
