package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"oauthsample-go/internal/auth"
)

var _ auth.TokenHolder = (*SQLiteTokenHolder)(nil)

// SQLiteTokenHolder keeps the single token slot in SQLite, encrypted with
// AES-256-GCM.
type SQLiteTokenHolder struct {
	db     *sql.DB
	sealer *Sealer
}

// NewTokenHolder creates a TokenHolder backed by the token_slot table.
func NewTokenHolder(s *SQLiteStorage, key []byte) (*SQLiteTokenHolder, error) {
	sealer, err := NewSealer(key)
	if err != nil {
		return nil, err
	}
	return &SQLiteTokenHolder{db: s.db, sealer: sealer}, nil
}

// Store encrypts and replaces the stored token set.
func (h *SQLiteTokenHolder) Store(ctx context.Context, token *auth.TokenSet) error {
	if token == nil {
		return auth.ErrNoToken
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	ciphertext, nonce, err := h.sealer.Seal(payload)
	if err != nil {
		return err
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO token_slot (id, encrypted_token, nonce, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			encrypted_token = excluded.encrypted_token,
			nonce = excluded.nonce,
			updated_at = excluded.updated_at`,
		ciphertext, nonce, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Current decrypts and returns the stored token set.
func (h *SQLiteTokenHolder) Current(ctx context.Context) (*auth.TokenSet, error) {
	var ciphertext, nonce []byte
	err := h.db.QueryRowContext(ctx, `SELECT encrypted_token, nonce FROM token_slot WHERE id = 1`).Scan(&ciphertext, &nonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNoToken
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	payload, err := h.sealer.Open(ciphertext, nonce)
	if err != nil {
		return nil, err
	}

	var token auth.TokenSet
	if err := json.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// Clear removes the stored token set.
func (h *SQLiteTokenHolder) Clear(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, `DELETE FROM token_slot WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
