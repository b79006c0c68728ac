package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// TokenSet is the token response kept in the TokenHolder.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	Scope        string    `json:"scope"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Expired reports whether the token has a known expiry that has passed.
func (t *TokenSet) Expired(now time.Time) bool {
	return !t.Expiry.IsZero() && !now.Before(t.Expiry)
}

// newTokenSet converts a token endpoint response obtained at now.
func newTokenSet(tok *oauth2.Token, now time.Time) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    extraInt64(tok.Extra("expires_in")),
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		ts.Scope = scope
	}
	if ts.ExpiresIn > 0 {
		ts.Expiry = now.Add(time.Duration(ts.ExpiresIn) * time.Second)
	}
	return ts
}

// extraInt64 reads a numeric extra field that may have been decoded from
// JSON (float64, json.Number) or from a form body (string).
func extraInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

// CurrentToken returns the stored token set.
func (m *OAuthManager) CurrentToken(ctx context.Context) (*TokenSet, error) {
	return m.tokens.Current(ctx)
}

// Logout clears the stored token set. It is safe to call repeatedly.
func (m *OAuthManager) Logout(ctx context.Context) error {
	if err := m.tokens.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	m.logger.Info("token cleared")
	return nil
}

// Refresh runs the refresh_token grant for the stored token set and replaces
// it with the result. The previous refresh token is kept when the server does
// not rotate it.
func (m *OAuthManager) Refresh(ctx context.Context) (*TokenSet, error) {
	current, err := m.tokens.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	if current.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	// An expiry in the past forces the token source to hit the token endpoint.
	stale := &oauth2.Token{
		AccessToken:  current.AccessToken,
		TokenType:    current.TokenType,
		RefreshToken: current.RefreshToken,
		Expiry:       m.now().Add(-time.Minute),
	}
	tok, err := m.config.TokenSource(m.clientContext(ctx), stale).Token()
	if err != nil {
		return nil, exchangeError(StageStateValidated, err)
	}

	refreshed := newTokenSet(tok, m.now())
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = current.RefreshToken
	}
	if refreshed.Scope == "" {
		refreshed.Scope = current.Scope
	}
	if err := m.tokens.Store(ctx, refreshed); err != nil {
		return nil, fmt.Errorf("failed to store refreshed token: %w", err)
	}

	m.logger.Info("token refreshed", zap.Int64("expires_in", refreshed.ExpiresIn))
	return refreshed, nil
}

// HasToken reports whether a token set is stored.
func (m *OAuthManager) HasToken(ctx context.Context) (bool, error) {
	_, err := m.tokens.Current(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNoToken):
		return false, nil
	default:
		return false, err
	}
}
