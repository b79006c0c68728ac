package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorizationDenied is returned when the authorization server
	// redirected back with an error parameter.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrInvalidState is returned when the callback state is missing, unknown
	// or already used. It is treated as a possible forgery.
	ErrInvalidState = errors.New("invalid state parameter")
	// ErrMissingCode is returned when a callback carries a valid state but no
	// authorization code.
	ErrMissingCode = errors.New("authorization code missing")
	// ErrTokenExchangeFailed is returned when the token endpoint rejected the
	// exchange or answered with an error body.
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	// ErrNoToken is returned by a TokenHolder with an empty slot.
	ErrNoToken = errors.New("no token stored")
	// ErrNoRefreshToken is returned when a refresh is requested but the stored
	// token set has no refresh token.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrPendingNotFound is returned by PendingStore.TakeIfPresent for an
	// unknown state.
	ErrPendingNotFound = errors.New("pending authorization not found")
	// ErrPendingExpired is returned by PendingStore.TakeIfPresent when the
	// entry existed but outlived its TTL. The entry is removed either way.
	ErrPendingExpired = errors.New("pending authorization expired")
)

// Stage is a step of the callback state machine.
type Stage string

const (
	StageAwaitingCallback Stage = "awaiting_callback"
	StageStateValidated   Stage = "state_validated"
	StageCodeExchanged    Stage = "code_exchanged"
	StageTokensStored     Stage = "tokens_stored"
)

// FlowError describes a rejected callback. Kind is one of the package
// sentinels (or transport.ErrConnectionRefused) and is exposed through Unwrap.
type FlowError struct {
	Stage       Stage
	Kind        error
	Code        string
	Description string
	Status      int
	Err         error
}

func (e *FlowError) Error() string {
	msg := fmt.Sprintf("oauth callback rejected at %s: %v", e.Stage, e.Kind)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause.
func (e *FlowError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message is the text shown to the user: the server-provided description
// when there is one, otherwise the error code, otherwise the kind.
func (e *FlowError) Message() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Code != "":
		return e.Code
	default:
		return e.Kind.Error()
	}
}
