// Package auth implements the OAuth 2.0 authorization code flow with PKCE
// against the registry backend: login redirect, callback validation, code
// exchange and the single-slot token holder.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"oauthsample-go/internal/metrics"
	"oauthsample-go/internal/transport"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	authorizePath = "/api/v1/oauth2/authorize"
	tokenPath     = "/api/v1/oauth2/token"
)

// Settings is the client registration used to talk to the backend.
type Settings struct {
	ClientID     string
	ClientSecret string
	BackendURL   string
	RedirectURL  string
	Scopes       []string
}

// CallbackParams are the query parameters of the redirect back from the
// authorization server.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// OAuthManager handles the OAuth2 authorization code flow with PKCE.
type OAuthManager struct {
	config     *oauth2.Config
	backendURL string
	pkce       *PKCEGenerator
	pending    PendingStore
	tokens     TokenHolder
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewOAuthManager creates a new OAuthManager instance.
func NewOAuthManager(settings Settings, pending PendingStore, tokens TokenHolder, httpClient *http.Client, logger *zap.Logger) *OAuthManager {
	base := strings.TrimRight(settings.BackendURL, "/")
	if httpClient == nil {
		httpClient = transport.NewClient(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthManager{
		config: &oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			RedirectURL:  settings.RedirectURL,
			Scopes:       settings.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + authorizePath,
				TokenURL:  base + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		backendURL: base,
		pkce:       NewPKCEGenerator(),
		pending:    pending,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger.Named("auth"),
		now:        time.Now,
	}
}

// BackendURL returns the authorization server base URL.
func (m *OAuthManager) BackendURL() string {
	return m.backendURL
}

// CheckEntropy makes sure the random source works before the server starts
// accepting logins.
func (m *OAuthManager) CheckEntropy() error {
	if _, err := m.pkce.GenerateCodeVerifier(); err != nil {
		return err
	}
	_, err := m.pkce.GenerateState()
	return err
}

// BuildAuthURL returns the authorization endpoint URL for state and an S256
// code challenge. It has no side effects.
func (m *OAuthManager) BuildAuthURL(state, codeChallenge string) string {
	return m.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// BeginLogin generates a verifier and state, records them as a pending
// authorization and returns the URL to redirect the user to.
func (m *OAuthManager) BeginLogin(ctx context.Context) (string, string, error) {
	verifier, err := m.pkce.GenerateCodeVerifier()
	if err != nil {
		return "", "", err
	}

	challenge, err := m.pkce.GenerateCodeChallenge(verifier)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate code challenge: %w", err)
	}

	state, err := m.pkce.GenerateState()
	if err != nil {
		return "", "", err
	}

	if err := m.pending.Put(ctx, state, verifier); err != nil {
		return "", "", fmt.Errorf("failed to store pending authorization: %w", err)
	}

	metrics.LoginsStarted.Inc()
	m.logger.Info("login started", zap.String("state", shortState(state)))
	return m.BuildAuthURL(state, challenge), state, nil
}

// HandleCallback validates the callback, exchanges the code for tokens and
// stores them. Rejections are returned as *FlowError.
func (m *OAuthManager) HandleCallback(ctx context.Context, params CallbackParams) (*TokenSet, error) {
	token, err := m.handleCallback(ctx, params)
	metrics.Callbacks.WithLabelValues(callbackOutcome(err)).Inc()
	if err != nil {
		m.logger.Warn("callback rejected",
			zap.String("state", shortState(params.State)),
			zap.Error(err))
		return nil, err
	}
	m.logger.Info("tokens stored",
		zap.String("state", shortState(params.State)),
		zap.String("scope", token.Scope),
		zap.Int64("expires_in", token.ExpiresIn))
	return token, nil
}

func (m *OAuthManager) handleCallback(ctx context.Context, params CallbackParams) (*TokenSet, error) {
	if params.Error != "" {
		// The state cannot be reused after a denial either.
		if params.State != "" {
			_, _ = m.pending.TakeIfPresent(ctx, params.State)
		}
		return nil, &FlowError{
			Stage:       StageAwaitingCallback,
			Kind:        ErrAuthorizationDenied,
			Code:        params.Error,
			Description: params.ErrorDescription,
		}
	}

	if params.State == "" {
		return nil, &FlowError{Stage: StageAwaitingCallback, Kind: ErrInvalidState, Description: "state parameter is missing"}
	}

	pending, err := m.pending.TakeIfPresent(ctx, params.State)
	if err != nil {
		if errors.Is(err, ErrPendingNotFound) || errors.Is(err, ErrPendingExpired) {
			return nil, &FlowError{Stage: StageAwaitingCallback, Kind: ErrInvalidState, Err: err}
		}
		return nil, fmt.Errorf("failed to look up pending authorization: %w", err)
	}

	if params.Code == "" {
		return nil, &FlowError{Stage: StageStateValidated, Kind: ErrMissingCode}
	}

	started := time.Now()
	tok, err := m.config.Exchange(m.clientContext(ctx), params.Code, oauth2.VerifierOption(pending.CodeVerifier))
	metrics.TokenRequestDuration.WithLabelValues("authorization_code").Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, exchangeError(StageStateValidated, err)
	}

	token := newTokenSet(tok, m.now())
	if err := m.tokens.Store(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// clientContext attaches the bounded HTTP client used by the oauth2 package.
func (m *OAuthManager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// exchangeError maps a failure from the token endpoint onto a FlowError.
func exchangeError(stage Stage, err error) error {
	var rErr *oauth2.RetrieveError
	switch {
	case errors.As(err, &rErr):
		fe := &FlowError{
			Stage:       stage,
			Kind:        ErrTokenExchangeFailed,
			Code:        rErr.ErrorCode,
			Description: rErr.ErrorDescription,
		}
		if rErr.Response != nil {
			fe.Status = rErr.Response.StatusCode
		}
		if fe.Code == "" && fe.Description == "" {
			fe.Description = strings.TrimSpace(string(rErr.Body))
		}
		return fe
	case transport.IsConnectionRefused(err):
		return &FlowError{Stage: stage, Kind: transport.ErrConnectionRefused, Err: err}
	default:
		return &FlowError{Stage: stage, Kind: ErrTokenExchangeFailed, Err: err}
	}
}

func callbackOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAuthorizationDenied):
		return "denied"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrMissingCode):
		return "missing_code"
	case errors.Is(err, transport.ErrConnectionRefused):
		return "connection_refused"
	case errors.Is(err, ErrTokenExchangeFailed):
		return "exchange_failed"
	default:
		return "error"
	}
}

// shortState keeps log lines correlatable without writing whole states.
func shortState(state string) string {
	if len(state) > 8 {
		return state[:8]
	}
	return state
}
