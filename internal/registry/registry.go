// Package registry is a client for the backend's OAuth client registry
// admin API, used by operator tooling to inspect and clean up registered
// clients.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"oauthsample-go/internal/metrics"
	"oauthsample-go/internal/transport"
)

const clientsPath = "/api/v1/oauth-clients"

var (
	ErrAdminOperationFailed = errors.New("admin operation failed")
	ErrAdminTokenMissing    = errors.New("admin token is not configured")
	ErrAdminTokenExpired    = errors.New("admin token has expired")
)

// AdminError carries the raw upstream response of a failed admin call.
type AdminError struct {
	Op     string
	Status int
	Body   string
}

func (e *AdminError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *AdminError) Unwrap() error {
	return ErrAdminOperationFailed
}

// OAuthClient is a registered OAuth client as reported by the registry.
type OAuthClient struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ClientID     string   `json:"client_id"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
}

// AdminClient calls the registry admin endpoints with an admin bearer token.
type AdminClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewAdminClient creates an AdminClient for baseURL authenticating with token.
func NewAdminClient(baseURL, token string, httpClient *http.Client, logger *zap.Logger) *AdminClient {
	if httpClient == nil {
		httpClient = transport.NewClient(transport.DefaultTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		logger:     logger.Named("registry"),
		now:        time.Now,
	}
}

// CheckToken fails fast on a missing token or one whose exp claim has
// passed. The signature is not verified; the backend does that.
func (c *AdminClient) CheckToken() error {
	if c.token == "" {
		return ErrAdminTokenMissing
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		// Opaque tokens are passed through untouched.
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if !c.now().Before(exp.Time) {
		return fmt.Errorf("%w: expired at %s", ErrAdminTokenExpired, exp.Time.UTC().Format(time.RFC3339))
	}
	return nil
}

// ListClients returns every registered client.
func (c *AdminClient) ListClients(ctx context.Context) ([]OAuthClient, error) {
	body, err := c.do(ctx, "list", http.MethodGet, clientsPath, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return decodeClients(body)
}

// GetClient returns one registered client.
func (c *AdminClient) GetClient(ctx context.Context, id string) (*OAuthClient, error) {
	body, err := c.do(ctx, "get", http.MethodGet, clientsPath+"/"+url.PathEscape(id), http.StatusOK)
	if err != nil {
		return nil, err
	}

	var client OAuthClient
	if err := decodeEnveloped(body, &client); err != nil {
		return nil, fmt.Errorf("decoding client: %w", err)
	}
	return &client, nil
}

// DeleteClient removes a registered client.
func (c *AdminClient) DeleteClient(ctx context.Context, id string) error {
	_, err := c.do(ctx, "delete", http.MethodDelete, clientsPath+"/"+url.PathEscape(id), http.StatusOK, http.StatusNoContent)
	return err
}

// do performs an admin request and returns the body when the status is one
// of ok.
func (c *AdminClient) do(ctx context.Context, op, method, path string, ok ...int) ([]byte, error) {
	if err := c.CheckToken(); err != nil {
		metrics.AdminOperations.WithLabelValues(op, "rejected").Inc()
		return nil, err
	}

	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.AdminOperations.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%s clients: %w", op, transport.Classify(err, target))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", op, err)
	}

	for _, code := range ok {
		if resp.StatusCode == code {
			metrics.AdminOperations.WithLabelValues(op, "success").Inc()
			return body, nil
		}
	}

	metrics.AdminOperations.WithLabelValues(op, "failure").Inc()
	c.logger.Warn("admin operation failed",
		zap.String("op", op),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))
	return nil, &AdminError{Op: op, Status: resp.StatusCode, Body: string(body)}
}

// decodeClients accepts a bare array or a {"data": [...]} envelope.
func decodeClients(body []byte) ([]OAuthClient, error) {
	var clients []OAuthClient
	if err := decodeEnveloped(body, &clients); err != nil {
		return nil, fmt.Errorf("decoding clients: %w", err)
	}
	return clients, nil
}

func decodeEnveloped(body []byte, v any) error {
	trimmed := bytes.TrimSpace(body)
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &envelope); err == nil && len(envelope.Data) > 0 {
			trimmed = envelope.Data
		}
	}
	return json.Unmarshal(trimmed, v)
}

// FilterByNamePrefix returns the clients whose name starts with prefix.
func FilterByNamePrefix(clients []OAuthClient, prefix string) []OAuthClient {
	var out []OAuthClient
	for _, client := range clients {
		if strings.HasPrefix(client.Name, prefix) {
			out = append(out, client)
		}
	}
	return out
}
