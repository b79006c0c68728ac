// Package resource calls the backend's bearer-protected endpoints and hands
// the raw responses back to the caller.
package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"oauthsample-go/internal/metrics"
	"oauthsample-go/internal/transport"
)

const (
	OrgPath      = "/api/v1/org"
	UserInfoPath = "/api/v1/oauth2/userinfo"

	// maxBodySize caps how much of an upstream body is relayed.
	maxBodySize = 1 << 20
)

// ErrMissingToken is returned when a request is attempted without a token.
var ErrMissingToken = errors.New("access token is required")

// Response is an upstream response, uninterpreted.
type Response struct {
	Status      int
	Body        []byte
	ContentType string
}

// Client performs authenticated requests against the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = transport.NewClient(transport.DefaultTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.Named("resource"),
	}
}

// Request sends method path with the access token as a bearer credential.
// Any HTTP status is returned as a Response; only transport failures are
// errors.
func (c *Client) Request(ctx context.Context, method, path, accessToken string) (*Response, error) {
	if accessToken == "" {
		return nil, ErrMissingToken
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ResourceRequests.WithLabelValues(path, "error").Inc()
		return nil, fmt.Errorf("requesting %s: %w", path, transport.Classify(err, url))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}

	metrics.ResourceRequests.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug("resource response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode))

	return &Response{
		Status:      resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// Org fetches the caller's organization.
func (c *Client) Org(ctx context.Context, accessToken string) (*Response, error) {
	return c.Request(ctx, http.MethodGet, OrgPath, accessToken)
}

// UserInfo fetches the OpenID Connect userinfo document.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*Response, error) {
	return c.Request(ctx, http.MethodGet, UserInfoPath, accessToken)
}
