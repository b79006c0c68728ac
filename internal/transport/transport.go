// Package transport holds the HTTP client shared by the token exchange, the
// resource client and the registry admin client.
package transport

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"
)

// ErrConnectionRefused is returned when the backend cannot be reached at all.
var ErrConnectionRefused = errors.New("connection refused")

// DefaultTimeout bounds every outbound request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// NewClient returns an http.Client whose requests are bounded by timeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// IsConnectionRefused reports whether err was caused by the remote end
// refusing the TCP connection.
func IsConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrConnectionRefused) || errors.Is(err, syscall.ECONNREFUSED)
}

// Classify wraps connection-refused failures with ErrConnectionRefused so
// callers can branch on a single sentinel. Other errors are returned as is.
func Classify(err error, target string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %s: %v", ErrConnectionRefused, target, err)
	}
	return err
}
