package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"oauthsample-go/internal/auth"
	"oauthsample-go/internal/metrics"
)

// contextKey is a custom type to use as a key for context values.
type contextKey string

const (
	requestIDContextKey = contextKey("requestID")
	tokenContextKey     = contextKey("token")
)

const requestIDHeader = "X-Request-ID"

// requestID tags every request with an id, reusing a well-formed incoming one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getRequestID retrieves the request id from the request's context.
func getRequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDContextKey).(string)
	return id
}

// accessLog logs each request and counts it by route pattern.
func (a *Application) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()

		a.Logger.Info("request",
			zap.String("request_id", getRequestID(r)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}

// requireToken is a middleware that ensures a token set is stored.
// Without one, it redirects to the login page.
func (a *Application) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := a.Auth.CurrentToken(r.Context())
		if err != nil {
			if !errors.Is(err, auth.ErrNoToken) {
				a.Logger.Error("failed to read token",
					zap.String("request_id", getRequestID(r)),
					zap.Error(err))
				a.renderError(w, r, http.StatusInternalServerError, "Could not read the stored token.", "")
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getTokenFromContext retrieves the token set placed by requireToken.
func getTokenFromContext(r *http.Request) (*auth.TokenSet, bool) {
	token, ok := r.Context().Value(tokenContextKey).(*auth.TokenSet)
	return token, ok
}
