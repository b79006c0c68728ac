package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"oauthsample-go/internal/auth"
	"oauthsample-go/internal/resource"
	"oauthsample-go/internal/transport"
)

// routes builds the router.
func (a *Application) routes() chi.Router {
	r := chi.NewRouter()

	if len(a.Config.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   a.Config.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", requestIDHeader},
			ExposedHeaders:   []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(requestID)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.handleHealthz)

	// Authentication
	r.Get("/", a.handleHome)
	r.Get("/login", a.handleLogin)
	r.Get("/callback", a.handleCallback)
	r.Get("/logout", a.handleLogout)
	r.Post("/logout", a.handleLogout)
	r.Post("/refresh", a.handleRefresh)

	// Protected resources
	r.Group(func(r chi.Router) {
		r.Use(a.requireToken)
		r.Get("/org", a.relay(a.Resources.Org))
		r.Get("/userinfo", a.relay(a.Resources.UserInfo))
	})

	return r
}

//
// Authentication Handlers
//

type homePage struct {
	Title      string
	BackendURL string
	Token      *auth.TokenSet
	Expired    bool
}

// handleHome shows whether a token is stored and what it looks like.
func (a *Application) handleHome(w http.ResponseWriter, r *http.Request) {
	page := homePage{Title: "OAuth 2.0 sample client", BackendURL: a.Config.BackendURL}

	token, err := a.Auth.CurrentToken(r.Context())
	switch {
	case err == nil:
		page.Token = token
		page.Expired = token.Expired(time.Now())
	case errors.Is(err, auth.ErrNoToken):
	default:
		a.Logger.Error("failed to read token", zap.String("request_id", getRequestID(r)), zap.Error(err))
		a.renderError(w, r, http.StatusInternalServerError, "Could not read the stored token.", "")
		return
	}

	a.render(w, r, http.StatusOK, "home", page)
}

// handleLogin starts the authorization code flow by redirecting the browser
// to the authorization endpoint.
func (a *Application) handleLogin(w http.ResponseWriter, r *http.Request) {
	authURL, _, err := a.Auth.BeginLogin(r.Context())
	if err != nil {
		a.Logger.Error("failed to begin login", zap.String("request_id", getRequestID(r)), zap.Error(err))
		a.renderError(w, r, http.StatusInternalServerError, "Could not start the login.", "")
		return
	}
	a.updatePendingGauge(r.Context())

	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback handles the redirect back from the authorization server.
func (a *Application) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := auth.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}

	_, err := a.Auth.HandleCallback(r.Context(), params)
	a.updatePendingGauge(r.Context())
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout clears the stored token set.
func (a *Application) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Auth.Logout(r.Context()); err != nil {
		a.Logger.Error("failed to log out", zap.String("request_id", getRequestID(r)), zap.Error(err))
		a.renderError(w, r, http.StatusInternalServerError, "Could not clear the stored token.", "")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleRefresh runs the refresh_token grant on request.
func (a *Application) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if _, err := a.Auth.Refresh(r.Context()); err != nil {
		switch {
		case errors.Is(err, auth.ErrNoToken):
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		case errors.Is(err, auth.ErrNoRefreshToken):
			a.renderError(w, r, http.StatusBadRequest, "The authorization server did not issue a refresh token.", "Log in again to obtain a new access token.")
		default:
			a.writeAuthError(w, r, err)
		}
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// writeAuthError maps a flow failure onto a status code and an error page.
func (a *Application) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	status, message, hint := a.describeError(err)
	fields := []zap.Field{
		zap.String("request_id", getRequestID(r)),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		a.Logger.Error("authorization flow failed", fields...)
	} else {
		a.Logger.Warn("authorization flow rejected", fields...)
	}
	a.renderError(w, r, status, message, hint)
}

func (a *Application) describeError(err error) (status int, message, hint string) {
	message = "Authentication failed."
	var flowErr *auth.FlowError
	if errors.As(err, &flowErr) {
		message = flowErr.Message()
	}

	switch {
	case errors.Is(err, transport.ErrConnectionRefused):
		return http.StatusBadGateway, "Could not reach the authorization server.",
			fmt.Sprintf("Is the backend running at %s?", a.Config.BackendURL)
	case errors.Is(err, auth.ErrInvalidState):
		return http.StatusBadRequest, "Invalid or expired state parameter.", "Start the login again."
	case errors.Is(err, auth.ErrMissingCode):
		return http.StatusBadRequest, message, "The callback did not include an authorization code."
	case errors.Is(err, auth.ErrAuthorizationDenied):
		return http.StatusForbidden, message, ""
	case errors.Is(err, auth.ErrTokenExchangeFailed):
		return http.StatusBadGateway, message, ""
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The authorization server did not answer in time.", ""
	default:
		return http.StatusInternalServerError, message, ""
	}
}

//
// Resource Handlers
//

type fetchFunc func(ctx context.Context, accessToken string) (*resource.Response, error)

// relay forwards a protected resource response verbatim.
func (a *Application) relay(fetch fetchFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := getTokenFromContext(r)
		if !ok {
			// This should not happen if the middleware is applied correctly.
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		resp, err := fetch(r.Context(), token.AccessToken)
		if err != nil {
			status, message, hint := a.describeError(err)
			if status == http.StatusInternalServerError {
				status, message = http.StatusBadGateway, "The resource request failed."
			}
			a.Logger.Error("resource request failed", zap.String("request_id", getRequestID(r)), zap.Error(err))
			a.renderError(w, r, status, message, hint)
			return
		}

		if resp.ContentType != "" {
			w.Header().Set("Content-Type", resp.ContentType)
		}
		w.WriteHeader(resp.Status)
		w.Write(resp.Body)
	}
}

func (a *Application) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
