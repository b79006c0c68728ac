package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"oauthsample-go/internal/config"
)

// stubBackend plays the authorization server and the resource server.
type stubBackend struct {
	*httptest.Server

	mu          sync.Mutex
	tokenForms  []url.Values
	authHeaders []string
	tokenStatus int
	tokenBody   string
}

func newStubBackend(t *testing.T) *stubBackend {
	t.Helper()
	b := &stubBackend{
		tokenStatus: http.StatusOK,
		tokenBody:   `{"access_token":"abc","token_type":"Bearer","expires_in":3600,"scope":"openid profile email","refresh_token":"refresh-1"}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.tokenForms = append(b.tokenForms, r.PostForm)
		status, body := b.tokenStatus, b.tokenBody
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
	mux.HandleFunc("GET /api/v1/org", func(w http.ResponseWriter, r *http.Request) {
		b.recordAuth(r)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "org-1", "name": "Acme"})
	})
	mux.HandleFunc("GET /api/v1/oauth2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		b.recordAuth(r)
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer abc" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_token"}`))
			return
		}
		w.Write([]byte(`{"sub":"user-1","email":"ada@example.com"}`))
	})

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func (b *stubBackend) recordAuth(r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
}

func (b *stubBackend) setTokenResponse(status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokenStatus, b.tokenBody = status, body
}

func (b *stubBackend) forms() []url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]url.Values(nil), b.tokenForms...)
}

func (b *stubBackend) resourceAuth() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authHeaders...)
}

func testConfig(backendURL string) *config.Config {
	cfg := config.Default()
	cfg.ClientID = "sample-client"
	cfg.ClientSecret = "sample-secret"
	cfg.BackendURL = backendURL
	cfg.PublicURL = "http://localhost:8888"
	cfg.MetricsPort = 0
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	app, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		app.Scheduler.Stop()
		if app.Storage != nil {
			app.Storage.Close()
		}
	})
	return app
}
