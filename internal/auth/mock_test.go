package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

// stubAuthServer is a token endpoint double. It records every form it
// receives and answers with the configured status and body.
type stubAuthServer struct {
	*httptest.Server

	mu     sync.Mutex
	forms  []map[string]string
	calls  atomic.Int32
	status int
	body   any
	// respond, when set, replaces status/body handling.
	respond func(w http.ResponseWriter, r *http.Request)
}

func newStubAuthServer(t *testing.T) *stubAuthServer {
	t.Helper()
	s := &stubAuthServer{
		status: http.StatusOK,
		body: map[string]any{
			"access_token": "abc",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "openid",
		},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *stubAuthServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != tokenPath || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	s.calls.Add(1)
	_ = r.ParseForm()
	form := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	s.mu.Lock()
	s.forms = append(s.forms, form)
	s.mu.Unlock()

	if s.respond != nil {
		s.respond(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(s.status)
	_ = json.NewEncoder(w).Encode(s.body)
}

func (s *stubAuthServer) lastForm() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.forms) == 0 {
		return nil
	}
	return s.forms[len(s.forms)-1]
}

func newTestManager(t *testing.T, backendURL string) (*OAuthManager, *InMemoryPendingStore, *InMemoryTokenHolder) {
	t.Helper()
	pending := NewInMemoryPendingStore(DefaultPendingTTL)
	tokens := NewInMemoryTokenHolder()
	manager := NewOAuthManager(Settings{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		BackendURL:   backendURL,
		RedirectURL:  "http://localhost:8888/callback",
		Scopes:       []string{"openid"},
	}, pending, tokens, nil, zap.NewNop())
	return manager, pending, tokens
}

// failingPendingStore simulates a broken backing store.
type failingPendingStore struct {
	err error
}

func (f *failingPendingStore) Put(ctx context.Context, state, codeVerifier string) error {
	return f.err
}

func (f *failingPendingStore) TakeIfPresent(ctx context.Context, state string) (*PendingAuthorization, error) {
	return nil, f.err
}

func (f *failingPendingStore) Sweep(ctx context.Context) (int, error) {
	return 0, f.err
}

func (f *failingPendingStore) Len(ctx context.Context) (int, error) {
	return 0, f.err
}
