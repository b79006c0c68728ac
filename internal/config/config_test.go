package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"CLIENT_ID", "CLIENT_SECRET", "BACKEND_URL", "PORT", "PUBLIC_URL",
	"OAUTH_SCOPES", "ADMIN_JWT_TOKEN", "METRICS_PORT", "LOG_LEVEL", "APP_ENV",
	"HTTP_TIMEOUT", "PENDING_TTL", "SWEEP_INTERVAL", "STORE_BACKEND", "DB_PATH",
	"ENCRYPTION_KEY", "CORS_ALLOWED_ORIGINS",
}

// clearEnv blanks every variable the loader reads and moves into an empty
// directory so no stray .env is picked up.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
	}
	t.Chdir(t.TempDir())
}

func TestConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLIENT_ID", "id")
	t.Setenv("CLIENT_SECRET", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000", cfg.BackendURL)
	assert.Equal(t, 8888, cfg.Port)
	assert.Equal(t, "http://localhost:8888", cfg.PublicURL)
	assert.Equal(t, "http://localhost:8888/callback", cfg.RedirectURL())
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.ScopeList())
	assert.Equal(t, 9090, cfg.MetricsPort)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout.Duration)
	assert.Equal(t, 10*time.Minute, cfg.PendingTTL.Duration)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
}

func TestConfig_MissingClientCredentials(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	require.ErrorIs(t, err, ErrMissingConfiguration)
	assert.Contains(t, err.Error(), "CLIENT_ID")
	assert.Contains(t, err.Error(), "CLIENT_SECRET")

	t.Setenv("CLIENT_ID", "id")
	_, err = Load("")
	require.ErrorIs(t, err, ErrMissingConfiguration)
	assert.NotContains(t, err.Error(), "CLIENT_ID")

	// The operator CLI does not need client credentials.
	cfg, err := LoadAdmin("")
	require.NoError(t, err)
	assert.Equal(t, "id", cfg.ClientID)
}

func TestConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLIENT_ID", "id")
	t.Setenv("CLIENT_SECRET", "secret")
	t.Setenv("BACKEND_URL", "http://auth.internal:4000/")
	t.Setenv("PORT", "9999")
	t.Setenv("OAUTH_SCOPES", "openid org:read")
	t.Setenv("HTTP_TIMEOUT", "3s")
	t.Setenv("PENDING_TTL", "5m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173, http://admin.local ,")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://auth.internal:4000", cfg.BackendURL)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "http://localhost:9999/callback", cfg.RedirectURL())
	assert.Equal(t, []string{"openid", "org:read"}, cfg.ScopeList())
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout.Duration)
	assert.Equal(t, 5*time.Minute, cfg.PendingTTL.Duration)
	assert.Equal(t, []string{"http://localhost:5173", "http://admin.local"}, cfg.CORSAllowedOrigins)
}

func TestConfig_InvalidEnvValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non numeric port", "PORT", "abc"},
		{"bad duration", "HTTP_TIMEOUT", "soon"},
		{"timeout below minimum", "HTTP_TIMEOUT", "100ms"},
		{"ttl below minimum", "PENDING_TTL", "30s"},
		{"unknown log level", "LOG_LEVEL", "verbose"},
		{"unknown backend", "STORE_BACKEND", "redis"},
		{"backend url not a url", "BACKEND_URL", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("CLIENT_ID", "id")
			t.Setenv("CLIENT_SECRET", "secret")
			t.Setenv(tt.key, tt.value)

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestConfig_SQLiteRequiresKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLIENT_ID", "id")
	t.Setenv("CLIENT_SECRET", "secret")
	t.Setenv("STORE_BACKEND", "sqlite")

	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("ENCRYPTION_KEY", "too-short")
	_, err = Load("")
	assert.Error(t, err)

	t.Setenv("ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, "oauthsample.db", cfg.DBPath)
}

func TestConfig_LoadFromFile(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	configJSON := `{
		"client_id": "file-id",
		"client_secret": "file-secret",
		"backend_url": "http://backend:3000",
		"public_url": "https://sample.example.com",
		"http_timeout": "2s",
		"sweep_interval": "30s",
		"cors_allowed_origins": ["http://localhost:5173"]
	}`
	require.NoError(t, os.WriteFile(configPath, []byte(configJSON), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "file-id", cfg.ClientID)
	assert.Equal(t, "http://backend:3000", cfg.BackendURL)
	assert.Equal(t, "https://sample.example.com/callback", cfg.RedirectURL())
	assert.Equal(t, 2*time.Second, cfg.HTTPTimeout.Duration)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval.Duration)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSAllowedOrigins)

	// Environment wins over the file.
	t.Setenv("CLIENT_ID", "env-id")
	cfg, err = Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "env-id", cfg.ClientID)

	_, err = Load(filepath.Join(tmpDir, "missing.json"))
	assert.Error(t, err)

	invalidPath := filepath.Join(tmpDir, "invalid.json")
	require.NoError(t, os.WriteFile(invalidPath, []byte("{invalid json}"), 0644))
	_, err = Load(invalidPath)
	assert.Error(t, err)
}

func TestConfig_DotEnv(t *testing.T) {
	clearEnv(t)
	for _, name := range []string{"CLIENT_ID", "CLIENT_SECRET"} {
		// godotenv only fills variables that are unset.
		require.NoError(t, os.Unsetenv(name))
	}
	require.NoError(t, os.WriteFile(".env", []byte("CLIENT_ID=dotenv-id\nCLIENT_SECRET=dotenv-secret\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("CLIENT_ID")
		os.Unsetenv("CLIENT_SECRET")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv-id", cfg.ClientID)
	assert.Equal(t, "dotenv-secret", cfg.ClientSecret)
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Duration)

	require.NoError(t, d.UnmarshalJSON([]byte(`1000000000`)))
	assert.Equal(t, time.Second, d.Duration)

	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))

	out, err := Duration{time.Minute}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m0s"`, string(out))
}
