package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "test.db")

	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "default", modify: func(c *Config) {}},
		{name: "empty path", modify: func(c *Config) { c.Path = "" }, wantErr: true},
		{name: "zero open conns", modify: func(c *Config) { c.MaxOpenConns = 0 }, wantErr: true},
		{name: "idle above open", modify: func(c *Config) { c.MaxIdleConns = c.MaxOpenConns + 1 }, wantErr: true},
		{name: "zero lifetime", modify: func(c *Config) { c.ConnMaxLifetime = 0 }, wantErr: true},
		{name: "negative busy timeout", modify: func(c *Config) { c.BusyTimeout = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMigrate(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()

	status, err := s.GetMigrationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status, len(migrations))
	for i, ms := range status {
		assert.Equal(t, migrations[i].Version, ms.Version)
		assert.False(t, ms.AppliedAt.IsZero())
	}

	// Running again is a no-op.
	require.NoError(t, s.Migrate(ctx))
	status, err = s.GetMigrationStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, status, len(migrations))
}

func TestOpenReusesExistingDatabase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "reuse.db")
	ctx := context.Background()

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	pending := NewPendingStore(s, time.Minute)
	require.NoError(t, pending.Put(ctx, "state-1", "verifier-1"))
	require.NoError(t, s.Close())

	s, err = Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	entry, err := NewPendingStore(s, time.Minute).TakeIfPresent(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, "verifier-1", entry.CodeVerifier)
}
