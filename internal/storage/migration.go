package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version     int64
	Description string
	SQL         string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version:     1,
		Description: "Create pending authorizations",
		SQL: `
			CREATE TABLE IF NOT EXISTS pending_authorizations (
				state TEXT PRIMARY KEY,
				code_verifier TEXT NOT NULL,
				created_at INTEGER NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_pending_authorizations_created_at
				ON pending_authorizations(created_at);
		`,
	},
	{
		Version:     2,
		Description: "Create token slot",
		SQL: `
			CREATE TABLE IF NOT EXISTS token_slot (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				encrypted_token BLOB NOT NULL,
				nonce BLOB NOT NULL,
				updated_at INTEGER NOT NULL
			);
		`,
	},
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version   int64
	AppliedAt time.Time
}

// Migrate applies all pending database migrations, each in its own transaction.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) apply(ctx context.Context, m Migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var applied int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.Version).Scan(&applied)
	if err != nil {
		return fmt.Errorf("failed to read migration state: %w", err)
	}
	if applied > 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to apply: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
		return fmt.Errorf("failed to record: %w", err)
	}
	return tx.Commit()
}

// GetMigrationStatus returns the current migration status
func (s *SQLiteStorage) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, applied_at
		FROM schema_migrations
		ORDER BY version
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var status []MigrationStatus
	for rows.Next() {
		var ms MigrationStatus
		var appliedAt sql.NullTime
		if err := rows.Scan(&ms.Version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		ms.AppliedAt = appliedAt.Time
		status = append(status, ms)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate migrations: %w", err)
	}

	return status, nil
}
