package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"moverscan/pkg/logger"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Migrations holds all database migrations. Each trading window gets its own
// store with one row per (symbol, source); volume stays TEXT so compact K/M
// values survive round trips unchanged.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "Create window stores",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS premarket_stocks (
				id BIGSERIAL PRIMARY KEY,
				symbol VARCHAR(12) NOT NULL,
				name VARCHAR(200) NOT NULL,
				price DECIMAL(20,8) NOT NULL CHECK (price > 0),
				change DECIMAL(20,8) NOT NULL DEFAULT 0,
				change_percent DECIMAL(12,4) NOT NULL DEFAULT 0,
				volume TEXT NOT NULL DEFAULT '0',
				source VARCHAR(50) NOT NULL,
				category VARCHAR(10) NOT NULL DEFAULT 'neutral',
				last_updated TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				UNIQUE (symbol, source)
			);

			CREATE TABLE IF NOT EXISTS current_stocks (
				LIKE premarket_stocks INCLUDING ALL
			);

			CREATE TABLE IF NOT EXISTS aftermarket_stocks (
				LIKE premarket_stocks INCLUDING ALL
			);

			CREATE INDEX IF NOT EXISTS idx_premarket_last_updated ON premarket_stocks(last_updated DESC);
			CREATE INDEX IF NOT EXISTS idx_premarket_change_percent ON premarket_stocks(change_percent);
			CREATE INDEX IF NOT EXISTS idx_current_last_updated ON current_stocks(last_updated DESC);
			CREATE INDEX IF NOT EXISTS idx_current_change_percent ON current_stocks(change_percent);
			CREATE INDEX IF NOT EXISTS idx_aftermarket_last_updated ON aftermarket_stocks(last_updated DESC);
			CREATE INDEX IF NOT EXISTS idx_aftermarket_change_percent ON aftermarket_stocks(change_percent);
		`,
		DownSQL: `
			DROP TABLE IF EXISTS aftermarket_stocks;
			DROP TABLE IF EXISTS current_stocks;
			DROP TABLE IF EXISTS premarket_stocks;
		`,
	},
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int       `json:"version"`
	Applied     bool      `json:"applied"`
	AppliedAt   time.Time `json:"applied_at,omitempty"`
	Description string    `json:"description"`
}

// RunMigrations runs all pending database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	logger.Log.Info("starting database migrations")

	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range Migrations {
		if applied[migration.Version] {
			logger.Log.Debug("migration already applied", zap.Int("version", migration.Version))
			continue
		}

		logger.Log.Info("applying migration",
			zap.Int("version", migration.Version),
			zap.String("description", migration.Description))

		if err := db.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}

		logger.Log.Info("migration applied successfully", zap.Int("version", migration.Version))
	}

	logger.Log.Info("database migrations completed")
	return nil
}

// createMigrationsTable creates the migrations tracking table
func (db *DB) createMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`
	_, err := db.ExecContext(ctx, query)
	return err
}

// getAppliedMigrations returns a map of applied migration versions
func (db *DB) getAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	query := `SELECT version FROM migrations ORDER BY version`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// applyMigration applies a single migration inside one transaction
func (db *DB) applyMigration(ctx context.Context, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	query := `INSERT INTO migrations (version, description) VALUES ($1, $2)`
	if _, err := tx.ExecContext(ctx, query, migration.Version, migration.Description); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// GetMigrationStatus returns the status of all migrations
func (db *DB) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := db.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	var status []MigrationStatus
	for _, migration := range Migrations {
		ms := MigrationStatus{
			Version:     migration.Version,
			Applied:     applied[migration.Version],
			Description: migration.Description,
		}

		if ms.Applied {
			query := `SELECT applied_at FROM migrations WHERE version = $1`
			var appliedAt time.Time
			if err := db.QueryRowContext(ctx, query, migration.Version).Scan(&appliedAt); err == nil {
				ms.AppliedAt = appliedAt
			}
		}

		status = append(status, ms)
	}

	return status, nil
}
