package storage

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "add_sync_runs_table",
		Up:      migration001AddSyncRunsTable,
	},
	{
		Version: 2,
		Name:    "add_donor_outcomes_table",
		Up:      migration002AddDonorOutcomesTable,
	},
}

// runMigrations executes all pending migrations
func (s *Storage) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		log.Printf("Running migration %d: %s", migration.Version, migration.Name)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		_, err = tx.Exec(`
			INSERT INTO schema_migrations (version, name) VALUES (?, ?)
		`, migration.Version, migration.Name)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table
func (s *Storage) ensureMigrationsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	_, err := s.db.Exec(query)
	return err
}

// getAppliedMigrations returns a set of applied migration versions
func (s *Storage) getAppliedMigrations() (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// migration001AddSyncRunsTable creates the sync_runs table
func migration001AddSyncRunsTable(db *sql.Tx) error {
	queries := []string{
		`CREATE TABLE sync_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP,
			records_parsed INTEGER DEFAULT 0,
			dry_run BOOLEAN DEFAULT 0,
			customers_found INTEGER DEFAULT 0,
			customers_created INTEGER DEFAULT 0,
			mandates_found INTEGER DEFAULT 0,
			mandates_created INTEGER DEFAULT 0,
			subscriptions_found INTEGER DEFAULT 0,
			subscriptions_created INTEGER DEFAULT 0,
			failed INTEGER DEFAULT 0,
			status TEXT DEFAULT 'running',
			error_message TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started
		 ON sync_runs(started_at DESC)`,

		`CREATE INDEX IF NOT EXISTS idx_sync_runs_status
		 ON sync_runs(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// migration002AddDonorOutcomesTable creates the donor_outcomes table
func migration002AddDonorOutcomesTable(db *sql.Tx) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS donor_outcomes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			display_name TEXT NOT NULL,
			email TEXT,
			customer_id TEXT,
			mandate_id TEXT,
			subscription_id TEXT,
			status TEXT NOT NULL,
			error_message TEXT,
			dry_run BOOLEAN DEFAULT 0,
			FOREIGN KEY (run_id) REFERENCES sync_runs(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_donor_outcomes_run_id
		 ON donor_outcomes(run_id)`,

		`CREATE INDEX IF NOT EXISTS idx_donor_outcomes_email
		 ON donor_outcomes(email)`,

		`CREATE INDEX IF NOT EXISTS idx_donor_outcomes_status
		 ON donor_outcomes(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}
