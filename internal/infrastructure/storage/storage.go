// Package storage keeps the reconciliation run history in SQLite.
//
// The pipeline itself is stateless between runs (remote state is re-derived
// every time); this history exists for the dashboard and for auditing which
// donors were created when.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides SQLite database access for run history.
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Run is one recorded reconciliation run.
type Run struct {
	ID            int64      `json:"id"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	RecordsParsed int        `json:"records_parsed"`
	DryRun        bool       `json:"dry_run"`
	Status        string     `json:"status"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	RunCounts
}

// RunCounts holds the per-stage counts of a completed run.
type RunCounts struct {
	CustomersFound       int `json:"customers_found"`
	CustomersCreated     int `json:"customers_created"`
	MandatesFound        int `json:"mandates_found"`
	MandatesCreated      int `json:"mandates_created"`
	SubscriptionsFound   int `json:"subscriptions_found"`
	SubscriptionsCreated int `json:"subscriptions_created"`
	Failed               int `json:"failed"`
}

// DonorOutcome is the per-donor result of one run.
type DonorOutcome struct {
	ID             int64  `json:"id"`
	RunID          int64  `json:"run_id"`
	DisplayName    string `json:"display_name"`
	Email          string `json:"email,omitempty"`
	CustomerID     string `json:"customer_id,omitempty"`
	MandateID      string `json:"mandate_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Status         string `json:"status"`
	ErrorMessage   string `json:"error_message,omitempty"`
	DryRun         bool   `json:"dry_run"`
}

// Stats aggregates the run history.
type Stats struct {
	TotalRuns            int `json:"total_runs"`
	CompletedRuns        int `json:"completed_runs"`
	FailedRuns           int `json:"failed_runs"`
	CustomersCreated     int `json:"customers_created"`
	MandatesCreated      int `json:"mandates_created"`
	SubscriptionsCreated int `json:"subscriptions_created"`
	DonorsReconciled     int `json:"donors_reconciled"`
}

// StartSyncRun records the start of a reconciliation run.
func (s *Storage) StartSyncRun(recordsParsed int, dryRun bool) (int64, error) {
	query := `
		INSERT INTO sync_runs (records_parsed, dry_run, status)
		VALUES (?, ?, 'running')
	`
	result, err := s.db.Exec(query, recordsParsed, dryRun)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CompleteSyncRun records the final counts of a run.
func (s *Storage) CompleteSyncRun(runID int64, counts RunCounts) error {
	query := `
		UPDATE sync_runs
		SET completed_at = CURRENT_TIMESTAMP,
		    customers_found = ?,
		    customers_created = ?,
		    mandates_found = ?,
		    mandates_created = ?,
		    subscriptions_found = ?,
		    subscriptions_created = ?,
		    failed = ?,
		    status = 'completed'
		WHERE id = ?
	`
	_, err := s.db.Exec(query,
		counts.CustomersFound,
		counts.CustomersCreated,
		counts.MandatesFound,
		counts.MandatesCreated,
		counts.SubscriptionsFound,
		counts.SubscriptionsCreated,
		counts.Failed,
		runID,
	)
	return err
}

// FailSyncRun marks a run as aborted with its cause.
func (s *Storage) FailSyncRun(runID int64, errorMessage string) error {
	query := `
		UPDATE sync_runs
		SET completed_at = CURRENT_TIMESTAMP,
		    status = 'failed',
		    error_message = ?
		WHERE id = ?
	`
	_, err := s.db.Exec(query, errorMessage, runID)
	return err
}

// SaveDonorOutcome records the per-donor result of a run.
func (s *Storage) SaveDonorOutcome(o *DonorOutcome) error {
	query := `
		INSERT INTO donor_outcomes
		(run_id, display_name, email, customer_id, mandate_id, subscription_id, status, error_message, dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		o.RunID,
		o.DisplayName,
		o.Email,
		o.CustomerID,
		o.MandateID,
		o.SubscriptionID,
		o.Status,
		o.ErrorMessage,
		o.DryRun,
	)
	return err
}

// GetRun retrieves one run by id.
func (s *Storage) GetRun(runID int64) (*Run, error) {
	query := `
		SELECT id, started_at, completed_at, records_parsed, dry_run,
		       customers_found, customers_created, mandates_found, mandates_created,
		       subscriptions_found, subscriptions_created, failed, status, error_message
		FROM sync_runs WHERE id = ?
	`
	run := &Run{}
	var completedAt sql.NullTime
	var errorMessage sql.NullString
	err := s.db.QueryRow(query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&completedAt,
		&run.RecordsParsed,
		&run.DryRun,
		&run.CustomersFound,
		&run.CustomersCreated,
		&run.MandatesFound,
		&run.MandatesCreated,
		&run.SubscriptionsFound,
		&run.SubscriptionsCreated,
		&run.Failed,
		&run.Status,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if errorMessage.Valid {
		run.ErrorMessage = errorMessage.String
	}
	return run, nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Storage) RecentRuns(limit int) ([]*Run, error) {
	query := `
		SELECT id, started_at, completed_at, records_parsed, dry_run,
		       customers_found, customers_created, mandates_found, mandates_created,
		       subscriptions_found, subscriptions_created, failed, status, error_message
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		var completedAt sql.NullTime
		var errorMessage sql.NullString
		if err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&completedAt,
			&run.RecordsParsed,
			&run.DryRun,
			&run.CustomersFound,
			&run.CustomersCreated,
			&run.MandatesFound,
			&run.MandatesCreated,
			&run.SubscriptionsFound,
			&run.SubscriptionsCreated,
			&run.Failed,
			&run.Status,
			&errorMessage,
		); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		if errorMessage.Valid {
			run.ErrorMessage = errorMessage.String
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// DonorOutcomesByRun returns all donor outcomes of one run.
func (s *Storage) DonorOutcomesByRun(runID int64) ([]*DonorOutcome, error) {
	query := `
		SELECT id, run_id, display_name, email, customer_id, mandate_id,
		       subscription_id, status, error_message, dry_run
		FROM donor_outcomes
		WHERE run_id = ?
		ORDER BY id
	`
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var outcomes []*DonorOutcome
	for rows.Next() {
		o := &DonorOutcome{}
		var email, customerID, mandateID, subscriptionID, errorMessage sql.NullString
		if err := rows.Scan(
			&o.ID,
			&o.RunID,
			&o.DisplayName,
			&email,
			&customerID,
			&mandateID,
			&subscriptionID,
			&o.Status,
			&errorMessage,
			&o.DryRun,
		); err != nil {
			return nil, err
		}
		o.Email = email.String
		o.CustomerID = customerID.String
		o.MandateID = mandateID.String
		o.SubscriptionID = subscriptionID.String
		o.ErrorMessage = errorMessage.String
		outcomes = append(outcomes, o)
	}

	return outcomes, rows.Err()
}

// GetStats aggregates the full run history.
func (s *Storage) GetStats() (*Stats, error) {
	stats := &Stats{}

	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(customers_created), 0),
		       COALESCE(SUM(mandates_created), 0),
		       COALESCE(SUM(subscriptions_created), 0)
		FROM sync_runs
	`
	err := s.db.QueryRow(query).Scan(
		&stats.TotalRuns,
		&stats.CompletedRuns,
		&stats.FailedRuns,
		&stats.CustomersCreated,
		&stats.MandatesCreated,
		&stats.SubscriptionsCreated,
	)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM donor_outcomes WHERE status = 'reconciled' AND dry_run = 0`,
	).Scan(&stats.DonorsReconciled)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
