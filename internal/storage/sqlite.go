package storage

import (
	"context"
	"database/sql"
	"fmt"

	// Pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path string
	db   *sql.DB

	runs          *sqliteRunRepo
	signals       *sqliteSignalRepo
	rules         *sqliteRuleRepo
	alerts        *sqliteAlertRepo
	judgments     *sqliteJudgmentRepo
	networkAlerts *sqliteNetworkAlertRepo
	locks         *sqliteLockManager
}

// NewSQLiteStorage creates a new SQLite storage at path. Use ":memory:" for
// an ephemeral store in tests.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Keep connection alive

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	// Enable foreign keys and WAL mode
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db

	// Initialize repositories
	s.runs = &sqliteRunRepo{db: db}
	s.signals = &sqliteSignalRepo{db: db}
	s.rules = &sqliteRuleRepo{db: db}
	s.alerts = &sqliteAlertRepo{db: db}
	s.judgments = &sqliteJudgmentRepo{db: db}
	s.networkAlerts = &sqliteNetworkAlertRepo{db: db}
	s.locks = &sqliteLockManager{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// Runs returns the run repository.
func (s *SQLiteStorage) Runs() RunRepository {
	return s.runs
}

// Signals returns the signal repository.
func (s *SQLiteStorage) Signals() SignalRepository {
	return s.signals
}

// Rules returns the alert rule repository.
func (s *SQLiteStorage) Rules() AlertRuleRepository {
	return s.rules
}

// Alerts returns the candidate alert repository.
func (s *SQLiteStorage) Alerts() CandidateAlertRepository {
	return s.alerts
}

// Judgments returns the operator judgment repository.
func (s *SQLiteStorage) Judgments() JudgmentRepository {
	return s.judgments
}

// NetworkAlerts returns the network alert repository.
func (s *SQLiteStorage) NetworkAlerts() NetworkAlertRepository {
	return s.networkAlerts
}

// Locks returns the advisory lock manager.
func (s *SQLiteStorage) Locks() LockManager {
	return s.locks
}

// CrossTenantSignals returns the elevated cross-tenant signal reader.
func (s *SQLiteStorage) CrossTenantSignals() CrossTenantSignalReader {
	return &sqliteCrossTenantSignals{db: s.db}
}

// Helper functions

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
