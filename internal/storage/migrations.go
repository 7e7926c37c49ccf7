package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Computation runs
			CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'running',
				baseline_start DATETIME NOT NULL,
				baseline_end DATETIME NOT NULL,
				current_start DATETIME NOT NULL,
				current_end DATETIME NOT NULL,
				started_at DATETIME NOT NULL,
				finished_at DATETIME,
				summary TEXT
			);

			-- Drift signals (append-only)
			CREATE TABLE IF NOT EXISTS signals (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				run_id TEXT NOT NULL,
				payer TEXT NOT NULL,
				procedure_group TEXT NOT NULL,
				signal_type TEXT NOT NULL,
				trend TEXT NOT NULL,
				baseline_value REAL NOT NULL,
				current_value REAL NOT NULL,
				delta REAL NOT NULL,
				severity REAL NOT NULL,
				confidence REAL NOT NULL,
				baseline_n INTEGER NOT NULL,
				current_n INTEGER NOT NULL,
				p_value REAL NOT NULL DEFAULT 1.0,
				revenue_impact REAL NOT NULL DEFAULT 0,
				summary TEXT,
				created_at DATETIME NOT NULL,
				FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
			);

			-- At-most-one signal per (tenant, run, key, type), enforced here
			-- rather than by caller pre-checks so concurrent workers cannot race.
			CREATE UNIQUE INDEX IF NOT EXISTS ux_signals_dedup
				ON signals(tenant_id, run_id, payer, procedure_group, signal_type);

			-- Alert rules (tenant-configured, read-only input to evaluation)
			CREATE TABLE IF NOT EXISTS alert_rules (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				name TEXT NOT NULL,
				metric TEXT NOT NULL,
				operator TEXT NOT NULL,
				threshold REAL NOT NULL,
				severity_label TEXT,
				enabled INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE (tenant_id, name)
			);

			-- Candidate alerts
			CREATE TABLE IF NOT EXISTS candidate_alerts (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				rule_id TEXT NOT NULL,
				signal_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				fingerprint TEXT NOT NULL,
				payload_json TEXT NOT NULL,
				reason TEXT,
				created_at DATETIME NOT NULL,
				dispatched_at DATETIME,
				UNIQUE (signal_id, rule_id),
				FOREIGN KEY (rule_id) REFERENCES alert_rules(id) ON DELETE CASCADE,
				FOREIGN KEY (signal_id) REFERENCES signals(id) ON DELETE CASCADE
			);

			-- Operator judgments (append-only)
			CREATE TABLE IF NOT EXISTS judgments (
				id TEXT PRIMARY KEY,
				tenant_id TEXT NOT NULL,
				alert_id TEXT NOT NULL,
				fingerprint TEXT NOT NULL,
				verdict TEXT NOT NULL,
				recorded_at DATETIME NOT NULL
			);

			-- Network alerts (payer-scoped, cross-tenant)
			CREATE TABLE IF NOT EXISTS network_alerts (
				id TEXT PRIMARY KEY,
				payer TEXT NOT NULL,
				signal_type TEXT NOT NULL,
				tenant_count INTEGER NOT NULL,
				window_start DATETIME NOT NULL,
				window_end DATETIME NOT NULL,
				created_at DATETIME NOT NULL
			);

			-- Advisory locks
			CREATE TABLE IF NOT EXISTS locks (
				name TEXT PRIMARY KEY,
				holder TEXT NOT NULL,
				acquired_at DATETIME NOT NULL
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_runs_tenant ON runs(tenant_id, started_at);
			CREATE INDEX IF NOT EXISTS idx_signals_run ON signals(run_id);
			CREATE INDEX IF NOT EXISTS idx_signals_network ON signals(payer, signal_type, created_at);
			CREATE INDEX IF NOT EXISTS idx_alerts_tenant ON candidate_alerts(tenant_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_alerts_fingerprint ON candidate_alerts(tenant_id, fingerprint, status, dispatched_at);
			CREATE INDEX IF NOT EXISTS idx_judgments_fingerprint ON judgments(tenant_id, fingerprint, recorded_at);
			CREATE INDEX IF NOT EXISTS idx_network_alerts_pattern ON network_alerts(payer, signal_type, created_at);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		// Run migration in transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
