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

// Schema versions that make each repository usable.
const (
	alertsSchemaVersion  = 1
	historySchemaVersion = 2
)

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "monitors_and_alerts",
		Up: `
			CREATE TABLE IF NOT EXISTS monitors (
				id TEXT PRIMARY KEY,
				version INTEGER NOT NULL,
				name TEXT NOT NULL,
				monitor_type TEXT NOT NULL,
				enabled INTEGER NOT NULL DEFAULT 1,
				body TEXT NOT NULL,
				last_update_time INTEGER NOT NULL
			);

			-- Live alerts. body holds the full alert document.
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				version INTEGER NOT NULL,
				monitor_id TEXT NOT NULL,
				trigger_id TEXT NOT NULL,
				state TEXT NOT NULL,
				severity TEXT NOT NULL,
				bucket_hash TEXT NOT NULL DEFAULT '',
				start_time INTEGER NOT NULL,
				body TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_monitors_name ON monitors(name);
			CREATE INDEX IF NOT EXISTS idx_alerts_monitor ON alerts(monitor_id, start_time);
			CREATE INDEX IF NOT EXISTS idx_alerts_state ON alerts(state);
		`,
	},
	{
		Version: 2,
		Name:    "alert_history",
		Up: `
			CREATE TABLE IF NOT EXISTS alert_history (
				id TEXT PRIMARY KEY,
				monitor_id TEXT NOT NULL,
				trigger_id TEXT NOT NULL,
				state TEXT NOT NULL,
				severity TEXT NOT NULL,
				start_time INTEGER NOT NULL,
				end_time INTEGER,
				archived_at INTEGER NOT NULL,
				body TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_alert_history_monitor ON alert_history(monitor_id, start_time);
			CREATE INDEX IF NOT EXISTS idx_alert_history_archived ON alert_history(archived_at);
		`,
	},
}

// runMigrations applies all pending migrations and returns the resulting state.
func runMigrations(db *sql.DB) (MigrationState, error) {
	var state MigrationState

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return state, fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return state, fmt.Errorf("get current version: %w", err)
	}
	state.Version = currentVersion

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return state, fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return state, fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UnixMilli(),
		)
		if err != nil {
			tx.Rollback()
			return state, fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return state, fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
		state.Version = m.Version
		state.Applied = append(state.Applied, m.Version)
	}

	state.AlertsReady = state.Version >= alertsSchemaVersion
	state.HistoryReady = state.Version >= historySchemaVersion
	return state, nil
}
