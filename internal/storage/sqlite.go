package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	// Pure Go SQLite driver.
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path string
	db   *sql.DB

	monitors     *sqliteMonitorRepo
	alerts       *sqliteAlertRepo
	alertHistory *sqliteAlertHistoryRepo
}

// NewSQLiteStorage creates a new SQLite storage.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// sqlitePragmas are applied by the driver to every new connection.
var sqlitePragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
}

func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// Open connects to the database file, creating it when missing. The schema is
// not touched until Migrate.
func (s *SQLiteStorage) Open() error {
	db, err := sql.Open("sqlite", sqliteDSN(s.path))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// One writer keeps alert CAS updates serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database %s: %w", s.path, err)
	}

	s.db = db
	s.monitors = &sqliteMonitorRepo{db: db}
	s.alerts = &sqliteAlertRepo{db: db}
	s.alertHistory = &sqliteAlertHistoryRepo{db: db}
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

// Migrate runs database migrations and hands the resulting state to the repositories.
func (s *SQLiteStorage) Migrate() (MigrationState, error) {
	state, err := runMigrations(s.db)
	if err != nil {
		return state, err
	}
	s.monitors.ready = state.AlertsReady
	s.alerts.ready = state.AlertsReady
	s.alertHistory.ready = state.HistoryReady
	return state, nil
}

// Monitors returns the monitor repository.
func (s *SQLiteStorage) Monitors() MonitorRepository {
	return s.monitors
}

// Alerts returns the live alert repository.
func (s *SQLiteStorage) Alerts() AlertRepository {
	return s.alerts
}

// AlertHistory returns the alert history repository.
func (s *SQLiteStorage) AlertHistory() AlertHistoryRepository {
	return s.alertHistory
}
