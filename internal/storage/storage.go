// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

var (
	// ErrVersionConflict is returned when a write's expected version does not match the stored one.
	ErrVersionConflict = errors.New("version conflict")
	// ErrNotMigrated is returned by repositories whose tables have not been migrated yet.
	ErrNotMigrated = errors.New("storage schema not migrated")
)

// MigrationState describes the schema after Migrate. Repositories consult the readiness
// flags instead of probing the schema themselves.
type MigrationState struct {
	Version      int
	Applied      []int
	AlertsReady  bool
	HistoryReady bool
}

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations and reports the resulting schema state.
	Migrate() (MigrationState, error)

	Monitors() MonitorRepository
	Alerts() AlertRepository
	AlertHistory() AlertHistoryRepository
}

// MonitorRepository defines operations for monitor definitions.
type MonitorRepository interface {
	// Create inserts a monitor at version 1, generating an id when empty.
	Create(ctx context.Context, monitor *models.Monitor) error
	// GetByID returns nil, nil when the monitor does not exist.
	GetByID(ctx context.Context, id string) (*models.Monitor, error)
	// Update writes the monitor if its version matches and bumps the version.
	Update(ctx context.Context, monitor *models.Monitor) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Monitor, error)
}

// AlertRepository defines operations on live alerts. Writes are compare-and-swap on version.
type AlertRepository interface {
	// Get returns nil, nil when the alert does not exist.
	Get(ctx context.Context, id string) (*models.Alert, error)
	// ListByMonitor returns up to size live alerts of a monitor, newest first.
	ListByMonitor(ctx context.Context, monitorID string, size int) ([]*models.Alert, error)
	List(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, int64, error)
	// Save inserts an alert without id, or updates one whose version matches.
	// On success alert.ID and alert.Version reflect the stored row.
	Save(ctx context.Context, alert *models.Alert) error
	// Delete removes an alert if its version matches.
	Delete(ctx context.Context, id string, version int64) error
}

// AlertHistoryRepository stores alerts that left the live store.
type AlertHistoryRepository interface {
	// Archive upserts the alert by id.
	Archive(ctx context.Context, alert *models.Alert) error
	List(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
