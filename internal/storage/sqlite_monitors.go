package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

type sqliteMonitorRepo struct {
	db    *sql.DB
	ready bool
}

func (r *sqliteMonitorRepo) Create(ctx context.Context, m *models.Monitor) error {
	if !r.ready {
		return ErrNotMigrated
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.Version = 1
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal monitor: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO monitors (id, version, name, monitor_type, enabled, body, last_update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		m.ID, m.Version, m.Name, string(m.MonitorType), boolToInt(m.Enabled), string(body), m.LastUpdateTime.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	return nil
}

func (r *sqliteMonitorRepo) GetByID(ctx context.Context, id string) (*models.Monitor, error) {
	if !r.ready {
		return nil, ErrNotMigrated
	}
	m, err := scanMonitor(r.db.QueryRowContext(ctx, "SELECT version, body FROM monitors WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *sqliteMonitorRepo) Update(ctx context.Context, m *models.Monitor) error {
	if !r.ready {
		return ErrNotMigrated
	}
	expected := m.Version
	m.Version = expected + 1
	body, err := json.Marshal(m)
	if err != nil {
		m.Version = expected
		return fmt.Errorf("marshal monitor: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE monitors SET version = ?, name = ?, monitor_type = ?, enabled = ?, body = ?, last_update_time = ?
		WHERE id = ? AND version = ?
	`,
		m.Version, m.Name, string(m.MonitorType), boolToInt(m.Enabled), string(body), m.LastUpdateTime.UnixMilli(),
		m.ID, expected,
	)
	if err != nil {
		m.Version = expected
		return fmt.Errorf("update monitor: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		m.Version = expected
		return fmt.Errorf("monitor %s at version %d: %w", m.ID, expected, ErrVersionConflict)
	}
	return nil
}

func (r *sqliteMonitorRepo) Delete(ctx context.Context, id string) error {
	if !r.ready {
		return ErrNotMigrated
	}
	result, err := r.db.ExecContext(ctx, "DELETE FROM monitors WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete monitor: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("monitor not found: %s", id)
	}
	return nil
}

func (r *sqliteMonitorRepo) List(ctx context.Context) ([]*models.Monitor, error) {
	if !r.ready {
		return nil, ErrNotMigrated
	}
	rows, err := r.db.QueryContext(ctx, "SELECT version, body FROM monitors ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query monitors: %w", err)
	}
	defer rows.Close()

	var monitors []*models.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

func scanMonitor(row scanner) (*models.Monitor, error) {
	var version int64
	var body string
	if err := row.Scan(&version, &body); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan monitor: %w", err)
	}
	m := &models.Monitor{}
	if err := json.Unmarshal([]byte(body), m); err != nil {
		return nil, fmt.Errorf("unmarshal monitor: %w", err)
	}
	m.Version = version
	return m, nil
}
