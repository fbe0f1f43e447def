package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

type sqliteAlertRepo struct {
	db    *sql.DB
	ready bool
}

func (r *sqliteAlertRepo) Get(ctx context.Context, id string) (*models.Alert, error) {
	if !r.ready {
		return nil, ErrNotMigrated
	}
	var version int64
	var body string
	err := r.db.QueryRowContext(ctx, "SELECT version, body FROM alerts WHERE id = ?", id).Scan(&version, &body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return decodeAlert(version, body)
}

func (r *sqliteAlertRepo) ListByMonitor(ctx context.Context, monitorID string, size int) ([]*models.Alert, error) {
	if !r.ready {
		return nil, ErrNotMigrated
	}
	if size <= 0 {
		size = 500
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT version, body FROM alerts WHERE monitor_id = ? ORDER BY start_time DESC LIMIT ?",
		monitorID, size,
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func (r *sqliteAlertRepo) List(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, int64, error) {
	if !r.ready {
		return nil, 0, ErrNotMigrated
	}
	where, args := alertFilterClause(filter)

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	limit, offset := pageOf(filter)
	rows, err := r.db.QueryContext(ctx,
		"SELECT version, body FROM alerts"+where+" ORDER BY start_time DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

func (r *sqliteAlertRepo) Save(ctx context.Context, alert *models.Alert) error {
	if !r.ready {
		return ErrNotMigrated
	}
	if alert.ID == models.NoID {
		return r.insert(ctx, alert)
	}

	next := alert.Clone()
	next.Version = alert.Version + 1
	body, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET version = ?, state = ?, severity = ?, bucket_hash = ?, start_time = ?, body = ?
		WHERE id = ? AND version = ?
	`,
		next.Version, string(next.State), next.Severity, next.BucketKeysHash(), next.StartTime.UnixMilli(), string(body),
		alert.ID, alert.Version,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert %s at version %d: %w", alert.ID, alert.Version, ErrVersionConflict)
	}
	alert.Version = next.Version
	return nil
}

func (r *sqliteAlertRepo) insert(ctx context.Context, alert *models.Alert) error {
	next := alert.Clone()
	next.ID = uuid.New().String()
	next.Version = 1
	body, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, version, monitor_id, trigger_id, state, severity, bucket_hash, start_time, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		next.ID, next.Version, next.MonitorID, next.TriggerID, string(next.State), next.Severity,
		next.BucketKeysHash(), next.StartTime.UnixMilli(), string(body),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	alert.ID = next.ID
	alert.Version = next.Version
	return nil
}

func (r *sqliteAlertRepo) Delete(ctx context.Context, id string, version int64) error {
	if !r.ready {
		return ErrNotMigrated
	}
	result, err := r.db.ExecContext(ctx, "DELETE FROM alerts WHERE id = ? AND version = ?", id, version)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("alert %s at version %d: %w", id, version, ErrVersionConflict)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlerts(rows *sql.Rows) ([]*models.Alert, error) {
	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func scanAlertRow(row scanner) (*models.Alert, error) {
	var version int64
	var body string
	if err := row.Scan(&version, &body); err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	return decodeAlert(version, body)
}

// decodeAlert unmarshals the stored document. The version column is authoritative.
func decodeAlert(version int64, body string) (*models.Alert, error) {
	alert := &models.Alert{}
	if err := json.Unmarshal([]byte(body), alert); err != nil {
		return nil, fmt.Errorf("unmarshal alert: %w", err)
	}
	alert.Version = version
	return alert, nil
}

func alertFilterClause(filter *models.AlertFilter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}
	var conditions []string
	var args []interface{}
	if filter.MonitorID != "" {
		conditions = append(conditions, "monitor_id = ?")
		args = append(args, filter.MonitorID)
	}
	if filter.State != "" {
		conditions = append(conditions, "state = ?")
		args = append(args, string(filter.State))
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, filter.Severity)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "start_time >= ?")
		args = append(args, filter.Since.UnixMilli())
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func pageOf(filter *models.AlertFilter) (limit, offset int) {
	limit = 100
	if filter != nil {
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		offset = filter.Offset
	}
	return limit, offset
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
