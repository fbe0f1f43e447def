package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

type sqliteAlertHistoryRepo struct {
	db    *sql.DB
	ready bool
}

func (r *sqliteAlertHistoryRepo) Archive(ctx context.Context, alert *models.Alert) error {
	if !r.ready {
		return ErrNotMigrated
	}
	if alert.ID == models.NoID {
		return fmt.Errorf("archive alert: alert has no id")
	}
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	var endTime sql.NullInt64
	if alert.EndTime != nil {
		endTime = sql.NullInt64{Int64: alert.EndTime.UnixMilli(), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO alert_history (id, monitor_id, trigger_id, state, severity, start_time, end_time, archived_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			severity = excluded.severity,
			end_time = excluded.end_time,
			archived_at = excluded.archived_at,
			body = excluded.body
	`,
		alert.ID, alert.MonitorID, alert.TriggerID, string(alert.State), alert.Severity,
		alert.StartTime.UnixMilli(), endTime, time.Now().UnixMilli(), string(body),
	)
	if err != nil {
		return fmt.Errorf("archive alert: %w", err)
	}
	return nil
}

func (r *sqliteAlertHistoryRepo) List(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, int64, error) {
	if !r.ready {
		return nil, 0, ErrNotMigrated
	}
	where, args := alertFilterClause(filter)

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_history"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alert history: %w", err)
	}

	limit, offset := pageOf(filter)
	rows, err := r.db.QueryContext(ctx,
		"SELECT body FROM alert_history"+where+" ORDER BY start_time DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, 0, fmt.Errorf("scan alert history: %w", err)
		}
		alert := &models.Alert{}
		if err := json.Unmarshal([]byte(body), alert); err != nil {
			return nil, 0, fmt.Errorf("unmarshal alert history: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, total, rows.Err()
}

func (r *sqliteAlertHistoryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if !r.ready {
		return 0, ErrNotMigrated
	}
	result, err := r.db.ExecContext(ctx, "DELETE FROM alert_history WHERE archived_at < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete alert history: %w", err)
	}
	return result.RowsAffected()
}
