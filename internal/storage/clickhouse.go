package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	Database string
	Username string
	Password string

	MaxOpenConns int
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the table TTL for archived alerts.
	RetentionDays int
}

// ClickHouseHistory archives alerts into a ClickHouse table. Re-archiving an alert
// replaces the previous row, so reads use FINAL.
type ClickHouseHistory struct {
	config *ClickHouseConfig
	db     *sql.DB
	ready  bool
}

// NewClickHouseHistory creates a ClickHouse history archive.
func NewClickHouseHistory(config *ClickHouseConfig) *ClickHouseHistory {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 30
	}
	return &ClickHouseHistory{config: config}
}

// Open initializes the ClickHouse connection.
func (h *ClickHouseHistory) Open() error {
	opts := &clickhouse.Options{
		Addr: h.config.Addresses,
		Auth: clickhouse.Auth{
			Database: h.config.Database,
			Username: h.config.Username,
			Password: h.config.Password,
		},
		DialTimeout:  h.config.DialTimeout,
		MaxOpenConns: h.config.MaxOpenConns,
		MaxIdleConns: h.config.MaxIdleConns,
	}
	if h.config.Compression {
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), h.config.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	h.db = db
	return nil
}

// Close closes the database connection.
func (h *ClickHouseHistory) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Migrate creates the history table if it doesn't exist.
func (h *ClickHouseHistory) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS alert_history (
			id String,
			version Int64,
			monitor_id String,
			trigger_id String,
			state LowCardinality(String),
			severity LowCardinality(String),
			start_time DateTime64(3, 'UTC'),
			end_time Nullable(DateTime64(3, 'UTC')),
			archived_at DateTime64(3, 'UTC'),
			body String
		)
		ENGINE = ReplacingMergeTree(archived_at)
		PARTITION BY toYYYYMM(start_time)
		ORDER BY (monitor_id, id)
		TTL toDateTime(archived_at) + INTERVAL %d DAY DELETE
	`, h.config.RetentionDays)

	if _, err := h.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create alert_history table: %w", err)
	}
	h.ready = true
	return nil
}

// Ping checks the connection health.
func (h *ClickHouseHistory) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Archive writes a single alert.
func (h *ClickHouseHistory) Archive(ctx context.Context, alert *models.Alert) error {
	return h.ArchiveBatch(ctx, []*models.Alert{alert})
}

// ArchiveBatch writes alerts in one batch insert.
func (h *ClickHouseHistory) ArchiveBatch(ctx context.Context, alerts []*models.Alert) error {
	if !h.ready {
		return ErrNotMigrated
	}
	if len(alerts) == 0 {
		return nil
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alert_history (
			id, version, monitor_id, trigger_id, state, severity,
			start_time, end_time, archived_at, body
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, a := range alerts {
		body, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal alert %s: %w", a.ID, err)
		}
		_, err = stmt.ExecContext(ctx,
			a.ID, a.Version, a.MonitorID, a.TriggerID, string(a.State), a.Severity,
			a.StartTime.UTC(), a.EndTime, now, string(body),
		)
		if err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// List returns archived alerts matching the filter.
func (h *ClickHouseHistory) List(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, int64, error) {
	if !h.ready {
		return nil, 0, ErrNotMigrated
	}

	query, args := buildHistoryQuery(filter, true)
	var total int64
	if err := h.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	query, args = buildHistoryQuery(filter, false)
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		a := &models.Alert{}
		if err := json.Unmarshal([]byte(body), a); err != nil {
			return nil, 0, fmt.Errorf("unmarshal alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows: %w", err)
	}
	return alerts, total, nil
}

// DeleteBefore removes archived alerts older than before. ClickHouse applies the
// mutation asynchronously; the returned count is taken before it runs.
func (h *ClickHouseHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if !h.ready {
		return 0, ErrNotMigrated
	}
	var count int64
	if err := h.db.QueryRowContext(ctx, "SELECT count() FROM alert_history WHERE archived_at < ?", before).Scan(&count); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	if _, err := h.db.ExecContext(ctx, "ALTER TABLE alert_history DELETE WHERE archived_at < ?", before); err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return count, nil
}

func buildHistoryQuery(filter *models.AlertFilter, countOnly bool) (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}

	if countOnly {
		sb.WriteString("SELECT count() FROM alert_history FINAL")
	} else {
		sb.WriteString("SELECT body FROM alert_history FINAL")
	}

	var conditions []string
	if filter != nil {
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
			args = append(args, filter.Since)
		}
	}
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}

	if countOnly {
		return sb.String(), args
	}

	limit, offset := pageOf(filter)
	sb.WriteString(fmt.Sprintf(" ORDER BY start_time DESC LIMIT %d", limit))
	if offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", offset))
	}
	return sb.String(), args
}
