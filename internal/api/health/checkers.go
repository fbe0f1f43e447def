package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteChecker checks the alert store. A reachable database without an
// applied schema_migrations row is not ready.
type SQLiteChecker struct {
	db *sql.DB
}

// NewSQLiteChecker creates a checker for the alert store database.
func NewSQLiteChecker(db *sql.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

func (c *SQLiteChecker) Name() string { return "sqlite" }

func (c *SQLiteChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return errors.New("database not initialized")
	}
	var version int
	err := c.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return fmt.Errorf("schema not migrated: %w", err)
	}
	if version == 0 {
		return errors.New("schema not migrated")
	}
	return nil
}

// Pinger is implemented by backends that answer a liveness ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports a backend healthy when its Ping succeeds.
type PingChecker struct {
	name   string
	pinger Pinger
}

// NewClickHouseChecker checks the ClickHouse history backend.
func NewClickHouseChecker(p Pinger) *PingChecker {
	return &PingChecker{name: "clickhouse", pinger: p}
}

// NewOpenSearchChecker checks the cluster monitors query.
func NewOpenSearchChecker(p Pinger) *PingChecker {
	return &PingChecker{name: "opensearch", pinger: p}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) error {
	if c.pinger == nil {
		return fmt.Errorf("%s not configured", c.name)
	}
	return c.pinger.Ping(ctx)
}
