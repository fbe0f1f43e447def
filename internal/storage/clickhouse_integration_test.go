//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Integration tests require running ClickHouse.
// Run with: go test -tags=integration ./internal/storage/...

func setupClickHouseTest(t *testing.T) (*ClickHouseHistory, func()) {
	t.Helper()

	history := NewClickHouseHistory(&ClickHouseConfig{
		Addresses:     []string{"localhost:9000"},
		Database:      "blazewatch_test",
		Username:      "default",
		MaxOpenConns:  2,
		MaxIdleConns:  2,
		DialTimeout:   5 * time.Second,
		Compression:   true,
		RetentionDays: 1,
	})
	if err := history.Open(); err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}
	if err := history.Migrate(); err != nil {
		history.Close()
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		history.db.Exec("TRUNCATE TABLE alert_history")
		history.Close()
	}
	return history, cleanup
}

func TestClickHouseHistory_ArchiveUpsert_Integration(t *testing.T) {
	history, cleanup := setupClickHouseTest(t)
	defer cleanup()
	ctx := context.Background()

	alert := newTestAlert("m1", time.Now())
	alert.ID = "a1"
	alert.Fail(&models.AlertError{Timestamp: time.Now(), Message: "boom"})
	if err := history.Archive(ctx, alert); err != nil {
		t.Fatalf("archive: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	alert.Complete(time.Now())
	if err := history.Archive(ctx, alert); err != nil {
		t.Fatalf("re-archive: %v", err)
	}

	alerts, total, err := history.List(ctx, &models.AlertFilter{MonitorID: "m1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(alerts) != 1 {
		t.Fatalf("expected 1 archived alert, got %d", total)
	}
	if alerts[0].State != models.AlertStateCompleted {
		t.Errorf("expected COMPLETED, got %s", alerts[0].State)
	}
}

func TestClickHouseHistory_Buffer_Integration(t *testing.T) {
	history, cleanup := setupClickHouseTest(t)
	defer cleanup()
	ctx := context.Background()

	buffer := NewHistoryBuffer(history, &HistoryBufferConfig{BatchSize: 10, FlushInterval: time.Hour})
	for i := 0; i < 3; i++ {
		a := newTestAlert("m2", time.Now())
		a.ID = string(rune('a' + i))
		buffer.Archive(ctx, a)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, total, err := history.List(ctx, &models.AlertFilter{MonitorID: "m2"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3 archived alerts, got %d", total)
	}
}
