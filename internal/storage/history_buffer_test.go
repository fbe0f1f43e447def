package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

type mockHistoryRepo struct {
	mu       sync.Mutex
	batches  [][]*models.Alert
	single   int
	batchErr error
}

func (m *mockHistoryRepo) Archive(ctx context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.single++
	return nil
}

func (m *mockHistoryRepo) ArchiveBatch(ctx context.Context, alerts []*models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batchErr != nil {
		return m.batchErr
	}
	m.batches = append(m.batches, alerts)
	return nil
}

func (m *mockHistoryRepo) List(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, int64, error) {
	return nil, 0, nil
}

func (m *mockHistoryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *mockHistoryRepo) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func TestHistoryBuffer_FlushOnBatchSize(t *testing.T) {
	mock := &mockHistoryRepo{}
	buffer := NewHistoryBuffer(mock, &HistoryBufferConfig{BatchSize: 3, FlushInterval: time.Hour, MaxSize: 100})
	defer buffer.Close()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := buffer.Archive(ctx, &models.Alert{ID: "a"}); err != nil {
			t.Fatalf("archive: %v", err)
		}
	}
	if mock.batchCount() != 0 {
		t.Errorf("expected no flush below batch size, got %d", mock.batchCount())
	}

	if err := buffer.Archive(ctx, &models.Alert{ID: "c"}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if mock.batchCount() != 1 {
		t.Fatalf("expected 1 batch, got %d", mock.batchCount())
	}
	if len(mock.batches[0]) != 3 {
		t.Errorf("expected batch of 3, got %d", len(mock.batches[0]))
	}

	stats := buffer.Stats()
	if stats.Flushed != 1 || stats.Archived != 3 || stats.Pending != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestHistoryBuffer_RequeueOnError(t *testing.T) {
	mock := &mockHistoryRepo{batchErr: errors.New("unavailable")}
	buffer := NewHistoryBuffer(mock, &HistoryBufferConfig{BatchSize: 100, FlushInterval: time.Hour, MaxSize: 100})
	defer buffer.Close()

	buffer.Archive(context.Background(), &models.Alert{ID: "a"})
	if err := buffer.Flush(); err == nil {
		t.Fatal("expected flush error")
	}
	if stats := buffer.Stats(); stats.Pending != 1 {
		t.Errorf("expected alert requeued, pending %d", stats.Pending)
	}

	mock.mu.Lock()
	mock.batchErr = nil
	mock.mu.Unlock()
	if err := buffer.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if stats := buffer.Stats(); stats.Pending != 0 || stats.Archived != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestHistoryBuffer_Backpressure(t *testing.T) {
	mock := &mockHistoryRepo{}
	buffer := NewHistoryBuffer(mock, &HistoryBufferConfig{BatchSize: 100, FlushInterval: time.Hour, MaxSize: 5})
	defer buffer.Close()

	for i := 0; i < 8; i++ {
		buffer.Archive(context.Background(), &models.Alert{ID: "a"})
	}
	stats := buffer.Stats()
	if stats.Pending != 5 {
		t.Errorf("expected 5 pending, got %d", stats.Pending)
	}
	if stats.Dropped != 3 {
		t.Errorf("expected 3 dropped, got %d", stats.Dropped)
	}
}

func TestHistoryBuffer_ArchiveAfterClose(t *testing.T) {
	mock := &mockHistoryRepo{}
	buffer := NewHistoryBuffer(mock, &HistoryBufferConfig{BatchSize: 100, FlushInterval: time.Hour})
	buffer.Close()

	if err := buffer.Archive(context.Background(), &models.Alert{ID: "a"}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	mock.mu.Lock()
	defer mock.mu.Unlock()
	if mock.single != 1 {
		t.Errorf("expected direct archive after close, got %d", mock.single)
	}
}
