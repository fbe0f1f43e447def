package storage

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// HistoryBatchWriter writes archived alerts in batches.
type HistoryBatchWriter interface {
	AlertHistoryRepository
	ArchiveBatch(ctx context.Context, alerts []*models.Alert) error
}

// HistoryBuffer queues archived alerts and writes them in batches, flushing on
// batch size or interval. Reads go straight to the underlying repository.
// When the queue is full the oldest entries are dropped.
type HistoryBuffer struct {
	repo          HistoryBatchWriter
	batchSize     int
	flushInterval time.Duration
	maxSize       int

	mu       sync.Mutex
	pending  []*models.Alert
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopped  atomic.Bool
	dropped  atomic.Int64
	flushed  atomic.Int64
	archived atomic.Int64
}

// HistoryBufferConfig holds HistoryBuffer configuration.
type HistoryBufferConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxSize       int
}

// NewHistoryBuffer creates a history buffer and starts its flush loop.
func NewHistoryBuffer(repo HistoryBatchWriter, config *HistoryBufferConfig) *HistoryBuffer {
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.MaxSize == 0 {
		config.MaxSize = 10000
	}

	b := &HistoryBuffer{
		repo:          repo,
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		maxSize:       config.MaxSize,
		pending:       make([]*models.Alert, 0, config.BatchSize),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	go b.flushLoop()
	return b
}

// Archive queues a copy of the alert.
func (b *HistoryBuffer) Archive(ctx context.Context, alert *models.Alert) error {
	if b.stopped.Load() {
		return b.repo.Archive(ctx, alert)
	}

	b.mu.Lock()
	if len(b.pending) >= b.maxSize {
		drop := len(b.pending) - b.maxSize + 1
		b.pending = b.pending[drop:]
		b.dropped.Add(int64(drop))
		metrics.HistoryBufferDroppedTotal.Add(float64(drop))
		log.Printf("warning: history buffer overflow, dropped %d oldest alerts", drop)
	}
	b.pending = append(b.pending, alert.Clone())
	shouldFlush := len(b.pending) >= b.batchSize
	metrics.HistoryBufferPending.Set(float64(len(b.pending)))
	b.mu.Unlock()

	if shouldFlush {
		return b.Flush()
	}
	return nil
}

// List reads from the underlying repository. Queued alerts are not visible until flushed.
func (b *HistoryBuffer) List(ctx context.Context, filter *models.AlertFilter) ([]*models.Alert, int64, error) {
	return b.repo.List(ctx, filter)
}

// DeleteBefore deletes from the underlying repository.
func (b *HistoryBuffer) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return b.repo.DeleteBefore(ctx, before)
}

// Flush writes the queued alerts.
func (b *HistoryBuffer) Flush() error {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.pending
	b.pending = make([]*models.Alert, 0, b.batchSize)
	metrics.HistoryBufferPending.Set(0)
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.repo.ArchiveBatch(ctx, batch); err != nil {
		// Requeue in front so order is kept.
		b.mu.Lock()
		b.pending = append(batch, b.pending...)
		if len(b.pending) > b.maxSize {
			excess := len(b.pending) - b.maxSize
			b.dropped.Add(int64(excess))
			metrics.HistoryBufferDroppedTotal.Add(float64(excess))
			b.pending = b.pending[excess:]
		}
		metrics.HistoryBufferPending.Set(float64(len(b.pending)))
		b.mu.Unlock()
		return err
	}

	b.flushed.Add(1)
	b.archived.Add(int64(len(batch)))
	return nil
}

func (b *HistoryBuffer) flushLoop() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				log.Printf("history buffer flush error: %v", err)
			}
		case <-b.stopCh:
			if err := b.Flush(); err != nil {
				log.Printf("history buffer final flush error: %v", err)
			}
			return
		}
	}
}

// Close stops the flush loop after a final flush.
func (b *HistoryBuffer) Close() error {
	if b.stopped.Swap(true) {
		return nil
	}
	close(b.stopCh)
	<-b.doneCh
	return nil
}

// Stats returns buffer statistics.
func (b *HistoryBuffer) Stats() HistoryBufferStats {
	b.mu.Lock()
	pending := len(b.pending)
	b.mu.Unlock()

	return HistoryBufferStats{
		Pending:  pending,
		Dropped:  b.dropped.Load(),
		Flushed:  b.flushed.Load(),
		Archived: b.archived.Load(),
	}
}

// HistoryBufferStats contains buffer statistics.
type HistoryBufferStats struct {
	Pending  int
	Dropped  int64
	Flushed  int64
	Archived int64
}
