// Package ingest decouples webhook ingestion from analysis with a bounded
// buffer flushed on size or on a timer.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/incidentstack/faultline/internal/models"
)

// Sink consumes a flushed batch of events.
type Sink interface {
	Process(ctx context.Context, batch []models.Event) error
}

// Buffer accumulates incoming events and hands batches to the sink when the
// batch size is reached or the flush interval elapses. A failed batch is
// requeued at the front once; a second consecutive failure drops it so the
// buffer cannot grow without bound.
type Buffer struct {
	logger   *slog.Logger
	sink     Sink
	maxBatch int
	interval time.Duration

	mu      sync.Mutex
	pending []models.Event
	retried bool

	kick chan struct{}
}

// NewBuffer constructs a buffer flushing at maxBatch events or every interval.
func NewBuffer(logger *slog.Logger, sink Sink, maxBatch int, interval time.Duration) *Buffer {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBatch <= 0 {
		maxBatch = 100
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Buffer{
		logger:   logger,
		sink:     sink,
		maxBatch: maxBatch,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Enqueue appends events to the buffer and triggers an early flush when the
// batch size is reached.
func (b *Buffer) Enqueue(events []models.Event) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, events...)
	full := len(b.pending) >= b.maxBatch
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered events.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Run flushes until the context ends, then performs one final flush with a
// short grace period so accepted events are not silently lost on shutdown.
func (b *Buffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			graceCtx, cancel := context.WithTimeout(context.Background(), b.interval)
			b.Flush(graceCtx)
			cancel()
			return
		case <-ticker.C:
			b.Flush(ctx)
		case <-b.kick:
			b.Flush(ctx)
		}
	}
}

// Flush drains the buffer into the sink. On failure the batch is requeued at
// the front for the next flush; a batch that fails twice is dropped.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	wasRetry := b.retried
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := b.sink.Process(ctx, batch); err != nil {
		if wasRetry {
			b.logger.Error("dropping batch after repeated failure",
				slog.Int("events", len(batch)),
				slog.Any("error", err))
			b.setRetried(false)
			return
		}
		b.logger.Warn("batch processing failed, requeueing",
			slog.Int("events", len(batch)),
			slog.Any("error", err))
		b.mu.Lock()
		b.pending = append(batch, b.pending...)
		b.retried = true
		b.mu.Unlock()
		return
	}
	b.setRetried(false)
}

func (b *Buffer) setRetried(v bool) {
	b.mu.Lock()
	b.retried = v
	b.mu.Unlock()
}
