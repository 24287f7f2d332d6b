package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/efreitasn/venue/internal/metrics"
)

// ErrClosed is returned when submitting to a closed writer.
var ErrClosed = errors.New("journal closed")

// BatchWriter persists one batch.
type BatchWriter interface {
	Write(b *Batch, sync bool) error
}

// Writer drains a bounded queue of batches into a BatchWriter on a single
// goroutine, so commands never wait on disk. A full queue makes Submit wait:
// persistence is never dropped.
type Writer struct {
	store   BatchWriter
	queue   chan *Batch
	sync    bool
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	started bool
	closed  bool
	done    chan struct{}
}

// NewWriter creates a writer with a queue of size batches.
func NewWriter(store BatchWriter, size int, sync bool, logger *slog.Logger, m *metrics.Metrics) *Writer {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		store:   store,
		queue:   make(chan *Batch, size),
		sync:    sync,
		logger:  logger,
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Start launches the drain goroutine.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true
	go func() {
		defer close(w.done)
		for b := range w.queue {
			if b.done != nil {
				close(b.done)
				continue
			}
			err := w.store.Write(b, w.sync)
			w.metrics.JournalBatch(err)
			if err != nil {
				w.logger.Error("journal write failed", "error", err)
			}
		}
	}()
}

func (w *Writer) enqueue(ctx context.Context, b *Batch) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}

	select {
	case w.queue <- b:
		return nil
	default:
	}

	w.metrics.JournalBackpressure()
	w.logger.Warn("journal queue full, waiting")
	select {
	case w.queue <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues a batch. Empty batches are ignored.
func (w *Writer) Submit(ctx context.Context, b *Batch) error {
	if b == nil || b.Empty() {
		return nil
	}
	return w.enqueue(ctx, b)
}

// Flush waits until every batch submitted before the call is written.
func (w *Writer) Flush(ctx context.Context) error {
	barrier := &Batch{done: make(chan struct{})}
	if err := w.enqueue(ctx, barrier); err != nil {
		return err
	}
	select {
	case <-barrier.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting batches and waits for the queue to drain.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
}
