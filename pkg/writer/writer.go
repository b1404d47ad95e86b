// ============================================================================
// Atomic-Ledger Async Batch Writer
// ============================================================================
//
// Package: pkg/writer
// File: writer.go
// Purpose: Decouple the in-memory application path from the persistence sink
//
// The partition worker enqueues incremental entities here; a dedicated
// goroutine drains them in batches into the user-supplied Persister.
//
// Backpressure: Enqueue blocks when the FIFO is full. The producer is the
// single partition worker, so a saturated sink stalls the whole partition
// until it catches up. That stall is the flow-control valve, not an error.
//
// Retry: a failed Persist is retried with the same batch after a fixed
// backoff, indefinitely. Delivery is therefore at-least-once; the ledger's
// authoritative state is the WAL, so duplicate persists are tolerable as
// long as the sink is idempotent per business key.
//
// Shutdown: Stop drains the remaining FIFO best-effort. Failures during the
// drain still retry, but once the drain deadline passes the remaining batch
// is abandoned and logged — the WAL still holds every command.
//
// ============================================================================

package writer

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vevoly/atomic-ledger/pkg/metrics"
	"github.com/vevoly/atomic-ledger/pkg/types"
)

// ErrStopped indicates an enqueue after Stop.
var ErrStopped = errors.New("writer: stopped")

// Config configures a Writer.
type Config struct {
	// Partition indexes metric series.
	Partition int

	// QueueSize bounds the FIFO.
	QueueSize int

	// BatchSize caps one Persist call.
	BatchSize int

	// RetryBackoff is the sleep between persist retries.
	RetryBackoff time.Duration

	// DrainTimeout bounds how long a failing persist is retried during the
	// drain in Stop; it does not cut short a drain whose persists succeed.
	DrainTimeout time.Duration

	Persister types.Persister
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
}

// Writer is the per-partition asynchronous batch writer.
type Writer struct {
	cfg    Config
	queue  chan types.Entity
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a writer. Call Start to launch the drain goroutine.
func New(cfg Config) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 10 * time.Second
	}
	return &Writer{
		cfg:    cfg,
		queue:  make(chan types.Entity, cfg.QueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the background drain goroutine.
func (w *Writer) Start() {
	go w.run()
}

// Enqueue hands one entity to the writer, blocking while the FIFO is full.
// This is the backpressure point: the partition worker stalls here until
// the sink frees a slot or the writer stops.
func (w *Writer) Enqueue(e types.Entity) error {
	select {
	case w.queue <- e:
		w.cfg.Metrics.SetWriterQueueLen(w.cfg.Partition, len(w.queue))
		return nil
	case <-w.stopCh:
		return ErrStopped
	}
}

// QueueLen returns the current FIFO depth.
func (w *Writer) QueueLen() int {
	return len(w.queue)
}

// Stop requests shutdown and waits for the drain to finish. Entities still
// queued are delivered best-effort: a batch whose persist keeps failing past
// the drain timeout is abandoned along with whatever is still queued.
func (w *Writer) Stop() {
	select {
	case <-w.stopCh:
		// already stopping
	default:
		close(w.stopCh)
	}
	<-w.doneCh
}

// run is the drain loop: take one entity, opportunistically fill the batch
// without blocking, persist, repeat.
func (w *Writer) run() {
	defer close(w.doneCh)

	for {
		select {
		case e := <-w.queue:
			w.deliver(w.fill(e), false, time.Time{})
		case <-w.stopCh:
			w.drain()
			return
		}
	}
}

// fill takes everything immediately available up to the batch size.
func (w *Writer) fill(first types.Entity) []types.Entity {
	batch := make([]types.Entity, 1, w.cfg.BatchSize)
	batch[0] = first
	for len(batch) < w.cfg.BatchSize {
		select {
		case e := <-w.queue:
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

// drain empties the FIFO after a stop request.
func (w *Writer) drain() {
	deadline := time.Now().Add(w.cfg.DrainTimeout)
	for {
		select {
		case e := <-w.queue:
			if !w.deliver(w.fill(e), true, deadline) {
				dropped := len(w.queue)
				if dropped > 0 {
					w.cfg.Logger.Warn().Int("dropped", dropped).
						Msg("abandoning unpersisted entities on shutdown; WAL remains authoritative")
				}
				return
			}
		default:
			return
		}
	}
}

// deliver persists one batch, retrying the same batch until it succeeds.
// In normal operation the retry loop is infinite, but a stop request
// arriving during the backoff sleep abandons the batch — best-effort drain.
// In draining mode the deadline bounds the retries instead. Returns false
// when the batch was abandoned.
func (w *Writer) deliver(batch []types.Entity, draining bool, deadline time.Time) bool {
	for {
		start := time.Now()
		err := w.cfg.Persister.Persist(batch)
		if err == nil {
			w.cfg.Metrics.ObservePersistBatch(w.cfg.Partition, time.Since(start).Seconds())
			w.cfg.Metrics.SetWriterQueueLen(w.cfg.Partition, len(w.queue))
			return true
		}

		w.cfg.Metrics.RecordPersistRetry(w.cfg.Partition)
		w.cfg.Logger.Error().Err(err).Int("batch", len(batch)).
			Msg("persist failed, retrying batch")

		if draining {
			if time.Now().After(deadline) {
				w.cfg.Logger.Warn().Int("batch", len(batch)).
					Msg("drain deadline exceeded, abandoning batch")
				return false
			}
			time.Sleep(w.cfg.RetryBackoff)
			continue
		}

		select {
		case <-time.After(w.cfg.RetryBackoff):
		case <-w.stopCh:
			// Interrupted mid-backoff by shutdown: give up on this batch.
			// The WAL still holds every command.
			w.cfg.Logger.Warn().Int("batch", len(batch)).
				Msg("shutdown during retry backoff, abandoning batch")
			return false
		}
	}
}
