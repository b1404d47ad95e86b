// ============================================================================
// Atomic-Ledger Partition - Single-Writer Shard
// ============================================================================
//
// Package: pkg/partition
// File: partition.go
// Purpose: One self-contained shard: mailbox, WAL, snapshot, filter, state
//
// A partition owns its state exclusively. One worker goroutine dequeues
// events in order and, per command:
//
//   1. serialize, append to the WAL (durability first)
//   2. reject duplicates via the idempotency filter
//   3. apply the processor to the state
//   4. mark the transaction applied in the filter
//   5. hand the incremental entity to the async writer (may block —
//      backpressure)
//   6. complete the command's handle
//
// Snapshot triggers are evaluated only at batch boundaries: when the
// mailbox runs empty or on a heartbeat sentinel. The heartbeat keeps the
// time trigger alive under zero load.
//
// Lifecycle:
//
//	CREATED ──Start()──> RECOVERING ──> RUNNING ──Stop()──> DRAINING ──> STOPPED
//	                                       │
//	                                       └── fatal WAL error ──> FAILED
//
// Transitions are one-way. Shutdown ordering is exact: stop heartbeat,
// drain the mailbox, final snapshot, stop async writer, close WAL.
//
// ============================================================================

package partition

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vevoly/atomic-ledger/pkg/config"
	"github.com/vevoly/atomic-ledger/pkg/filter"
	"github.com/vevoly/atomic-ledger/pkg/metrics"
	"github.com/vevoly/atomic-ledger/pkg/snapshot"
	"github.com/vevoly/atomic-ledger/pkg/types"
	"github.com/vevoly/atomic-ledger/pkg/wal"
	"github.com/vevoly/atomic-ledger/pkg/writer"
)

// Phase is the lifecycle state of a partition.
type Phase int32

const (
	Created Phase = iota
	Recovering
	Running
	Draining
	Stopped
	Failed
)

func (p Phase) String() string {
	switch p {
	case Created:
		return "created"
	case Recovering:
		return "recovering"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// event is the sum type flowing through the mailbox: a command event sets cmd
// (and optionally fut), a query event sets query and qdone. A nil-everything
// event is the heartbeat sentinel.
type event struct {
	cmd   types.Command
	fut   *types.Future      // optional completion handle for cmd
	query func(types.State)  // read-only state access on the worker
	qdone chan struct{}      // closed when the query ran
}

func (e event) isHeartbeat() bool {
	return e.cmd == nil && e.query == nil
}

// Partition is one single-writer shard of the engine.
type Partition struct {
	idx  int
	cfg  config.Config
	dir  string
	proc types.Processor
	boot types.Bootstrap

	filter filter.Filter
	wal    *wal.Store
	snap   *snapshot.Manager
	writer *writer.Writer

	mailbox chan event
	phase   atomic.Int32

	state             types.State
	lastWALIndex      uint64
	lastSnapshotIndex uint64
	lastSnapshotTime  time.Time

	stopCh     chan struct{} // closes to begin draining
	hbStopCh   chan struct{}
	hbStopOnce sync.Once
	hbDoneCh   chan struct{}
	workerDone chan struct{}

	collector *metrics.Collector
	logger    zerolog.Logger
}

// Options wires one partition.
type Options struct {
	Index     int
	Config    config.Config
	Dir       string
	Processor types.Processor
	Persister types.Persister
	Bootstrap types.Bootstrap
	Filter    filter.Filter
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
}

// New constructs a partition in the CREATED phase. No I/O happens until
// Start.
func New(opts Options) *Partition {
	p := &Partition{
		idx:        opts.Index,
		cfg:        opts.Config,
		dir:        opts.Dir,
		proc:       opts.Processor,
		boot:       opts.Bootstrap,
		filter:     opts.Filter,
		mailbox:    make(chan event, opts.Config.MailboxSize),
		stopCh:     make(chan struct{}),
		hbStopCh:   make(chan struct{}),
		hbDoneCh:   make(chan struct{}),
		workerDone: make(chan struct{}),
		collector:  opts.Metrics,
		logger:     opts.Logger,
	}
	p.writer = writer.New(writer.Config{
		Partition:    opts.Index,
		QueueSize:    opts.Config.QueueSize,
		BatchSize:    opts.Config.BatchSize,
		RetryBackoff: opts.Config.RetryBackoff,
		DrainTimeout: opts.Config.DrainTimeout,
		Persister:    opts.Persister,
		Metrics:      opts.Metrics,
		Logger:       opts.Logger,
	})
	return p
}

// Phase returns the current lifecycle phase.
func (p *Partition) Phase() Phase {
	return Phase(p.phase.Load())
}

// Index returns the partition index.
func (p *Partition) Index() int {
	return p.idx
}

// LastWALIndex returns the index of the last appended record. Only safe to
// read for diagnostics; the worker owns the authoritative value.
func (p *Partition) LastWALIndex() uint64 {
	if p.wal == nil {
		return 0
	}
	return p.wal.LastIndex()
}

// Start opens the partition's stores, runs recovery, and launches the
// worker and heartbeat goroutines. A recovery failure leaves the partition
// FAILED and must prevent the engine from serving traffic.
func (p *Partition) Start(ctx context.Context) error {
	if !p.phase.CompareAndSwap(int32(Created), int32(Recovering)) {
		return fmt.Errorf("partition %d: start in phase %s", p.idx, p.Phase())
	}

	if err := p.recover(ctx); err != nil {
		p.phase.Store(int32(Failed))
		return fmt.Errorf("%w: partition %d: %v", types.ErrRecovery, p.idx, err)
	}

	p.writer.Start()
	go p.heartbeatLoop()
	go p.workerLoop()

	p.phase.Store(int32(Running))
	p.logger.Info().Uint64("last_wal_index", p.lastWALIndex).Msg("partition running")
	return nil
}

// Submit enqueues one command. Blocks while the mailbox is full. The future
// may be nil (fire-and-forget).
func (p *Partition) Submit(cmd types.Command, fut *types.Future) error {
	switch p.Phase() {
	case Running:
	case Failed:
		return types.ErrPartitionFailed
	default:
		return types.ErrEngineClosed
	}

	select {
	case p.mailbox <- event{cmd: cmd, fut: fut}:
		p.collector.SetMailboxRemaining(p.idx, cap(p.mailbox)-len(p.mailbox))
		return nil
	case <-p.stopCh:
		return types.ErrEngineClosed
	}
}

// Query runs fn on the worker goroutine against a point-in-time view of the
// state. fn must treat the state as read-only and must not retain it. After
// the partition stopped, fn runs on the caller.
func (p *Partition) Query(ctx context.Context, fn func(types.State)) error {
	switch p.Phase() {
	case Running:
	case Stopped:
		fn(p.state)
		return nil
	case Failed:
		return types.ErrPartitionFailed
	default:
		return types.ErrEngineClosed
	}

	done := make(chan struct{})
	select {
	case p.mailbox <- event{query: fn, qdone: done}:
	case <-p.stopCh:
		return types.ErrEngineClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains and shuts the partition down in the required order:
// heartbeat, mailbox drain, final snapshot, async writer, WAL.
func (p *Partition) Stop(ctx context.Context) error {
	if !p.phase.CompareAndSwap(int32(Running), int32(Draining)) {
		return nil // never running, already draining, stopped, or failed
	}

	// 1. Stop the heartbeat.
	p.stopHeartbeat()
	<-p.hbDoneCh

	// 2-5. The worker drains the mailbox, snapshots, stops the writer and
	// closes the WAL before exiting.
	close(p.stopCh)

	select {
	case <-p.workerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// heartbeatLoop enqueues the sentinel so the time-based snapshot trigger
// fires even with no traffic. A full mailbox skips the beat: the worker is
// busy and will reach a batch boundary on its own.
func (p *Partition) heartbeatLoop() {
	defer close(p.hbDoneCh)

	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case p.mailbox <- event{}:
			default:
			}
		case <-p.hbStopCh:
			return
		}
	}
}

// workerLoop is the single writer. Nothing else touches state, filter, WAL
// or snapshot counters while the partition runs.
func (p *Partition) workerLoop() {
	defer close(p.workerDone)

	for {
		select {
		case ev := <-p.mailbox:
			if !p.handle(ev) {
				return // fatal, partition FAILED
			}
			if len(p.mailbox) == 0 {
				p.maybeSnapshot(false)
			}
		case <-p.stopCh:
			p.shutdown()
			return
		}
	}
}

// handle processes one event. Returns false on a fatal WAL failure.
func (p *Partition) handle(ev event) bool {
	if ev.query != nil {
		ev.query(p.state)
		close(ev.qdone)
		return true
	}
	if ev.isHeartbeat() {
		p.maybeSnapshot(false)
		return true
	}
	return p.handleCommand(ev.cmd, ev.fut)
}

// handleCommand appends the command to the WAL, then applies it. The WAL
// write comes first: a command the processor later rejects still occupies a
// record, so log size reflects submission volume, not accepted volume.
func (p *Partition) handleCommand(cmd types.Command, fut *types.Future) bool {
	payload, err := cmd.Encode()
	if err != nil {
		// Nothing was logged; the command never happened.
		if fut != nil {
			fut.Fail(fmt.Errorf("ledger: failed to encode command %s: %w", cmd.TxID(), err))
		}
		return true
	}

	idx, err := p.wal.Append(payload, cmd.TypeKey())
	if err != nil {
		// The ledger cannot accept commands it cannot make durable.
		p.logger.Error().Err(err).Str("tx", cmd.TxID()).Msg("wal append failed, partition failing")
		if fut != nil {
			fut.Fail(fmt.Errorf("%w: %v", types.ErrPartitionFailed, err))
		}
		p.fail()
		return false
	}
	p.lastWALIndex = idx

	p.apply(cmd, fut, false)
	return true
}

// apply runs the idempotency check and the processor. Shared between live
// traffic and recovery replay; during recovery no entity reaches the async
// writer and there is no handle to complete.
func (p *Partition) apply(cmd types.Command, fut *types.Future, recovery bool) {
	txID := cmd.TxID()

	if p.filter.Contains(txID) {
		p.collector.RecordDuplicate(p.idx)
		if fut != nil {
			fut.Fail(fmt.Errorf("%w: %s", types.ErrDuplicate, txID))
		}
		return
	}

	entity, err := p.proc.Process(p.state, cmd)
	if err != nil {
		// Not marked applied: the same tx may be retried.
		p.collector.RecordProcessorFailure(p.idx)
		if fut != nil {
			fut.Fail(err)
		}
		return
	}

	p.filter.Add(txID)

	if entity != nil && !recovery {
		if err := p.writer.Enqueue(entity); err != nil {
			p.logger.Warn().Err(err).Str("tx", txID).Msg("entity dropped, writer stopped")
		}
	}

	if fut != nil && !fut.Resolved() {
		fut.Complete(entity)
	}
	p.collector.RecordApplied(p.idx)
}

func (p *Partition) stopHeartbeat() {
	p.hbStopOnce.Do(func() { close(p.hbStopCh) })
}

// fail moves the partition to FAILED and releases what it can. Submits are
// rejected from here on; recovery after restart replays from the WAL.
func (p *Partition) fail() {
	p.phase.Store(int32(Failed))
	p.stopHeartbeat()
	p.writer.Stop()
	if err := p.wal.Close(); err != nil {
		p.logger.Error().Err(err).Msg("wal close after failure")
	}
}

// shutdown runs the tail of the exact stop ordering on the worker: drain,
// final snapshot, writer stop, WAL close.
func (p *Partition) shutdown() {
	for {
		select {
		case ev := <-p.mailbox:
			if !p.handle(ev) {
				return
			}
		default:
			p.maybeSnapshot(true)
			p.writer.Stop()
			if err := p.wal.Close(); err != nil {
				p.logger.Error().Err(err).Msg("wal close failed")
			}
			p.phase.Store(int32(Stopped))
			p.logger.Info().Uint64("last_wal_index", p.lastWALIndex).Msg("partition stopped")
			return
		}
	}
}

// maybeSnapshot evaluates the snapshot policy. force is the shutdown path.
// A save failure is logged and retried at the next trigger; the WAL is the
// authoritative durability.
func (p *Partition) maybeSnapshot(force bool) {
	if !force {
		count := p.cfg.SnapshotInterval > 0 &&
			p.lastWALIndex-p.lastSnapshotIndex >= p.cfg.SnapshotInterval
		timed := p.cfg.EnableTimeSnapshot &&
			time.Since(p.lastSnapshotTime) >= p.cfg.SnapshotTimeInterval
		if !count && !timed {
			return
		}
		if p.lastWALIndex == p.lastSnapshotIndex {
			// Time trigger with nothing new: refresh the clock only.
			p.lastSnapshotTime = time.Now()
			return
		}
	}

	start := time.Now()

	stateData, err := p.boot.EncodeState(p.state)
	if err != nil {
		p.logger.Error().Err(err).Msg("snapshot skipped, state encode failed")
		return
	}
	filterData, err := p.filter.MarshalBinary()
	if err != nil {
		p.logger.Error().Err(err).Msg("snapshot skipped, filter encode failed")
		return
	}

	c := snapshot.Container{
		LastWALIndex: p.lastWALIndex,
		FilterKind:   p.filter.Kind(),
		FilterData:   filterData,
		StateData:    stateData,
	}
	if err := p.snap.Write(c); err != nil {
		p.logger.Error().Err(err).Msg("snapshot write failed, will retry at next trigger")
		return
	}

	p.lastSnapshotIndex = p.lastWALIndex
	p.lastSnapshotTime = time.Now()
	p.collector.ObserveSnapshot(p.idx, time.Since(start).Seconds())
	p.logger.Debug().Uint64("last_wal_index", p.lastWALIndex).Msg("snapshot written")
}
