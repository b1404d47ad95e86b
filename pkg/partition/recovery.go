package partition

// ============================================================================
// Recovery
// Responsibility: Rebuild partition state from snapshot + WAL tail on start
// ============================================================================
//
// Recovery flow:
//   1. Load the snapshot. If usable: decode state, restore the filter, and
//      remember its last WAL index. Otherwise start from Bootstrap's
//      initial state at index 0.
//   2. Replay WAL records with index greater than the snapshot point
//      through the same apply path as live traffic, with persistence
//      suppressed. The filter rejects duplicates exactly as it would live,
//      so a record applied before the snapshot is never applied twice.
//   3. Any unreadable or undecodable record fails the start: a
//      partial-replay partition must not serve traffic.
//
// Replaying from the snapshot point must produce the same state as a full
// replay from index 0 — the recovery-equivalence invariant the tests pin.
//
// ============================================================================

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vevoly/atomic-ledger/pkg/snapshot"
	"github.com/vevoly/atomic-ledger/pkg/wal"
)

// recover opens the WAL and snapshot stores and rebuilds in-memory state.
// Runs once, before the worker goroutine exists, so it owns all fields.
func (p *Partition) recover(ctx context.Context) error {
	start := time.Now()

	store, err := wal.Open(filepath.Join(p.dir, "wal"), wal.Options{
		SegmentSize: p.cfg.WAL.SegmentSize,
		SyncEvery:   p.cfg.WAL.SyncEvery,
		Logger:      p.logger,
	})
	if err != nil {
		return err
	}
	p.wal = store
	p.snap = snapshot.NewManager(filepath.Join(p.dir, "snapshot"), p.logger)

	if err := p.loadSnapshot(); err != nil {
		return err
	}
	replayed, err := p.replayWAL(ctx)
	if err != nil {
		return err
	}

	p.lastSnapshotTime = time.Now()
	elapsed := time.Since(start)
	p.collector.SetRecoveryTime(p.idx, elapsed.Seconds())
	p.logger.Info().
		Uint64("snapshot_index", p.lastSnapshotIndex).
		Int("replayed", replayed).
		Dur("elapsed", elapsed).
		Msg("recovery complete")
	return nil
}

// loadSnapshot seats state, filter and the replay start point.
func (p *Partition) loadSnapshot() error {
	c, ok, err := p.snap.Load()
	if err != nil {
		return err
	}
	if !ok {
		p.state = p.boot.InitialState()
		return nil
	}

	if c.FilterKind != p.filter.Kind() {
		// Configured variant changed since the snapshot was taken; the
		// filter cannot round-trip, so rebuild everything from the log.
		p.logger.Warn().
			Str("snapshot_kind", c.FilterKind).
			Str("configured_kind", p.filter.Kind()).
			Msg("filter variant mismatch, falling back to full WAL replay")
		p.state = p.boot.InitialState()
		return nil
	}

	state, err := p.boot.DecodeState(c.StateData)
	if err != nil {
		p.logger.Warn().Err(err).Msg("snapshot state undecodable, falling back to full WAL replay")
		p.state = p.boot.InitialState()
		return nil
	}
	if err := p.filter.UnmarshalBinary(c.FilterData); err != nil {
		p.logger.Warn().Err(err).Msg("snapshot filter undecodable, falling back to full WAL replay")
		p.filter.Clear()
		p.state = p.boot.InitialState()
		return nil
	}

	p.state = state
	p.lastWALIndex = c.LastWALIndex
	p.lastSnapshotIndex = c.LastWALIndex
	return nil
}

// replayWAL re-applies every record past the snapshot point.
func (p *Partition) replayWAL(ctx context.Context) (int, error) {
	cursor, err := p.wal.ScanFrom(p.lastWALIndex)
	if err != nil {
		return 0, err
	}
	defer cursor.Close()

	decoders := p.boot.Decoders()
	replayed := 0

	for {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}

		rec, ok, err := cursor.Next()
		if err != nil {
			return replayed, fmt.Errorf("wal unreadable at index %d: %w", p.lastWALIndex+1, err)
		}
		if !ok {
			break
		}

		cmd, err := decoders.Decode(rec.TypeKey, rec.Payload)
		if err != nil {
			return replayed, fmt.Errorf("record %d: %w", rec.Index, err)
		}

		p.apply(cmd, nil, true)
		p.lastWALIndex = rec.Index
		replayed++
	}

	return replayed, nil
}
