// ============================================================================
// Atomic-Ledger WAL (Write-Ahead Log)
// ============================================================================
//
// Package: pkg/wal
// File: wal.go
// Purpose: Durable, append-only, crash-safe record log per partition
//
// Every accepted command is appended here before it touches in-memory
// state. The log is the authoritative durability of the engine: snapshots
// only shorten recovery, they never replace the log.
//
// Storage model:
//   - The log is a sequence of fixed-size segment files, each pre-allocated
//     and memory-mapped. Appending is a copy into the mapped region plus an
//     offset bump; the fsync boundary is an msync of the region.
//   - Records carry strictly increasing 64-bit indices assigned here,
//     starting at 1. Records are never rewritten or deleted.
//   - Segment files are named by the index of their first record, so a scan
//     can seat itself without an index file.
//
// Crash behavior:
//   - The zero-filled tail of a segment marks its end; a record body length
//     of zero cannot occur in a written record.
//   - A torn record at the very tail of the last segment is the signature
//     of a crash mid-append. Opening for write zeroes that tail so the next
//     append does not leave stale bytes behind it. Corruption anywhere else
//     is reported, not repaired.
//
// Concurrency: one writer per partition (the single-writer loop guarantees
// this); cursors map their own read-only views and are independent.
//
// ============================================================================

package wal

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Options configures a store.
type Options struct {
	// SegmentSize is the pre-allocated size of one segment file.
	SegmentSize int64

	// SyncEvery flushes the mapped region after this many appends.
	// 1 makes every append durable before it returns.
	SyncEvery int

	// ReadOnly opens the store for scanning only, e.g. offline inspection.
	ReadOnly bool

	// Logger receives open/recovery diagnostics.
	Logger zerolog.Logger
}

// Store is the write-ahead log of one partition.
type Store struct {
	dir       string
	segSize   int64
	syncEvery int
	readOnly  bool
	logger    zerolog.Logger

	mu        sync.Mutex
	refs      []segmentRef // all segments, ordered by first index
	active    *segment     // last segment, mapped read-write (nil when read-only)
	lastIndex uint64
	unsynced  int
	closed    bool
}

// Open opens or creates the log in dir.
//
// On a non-empty directory the last segment is scanned to recover the last
// record index and the append offset; a torn tail left by a crash is zeroed.
func Open(dir string, opts Options) (*Store, error) {
	if opts.SegmentSize <= 0 {
		opts.SegmentSize = 64 << 20
	}
	if opts.SyncEvery <= 0 {
		opts.SyncEvery = 1
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("wal: failed to create directory %s: %w", dir, err)
	}

	refs, err := listSegments(dir)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:       dir,
		segSize:   opts.SegmentSize,
		syncEvery: opts.SyncEvery,
		readOnly:  opts.ReadOnly,
		logger:    opts.Logger,
		refs:      refs,
	}

	if len(refs) == 0 {
		if opts.ReadOnly {
			return s, nil // empty log, nothing to scan
		}
		seg, err := createSegment(dir, 1, opts.SegmentSize)
		if err != nil {
			return nil, err
		}
		s.active = seg
		s.refs = []segmentRef{seg.segmentRef}
		return s, nil
	}

	// Recover append position from the last segment.
	last := refs[len(refs)-1]
	lastIndex, writeOff, err := scanTail(last)
	if err != nil {
		return nil, err
	}
	s.lastIndex = lastIndex

	if opts.ReadOnly {
		return s, nil
	}

	seg, err := openSegment(last, true)
	if err != nil {
		return nil, err
	}
	seg.writeOff = writeOff

	// Zero everything past the recovered offset so a torn record from a
	// crashed append cannot shadow future records.
	tail := seg.m[writeOff:]
	for i := range tail {
		if tail[i] != 0 {
			tail[i] = 0
		}
	}

	s.active = seg
	s.logger.Debug().
		Str("dir", dir).
		Uint64("last_index", lastIndex).
		Int("segments", len(refs)).
		Msg("wal opened")
	return s, nil
}

// scanTail walks the last segment and returns the last valid record index
// and the offset just past it. A decode failure here is a torn tail, not
// corruption: the scan stops at the last intact record.
func scanTail(ref segmentRef) (uint64, int, error) {
	seg, err := openSegment(ref, false)
	if err != nil {
		return 0, 0, err
	}
	defer seg.close()

	lastIndex := ref.firstIndex - 1
	off := 0
	for {
		rec, n, err := decodeRecord(seg.m[off:])
		if err != nil {
			return lastIndex, off, nil
		}
		lastIndex = rec.Index
		off += n
	}
}

// Append writes one record and returns its index. Indices are strictly
// increasing, starting at 1. After Append returns, the record is durable up
// to the configured sync boundary; Close always forces the boundary.
//
// An I/O failure here is fatal to the owning partition.
func (s *Store) Append(payload []byte, typeKey string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if s.readOnly {
		return 0, ErrReadOnly
	}

	rec, err := encodeRecord(s.lastIndex+1, typeKey, payload)
	if err != nil {
		return 0, err
	}
	if int64(len(rec)) > s.segSize {
		return 0, fmt.Errorf("%w: %d bytes into %d-byte segments",
			ErrRecordTooLarge, len(rec), s.segSize)
	}

	// Capacity of the mapped region, not the configured size: an existing
	// segment may have been created under a different segment_size.
	if s.active.writeOff+len(rec) > len(s.active.m) {
		if err := s.roll(); err != nil {
			return 0, err
		}
	}

	copy(s.active.m[s.active.writeOff:], rec)
	s.active.writeOff += len(rec)
	s.lastIndex++

	s.unsynced++
	if s.unsynced >= s.syncEvery {
		if err := s.active.flush(); err != nil {
			return 0, err
		}
		s.unsynced = 0
	}

	return s.lastIndex, nil
}

// roll seals the active segment and starts a new one at the next index.
func (s *Store) roll() error {
	if err := s.active.flush(); err != nil {
		return err
	}
	if err := s.active.close(); err != nil {
		return err
	}
	s.unsynced = 0

	seg, err := createSegment(s.dir, s.lastIndex+1, s.segSize)
	if err != nil {
		return err
	}
	s.active = seg
	s.refs = append(s.refs, seg.segmentRef)

	s.logger.Debug().Uint64("first_index", seg.firstIndex).Msg("wal segment rolled")
	return nil
}

// LastIndex returns the index of the last appended record, 0 when empty.
func (s *Store) LastIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastIndex
}

// Sync forces the durability boundary regardless of the SyncEvery policy.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.readOnly || s.active == nil {
		return nil
	}
	if err := s.active.flush(); err != nil {
		return err
	}
	s.unsynced = 0
	return nil
}

// Close flushes and releases the store. The store must not be reused.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.active == nil {
		return nil
	}
	if err := s.active.flush(); err != nil {
		return err
	}
	return s.active.close()
}

// segmentRefs returns a copy of the segment list for cursors.
func (s *Store) segmentRefs() []segmentRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]segmentRef, len(s.refs))
	copy(refs, s.refs)
	return refs
}
