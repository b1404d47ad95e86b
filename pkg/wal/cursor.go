package wal

// ============================================================================
// Cursor Scans
// Responsibility: Sequential reads over the log, independent of the writer
// ============================================================================

import (
	"errors"
	"sort"
)

// Cursor iterates records in index order. Each cursor maps its own read-only
// view of the segments it touches, so any number of cursors can run next to
// the single writer. A cursor observes the segments that existed when it was
// created plus whatever the writer appends to the then-active segment.
type Cursor struct {
	refs       []segmentRef
	cur        int
	seg        *segment
	off        int
	afterIndex uint64
	closed     bool
}

// ScanFrom returns a cursor positioned so that the next record returned has
// index > index. Index 0 scans from the beginning.
func (s *Store) ScanFrom(index uint64) (*Cursor, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.mu.Unlock()

	refs := s.segmentRefs()

	// Seat the cursor at the newest segment that can contain index+1.
	cur := sort.Search(len(refs), func(i int) bool {
		return refs[i].firstIndex > index+1
	}) - 1
	if cur < 0 {
		cur = 0
	}

	return &Cursor{refs: refs, cur: cur, afterIndex: index}, nil
}

// Next returns the next record, or ok == false at the end of the log.
//
// A torn record at the tail of the last segment is treated as end-of-log
// (crash signature). A decode failure anywhere else returns a
// CorruptionError: the log is damaged and replaying past the damage would
// produce inconsistent state.
func (c *Cursor) Next() (Record, bool, error) {
	if c.closed {
		return Record{}, false, ErrClosed
	}

	for {
		if c.cur >= len(c.refs) {
			return Record{}, false, nil
		}

		if c.seg == nil {
			seg, err := openSegment(c.refs[c.cur], false)
			if err != nil {
				return Record{}, false, err
			}
			c.seg = seg
			c.off = 0
		}

		rec, n, err := c.decodeNext()
		if err != nil {
			if errors.Is(err, errEndOfSegment) {
				if err := c.advance(); err != nil {
					return Record{}, false, err
				}
				continue
			}
			if c.cur == len(c.refs)-1 {
				// Torn tail of the last segment: clean end of log.
				return Record{}, false, nil
			}
			return Record{}, false, &CorruptionError{
				Segment: c.refs[c.cur].path,
				Offset:  c.off,
				Cause:   err,
			}
		}

		c.off += n
		if rec.Index <= c.afterIndex {
			continue
		}
		return rec, true, nil
	}
}

func (c *Cursor) decodeNext() (Record, int, error) {
	return decodeRecord(c.seg.m[c.off:])
}

// advance moves to the next segment, releasing the current mapping.
func (c *Cursor) advance() error {
	if c.seg != nil {
		if err := c.seg.close(); err != nil {
			return err
		}
		c.seg = nil
	}
	c.cur++
	return nil
}

// Close releases the cursor's mapping. Safe to call more than once.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.seg != nil {
		err := c.seg.close()
		c.seg = nil
		return err
	}
	return nil
}
