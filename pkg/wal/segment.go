package wal

// ============================================================================
// Segment Files
// Responsibility: Pre-allocated, memory-mapped chunks of the log
// ============================================================================

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/edsrzf/mmap-go"
)

// segmentExt names segment files <first-index>.seg, zero-padded so
// lexicographic order is index order.
const segmentExt = ".seg"

// segmentRef identifies a segment on disk without holding it open.
type segmentRef struct {
	path       string
	firstIndex uint64
}

// segment is an open, mapped segment. Only the store's active segment is
// mapped read-write; cursors map their own read-only views.
type segment struct {
	segmentRef
	f        *os.File
	m        mmap.MMap
	writeOff int // next append offset, meaningful on the active segment only
}

func segmentPath(dir string, firstIndex uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%020d%s", firstIndex, segmentExt))
}

// listSegments returns the segment files of dir ordered by first index.
func listSegments(dir string) ([]segmentRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("wal: failed to read directory %s: %w", dir, err)
	}

	var refs []segmentRef
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, segmentExt) {
			continue
		}
		first, err := strconv.ParseUint(strings.TrimSuffix(name, segmentExt), 10, 64)
		if err != nil {
			continue // not a segment file
		}
		refs = append(refs, segmentRef{path: filepath.Join(dir, name), firstIndex: first})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].firstIndex < refs[j].firstIndex })
	return refs, nil
}

// createSegment allocates a zero-filled segment of size bytes and maps it
// read-write.
func createSegment(dir string, firstIndex uint64, size int64) (*segment, error) {
	path := segmentPath(dir, firstIndex)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: failed to create segment %s: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: failed to allocate segment %s: %w", path, err)
	}

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: failed to map segment %s: %w", path, err)
	}

	return &segment{
		segmentRef: segmentRef{path: path, firstIndex: firstIndex},
		f:          f,
		m:          m,
	}, nil
}

// openSegment maps an existing segment. writable selects the mapping mode.
func openSegment(ref segmentRef, writable bool) (*segment, error) {
	flags := os.O_RDONLY
	prot := mmap.RDONLY
	if writable {
		flags = os.O_RDWR
		prot = mmap.RDWR
	}

	f, err := os.OpenFile(ref.path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: failed to open segment %s: %w", ref.path, err)
	}

	m, err := mmap.Map(f, prot, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wal: failed to map segment %s: %w", ref.path, err)
	}

	return &segment{segmentRef: ref, f: f, m: m}, nil
}

// flush forces the mapped region to disk. This is the durability boundary.
func (s *segment) flush() error {
	if err := s.m.Flush(); err != nil {
		return fmt.Errorf("wal: failed to sync segment %s: %w", s.path, err)
	}
	return nil
}

// close unmaps and releases the segment. The caller flushes first if the
// segment was writable.
func (s *segment) close() error {
	unmapErr := s.m.Unmap()
	closeErr := s.f.Close()
	if unmapErr != nil {
		return fmt.Errorf("wal: failed to unmap segment %s: %w", s.path, unmapErr)
	}
	if closeErr != nil {
		return fmt.Errorf("wal: failed to close segment %s: %w", s.path, closeErr)
	}
	return nil
}
