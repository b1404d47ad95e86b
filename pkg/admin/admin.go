// ============================================================================
// Atomic-Ledger Admin Inspection
// ============================================================================
//
// Package: pkg/admin
// File: admin.go
// Purpose: Read-only operator tooling over a partition's on-disk data
//
// Everything here opens the stores read-only and is meant to run offline or
// against a quiescent partition directory: paginated WAL scans (forward and
// backward, with optional routing-key or transaction-ID filters) and a
// snapshot dump. Diagnostic surface only; never part of the hot path.
//
// ============================================================================

package admin

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/vevoly/atomic-ledger/pkg/snapshot"
	"github.com/vevoly/atomic-ledger/pkg/types"
	"github.com/vevoly/atomic-ledger/pkg/wal"
)

// PageQuery selects a window of WAL records.
type PageQuery struct {
	// From is the cursor: forward pages return indices > From; backward
	// pages return indices < From (0 means "from the end" when backward,
	// "from the beginning" when forward).
	From uint64

	// Limit caps the page size. Defaults to 50.
	Limit int

	// Backward pages toward older records.
	Backward bool

	// RoutingKey and TxID filter records after decoding; empty matches all.
	RoutingKey string
	TxID       string
}

// Entry summarizes one WAL record.
type Entry struct {
	Index      uint64 `json:"index"`
	TypeKey    string `json:"type_key"`
	TxID       string `json:"tx_id,omitempty"`
	RoutingKey string `json:"routing_key,omitempty"`
	Size       int    `json:"size"`
}

// Page is one window of the scan.
type Page struct {
	Entries []Entry `json:"entries"`
	// NextFrom is the index of the last entry on this page; pass it as From
	// to continue in the same direction. 0 when the page is empty. HasMore
	// reports whether further matches exist beyond this page.
	NextFrom uint64 `json:"next_from"`
	HasMore  bool   `json:"has_more"`
}

// ScanWAL pages through the WAL under partitionDir. Records are decoded
// with reg so filters can match on business identifiers; a record whose
// type has no registered decoder still appears, with TxID and RoutingKey
// left empty.
func ScanWAL(partitionDir string, reg types.DecoderRegistry, q PageQuery) (Page, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	store, err := wal.Open(filepath.Join(partitionDir, "wal"), wal.Options{
		ReadOnly: true,
		Logger:   zerolog.Nop(),
	})
	if err != nil {
		return Page{}, err
	}
	defer store.Close()

	if q.Backward {
		return scanBackward(store, reg, q)
	}
	return scanForward(store, reg, q)
}

func scanForward(store *wal.Store, reg types.DecoderRegistry, q PageQuery) (Page, error) {
	cursor, err := store.ScanFrom(q.From)
	if err != nil {
		return Page{}, err
	}
	defer cursor.Close()

	var page Page
	for {
		rec, ok, err := cursor.Next()
		if err != nil {
			return page, err
		}
		if !ok {
			return page, nil
		}

		entry := toEntry(rec, reg)
		if !matches(entry, q) {
			continue
		}
		if len(page.Entries) == q.Limit {
			page.HasMore = true
			return page, nil
		}
		page.Entries = append(page.Entries, entry)
		page.NextFrom = rec.Index
	}
}

// scanBackward walks forward keeping a bounded window of the most recent
// matches below the cursor, then reverses it. Linear in log size, bounded
// in memory; fine for a diagnostic surface.
func scanBackward(store *wal.Store, reg types.DecoderRegistry, q PageQuery) (Page, error) {
	cursor, err := store.ScanFrom(0)
	if err != nil {
		return Page{}, err
	}
	defer cursor.Close()

	upper := q.From
	if upper == 0 {
		upper = store.LastIndex() + 1
	}

	window := make([]Entry, 0, q.Limit+1)
	for {
		rec, ok, err := cursor.Next()
		if err != nil {
			return Page{}, err
		}
		if !ok || rec.Index >= upper {
			break
		}

		entry := toEntry(rec, reg)
		if !matches(entry, q) {
			continue
		}
		window = append(window, entry)
		if len(window) > q.Limit+1 {
			window = window[1:]
		}
	}

	var page Page
	if len(window) > q.Limit {
		page.HasMore = true
		window = window[1:]
	}

	// Newest first.
	for i := len(window) - 1; i >= 0; i-- {
		page.Entries = append(page.Entries, window[i])
	}
	if len(page.Entries) > 0 {
		page.NextFrom = page.Entries[len(page.Entries)-1].Index
	}
	return page, nil
}

func toEntry(rec wal.Record, reg types.DecoderRegistry) Entry {
	entry := Entry{
		Index:   rec.Index,
		TypeKey: rec.TypeKey,
		Size:    len(rec.Payload),
	}
	if cmd, err := reg.Decode(rec.TypeKey, rec.Payload); err == nil {
		entry.TxID = cmd.TxID()
		entry.RoutingKey = cmd.RoutingKey()
	}
	return entry
}

func matches(e Entry, q PageQuery) bool {
	if q.RoutingKey != "" && e.RoutingKey != q.RoutingKey {
		return false
	}
	if q.TxID != "" && e.TxID != q.TxID {
		return false
	}
	return true
}

// SnapshotInfo describes the canonical snapshot of one partition.
type SnapshotInfo struct {
	Path         string    `json:"path"`
	ModTime      time.Time `json:"mod_time"`
	SchemaVer    int       `json:"schema_ver"`
	LastWALIndex uint64    `json:"last_wal_index"`
	FilterKind   string    `json:"filter_kind"`
	FilterBytes  int       `json:"filter_bytes"`
	StateBytes   int       `json:"state_bytes"`
}

// DumpSnapshot reads the snapshot envelope under partitionDir. Diagnostic
// only: payloads are reported by size, not content.
func DumpSnapshot(partitionDir string) (SnapshotInfo, error) {
	mgr := snapshot.NewManager(filepath.Join(partitionDir, "snapshot"), zerolog.Nop())

	c, ok, err := mgr.Load()
	if err != nil {
		return SnapshotInfo{}, err
	}
	if !ok {
		return SnapshotInfo{}, fmt.Errorf("admin: no usable snapshot under %s", partitionDir)
	}

	info := SnapshotInfo{
		Path:         mgr.Path(),
		SchemaVer:    c.SchemaVer,
		LastWALIndex: c.LastWALIndex,
		FilterKind:   c.FilterKind,
		FilterBytes:  len(c.FilterData),
		StateBytes:   len(c.StateData),
	}
	if st, err := os.Stat(mgr.Path()); err == nil {
		info.ModTime = st.ModTime()
	}
	return info, nil
}
