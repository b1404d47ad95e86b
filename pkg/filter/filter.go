// ============================================================================
// Idempotency Filters
// ============================================================================
//
// Package: pkg/filter
// Purpose: Set membership over transaction IDs, per partition
//
// The engine treats Contains(txID) == true as "already applied" and rejects
// the command as a duplicate. Two variants:
//
//   - LRU: exact within its capacity. Contains is true iff Add happened
//     since the key was last evicted. Memory is O(capacity).
//   - Bloom: probabilistic. Contains may be a false positive (a genuinely
//     new command wrongly rejected, bounded by the configured rate) but is
//     never a false negative, so a transaction is applied at most once.
//
// Filters are part of the partition snapshot and must round-trip through
// MarshalBinary/UnmarshalBinary, including which variant they are.
//
// ============================================================================

package filter

import (
	"fmt"

	"github.com/vevoly/atomic-ledger/pkg/config"
)

// Filter is the set of applied transaction IDs for one partition. It is
// accessed only by the partition worker, so implementations need no locking
// of their own beyond what their backing structures already provide.
type Filter interface {
	// Contains reports whether txID was applied. For the LRU variant this
	// also refreshes the key's recency on a hit.
	Contains(txID string) bool

	// Add records txID as applied.
	Add(txID string)

	// Clear empties the filter.
	Clear()

	// Len returns the tracked entry count (approximate for Bloom).
	Len() int

	// Kind names the variant for snapshot round-trips.
	Kind() string

	// MarshalBinary serializes the filter for a snapshot.
	MarshalBinary() ([]byte, error)

	// UnmarshalBinary restores the filter from snapshot bytes.
	UnmarshalBinary(data []byte) error
}

// Options sizes a filter.
type Options struct {
	// Capacity bounds the LRU variant.
	Capacity int

	// ExpectedN and FPRate size the Bloom variant.
	ExpectedN uint
	FPRate    float64
}

// New builds the filter variant registered under kind.
func New(kind string, opts Options) (Filter, error) {
	switch kind {
	case config.FilterLRU:
		return NewLRU(opts.Capacity)
	case config.FilterBloom:
		return NewBloom(opts.ExpectedN, opts.FPRate)
	default:
		return nil, fmt.Errorf("filter: unknown kind %q", kind)
	}
}
