package filter

import (
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vevoly/atomic-ledger/pkg/config"
)

// LRU is the exact idempotency filter: a capacity-bounded set with
// least-recently-accessed eviction. Recency is refreshed on both Add and a
// Contains hit, so hot transaction IDs stay resident.
type LRU struct {
	capacity int
	cache    *lru.Cache[string, struct{}]
}

// lruSnapshot is the serialized form. Keys are ordered oldest to newest so
// restoring re-adds them in the same order and preserves eviction order.
type lruSnapshot struct {
	Capacity int      `json:"capacity"`
	Keys     []string `json:"keys"`
}

// NewLRU creates an exact filter holding at most capacity transaction IDs.
func NewLRU(capacity int) (*LRU, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("filter: lru capacity must be positive, got %d", capacity)
	}
	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return &LRU{capacity: capacity, cache: cache}, nil
}

// Contains implements Filter. A hit refreshes the key's recency.
func (f *LRU) Contains(txID string) bool {
	_, ok := f.cache.Get(txID)
	return ok
}

// Add implements Filter. At capacity, the least-recently-accessed key is
// evicted.
func (f *LRU) Add(txID string) {
	f.cache.Add(txID, struct{}{})
}

// Clear implements Filter.
func (f *LRU) Clear() {
	f.cache.Purge()
}

// Len implements Filter.
func (f *LRU) Len() int {
	return f.cache.Len()
}

// Kind implements Filter.
func (f *LRU) Kind() string {
	return config.FilterLRU
}

// MarshalBinary implements Filter.
func (f *LRU) MarshalBinary() ([]byte, error) {
	snap := lruSnapshot{
		Capacity: f.capacity,
		Keys:     f.cache.Keys(), // oldest to newest
	}
	return json.Marshal(snap)
}

// UnmarshalBinary implements Filter.
func (f *LRU) UnmarshalBinary(data []byte) error {
	var snap lruSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("filter: corrupt lru snapshot: %w", err)
	}
	if snap.Capacity <= 0 {
		return fmt.Errorf("filter: invalid lru capacity %d in snapshot", snap.Capacity)
	}

	cache, err := lru.New[string, struct{}](snap.Capacity)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	for _, key := range snap.Keys {
		cache.Add(key, struct{}{})
	}

	f.capacity = snap.Capacity
	f.cache = cache
	return nil
}
