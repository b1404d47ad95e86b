package filter

// ============================================================================
// Idempotency Filter tests
// Purpose: verify membership semantics, LRU eviction order and snapshot
// round-trips for both variants
// ============================================================================

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vevoly/atomic-ledger/pkg/config"
)

func TestNewSelectsVariant(t *testing.T) {
	f, err := New(config.FilterLRU, Options{Capacity: 10})
	require.NoError(t, err)
	assert.Equal(t, "lru", f.Kind())

	f, err = New(config.FilterBloom, Options{ExpectedN: 1000, FPRate: 0.01})
	require.NoError(t, err)
	assert.Equal(t, "bloom", f.Kind())

	_, err = New("cuckoo", Options{})
	assert.Error(t, err)
}

func TestAddThenContains(t *testing.T) {
	lru, err := NewLRU(100)
	require.NoError(t, err)
	bl, err := NewBloom(1000, 0.01)
	require.NoError(t, err)

	for _, f := range []Filter{lru, bl} {
		assert.False(t, f.Contains("tx-1"), f.Kind())
		f.Add("tx-1")
		assert.True(t, f.Contains("tx-1"), f.Kind())

		f.Clear()
		assert.False(t, f.Contains("tx-1"), f.Kind())
		assert.Equal(t, 0, f.Len(), f.Kind())
	}
}

func TestLRUEviction(t *testing.T) {
	f, err := NewLRU(3)
	require.NoError(t, err)

	f.Add("a")
	f.Add("b")
	f.Add("c")
	f.Add("d") // evicts a

	assert.False(t, f.Contains("a"))
	assert.True(t, f.Contains("b"))
	assert.True(t, f.Contains("c"))
	assert.True(t, f.Contains("d"))
	assert.Equal(t, 3, f.Len())
}

// TestLRUContainsRefreshesRecency pins that a Contains hit counts as an
// access: the hit key survives the next eviction instead of the key added
// after it.
func TestLRUContainsRefreshesRecency(t *testing.T) {
	f, err := NewLRU(3)
	require.NoError(t, err)

	f.Add("a")
	f.Add("b")
	f.Add("c")
	require.True(t, f.Contains("a")) // a is now most recent
	f.Add("d")                       // evicts b, the least recently accessed

	assert.True(t, f.Contains("a"))
	assert.False(t, f.Contains("b"))
}

func TestLRUInvalidCapacity(t *testing.T) {
	_, err := NewLRU(0)
	assert.Error(t, err)
}

func TestBloomNoFalseNegatives(t *testing.T) {
	f, err := NewBloom(10000, 0.01)
	require.NoError(t, err)

	for i := 0; i < 5000; i++ {
		f.Add(fmt.Sprintf("tx-%d", i))
	}
	for i := 0; i < 5000; i++ {
		require.True(t, f.Contains(fmt.Sprintf("tx-%d", i)))
	}
}

func TestBloomInvalidOptions(t *testing.T) {
	_, err := NewBloom(0, 0.01)
	assert.Error(t, err)
	_, err = NewBloom(100, 0)
	assert.Error(t, err)
	_, err = NewBloom(100, 1)
	assert.Error(t, err)
}

func TestLRURoundTrip(t *testing.T) {
	f, err := NewLRU(3)
	require.NoError(t, err)
	f.Add("a")
	f.Add("b")
	f.Add("c")
	require.True(t, f.Contains("b")) // reorder: a, c, b

	data, err := f.MarshalBinary()
	require.NoError(t, err)

	restored, err := NewLRU(1) // capacity comes from the snapshot
	require.NoError(t, err)
	require.NoError(t, restored.UnmarshalBinary(data))

	assert.Equal(t, 3, restored.Len())
	assert.True(t, restored.Contains("a"))
	assert.True(t, restored.Contains("c"))

	// Eviction order survived the round-trip: a is still the oldest entry.
	restored2, err := NewLRU(1)
	require.NoError(t, err)
	require.NoError(t, restored2.UnmarshalBinary(data))
	restored2.Add("d") // at capacity 3: evicts the oldest, a
	assert.False(t, restored2.Contains("a"))
	assert.True(t, restored2.Contains("b"))
}

func TestBloomRoundTrip(t *testing.T) {
	f, err := NewBloom(1000, 0.01)
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		f.Add(fmt.Sprintf("tx-%d", i))
	}

	data, err := f.MarshalBinary()
	require.NoError(t, err)

	restored, err := NewBloom(1, 0.5)
	require.NoError(t, err)
	require.NoError(t, restored.UnmarshalBinary(data))

	assert.Equal(t, 500, restored.Len())
	for i := 0; i < 500; i++ {
		require.True(t, restored.Contains(fmt.Sprintf("tx-%d", i)))
	}
}

func TestUnmarshalCorrupt(t *testing.T) {
	lru, err := NewLRU(3)
	require.NoError(t, err)
	assert.Error(t, lru.UnmarshalBinary([]byte("not json")))

	bl, err := NewBloom(100, 0.01)
	require.NoError(t, err)
	assert.Error(t, bl.UnmarshalBinary([]byte{1, 2, 3}))
}
