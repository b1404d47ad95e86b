package routing

// ============================================================================
// Routing Strategy tests
// Purpose: verify range, determinism and the rendezvous migration property
// ============================================================================

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vevoly/atomic-ledger/pkg/config"
)

func TestNewSelectsStrategy(t *testing.T) {
	s, err := New(config.RoutingModulo)
	require.NoError(t, err)
	assert.Equal(t, "modulo", s.Name())

	s, err = New(config.RoutingRendezvous)
	require.NoError(t, err)
	assert.Equal(t, "rendezvous", s.Name())

	_, err = New("consistent-ring")
	assert.Error(t, err)
}

func TestPartitionOfRange(t *testing.T) {
	for _, s := range []Strategy{Modulo{}, Rendezvous{}} {
		for n := 1; n <= 16; n++ {
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("user-%d", i)
				idx := s.PartitionOf(key, n)
				require.GreaterOrEqual(t, idx, 0, "%s n=%d key=%s", s.Name(), n, key)
				require.Less(t, idx, n, "%s n=%d key=%s", s.Name(), n, key)
			}
		}
	}
}

func TestPartitionOfDeterministic(t *testing.T) {
	for _, s := range []Strategy{Modulo{}, Rendezvous{}} {
		for i := 0; i < 100; i++ {
			key := fmt.Sprintf("acct-%d", i)
			first := s.PartitionOf(key, 8)
			for rep := 0; rep < 10; rep++ {
				assert.Equal(t, first, s.PartitionOf(key, 8))
			}
		}
	}
}

func TestSinglePartitionAlwaysZero(t *testing.T) {
	for _, s := range []Strategy{Modulo{}, Rendezvous{}} {
		assert.Equal(t, 0, s.PartitionOf("anything", 1))
		assert.Equal(t, 0, s.PartitionOf("anything", 0))
	}
}

// TestRendezvousDistribution checks the spread is roughly uniform.
func TestRendezvousDistribution(t *testing.T) {
	const keys = 10000
	const n = 8

	counts := make([]int, n)
	for i := 0; i < keys; i++ {
		counts[Rendezvous{}.PartitionOf(fmt.Sprintf("key-%d", i), n)]++
	}

	expected := keys / n
	for i, c := range counts {
		assert.InDelta(t, expected, c, float64(expected)*0.25,
			"partition %d is badly unbalanced: %d", i, c)
	}
}

// TestRendezvousResizeMigration pins the minimum-migration property:
// growing n to n+1 remaps roughly 1/(n+1) of the keys.
func TestRendezvousResizeMigration(t *testing.T) {
	const keys = 10000
	const n = 8

	moved := 0
	for i := 0; i < keys; i++ {
		key := fmt.Sprintf("key-%d", i)
		if (Rendezvous{}).PartitionOf(key, n) != (Rendezvous{}).PartitionOf(key, n+1) {
			moved++
		}
	}

	frac := float64(moved) / keys
	assert.InDelta(t, 1.0/float64(n+1), frac, 0.03,
		"moved fraction %f, want about %f", frac, 1.0/float64(n+1))
}

// TestModuloResizeMigration documents the contrast: modulo remaps almost
// everything on resize.
func TestModuloResizeMigration(t *testing.T) {
	const keys = 10000
	const n = 8

	moved := 0
	for i := 0; i < keys; i++ {
		key := fmt.Sprintf("key-%d", i)
		if (Modulo{}).PartitionOf(key, n) != (Modulo{}).PartitionOf(key, n+1) {
			moved++
		}
	}

	assert.Greater(t, float64(moved)/keys, 0.5)
}
