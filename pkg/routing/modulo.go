package routing

import (
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/vevoly/atomic-ledger/pkg/config"
)

// Modulo hashes the key and reduces it modulo n. Fast, but unstable under a
// change of n: almost every key remaps when partitions are added.
type Modulo struct{}

// PartitionOf implements Strategy.
func (Modulo) PartitionOf(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := xxhash.Sum64String(key) & math.MaxInt64
	return int(h % uint64(n))
}

// Name implements Strategy.
func (Modulo) Name() string {
	return config.RoutingModulo
}
