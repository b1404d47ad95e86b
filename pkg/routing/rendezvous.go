package routing

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/vevoly/atomic-ledger/pkg/config"
)

// Rendezvous implements highest-random-weight hashing: every candidate index
// is scored with a 64-bit hash of (key, index) and the highest score wins.
// Growing n to n+1 remaps only ~1/(n+1) of the keys, so resizes migrate the
// minimum possible share of aggregates.
type Rendezvous struct{}

// PartitionOf implements Strategy. Ties break toward the lowest index.
func (Rendezvous) PartitionOf(key string, n int) int {
	if n <= 1 {
		return 0
	}

	best := 0
	var bestScore uint64
	var d xxhash.Digest

	for i := 0; i < n; i++ {
		d.Reset()
		_, _ = d.WriteString(key)
		_, _ = d.WriteString("#")
		_, _ = d.WriteString(strconv.Itoa(i))
		score := d.Sum64()

		// Strict > keeps the lowest index on equal scores.
		if i == 0 || score > bestScore {
			best = i
			bestScore = score
		}
	}

	return best
}

// Name implements Strategy.
func (Rendezvous) Name() string {
	return config.RoutingRendezvous
}
