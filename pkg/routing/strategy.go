// ============================================================================
// Routing Strategies
// ============================================================================
//
// Package: pkg/routing
// Purpose: Pure key → partition-index functions
//
// A strategy must be deterministic and stateless: for a fixed n, the same
// key always maps to the same index. The router uses one strategy for
// intra-node partition selection; with more than one cluster node, the same
// strategy also verifies that this node owns the key at all.
//
// ============================================================================

package routing

import (
	"fmt"

	"github.com/vevoly/atomic-ledger/pkg/config"
)

// Strategy maps a routing key onto one of n partitions.
type Strategy interface {
	// PartitionOf returns an index in [0, n). Pure and stateless.
	PartitionOf(key string, n int) int

	// Name identifies the strategy in config and logs.
	Name() string
}

// New returns the strategy registered under name.
func New(name string) (Strategy, error) {
	switch name {
	case config.RoutingModulo:
		return Modulo{}, nil
	case config.RoutingRendezvous:
		return Rendezvous{}, nil
	default:
		return nil, fmt.Errorf("routing: unknown strategy %q", name)
	}
}
