// ============================================================================
// Atomic-Ledger Engine Router
// ============================================================================
//
// Package: pkg/engine
// File: engine.go
// Purpose: Own the partitions, dispatch commands by routing key, lifecycle
//
// The engine is a thin router over N fully independent single-writer
// partitions. Same-key commands always land on the same partition, so all
// operations on one aggregate are totally ordered; operations on different
// aggregates interleave arbitrarily. Reads are point-in-time consistent per
// partition only — there is no cross-partition transaction.
//
// ============================================================================

package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vevoly/atomic-ledger/pkg/config"
	"github.com/vevoly/atomic-ledger/pkg/partition"
	"github.com/vevoly/atomic-ledger/pkg/routing"
	"github.com/vevoly/atomic-ledger/pkg/types"
)

// Engine routes commands onto partitions.
type Engine struct {
	cfg        config.Config
	strategy   routing.Strategy
	partitions []*partition.Partition
	logger     zerolog.Logger

	started atomic.Bool
	stopped atomic.Bool
}

// Config returns the effective configuration (defaults applied).
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Strategy returns the routing strategy in use.
func (e *Engine) Strategy() routing.Strategy {
	return e.strategy
}

// Partitions returns the partition count.
func (e *Engine) Partitions() int {
	return len(e.partitions)
}

// Start recovers and launches all partitions in parallel. If any partition
// fails to recover, the already-started ones are stopped and the engine is
// unusable: a partial engine must not serve traffic.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return fmt.Errorf("engine: already started")
	}

	e.logger.Info().
		Int("partitions", len(e.partitions)).
		Str("routing", e.strategy.Name()).
		Str("idempotency", e.cfg.Idempotency).
		Msg("engine starting")

	var wg sync.WaitGroup
	errs := make([]error, len(e.partitions))
	for i, p := range e.partitions {
		wg.Add(1)
		go func(i int, p *partition.Partition) {
			defer wg.Done()
			errs[i] = p.Start(ctx)
		}(i, p)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			e.logger.Error().Err(err).Int("partition", i).Msg("partition start failed")
			e.stopAll(ctx)
			e.stopped.Store(true)
			return err
		}
	}

	e.logger.Info().Msg("engine running")
	return nil
}

// Submit routes cmd to its partition and returns a completion handle. The
// call blocks while the partition's mailbox is full (backpressure).
func (e *Engine) Submit(cmd types.Command) (*types.Future, error) {
	fut := types.NewFuture()
	if err := e.submit(cmd, fut); err != nil {
		return nil, err
	}
	return fut, nil
}

// SubmitNoReply is the fire-and-forget variant: no handle is allocated and
// outcomes are visible only in logs and metrics.
func (e *Engine) SubmitNoReply(cmd types.Command) error {
	return e.submit(cmd, nil)
}

// SubmitAndWait submits and blocks until the command completes or ctx ends.
func (e *Engine) SubmitAndWait(ctx context.Context, cmd types.Command) (any, error) {
	fut, err := e.Submit(cmd)
	if err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

func (e *Engine) submit(cmd types.Command, fut *types.Future) error {
	if !e.started.Load() || e.stopped.Load() {
		return types.ErrEngineClosed
	}

	key := cmd.RoutingKey()
	if key == "" {
		return fmt.Errorf("engine: command %s has no routing key", cmd.TxID())
	}

	// Cross-node ownership self-check: with an external router in front of
	// several nodes, a key landing on the wrong node is a routing error,
	// not something to heal locally.
	if e.cfg.Cluster.TotalNodes > 1 {
		node := e.strategy.PartitionOf(key, e.cfg.Cluster.TotalNodes)
		if node != e.cfg.Cluster.NodeID {
			return fmt.Errorf("%w: key %q belongs to node %d, this is node %d",
				types.ErrWrongNode, key, node, e.cfg.Cluster.NodeID)
		}
	}

	idx := e.strategy.PartitionOf(key, len(e.partitions))
	return e.partitions[idx].Submit(cmd, fut)
}

// Query runs fn against a point-in-time view of the partition owning key.
// Consistency holds for that partition only.
func (e *Engine) Query(ctx context.Context, key string, fn func(types.State)) error {
	if !e.started.Load() {
		return types.ErrEngineClosed
	}
	idx := e.strategy.PartitionOf(key, len(e.partitions))
	return e.partitions[idx].Query(ctx, fn)
}

// PartitionOf exposes the routing decision, mainly for operators and tests.
func (e *Engine) PartitionOf(key string) int {
	return e.strategy.PartitionOf(key, len(e.partitions))
}

// PartitionPhase reports the lifecycle phase of partition k.
func (e *Engine) PartitionPhase(k int) partition.Phase {
	return e.partitions[k].Phase()
}

// Stop drains and stops all partitions. Calls after the first one return nil.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.started.Load() {
		return types.ErrEngineClosed
	}
	if !e.stopped.CompareAndSwap(false, true) {
		return nil
	}

	e.logger.Info().Msg("engine stopping")
	err := e.stopAll(ctx)
	if err == nil {
		e.logger.Info().Msg("engine stopped")
	}
	return err
}

func (e *Engine) stopAll(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, len(e.partitions))
	for i, p := range e.partitions {
		wg.Add(1)
		go func(i int, p *partition.Partition) {
			defer wg.Done()
			errs[i] = p.Stop(ctx)
		}(i, p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
