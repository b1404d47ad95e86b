// ============================================================================
// Engine Builder
// ============================================================================
//
// Package: pkg/engine
// File: builder.go
// Purpose: Explicit, validated wiring of all engine collaborators
//
// Everything the engine needs — processor, persister, bootstrap, and the
// optional filter and routing overrides — is passed to the builder, which
// validates the combination and returns a ready (not yet started) engine.
//
// ============================================================================

package engine

import (
	"errors"
	"fmt"

	"github.com/vevoly/atomic-ledger/pkg/config"
	"github.com/vevoly/atomic-ledger/pkg/filter"
	"github.com/vevoly/atomic-ledger/pkg/log"
	"github.com/vevoly/atomic-ledger/pkg/metrics"
	"github.com/vevoly/atomic-ledger/pkg/partition"
	"github.com/vevoly/atomic-ledger/pkg/routing"
	"github.com/vevoly/atomic-ledger/pkg/types"
)

// FilterFactory builds one idempotency filter per partition. Partitions
// must never share a filter instance.
type FilterFactory func() (filter.Filter, error)

// Builder assembles an engine.
type Builder struct {
	cfg       config.Config
	proc      types.Processor
	pers      types.Persister
	boot      types.Bootstrap
	strategy  routing.Strategy
	filters   FilterFactory
	collector *metrics.Collector
}

// New starts a builder from cfg. Defaults are applied during Build.
func New(cfg config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// WithProcessor sets the user-supplied command processor. Required.
func (b *Builder) WithProcessor(p types.Processor) *Builder {
	b.proc = p
	return b
}

// WithPersister sets the async persistence sink. Required.
func (b *Builder) WithPersister(p types.Persister) *Builder {
	b.pers = p
	return b
}

// WithBootstrap sets the cold-start state factory and decoder registry.
// Required.
func (b *Builder) WithBootstrap(bs types.Bootstrap) *Builder {
	b.boot = bs
	return b
}

// WithStrategy overrides the routing strategy selected by configuration.
func (b *Builder) WithStrategy(s routing.Strategy) *Builder {
	b.strategy = s
	return b
}

// WithFilterFactory overrides the idempotency filter selected by
// configuration.
func (b *Builder) WithFilterFactory(f FilterFactory) *Builder {
	b.filters = f
	return b
}

// WithMetrics attaches a collector. Without one the engine runs unmetered.
func (b *Builder) WithMetrics(c *metrics.Collector) *Builder {
	b.collector = c
	return b
}

// Build validates the configuration and collaborators and constructs the
// engine. No I/O happens until Start.
func (b *Builder) Build() (*Engine, error) {
	cfg := b.cfg
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.proc == nil {
		return nil, errors.New("engine: processor is required")
	}
	if b.pers == nil {
		return nil, errors.New("engine: persister is required")
	}
	if b.boot == nil {
		return nil, errors.New("engine: bootstrap is required")
	}
	if len(b.boot.Decoders()) == 0 {
		return nil, errors.New("engine: bootstrap must register at least one command decoder")
	}

	strategy := b.strategy
	if strategy == nil {
		var err error
		strategy, err = routing.New(cfg.Routing)
		if err != nil {
			return nil, err
		}
	}

	filters := b.filters
	if filters == nil {
		filters = func() (filter.Filter, error) {
			return filter.New(cfg.Idempotency, filter.Options{
				Capacity:  cfg.Filter.Capacity,
				ExpectedN: cfg.Filter.ExpectedN,
				FPRate:    cfg.Filter.FPRate,
			})
		}
	}

	e := &Engine{
		cfg:        cfg,
		strategy:   strategy,
		partitions: make([]*partition.Partition, cfg.Partitions),
		logger:     log.WithEngine("engine", cfg.EngineName),
	}

	for k := 0; k < cfg.Partitions; k++ {
		f, err := filters()
		if err != nil {
			return nil, fmt.Errorf("engine: partition %d filter: %w", k, err)
		}
		e.partitions[k] = partition.New(partition.Options{
			Index:     k,
			Config:    cfg,
			Dir:       cfg.PartitionDir(k),
			Processor: b.proc,
			Persister: b.pers,
			Bootstrap: b.boot,
			Filter:    f,
			Metrics:   b.collector,
			Logger:    log.WithPartition("partition", cfg.EngineName, k),
		})
	}

	return e, nil
}
