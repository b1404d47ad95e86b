// ============================================================================
// Engine Configuration
// ============================================================================
//
// Package: pkg/config
// Purpose: Declarative engine configuration with YAML mapping, defaulting
// and validation. The CLI loads it from a file; embedders build it in code.
//
// ============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Idempotency filter kinds
const (
	FilterLRU   = "lru"
	FilterBloom = "bloom"
)

// Routing strategy names
const (
	RoutingModulo     = "modulo"
	RoutingRendezvous = "rendezvous"
)

// Cluster identifies this node inside an externally-routed cluster. With
// TotalNodes <= 1 the cross-node ownership check is disabled.
type Cluster struct {
	TotalNodes int `yaml:"total_nodes"`
	NodeID     int `yaml:"node_id"`
}

// WAL holds write-ahead log tuning.
type WAL struct {
	// SegmentSize is the pre-allocated, memory-mapped size of one segment
	// file in bytes.
	SegmentSize int64 `yaml:"segment_size"`

	// SyncEvery flushes the mapped region after this many appended records.
	// 1 means every append is durable before it returns.
	SyncEvery int `yaml:"sync_every"`
}

// Filter holds idempotency filter sizing.
type Filter struct {
	// Capacity bounds the exact LRU variant.
	Capacity int `yaml:"capacity"`

	// ExpectedN and FPRate size the Bloom variant.
	ExpectedN uint    `yaml:"expected_n"`
	FPRate    float64 `yaml:"fp_rate"`
}

// Metrics holds the observability surface configuration.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Prefix  string `yaml:"prefix"`
}

// Config is the complete engine configuration.
type Config struct {
	// BaseDir is the root directory for all partition data.
	BaseDir string `yaml:"base_dir"`

	// EngineName isolates multiple engines under the same BaseDir and tags
	// emitted metrics.
	EngineName string `yaml:"engine_name"`

	// Partitions is the number of single-writer partitions.
	Partitions int `yaml:"partitions"`

	// MailboxSize bounds each partition's command queue. Producers block
	// when it is full.
	MailboxSize int `yaml:"mailbox_size"`

	// QueueSize bounds the async-writer FIFO per partition.
	QueueSize int `yaml:"queue_size"`

	// BatchSize caps the batch handed to one Persist call.
	BatchSize int `yaml:"batch_size"`

	// SnapshotInterval triggers a snapshot after this many WAL records
	// since the last one. ApplyDefaults replaces 0 with 10000, so a config
	// that went through it always has the count trigger enabled.
	SnapshotInterval uint64 `yaml:"snapshot_interval"`

	// EnableTimeSnapshot toggles the time trigger.
	EnableTimeSnapshot bool `yaml:"enable_time_snapshot"`

	// SnapshotTimeInterval is the time trigger duration.
	SnapshotTimeInterval time.Duration `yaml:"snapshot_time_interval"`

	// HeartbeatInterval paces the sentinel events that let the time trigger
	// fire under zero load.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// RetryBackoff is the sleep between persist retries.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// DrainTimeout bounds how long a failing persist is retried during the
	// async-writer drain on shutdown. Batches that persist successfully are
	// delivered regardless of it.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// Idempotency selects the filter variant: "lru" or "bloom".
	Idempotency string `yaml:"idempotency"`

	// Routing selects the strategy: "modulo" or "rendezvous".
	Routing string `yaml:"routing"`

	Filter  Filter  `yaml:"filter"`
	WAL     WAL     `yaml:"wal"`
	Cluster Cluster `yaml:"cluster"`
	Metrics Metrics `yaml:"metrics"`
}

// ApplyDefaults fills unset fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.EngineName == "" {
		c.EngineName = "ledger"
	}
	if c.Partitions <= 0 {
		c.Partitions = 4
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = 1024
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 4096
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = 10000
	}
	if c.SnapshotTimeInterval <= 0 {
		c.SnapshotTimeInterval = 5 * time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 10 * time.Second
	}
	if c.Idempotency == "" {
		c.Idempotency = FilterLRU
	}
	if c.Routing == "" {
		c.Routing = RoutingRendezvous
	}
	if c.Filter.Capacity <= 0 {
		c.Filter.Capacity = 100000
	}
	if c.Filter.ExpectedN == 0 {
		c.Filter.ExpectedN = 1000000
	}
	if c.Filter.FPRate <= 0 {
		c.Filter.FPRate = 1e-6
	}
	if c.WAL.SegmentSize <= 0 {
		c.WAL.SegmentSize = 64 << 20
	}
	if c.WAL.SyncEvery <= 0 {
		c.WAL.SyncEvery = 1
	}
	if c.Cluster.TotalNodes <= 0 {
		c.Cluster.TotalNodes = 1
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Prefix == "" {
		c.Metrics.Prefix = "ledger"
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.BaseDir == "" {
		return errors.New("config: base_dir is required")
	}
	if c.EngineName == "" {
		return errors.New("config: engine_name is required")
	}
	if c.Partitions <= 0 {
		return fmt.Errorf("config: partitions must be positive, got %d", c.Partitions)
	}
	switch c.Idempotency {
	case FilterLRU, FilterBloom:
	default:
		return fmt.Errorf("config: unknown idempotency filter %q", c.Idempotency)
	}
	switch c.Routing {
	case RoutingModulo, RoutingRendezvous:
	default:
		return fmt.Errorf("config: unknown routing strategy %q", c.Routing)
	}
	if c.Cluster.TotalNodes > 1 {
		if c.Cluster.NodeID < 0 || c.Cluster.NodeID >= c.Cluster.TotalNodes {
			return fmt.Errorf("config: node_id %d out of range for %d nodes",
				c.Cluster.NodeID, c.Cluster.TotalNodes)
		}
	}
	if c.Filter.FPRate >= 1 {
		return fmt.Errorf("config: fp_rate must be below 1, got %g", c.Filter.FPRate)
	}
	return nil
}

// EngineDir returns the engine's root data directory, including the node
// subdirectory when running in a cluster.
func (c Config) EngineDir() string {
	dir := filepath.Join(c.BaseDir, c.EngineName)
	if c.Cluster.TotalNodes > 1 {
		dir = filepath.Join(dir, fmt.Sprintf("node-%d", c.Cluster.NodeID))
	}
	return dir
}

// PartitionDir returns the data directory of partition k:
// <base_dir>/<engine_name>/[node-<id>/]<engine_name>-p<k>/
func (c Config) PartitionDir(k int) string {
	return filepath.Join(c.EngineDir(), fmt.Sprintf("%s-p%d", c.EngineName, k))
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return cfg, nil
}
