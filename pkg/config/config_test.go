package config

// ============================================================================
// Configuration tests
// ============================================================================

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, "ledger", cfg.EngineName)
	assert.Equal(t, 4, cfg.Partitions)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, uint64(10000), cfg.SnapshotInterval)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, FilterLRU, cfg.Idempotency)
	assert.Equal(t, RoutingRendezvous, cfg.Routing)
	assert.Equal(t, int64(64<<20), cfg.WAL.SegmentSize)
	assert.Equal(t, 1, cfg.WAL.SyncEvery)
	assert.Equal(t, 1, cfg.Cluster.TotalNodes)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{Partitions: 16, Idempotency: FilterBloom}
	cfg.ApplyDefaults()

	assert.Equal(t, 16, cfg.Partitions)
	assert.Equal(t, FilterBloom, cfg.Idempotency)
}

func TestValidate(t *testing.T) {
	valid := Config{BaseDir: "/tmp/x"}
	valid.ApplyDefaults()
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base_dir", func(c *Config) { c.BaseDir = "" }},
		{"missing engine_name", func(c *Config) { c.EngineName = "" }},
		{"zero partitions", func(c *Config) { c.Partitions = 0 }},
		{"unknown filter", func(c *Config) { c.Idempotency = "cuckoo" }},
		{"unknown routing", func(c *Config) { c.Routing = "ring" }},
		{"node id out of range", func(c *Config) { c.Cluster = Cluster{TotalNodes: 3, NodeID: 3} }},
		{"fp rate too high", func(c *Config) { c.Filter.FPRate = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPartitionDirLayout(t *testing.T) {
	cfg := Config{BaseDir: "/data", EngineName: "wallets"}
	cfg.ApplyDefaults()

	assert.Equal(t, filepath.Join("/data", "wallets", "wallets-p3"), cfg.PartitionDir(3))

	cfg.Cluster = Cluster{TotalNodes: 4, NodeID: 2}
	assert.Equal(t,
		filepath.Join("/data", "wallets", "node-2", "wallets-p0"),
		cfg.PartitionDir(0))
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
base_dir: /var/lib/ledger
engine_name: wallets
partitions: 8
queue_size: 512
batch_size: 64
snapshot_interval: 5000
enable_time_snapshot: true
snapshot_time_interval: 2m
idempotency: bloom
filter:
  expected_n: 500000
  fp_rate: 0.0001
routing: modulo
cluster:
  total_nodes: 2
  node_id: 1
metrics:
  enabled: true
  port: 9191
  prefix: wallets
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/ledger", cfg.BaseDir)
	assert.Equal(t, 8, cfg.Partitions)
	assert.Equal(t, 512, cfg.QueueSize)
	assert.Equal(t, uint64(5000), cfg.SnapshotInterval)
	assert.True(t, cfg.EnableTimeSnapshot)
	assert.Equal(t, 2*time.Minute, cfg.SnapshotTimeInterval)
	assert.Equal(t, FilterBloom, cfg.Idempotency)
	assert.Equal(t, uint(500000), cfg.Filter.ExpectedN)
	assert.Equal(t, RoutingModulo, cfg.Routing)
	assert.Equal(t, 1, cfg.Cluster.NodeID)
	assert.Equal(t, 9191, cfg.Metrics.Port)

	// Unset keys still get defaults.
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("partitions: [not a number"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
