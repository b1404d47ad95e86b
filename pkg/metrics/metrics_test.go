package metrics

// ============================================================================
// Metrics collector tests
// ============================================================================

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("testledger", "wallets")
	require.NoError(t, c.Register(reg))

	c.RecordApplied(0)
	c.RecordApplied(0)
	c.RecordDuplicate(1)
	c.SetMailboxRemaining(0, 512)
	c.SetWriterQueueLen(1, 7)
	c.ObservePersistBatch(0, 0.02)
	c.SetRecoveryTime(0, 1.5)

	applied := c.commandsApplied.With(prometheus.Labels{"engine": "wallets", "partition": "0"})
	assert.Equal(t, float64(2), testutil.ToFloat64(applied))

	dup := c.duplicatesRejected.With(prometheus.Labels{"engine": "wallets", "partition": "1"})
	assert.Equal(t, float64(1), testutil.ToFloat64(dup))

	remaining := c.mailboxRemaining.With(prometheus.Labels{"engine": "wallets", "partition": "0"})
	assert.Equal(t, float64(512), testutil.ToFloat64(remaining))
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("testledger", "wallets")
	require.NoError(t, c.Register(reg))
	assert.Error(t, c.Register(reg))
}

// TestNilCollectorIsNoOp pins the hot-path contract: an engine without
// metrics never branches, it just calls into a nil receiver.
func TestNilCollectorIsNoOp(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordApplied(0)
		c.RecordDuplicate(0)
		c.RecordProcessorFailure(0)
		c.RecordPersistRetry(0)
		c.SetMailboxRemaining(0, 1)
		c.SetWriterQueueLen(0, 1)
		c.ObservePersistBatch(0, 0.1)
		c.ObserveSnapshot(0, 0.1)
		c.SetRecoveryTime(0, 0.1)
		assert.NoError(t, c.Register(prometheus.NewRegistry()))
	})
}
