// ============================================================================
// Atomic-Ledger Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: pkg/metrics
// File: metrics.go
// Purpose: Collect and expose engine metrics for Prometheus monitoring
//
// All series are tagged with {engine, partition}. The metric name prefix is
// configurable per engine so several engines can share a registry.
//
// A nil *Collector is valid everywhere and records nothing, so the hot path
// never branches on "metrics enabled".
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects engine metrics.
type Collector struct {
	engine string

	// Saturation gauges
	mailboxRemaining *prometheus.GaugeVec
	writerQueueLen   *prometheus.GaugeVec

	// Throughput counters
	commandsApplied    *prometheus.CounterVec
	duplicatesRejected *prometheus.CounterVec
	processorFailures  *prometheus.CounterVec
	persistRetries     *prometheus.CounterVec

	// Latency
	persistLatency   *prometheus.HistogramVec
	snapshotDuration *prometheus.HistogramVec
	recoverySeconds  *prometheus.GaugeVec
}

// NewCollector creates a collector for one engine. Metrics are not
// registered yet; call Register with the target registerer.
func NewCollector(prefix, engine string) *Collector {
	if prefix == "" {
		prefix = "ledger"
	}
	labels := []string{"engine", "partition"}

	return &Collector{
		engine: engine,
		mailboxRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_mailbox_remaining_capacity",
			Help: "Remaining slots in the partition command queue",
		}, labels),
		writerQueueLen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_writer_queue_length",
			Help: "Entities waiting in the async-writer FIFO",
		}, labels),
		commandsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_commands_applied_total",
			Help: "Commands applied to partition state",
		}, labels),
		duplicatesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_duplicates_rejected_total",
			Help: "Commands rejected by the idempotency filter",
		}, labels),
		processorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_processor_failures_total",
			Help: "Commands rejected by the processor",
		}, labels),
		persistRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_persist_retries_total",
			Help: "Failed persist attempts that were retried",
		}, labels),
		persistLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_persist_batch_seconds",
			Help:    "Latency of one persist batch",
			Buckets: prometheus.DefBuckets,
		}, labels),
		snapshotDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_snapshot_seconds",
			Help:    "Time spent writing one snapshot",
			Buckets: prometheus.DefBuckets,
		}, labels),
		recoverySeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_recovery_seconds",
			Help: "Duration of the last partition recovery",
		}, labels),
	}
}

// Register registers all series with reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	if c == nil {
		return nil
	}
	for _, col := range []prometheus.Collector{
		c.mailboxRemaining, c.writerQueueLen,
		c.commandsApplied, c.duplicatesRejected,
		c.processorFailures, c.persistRetries,
		c.persistLatency, c.snapshotDuration, c.recoverySeconds,
	} {
		if err := reg.Register(col); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}
	return nil
}

func (c *Collector) labels(partition int) prometheus.Labels {
	return prometheus.Labels{"engine": c.engine, "partition": strconv.Itoa(partition)}
}

// SetMailboxRemaining updates the partition queue saturation gauge.
func (c *Collector) SetMailboxRemaining(partition, remaining int) {
	if c == nil {
		return
	}
	c.mailboxRemaining.With(c.labels(partition)).Set(float64(remaining))
}

// SetWriterQueueLen updates the async-writer FIFO gauge.
func (c *Collector) SetWriterQueueLen(partition, length int) {
	if c == nil {
		return
	}
	c.writerQueueLen.With(c.labels(partition)).Set(float64(length))
}

// RecordApplied counts one applied command.
func (c *Collector) RecordApplied(partition int) {
	if c == nil {
		return
	}
	c.commandsApplied.With(c.labels(partition)).Inc()
}

// RecordDuplicate counts one duplicate rejection.
func (c *Collector) RecordDuplicate(partition int) {
	if c == nil {
		return
	}
	c.duplicatesRejected.With(c.labels(partition)).Inc()
}

// RecordProcessorFailure counts one processor rejection.
func (c *Collector) RecordProcessorFailure(partition int) {
	if c == nil {
		return
	}
	c.processorFailures.With(c.labels(partition)).Inc()
}

// RecordPersistRetry counts one failed persist attempt.
func (c *Collector) RecordPersistRetry(partition int) {
	if c == nil {
		return
	}
	c.persistRetries.With(c.labels(partition)).Inc()
}

// ObservePersistBatch records the latency of one persist call.
func (c *Collector) ObservePersistBatch(partition int, seconds float64) {
	if c == nil {
		return
	}
	c.persistLatency.With(c.labels(partition)).Observe(seconds)
}

// ObserveSnapshot records the duration of one snapshot write.
func (c *Collector) ObserveSnapshot(partition int, seconds float64) {
	if c == nil {
		return
	}
	c.snapshotDuration.With(c.labels(partition)).Observe(seconds)
}

// SetRecoveryTime records the duration of the last recovery.
func (c *Collector) SetRecoveryTime(partition int, seconds float64) {
	if c == nil {
		return
	}
	c.recoverySeconds.With(c.labels(partition)).Set(seconds)
}

// StartServer exposes /metrics on the given port using the default
// registry. Intended for the CLI; embedders usually mount promhttp
// themselves.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
