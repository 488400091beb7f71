// internal/metrics/collector.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FairForge/continuity/internal/cluster"
)

// Collector is the metrics sink for heartbeat and failover signals
type Collector struct {
	registry *prometheus.Registry

	probeLatency      *prometheus.HistogramVec
	nodeUp            *prometheus.GaugeVec
	quorumRatio       *prometheus.GaugeVec
	clusterState      *prometheus.GaugeVec
	executionDuration *prometheus.HistogramVec
	failoversTotal    *prometheus.CounterVec
	actionsTotal      *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,

		probeLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "continuity_heartbeat_probe_duration_seconds",
				Help:    "Health probe duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"cluster", "node", "layer"},
		),

		nodeUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "continuity_node_up",
				Help: "Node status gauge (1 healthy, 0.5 degraded, 0 failed)",
			},
			[]string{"cluster", "node"},
		),

		quorumRatio: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "continuity_quorum_ratio",
				Help: "Healthy-or-degraded nodes over quorum size",
			},
			[]string{"cluster"},
		),

		clusterState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "continuity_cluster_state",
				Help: "Cluster state (0 healthy, 1 degraded, 2 critical)",
			},
			[]string{"cluster"},
		),

		executionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "continuity_failover_execution_duration_seconds",
				Help:    "Failover execution duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"cluster", "dry_run"},
		),

		failoversTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "continuity_failovers_total",
				Help: "Total failover executions by result",
			},
			[]string{"cluster", "result"},
		),

		actionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "continuity_failover_actions_total",
				Help: "Total failover actions by type and result",
			},
			[]string{"action", "result"},
		),
	}
}

// Handler exposes the registry over HTTP
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry for test scraping
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveProbe records one health probe outcome
func (c *Collector) ObserveProbe(clusterID, nodeID, layer string, d time.Duration) {
	c.probeLatency.WithLabelValues(clusterID, nodeID, layer).Observe(d.Seconds())
}

// SetNodeStatus records a node's current status as a gauge
func (c *Collector) SetNodeStatus(clusterID, nodeID string, status cluster.Status) {
	var v float64
	switch status {
	case cluster.StatusHealthy:
		v = 1
	case cluster.StatusDegraded:
		v = 0.5
	default:
		v = 0
	}
	c.nodeUp.WithLabelValues(clusterID, nodeID).Set(v)
}

// SetQuorum records the quorum ratio and cluster state
func (c *Collector) SetQuorum(clusterID string, alive, quorum int, state cluster.State) {
	if quorum > 0 {
		c.quorumRatio.WithLabelValues(clusterID).Set(float64(alive) / float64(quorum))
	}
	var v float64
	switch state {
	case cluster.StateHealthy:
		v = 0
	case cluster.StateDegraded:
		v = 1
	case cluster.StateCritical:
		v = 2
	}
	c.clusterState.WithLabelValues(clusterID).Set(v)
}

// ObserveExecution records a completed failover execution
func (c *Collector) ObserveExecution(clusterID string, dryRun bool, d time.Duration, success bool) {
	dry := "false"
	if dryRun {
		dry = "true"
	}
	c.executionDuration.WithLabelValues(clusterID, dry).Observe(d.Seconds())

	result := "success"
	if !success {
		result = "failure"
	}
	c.failoversTotal.WithLabelValues(clusterID, result).Inc()
}

// ObserveAction records one executed action
func (c *Collector) ObserveAction(action string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.actionsTotal.WithLabelValues(action, result).Inc()
}
