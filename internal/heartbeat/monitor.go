// internal/heartbeat/monitor.go
package heartbeat

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/continuity/internal/cluster"
	"github.com/FairForge/continuity/internal/metrics"
)

// EventType classifies monitor events
type EventType string

const (
	EventNodeDegraded   EventType = "node_degraded"
	EventNodeFailed     EventType = "node_failed"
	EventNodeRecovered  EventType = "node_recovered"
	EventQuorumLost     EventType = "quorum_lost"
	EventQuorumRestored EventType = "quorum_restored"
)

// Event is a health transition observed by the monitor
type Event struct {
	Type      EventType
	ClusterID string
	NodeID    string
	State     cluster.State
	Message   string
	Timestamp time.Time
}

// Config configures the heartbeat monitor
type Config struct {
	Interval            time.Duration
	JitterPercent       float64
	FailureThreshold    int
	RecoveryThreshold   int
	MaxConcurrentProbes int
	Timeouts            ProbeTimeouts
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Interval:            5 * time.Second,
		JitterPercent:       10,
		FailureThreshold:    3,
		RecoveryThreshold:   2,
		MaxConcurrentProbes: 32,
		Timeouts:            DefaultProbeTimeouts(),
	}
}

type nodeCounters struct {
	consecutiveFails int
	consecutiveOK    int
	lastCheck        time.Time
	lastSuccess      time.Time
	lastLatency      time.Duration
}

// StatusSummary is the cluster status view served to operators
type StatusSummary struct {
	ClusterID     string        `json:"cluster_id"`
	TotalNodes    int           `json:"total_nodes"`
	HealthyNodes  int           `json:"healthy_nodes"`
	QuorumSize    int           `json:"quorum_size"`
	HasQuorum     bool          `json:"has_quorum"`
	PrimaryNodeID string        `json:"primary_node_id,omitempty"`
	State         cluster.State `json:"state"`
}

// Monitor maintains the liveness view of every node. It is the single writer
// of node statuses; readers get consistent snapshots via Snapshot.
type Monitor struct {
	mu       sync.RWMutex
	cfg      *Config
	cluster  *cluster.Cluster
	prober   Prober
	counters map[string]*nodeCounters
	handlers []func(Event)
	logger   *zap.Logger
	metrics  *metrics.Collector
	rng      *rand.Rand

	lastState cluster.State
	tickSeq   uint64
}

// NewMonitor creates a monitor owning the given cluster's node statuses
func NewMonitor(cl *cluster.Cluster, prober Prober, cfg *Config, collector *metrics.Collector, logger *zap.Logger) *Monitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Monitor{
		cfg:       cfg,
		cluster:   cl,
		prober:    prober,
		counters:  make(map[string]*nodeCounters, len(cl.Nodes)),
		logger:    logger.Named("heartbeat"),
		metrics:   collector,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 - jitter only
		lastState: cl.State(),
	}
	for _, node := range cl.Nodes {
		m.counters[node.ID] = &nodeCounters{}
	}
	return m
}

// SeedJitter replaces the jitter source, for deterministic tests
func (m *Monitor) SeedJitter(seed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rng = rand.New(rand.NewSource(seed)) // #nosec G404 - jitter only
}

// Subscribe registers an event handler. Handlers run on their own goroutine
// so a slow consumer never blocks probing.
func (m *Monitor) Subscribe(handler func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Run probes on a schedule until the context is cancelled. Each tick waits
// for all probes to finish before the next is scheduled; per-probe timeouts
// are shorter than the interval, so one tick always completes first.
func (m *Monitor) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(m.jitteredInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			m.Tick(ctx)
		}
	}
}

// jitteredInterval spreads ticks by the configured jitter to avoid
// synchronized probing storms across many monitors.
func (m *Monitor) jitteredInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.JitterPercent <= 0 {
		return m.cfg.Interval
	}
	spread := (m.rng.Float64()*2 - 1) * m.cfg.JitterPercent / 100
	return time.Duration(float64(m.cfg.Interval) * (1 + spread))
}

type probeOutcome struct {
	nodeID  string
	err     error
	latency time.Duration
}

// Tick probes every node in parallel with a bounded worker pool, then applies
// all results in one write so readers never see a half-updated tick.
func (m *Monitor) Tick(ctx context.Context) {
	m.mu.RLock()
	nodes := make([]*cluster.Node, len(m.cluster.Nodes))
	for i, node := range m.cluster.Nodes {
		n := *node
		nodes[i] = &n
	}
	clusterID := m.cluster.ID
	m.mu.RUnlock()

	workers := m.cfg.MaxConcurrentProbes
	if workers <= 0 || workers > len(nodes) {
		workers = len(nodes)
	}
	sem := make(chan struct{}, workers)

	outcomes := make([]probeOutcome, len(nodes))
	var wg sync.WaitGroup
	for i, node := range nodes {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, node *cluster.Node) {
			defer wg.Done()
			defer func() { <-sem }()
			start := time.Now()
			err := m.CheckNode(ctx, node)
			outcomes[i] = probeOutcome{nodeID: node.ID, err: err, latency: time.Since(start)}
		}(i, node)
	}
	wg.Wait()

	m.apply(clusterID, outcomes)
}

// CheckNode runs the layered probes against one node. A timeout at any layer
// counts as a failure; there is no inline retry, the next tick retries.
func (m *Monitor) CheckNode(ctx context.Context, node *cluster.Node) error {
	for _, layer := range []Layer{LayerLiveness, LayerReadiness, LayerDeep} {
		layerCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeouts.For(layer))
		start := time.Now()
		err := m.prober.Probe(layerCtx, node, layer)
		cancel()

		if m.metrics != nil {
			m.metrics.ObserveProbe(m.cluster.ID, node.ID, string(layer), time.Since(start))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// apply folds a tick's probe outcomes into node statuses under one lock
func (m *Monitor) apply(clusterID string, outcomes []probeOutcome) {
	var events []Event

	m.mu.Lock()
	m.tickSeq++
	now := time.Now()

	for _, out := range outcomes {
		node := m.cluster.Node(out.nodeID)
		counters := m.counters[out.nodeID]
		if node == nil || counters == nil {
			continue
		}
		counters.lastCheck = now
		counters.lastLatency = out.latency

		if out.err == nil {
			counters.consecutiveFails = 0
			counters.consecutiveOK++
			counters.lastSuccess = now

			switch node.Status {
			case cluster.StatusUnknown:
				node.Status = cluster.StatusHealthy
			case cluster.StatusFailed, cluster.StatusDegraded:
				if counters.consecutiveOK >= m.cfg.RecoveryThreshold {
					node.Status = cluster.StatusHealthy
					events = append(events, Event{
						Type: EventNodeRecovered, ClusterID: clusterID, NodeID: node.ID,
						Message: "node recovered", Timestamp: now,
					})
				}
			}
		} else {
			counters.consecutiveOK = 0
			counters.consecutiveFails++

			switch {
			case counters.consecutiveFails >= m.cfg.FailureThreshold:
				if node.Status != cluster.StatusFailed {
					node.Status = cluster.StatusFailed
					events = append(events, Event{
						Type: EventNodeFailed, ClusterID: clusterID, NodeID: node.ID,
						Message: out.err.Error(), Timestamp: now,
					})
				}
			case counters.consecutiveFails >= m.cfg.FailureThreshold-1 && node.Status == cluster.StatusHealthy:
				node.Status = cluster.StatusDegraded
				events = append(events, Event{
					Type: EventNodeDegraded, ClusterID: clusterID, NodeID: node.ID,
					Message: out.err.Error(), Timestamp: now,
				})
			}
		}

		if m.metrics != nil {
			m.metrics.SetNodeStatus(clusterID, node.ID, node.Status)
		}
	}

	state := m.cluster.State()
	if state == cluster.StateCritical && m.lastState != cluster.StateCritical {
		events = append(events, Event{
			Type: EventQuorumLost, ClusterID: clusterID, State: state,
			Message: "quorum lost, cluster must reject writes", Timestamp: now,
		})
	} else if state != cluster.StateCritical && m.lastState == cluster.StateCritical {
		events = append(events, Event{
			Type: EventQuorumRestored, ClusterID: clusterID, State: state,
			Message: "quorum restored", Timestamp: now,
		})
	}
	m.lastState = state

	if m.metrics != nil {
		m.metrics.SetQuorum(clusterID, m.cluster.HealthyOrDegraded(), m.cluster.QuorumSize(), state)
	}
	handlers := make([]func(Event), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, ev := range events {
		m.logger.Info("health transition",
			zap.String("type", string(ev.Type)),
			zap.String("cluster", ev.ClusterID),
			zap.String("node", ev.NodeID),
			zap.String("message", ev.Message))
		for _, handler := range handlers {
			go handler(ev)
		}
	}
}

// Snapshot returns a consistent copy of the cluster view. A planner invoked
// mid-tick reads the last completed tick's view, never partial statuses.
func (m *Monitor) Snapshot() *cluster.Cluster {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cluster.Clone()
}

// ClusterState returns the current cluster-wide health state
func (m *Monitor) ClusterState() cluster.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cluster.State()
}

// Status returns the operator-facing status summary
func (m *Monitor) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := StatusSummary{
		ClusterID:    m.cluster.ID,
		TotalNodes:   len(m.cluster.Nodes),
		QuorumSize:   m.cluster.QuorumSize(),
		HasQuorum:    m.cluster.HasQuorum(),
		State:        m.cluster.State(),
	}
	for _, node := range m.cluster.Nodes {
		if node.Status == cluster.StatusHealthy {
			summary.HealthyNodes++
		}
	}
	if primary := m.cluster.Primary(); primary != nil {
		summary.PrimaryNodeID = primary.ID
	}
	return summary
}

// SetNodeStatus overrides a node's status. Reserved for fault injection in
// drills; the monitor remains the only production writer.
func (m *Monitor) SetNodeStatus(nodeID string, status cluster.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if node := m.cluster.Node(nodeID); node != nil {
		node.Status = status
	}
}

// SetNodeRole records a role change applied by a completed failover
func (m *Monitor) SetNodeRole(nodeID string, role cluster.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if node := m.cluster.Node(nodeID); node != nil {
		node.Role = role
	}
}

// LastGoodTimestamp returns the last time a node passed all probe layers.
// Satisfies the verifier's freshness source.
func (m *Monitor) LastGoodTimestamp(_ context.Context, nodeID string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counters, ok := m.counters[nodeID]
	if !ok || counters.lastSuccess.IsZero() {
		return time.Time{}, fmt.Errorf("no successful probe recorded for node %s", nodeID)
	}
	return counters.lastSuccess, nil
}
