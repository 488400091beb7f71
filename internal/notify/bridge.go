// internal/notify/bridge.go
package notify

import (
	"context"

	"github.com/FairForge/continuity/internal/heartbeat"
)

// SubscribeMonitor connects a heartbeat monitor to the dispatcher, mapping
// health transitions to notification severities.
func SubscribeMonitor(m *heartbeat.Monitor, d *Dispatcher) {
	m.Subscribe(func(ev heartbeat.Event) {
		d.Dispatch(context.Background(), severityFor(ev.Type), ev.Message, map[string]string{
			"event":      string(ev.Type),
			"cluster_id": ev.ClusterID,
			"node_id":    ev.NodeID,
			"state":      string(ev.State),
		})
	})
}

func severityFor(t heartbeat.EventType) Severity {
	switch t {
	case heartbeat.EventQuorumLost, heartbeat.EventNodeFailed:
		return SeverityCritical
	case heartbeat.EventNodeDegraded:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
