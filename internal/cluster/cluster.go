// internal/cluster/cluster.go
package cluster

import (
	"fmt"
	"sort"
)

// Role identifies a node's role in the cluster
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
	RoleWitness   Role = "witness"
)

// Status represents the liveness state of a node
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
	StatusUnknown  Status = "unknown"
)

// State represents overall cluster health
type State string

const (
	// StateHealthy means quorum is intact and every node is healthy or degraded
	StateHealthy State = "healthy"
	// StateDegraded means quorum is intact but at least one node has failed
	StateDegraded State = "degraded"
	// StateCritical means quorum is lost; the cluster must reject writes
	StateCritical State = "critical"
)

// Node is the identity unit of the cluster. Status is mutated only by the
// heartbeat monitor (or, in simulation, by the fault injector).
type Node struct {
	ID       string  `json:"node_id" yaml:"node_id"`
	Endpoint string  `json:"endpoint" yaml:"endpoint"`
	Role     Role    `json:"role" yaml:"role"`
	Region   string  `json:"region" yaml:"region"`
	Site     string  `json:"site" yaml:"site"`
	Status   Status  `json:"status" yaml:"status"`
	Priority int     `json:"priority" yaml:"priority"`
	Capacity float64 `json:"capacity" yaml:"capacity"`
}

// Cluster owns an ordered list of nodes plus cluster-wide settings
type Cluster struct {
	ID             string   `json:"cluster_id" yaml:"cluster_id"`
	Nodes          []*Node  `json:"nodes" yaml:"nodes"`
	QuorumOverride int      `json:"quorum_size,omitempty" yaml:"quorum_size"`
	Regions        []string `json:"regions,omitempty" yaml:"regions"`
}

// QuorumSize returns the configured quorum, defaulting to floor(N/2)+1
func (c *Cluster) QuorumSize() int {
	if c.QuorumOverride > 0 {
		return c.QuorumOverride
	}
	return len(c.Nodes)/2 + 1
}

// HealthyOrDegraded counts nodes currently able to participate in quorum
func (c *Cluster) HealthyOrDegraded() int {
	n := 0
	for _, node := range c.Nodes {
		if node.Status == StatusHealthy || node.Status == StatusDegraded {
			n++
		}
	}
	return n
}

// HasQuorum reports whether enough nodes are alive to make decisions
func (c *Cluster) HasQuorum() bool {
	return c.HealthyOrDegraded() >= c.QuorumSize()
}

// State computes the cluster-wide health state from node statuses
func (c *Cluster) State() State {
	if !c.HasQuorum() {
		return StateCritical
	}
	for _, node := range c.Nodes {
		if node.Status == StatusFailed {
			return StateDegraded
		}
	}
	return StateHealthy
}

// Primary returns the current primary if it is healthy or degraded, else nil
func (c *Cluster) Primary() *Node {
	for _, node := range c.Nodes {
		if node.Role == RolePrimary && (node.Status == StatusHealthy || node.Status == StatusDegraded) {
			return node
		}
	}
	return nil
}

// NodeWithRole returns the first node holding the given role regardless of
// status, or nil. A failed primary still holds its role until it is demoted.
func (c *Cluster) NodeWithRole(role Role) *Node {
	for _, node := range c.Nodes {
		if node.Role == role {
			return node
		}
	}
	return nil
}

// Node returns the node with the given ID, or nil
func (c *Cluster) Node(id string) *Node {
	for _, node := range c.Nodes {
		if node.ID == id {
			return node
		}
	}
	return nil
}

// Clone returns a deep copy. Readers of the monitor's view get clones so they
// never observe a partially-updated node list.
func (c *Cluster) Clone() *Cluster {
	out := &Cluster{
		ID:             c.ID,
		QuorumOverride: c.QuorumOverride,
		Nodes:          make([]*Node, len(c.Nodes)),
	}
	if c.Regions != nil {
		out.Regions = append([]string(nil), c.Regions...)
	}
	for i, node := range c.Nodes {
		n := *node
		out.Nodes[i] = &n
	}
	return out
}

// Validate checks the cluster invariants
func (c *Cluster) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("cluster: cluster_id required")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("cluster %s: at least one node required", c.ID)
	}
	if c.QuorumOverride > len(c.Nodes) {
		return fmt.Errorf("cluster %s: quorum_size %d exceeds node count %d", c.ID, c.QuorumOverride, len(c.Nodes))
	}

	seen := make(map[string]bool, len(c.Nodes))
	primaries := 0
	for _, node := range c.Nodes {
		if node.ID == "" {
			return fmt.Errorf("cluster %s: node_id required", c.ID)
		}
		if seen[node.ID] {
			return fmt.Errorf("cluster %s: duplicate node_id %s", c.ID, node.ID)
		}
		seen[node.ID] = true

		switch node.Role {
		case RolePrimary:
			primaries++
		case RoleSecondary, RoleWitness:
		default:
			return fmt.Errorf("cluster %s: node %s has invalid role %q", c.ID, node.ID, node.Role)
		}
		if node.Capacity < 0 || node.Capacity > 100 {
			return fmt.Errorf("cluster %s: node %s capacity %.1f out of range [0,100]", c.ID, node.ID, node.Capacity)
		}
	}
	if primaries > 1 {
		return fmt.Errorf("cluster %s: %d nodes claim primary role, at most one allowed", c.ID, primaries)
	}
	return nil
}

// RegionSet returns the distinct regions present across nodes, sorted
func (c *Cluster) RegionSet() []string {
	set := make(map[string]bool)
	for _, node := range c.Nodes {
		if node.Region != "" {
			set[node.Region] = true
		}
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
