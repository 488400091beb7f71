// internal/cluster/policy.go
package cluster

import (
	"fmt"
	"time"
)

// Strategy controls how failover is initiated
type Strategy string

const (
	StrategyAutomatic   Strategy = "automatic"
	StrategyManual      Strategy = "manual"
	StrategyQuorumBased Strategy = "quorum_based"
)

// FailoverPolicy holds the decision rules for a failover, independent of any
// specific cluster instance.
type FailoverPolicy struct {
	ID              string        `json:"policy_id" yaml:"policy_id"`
	Strategy        Strategy      `json:"strategy" yaml:"strategy"`
	MaxFailoverTime time.Duration `json:"max_failover_time" yaml:"max_failover_time"`
	RequireQuorum   bool          `json:"require_quorum" yaml:"require_quorum"`
	RegionPriority  []string      `json:"region_priority" yaml:"region_priority"`
	SitePriority    []string      `json:"site_priority" yaml:"site_priority"`
	MinHealthyNodes int           `json:"min_healthy_nodes" yaml:"min_healthy_nodes"`
}

// Validate checks the policy for contradictions
func (p *FailoverPolicy) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("policy: policy_id required")
	}
	switch p.Strategy {
	case StrategyAutomatic, StrategyManual, StrategyQuorumBased:
	default:
		return fmt.Errorf("policy %s: invalid strategy %q", p.ID, p.Strategy)
	}
	if p.MaxFailoverTime <= 0 {
		return fmt.Errorf("policy %s: max_failover_time must be positive", p.ID)
	}
	if p.MinHealthyNodes < 0 {
		return fmt.Errorf("policy %s: min_healthy_nodes must not be negative", p.ID)
	}
	return nil
}
