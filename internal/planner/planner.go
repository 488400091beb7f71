// internal/planner/planner.go
package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/continuity/internal/cluster"
	"github.com/FairForge/continuity/internal/errs"
)

// ActionType identifies a failover step
type ActionType string

const (
	ActionDemotePrimary    ActionType = "demote_primary"
	ActionPromoteSecondary ActionType = "promote_secondary"
	ActionRepointTraffic   ActionType = "repoint_traffic"
	ActionRecheckHealth    ActionType = "recheck_health"
)

// Action is one typed step of a failover plan
type Action struct {
	Type        ActionType `json:"type"`
	NodeID      string     `json:"node_id"`
	EstimatedMS int64      `json:"estimated_ms"`
}

// Plan is the planner's deterministic output. Immutable once produced;
// re-planning produces a new plan.
type Plan struct {
	ID               string    `json:"plan_id"`
	ClusterID        string    `json:"cluster_id"`
	PolicyID         string    `json:"policy_id"`
	PrimaryNodeID    string    `json:"primary_node_id,omitempty"`
	TargetNodeID     string    `json:"failover_target_id"`
	Reason           string    `json:"reason"`
	Actions          []Action  `json:"actions"`
	EstimatedTotalMS int64     `json:"estimated_total_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// Durations holds the configured per-action duration estimates
type Durations struct {
	Demote  time.Duration
	Promote time.Duration
	Repoint time.Duration
	Recheck time.Duration
}

// DefaultDurations returns the standard action estimates
func DefaultDurations() Durations {
	return Durations{
		Demote:  5 * time.Second,
		Promote: 10 * time.Second,
		Repoint: 30 * time.Second,
		Recheck: 2 * time.Second,
	}
}

// Planner produces failover plans from a cluster snapshot and a policy.
// The decision logic is pure: no randomness, no wall-clock dependence.
type Planner struct {
	durations Durations
	clock     func() time.Time
	logger    *zap.Logger
}

// NewPlanner creates a planner
func NewPlanner(durations Durations, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		durations: durations,
		clock:     time.Now,
		logger:    logger.Named("planner"),
	}
}

// SetClock replaces the timestamp source. The clock only feeds the CreatedAt
// field, never a decision.
func (p *Planner) SetClock(clock func() time.Time) {
	p.clock = clock
}

// Plan builds a deterministic failover plan, or refuses with a taxonomy error
func (p *Planner) Plan(snap *cluster.Cluster, policy *cluster.FailoverPolicy, reason string) (*Plan, error) {
	if err := policy.Validate(); err != nil {
		return nil, errs.PolicyValidation(err.Error())
	}

	// The demote target is whichever node still holds the primary role, even
	// when it is failed. A dead primary that comes back believing it is still
	// primary is the split-brain case the demote action exists to prevent.
	oldPrimary := snap.NodeWithRole(cluster.RolePrimary)

	if policy.RequireQuorum && snap.State() == cluster.StateCritical {
		return nil, errs.NoQuorum(
			fmt.Sprintf("cluster %s has %d live nodes, quorum is %d",
				snap.ID, snap.HealthyOrDegraded(), snap.QuorumSize()),
			"require_quorum=true")
	}
	if policy.MinHealthyNodes > 0 && snap.HealthyOrDegraded() < policy.MinHealthyNodes {
		return nil, errs.NoQuorum(
			fmt.Sprintf("cluster %s has %d live nodes", snap.ID, snap.HealthyOrDegraded()),
			fmt.Sprintf("min_healthy_nodes=%d", policy.MinHealthyNodes))
	}

	candidates := RankCandidates(snap, policy)
	if len(candidates) == 0 {
		return nil, errs.NoTarget(fmt.Sprintf("cluster %s has no healthy secondary to promote", snap.ID))
	}
	target := candidates[0]

	actions := p.buildActions(oldPrimary, target)
	var totalMS int64
	for _, a := range actions {
		totalMS += a.EstimatedMS
	}
	if budget := policy.MaxFailoverTime.Milliseconds(); totalMS > budget {
		return nil, errs.BudgetExceeded(
			fmt.Sprintf("estimated %dms exceeds budget %dms", totalMS, budget),
			fmt.Sprintf("max_failover_time_s=%d", int(policy.MaxFailoverTime.Seconds())))
	}

	plan := &Plan{
		ClusterID:        snap.ID,
		PolicyID:         policy.ID,
		TargetNodeID:     target.ID,
		Reason:           reason,
		Actions:          actions,
		EstimatedTotalMS: totalMS,
	}
	if oldPrimary != nil {
		plan.PrimaryNodeID = oldPrimary.ID
	}
	plan.ID = planID(plan)
	plan.CreatedAt = p.clock().UTC()

	p.logger.Info("failover plan produced",
		zap.String("plan", plan.ID),
		zap.String("cluster", plan.ClusterID),
		zap.String("target", plan.TargetNodeID),
		zap.Int64("estimated_ms", plan.EstimatedTotalMS))
	return plan, nil
}

// buildActions emits the standard action sequence for the winning candidate
func (p *Planner) buildActions(primary, target *cluster.Node) []Action {
	actions := make([]Action, 0, 4)
	if primary != nil {
		actions = append(actions, Action{
			Type: ActionDemotePrimary, NodeID: primary.ID,
			EstimatedMS: p.durations.Demote.Milliseconds(),
		})
	}
	actions = append(actions,
		Action{Type: ActionPromoteSecondary, NodeID: target.ID, EstimatedMS: p.durations.Promote.Milliseconds()},
		Action{Type: ActionRepointTraffic, NodeID: target.ID, EstimatedMS: p.durations.Repoint.Milliseconds()},
		Action{Type: ActionRecheckHealth, NodeID: target.ID, EstimatedMS: p.durations.Recheck.Milliseconds()},
	)
	return actions
}

// planID derives a content-addressed identifier from the decision fields, so
// identical inputs always yield the identical plan.
func planID(plan *Plan) string {
	var sb strings.Builder
	sb.WriteString(plan.ClusterID)
	sb.WriteString("|")
	sb.WriteString(plan.PolicyID)
	sb.WriteString("|")
	sb.WriteString(plan.PrimaryNodeID)
	sb.WriteString("|")
	sb.WriteString(plan.TargetNodeID)
	sb.WriteString("|")
	sb.WriteString(plan.Reason)
	for _, a := range plan.Actions {
		sb.WriteString(fmt.Sprintf("|%s:%s:%d", a.Type, a.NodeID, a.EstimatedMS))
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return "plan-" + hex.EncodeToString(sum[:6])
}

// RankCandidates returns eligible failover targets, best first. Eligible
// means role secondary and status healthy; witnesses are never promoted.
// Ranking: region priority, then site priority, then descending node
// priority, then descending capacity, with node_id as the final tiebreak.
func RankCandidates(snap *cluster.Cluster, policy *cluster.FailoverPolicy) []*cluster.Node {
	candidates := make([]*cluster.Node, 0, len(snap.Nodes))
	for _, node := range snap.Nodes {
		if node.Role == cluster.RoleSecondary && node.Status == cluster.StatusHealthy {
			candidates = append(candidates, node)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ra, rb := priorityRank(a.Region, policy.RegionPriority), priorityRank(b.Region, policy.RegionPriority); ra != rb {
			return ra < rb
		}
		if sa, sb := priorityRank(a.Site, policy.SitePriority), priorityRank(b.Site, policy.SitePriority); sa != sb {
			return sa < sb
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Capacity != b.Capacity {
			return a.Capacity > b.Capacity
		}
		return a.ID < b.ID
	})
	return candidates
}

// priorityRank returns the index of value in the ordered priority list, or
// one past the end when absent so unlisted entries sort last.
func priorityRank(value string, priorities []string) int {
	for i, p := range priorities {
		if p == value {
			return i
		}
	}
	return len(priorities)
}
