// internal/verifier/verifier.go
package verifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/continuity/internal/cluster"
	"github.com/FairForge/continuity/internal/executor"
	"github.com/FairForge/continuity/internal/planner"
)

// FreshnessSource is the backup/DR collaborator supplying per-node
// last-known-good data timestamps.
type FreshnessSource interface {
	LastGoodTimestamp(ctx context.Context, nodeID string) (time.Time, error)
}

// StaticFreshness serves fixed timestamps, for tests and simulation
type StaticFreshness struct {
	mu    sync.RWMutex
	times map[string]time.Time
}

// NewStaticFreshness creates an empty static source
func NewStaticFreshness() *StaticFreshness {
	return &StaticFreshness{times: make(map[string]time.Time)}
}

// Set records the last-good timestamp for a node
func (s *StaticFreshness) Set(nodeID string, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times[nodeID] = ts
}

// LastGoodTimestamp returns the recorded timestamp for the node
func (s *StaticFreshness) LastGoodTimestamp(_ context.Context, nodeID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.times[nodeID]
	if !ok {
		return time.Time{}, fmt.Errorf("freshness: no data for node %s", nodeID)
	}
	return ts, nil
}

// Report is the result of validating an execution. Immutable once created.
type Report struct {
	ID            string     `json:"report_id"`
	ExecutionID   string     `json:"execution_id"`
	ConsistencyOK bool       `json:"consistency_ok"`
	PolicyOK      bool       `json:"policy_ok"`
	QuorumOK      bool       `json:"quorum_ok"`
	FreshnessOK   bool       `json:"freshness_ok"`
	Passed        bool       `json:"passed"`
	Confidence    Confidence `json:"confidence"`
	Notes         []string   `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Verifier decides whether a completed execution left the cluster safe
type Verifier struct {
	weights   Weights
	freshness FreshnessSource
	staleSLA  time.Duration
	logger    *zap.Logger
	newID     func() string
	clock     func() time.Time
}

// NewVerifier creates a verifier
func NewVerifier(weights Weights, freshness FreshnessSource, staleSLA time.Duration, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if weights.total() == 0 {
		weights = DefaultWeights()
	}
	return &Verifier{
		weights:   weights,
		freshness: freshness,
		staleSLA:  staleSLA,
		logger:    logger.Named("verifier"),
		newID:     func() string { return "report-" + uuid.NewString() },
		clock:     time.Now,
	}
}

// SetIDFunc replaces the report ID source, for deterministic simulation
func (v *Verifier) SetIDFunc(fn func() string) { v.newID = fn }

// SetClock replaces the timestamp source, for deterministic simulation
func (v *Verifier) SetClock(clock func() time.Time) { v.clock = clock }

// Verify runs the four independent checks over the pre- and post-execution
// cluster views and produces a confidence-scored report.
func (v *Verifier) Verify(ctx context.Context, pre, post *cluster.Cluster, policy *cluster.FailoverPolicy, plan *planner.Plan, exec *executor.Execution) (*Report, error) {
	report := &Report{
		ID:          v.newID(),
		ExecutionID: exec.ID,
		CreatedAt:   v.clock().UTC(),
	}

	report.ConsistencyOK = v.checkConsistency(post, plan, report)
	report.PolicyOK = v.checkPolicy(pre, policy, plan, exec, report)
	report.QuorumOK = v.checkQuorum(post, report)
	report.FreshnessOK = v.checkFreshness(ctx, plan, report)

	report.Passed = report.ConsistencyOK && report.PolicyOK && report.QuorumOK && report.FreshnessOK
	score := v.weights.Score(report.ConsistencyOK, report.PolicyOK, report.QuorumOK, report.FreshnessOK)
	report.Confidence = Confidence{Score: score, Band: BandFor(score, report.Passed)}

	v.logger.Info("verification complete",
		zap.String("report", report.ID),
		zap.String("execution", exec.ID),
		zap.Bool("passed", report.Passed),
		zap.Int("score", score),
		zap.String("band", string(report.Confidence.Band)))
	return report, nil
}

// checkConsistency confirms the new primary holds the role and the old
// primary no longer claims it: no dual-primary condition.
func (v *Verifier) checkConsistency(post *cluster.Cluster, plan *planner.Plan, report *Report) bool {
	primaries := 0
	for _, node := range post.Nodes {
		if node.Role == cluster.RolePrimary {
			primaries++
		}
	}
	if primaries > 1 {
		report.Notes = append(report.Notes, fmt.Sprintf("consistency: %d nodes claim primary role", primaries))
		return false
	}

	target := post.Node(plan.TargetNodeID)
	if target == nil || target.Role != cluster.RolePrimary {
		report.Notes = append(report.Notes, fmt.Sprintf("consistency: target %s does not hold primary role", plan.TargetNodeID))
		return false
	}
	if plan.PrimaryNodeID != "" {
		if old := post.Node(plan.PrimaryNodeID); old != nil && old.Role == cluster.RolePrimary {
			report.Notes = append(report.Notes, fmt.Sprintf("consistency: old primary %s still claims primary role", old.ID))
			return false
		}
	}
	return true
}

// checkPolicy confirms the executed target is what the policy would have
// selected, and that execution stayed within the time budget.
func (v *Verifier) checkPolicy(pre *cluster.Cluster, policy *cluster.FailoverPolicy, plan *planner.Plan, exec *executor.Execution, report *Report) bool {
	candidates := planner.RankCandidates(pre, policy)
	if len(candidates) == 0 || candidates[0].ID != plan.TargetNodeID {
		report.Notes = append(report.Notes, fmt.Sprintf("policy: target %s is not the policy-selected candidate", plan.TargetNodeID))
		return false
	}
	if exec.TotalDurationMS > policy.MaxFailoverTime.Milliseconds() {
		report.Notes = append(report.Notes, fmt.Sprintf(
			"policy: execution took %dms, budget is %dms", exec.TotalDurationMS, policy.MaxFailoverTime.Milliseconds()))
		return false
	}
	return true
}

// checkQuorum confirms the post-failover view still holds quorum
func (v *Verifier) checkQuorum(post *cluster.Cluster, report *Report) bool {
	if !post.HasQuorum() {
		report.Notes = append(report.Notes, fmt.Sprintf(
			"quorum: %d live nodes, quorum is %d", post.HealthyOrDegraded(), post.QuorumSize()))
		return false
	}
	return true
}

// checkFreshness confirms the target's last-known-good data timestamp is
// within the staleness SLA.
func (v *Verifier) checkFreshness(ctx context.Context, plan *planner.Plan, report *Report) bool {
	if v.freshness == nil {
		report.Notes = append(report.Notes, "freshness: no freshness source configured")
		return false
	}
	ts, err := v.freshness.LastGoodTimestamp(ctx, plan.TargetNodeID)
	if err != nil {
		report.Notes = append(report.Notes, "freshness: "+err.Error())
		return false
	}
	age := v.clock().Sub(ts)
	if age > v.staleSLA {
		report.Notes = append(report.Notes, fmt.Sprintf(
			"freshness: target data is %s old, SLA is %s", age.Round(time.Second), v.staleSLA))
		return false
	}
	return true
}
