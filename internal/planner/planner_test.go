// internal/planner/planner_test.go
package planner

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/continuity/internal/cluster"
	"github.com/FairForge/continuity/internal/errs"
)

func testCluster() *cluster.Cluster {
	return &cluster.Cluster{
		ID: "cluster-a",
		Nodes: []*cluster.Node{
			{ID: "node-a", Role: cluster.RolePrimary, Status: cluster.StatusFailed, Region: "us-east", Site: "dc1", Priority: 10, Capacity: 80},
			{ID: "node-b", Role: cluster.RoleSecondary, Status: cluster.StatusHealthy, Region: "us-east", Site: "dc1", Priority: 8, Capacity: 75},
			{ID: "node-c", Role: cluster.RoleWitness, Status: cluster.StatusHealthy, Region: "us-west", Site: "dc2", Priority: 1, Capacity: 10},
		},
	}
}

func testPolicy() *cluster.FailoverPolicy {
	return &cluster.FailoverPolicy{
		ID:              "policy-1",
		Strategy:        cluster.StrategyAutomatic,
		MaxFailoverTime: 300 * time.Second,
		RequireQuorum:   true,
	}
}

func fixedClock() func() time.Time {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestPlanner_PrimaryFailure(t *testing.T) {
	p := NewPlanner(DefaultDurations(), nil)
	p.SetClock(fixedClock())

	plan, err := p.Plan(testCluster(), testPolicy(), "primary unreachable")
	require.NoError(t, err)

	assert.Equal(t, "node-b", plan.TargetNodeID)
	assert.Equal(t, "node-a", plan.PrimaryNodeID, "failed primary still holds the role and gets demoted")
	require.Len(t, plan.Actions, 4)
	assert.Equal(t, ActionDemotePrimary, plan.Actions[0].Type)
	assert.Equal(t, "node-a", plan.Actions[0].NodeID)
	assert.Equal(t, ActionPromoteSecondary, plan.Actions[1].Type)
	assert.Equal(t, ActionRepointTraffic, plan.Actions[2].Type)
	assert.Equal(t, ActionRecheckHealth, plan.Actions[3].Type)
	assert.Equal(t, int64(47000), plan.EstimatedTotalMS)
}

func TestPlanner_DemotesLivePrimary(t *testing.T) {
	cl := testCluster()
	cl.Nodes[0].Status = cluster.StatusDegraded

	p := NewPlanner(DefaultDurations(), nil)
	p.SetClock(fixedClock())

	plan, err := p.Plan(cl, testPolicy(), "primary degraded")
	require.NoError(t, err)

	assert.Equal(t, "node-a", plan.PrimaryNodeID)
	require.Len(t, plan.Actions, 4)
	assert.Equal(t, ActionDemotePrimary, plan.Actions[0].Type)
	assert.Equal(t, "node-a", plan.Actions[0].NodeID)
	assert.Equal(t, int64(47000), plan.EstimatedTotalMS)
}

func TestPlanner_NoPrimaryRoleHolder(t *testing.T) {
	cl := testCluster()
	cl.Nodes[0].Role = cluster.RoleSecondary
	cl.Nodes[0].Status = cluster.StatusFailed

	p := NewPlanner(DefaultDurations(), nil)
	p.SetClock(fixedClock())

	plan, err := p.Plan(cl, testPolicy(), "no primary at all")
	require.NoError(t, err)

	assert.Empty(t, plan.PrimaryNodeID)
	require.Len(t, plan.Actions, 3)
	assert.Equal(t, ActionPromoteSecondary, plan.Actions[0].Type)
	assert.Equal(t, int64(42000), plan.EstimatedTotalMS)
}

func TestPlanner_Deterministic(t *testing.T) {
	p := NewPlanner(DefaultDurations(), nil)
	p.SetClock(fixedClock())

	first, err := p.Plan(testCluster(), testPolicy(), "drill")
	require.NoError(t, err)
	second, err := p.Plan(testCluster(), testPolicy(), "drill")
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON, "identical inputs must produce byte-identical plans")
	assert.Equal(t, first.ID, second.ID)
}

func TestPlanner_PlanIDTracksDecision(t *testing.T) {
	p := NewPlanner(DefaultDurations(), nil)
	p.SetClock(fixedClock())

	base, err := p.Plan(testCluster(), testPolicy(), "drill")
	require.NoError(t, err)
	other, err := p.Plan(testCluster(), testPolicy(), "incident-341")
	require.NoError(t, err)
	assert.NotEqual(t, base.ID, other.ID)
}

func TestPlanner_NoQuorum(t *testing.T) {
	cl := testCluster()
	cl.Nodes[2].Status = cluster.StatusFailed // only node-b alive, quorum is 2

	p := NewPlanner(DefaultDurations(), nil)
	_, err := p.Plan(cl, testPolicy(), "partition")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeNoQuorum))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "require_quorum=true", e.Violated)
}

func TestPlanner_MinHealthyNodesFloor(t *testing.T) {
	policy := testPolicy()
	policy.RequireQuorum = false
	policy.MinHealthyNodes = 3

	p := NewPlanner(DefaultDurations(), nil)
	_, err := p.Plan(testCluster(), policy, "drill")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeNoQuorum))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "min_healthy_nodes=3", e.Violated)
}

func TestPlanner_NoTarget(t *testing.T) {
	cl := testCluster()
	cl.Nodes[1].Status = cluster.StatusDegraded // degraded secondary is not promotable

	p := NewPlanner(DefaultDurations(), nil)
	_, err := p.Plan(cl, testPolicy(), "drill")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeNoTarget))
}

func TestPlanner_WitnessNeverPromoted(t *testing.T) {
	cl := testCluster()
	cl.Nodes[1].Status = cluster.StatusFailed // only the witness remains healthy

	policy := testPolicy()
	policy.RequireQuorum = false

	p := NewPlanner(DefaultDurations(), nil)
	_, err := p.Plan(cl, policy, "drill")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeNoTarget))
}

func TestPlanner_BudgetExceeded(t *testing.T) {
	policy := testPolicy()
	policy.MaxFailoverTime = 10 * time.Second

	p := NewPlanner(DefaultDurations(), nil)
	_, err := p.Plan(testCluster(), policy, "drill")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeBudgetExceeded))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "max_failover_time_s=10", e.Violated)
}

func TestRankCandidates_Ordering(t *testing.T) {
	cl := &cluster.Cluster{
		ID: "cluster-rank",
		Nodes: []*cluster.Node{
			{ID: "node-d", Role: cluster.RoleSecondary, Status: cluster.StatusHealthy, Region: "eu-west", Site: "dc3", Priority: 10, Capacity: 90},
			{ID: "node-c", Role: cluster.RoleSecondary, Status: cluster.StatusHealthy, Region: "us-east", Site: "dc2", Priority: 5, Capacity: 50},
			{ID: "node-b", Role: cluster.RoleSecondary, Status: cluster.StatusHealthy, Region: "us-east", Site: "dc1", Priority: 5, Capacity: 50},
			{ID: "node-a", Role: cluster.RoleSecondary, Status: cluster.StatusHealthy, Region: "us-east", Site: "dc1", Priority: 5, Capacity: 80},
		},
	}
	policy := &cluster.FailoverPolicy{
		ID:              "policy-rank",
		Strategy:        cluster.StrategyAutomatic,
		MaxFailoverTime: time.Minute,
		RegionPriority:  []string{"us-east", "eu-west"},
		SitePriority:    []string{"dc1", "dc2"},
	}

	ranked := RankCandidates(cl, policy)
	require.Len(t, ranked, 4)

	// us-east beats eu-west despite node-d's higher priority and capacity.
	// Within dc1, capacity 80 beats 50.
	assert.Equal(t, "node-a", ranked[0].ID)
	assert.Equal(t, "node-b", ranked[1].ID)
	assert.Equal(t, "node-c", ranked[2].ID)
	assert.Equal(t, "node-d", ranked[3].ID)
}

func TestRankCandidates_LexicographicTiebreak(t *testing.T) {
	cl := &cluster.Cluster{
		ID: "cluster-tie",
		Nodes: []*cluster.Node{
			{ID: "node-z", Role: cluster.RoleSecondary, Status: cluster.StatusHealthy, Priority: 5, Capacity: 50},
			{ID: "node-m", Role: cluster.RoleSecondary, Status: cluster.StatusHealthy, Priority: 5, Capacity: 50},
			{ID: "node-a", Role: cluster.RoleSecondary, Status: cluster.StatusHealthy, Priority: 5, Capacity: 50},
		},
	}
	policy := &cluster.FailoverPolicy{ID: "p", Strategy: cluster.StrategyAutomatic, MaxFailoverTime: time.Minute}

	ranked := RankCandidates(cl, policy)
	require.Len(t, ranked, 3)
	assert.Equal(t, "node-a", ranked[0].ID)
	assert.Equal(t, "node-m", ranked[1].ID)
	assert.Equal(t, "node-z", ranked[2].ID)
}

func TestRankCandidates_UnlistedRegionSortsLast(t *testing.T) {
	cl := &cluster.Cluster{
		ID: "cluster-unlisted",
		Nodes: []*cluster.Node{
			{ID: "node-a", Role: cluster.RoleSecondary, Status: cluster.StatusHealthy, Region: "ap-south", Priority: 10, Capacity: 90},
			{ID: "node-b", Role: cluster.RoleSecondary, Status: cluster.StatusHealthy, Region: "us-east", Priority: 1, Capacity: 10},
		},
	}
	policy := &cluster.FailoverPolicy{
		ID: "p", Strategy: cluster.StrategyAutomatic, MaxFailoverTime: time.Minute,
		RegionPriority: []string{"us-east"},
	}

	ranked := RankCandidates(cl, policy)
	require.Len(t, ranked, 2)
	assert.Equal(t, "node-b", ranked[0].ID)
}

func TestPlanner_InvalidPolicy(t *testing.T) {
	p := NewPlanner(DefaultDurations(), nil)
	_, err := p.Plan(testCluster(), &cluster.FailoverPolicy{}, "drill")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodePolicyValidation))
}
