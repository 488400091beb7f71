// internal/verifier/verifier_test.go
package verifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/continuity/internal/cluster"
	"github.com/FairForge/continuity/internal/executor"
	"github.com/FairForge/continuity/internal/planner"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func preCluster() *cluster.Cluster {
	return &cluster.Cluster{
		ID: "cluster-a",
		Nodes: []*cluster.Node{
			{ID: "node-a", Role: cluster.RolePrimary, Status: cluster.StatusFailed, Priority: 10, Capacity: 80},
			{ID: "node-b", Role: cluster.RoleSecondary, Status: cluster.StatusHealthy, Priority: 8, Capacity: 75},
			{ID: "node-c", Role: cluster.RoleWitness, Status: cluster.StatusHealthy, Priority: 1, Capacity: 10},
		},
	}
}

func postCluster() *cluster.Cluster {
	post := preCluster()
	post.Node("node-a").Role = cluster.RoleSecondary
	post.Node("node-b").Role = cluster.RolePrimary
	return post
}

func testPolicy() *cluster.FailoverPolicy {
	return &cluster.FailoverPolicy{
		ID:              "policy-1",
		Strategy:        cluster.StrategyAutomatic,
		MaxFailoverTime: 300 * time.Second,
	}
}

func testPipeline(t *testing.T) (*planner.Plan, *executor.Execution) {
	t.Helper()
	p := planner.NewPlanner(planner.DefaultDurations(), nil)
	plan, err := p.Plan(preCluster(), testPolicy(), "test")
	require.NoError(t, err)

	ex := executor.NewExecutor(executor.NewDryRunDriver(), nil, nil)
	exec, err := ex.Execute(context.Background(), preCluster(), testPolicy(), plan, true)
	require.NoError(t, err)
	return plan, exec
}

func freshSource(ts time.Time) *StaticFreshness {
	f := NewStaticFreshness()
	for _, id := range []string{"node-a", "node-b", "node-c"} {
		f.Set(id, ts)
	}
	return f
}

func newTestVerifier(freshness FreshnessSource) *Verifier {
	v := NewVerifier(DefaultWeights(), freshness, 5*time.Minute, nil)
	v.SetClock(func() time.Time { return testNow })
	return v
}

func TestVerifier_AllChecksPass(t *testing.T) {
	plan, exec := testPipeline(t)
	v := newTestVerifier(freshSource(testNow.Add(-time.Minute)))

	report, err := v.Verify(context.Background(), preCluster(), postCluster(), testPolicy(), plan, exec)
	require.NoError(t, err)

	assert.True(t, report.Passed)
	assert.True(t, report.ConsistencyOK)
	assert.True(t, report.PolicyOK)
	assert.True(t, report.QuorumOK)
	assert.True(t, report.FreshnessOK)
	assert.Equal(t, 100, report.Confidence.Score)
	assert.Equal(t, BandVeryHigh, report.Confidence.Band)
	assert.Empty(t, report.Notes)
}

func TestVerifier_DualPrimaryFailsConsistency(t *testing.T) {
	plan, exec := testPipeline(t)
	post := postCluster()
	post.Node("node-a").Role = cluster.RolePrimary // old primary never stepped down

	v := newTestVerifier(freshSource(testNow.Add(-time.Minute)))
	report, err := v.Verify(context.Background(), preCluster(), post, testPolicy(), plan, exec)
	require.NoError(t, err)

	assert.False(t, report.ConsistencyOK)
	assert.False(t, report.Passed)
	assert.NotEmpty(t, report.Notes)
}

func TestVerifier_TargetNotPrimaryFailsConsistency(t *testing.T) {
	plan, exec := testPipeline(t)
	post := preCluster() // promotion never landed

	v := newTestVerifier(freshSource(testNow.Add(-time.Minute)))
	report, err := v.Verify(context.Background(), preCluster(), post, testPolicy(), plan, exec)
	require.NoError(t, err)
	assert.False(t, report.ConsistencyOK)
}

func TestVerifier_QuorumLostFailsCheck(t *testing.T) {
	plan, exec := testPipeline(t)
	post := postCluster()
	post.Node("node-c").Status = cluster.StatusFailed // node-b alone, quorum is 2

	v := newTestVerifier(freshSource(testNow.Add(-time.Minute)))
	report, err := v.Verify(context.Background(), preCluster(), post, testPolicy(), plan, exec)
	require.NoError(t, err)

	assert.False(t, report.QuorumOK)
	assert.False(t, report.Passed)
	assert.Equal(t, BandMedium, report.Confidence.Band, "a failed check caps the band at medium")
}

func TestVerifier_StaleDataFailsFreshness(t *testing.T) {
	plan, exec := testPipeline(t)
	v := newTestVerifier(freshSource(testNow.Add(-10 * time.Minute)))

	report, err := v.Verify(context.Background(), preCluster(), postCluster(), testPolicy(), plan, exec)
	require.NoError(t, err)

	assert.False(t, report.FreshnessOK)
	assert.Equal(t, 85, report.Confidence.Score)
	assert.Equal(t, BandMedium, report.Confidence.Band)
}

func TestVerifier_MissingFreshnessDataFails(t *testing.T) {
	plan, exec := testPipeline(t)
	v := newTestVerifier(NewStaticFreshness())

	report, err := v.Verify(context.Background(), preCluster(), postCluster(), testPolicy(), plan, exec)
	require.NoError(t, err)
	assert.False(t, report.FreshnessOK)
}

func TestVerifier_OverBudgetExecutionFailsPolicy(t *testing.T) {
	plan, exec := testPipeline(t)
	exec.TotalDurationMS = testPolicy().MaxFailoverTime.Milliseconds() + 1

	v := newTestVerifier(freshSource(testNow.Add(-time.Minute)))
	report, err := v.Verify(context.Background(), preCluster(), postCluster(), testPolicy(), plan, exec)
	require.NoError(t, err)
	assert.False(t, report.PolicyOK)
}
