// internal/api/api_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/continuity/internal/auditor"
	"github.com/FairForge/continuity/internal/auth"
	"github.com/FairForge/continuity/internal/cluster"
	"github.com/FairForge/continuity/internal/executor"
	"github.com/FairForge/continuity/internal/heartbeat"
	"github.com/FairForge/continuity/internal/planner"
	"github.com/FairForge/continuity/internal/simulator"
	"github.com/FairForge/continuity/internal/verifier"
)

type testEnv struct {
	router        chi.Router
	monitor       *heartbeat.Monitor
	svc           *auth.Service
	operatorToken string
	adminToken    string
}

func newTestEnv(t *testing.T, requiredApprovals int) *testEnv {
	t.Helper()

	cl := &cluster.Cluster{
		ID: "cluster-a",
		Nodes: []*cluster.Node{
			{ID: "node-a", Endpoint: "https://node-a:9443", Role: cluster.RolePrimary, Status: cluster.StatusUnknown, Priority: 10, Capacity: 80},
			{ID: "node-b", Endpoint: "https://node-b:9443", Role: cluster.RoleSecondary, Status: cluster.StatusUnknown, Priority: 8, Capacity: 75},
			{ID: "node-c", Endpoint: "https://node-c:9443", Role: cluster.RoleWitness, Status: cluster.StatusUnknown, Priority: 1, Capacity: 10},
		},
	}
	policy := &cluster.FailoverPolicy{
		ID: "policy-1", Strategy: cluster.StrategyAutomatic,
		MaxFailoverTime: 300 * time.Second, RequireQuorum: true,
	}

	prober := heartbeat.NewStaticProber()
	monitor := heartbeat.NewMonitor(cl, prober, heartbeat.DefaultConfig(), nil, nil)

	pl := planner.NewPlanner(planner.DefaultDurations(), nil)
	ex := executor.NewExecutor(executor.NewDryRunDriver(), nil, nil)
	vf := verifier.NewVerifier(verifier.DefaultWeights(), monitor, 5*time.Minute, nil)
	sim := simulator.NewSimulator(nil, nil)
	aud := auditor.NewAuditor(auditor.NewMemoryStore(), nil, nil)

	svc := auth.NewService([]byte("test-secret"), nil)
	approvals := auth.NewApprovalRegistry(requiredApprovals, []string{"alice", "bob"})

	handler := NewHandler(monitor, pl, ex, vf, sim, aud, approvals, policy, nil)

	router := chi.NewRouter()
	handler.RegisterRoutes(router, svc)

	operatorToken, err := svc.IssueToken("alice", auth.RoleOperator)
	require.NoError(t, err)
	adminToken, err := svc.IssueToken("root", auth.RoleAdmin)
	require.NoError(t, err)

	return &testEnv{
		router:        router,
		monitor:       monitor,
		svc:           svc,
		operatorToken: operatorToken,
		adminToken:    adminToken,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestAPI_RequiresAuth(t *testing.T) {
	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodGet, "/api/v1/continuity/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_GetStatus(t *testing.T) {
	env := newTestEnv(t, 0)
	env.monitor.Tick(context.Background())

	rec := env.do(t, http.MethodGet, "/api/v1/continuity/status", env.operatorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status heartbeat.StatusSummary
	decode(t, rec, &status)
	assert.Equal(t, "cluster-a", status.ClusterID)
	assert.Equal(t, 3, status.TotalNodes)
	assert.True(t, status.HasQuorum)
	assert.Equal(t, "node-a", status.PrimaryNodeID)
}

func TestAPI_PlanAndExecuteDryRun(t *testing.T) {
	env := newTestEnv(t, 0)
	env.monitor.Tick(context.Background())
	env.monitor.SetNodeStatus("node-a", cluster.StatusFailed)

	rec := env.do(t, http.MethodPost, "/api/v1/continuity/plan", env.operatorToken,
		map[string]string{"trigger_reason": "drill"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var plan planResponse
	decode(t, rec, &plan)
	assert.Equal(t, "node-b", plan.FailoverTargetID)
	assert.Equal(t, 4, plan.ActionCount)
	assert.NotEmpty(t, plan.PlanID)

	rec = env.do(t, http.MethodPost, "/api/v1/continuity/execute", env.adminToken,
		map[string]interface{}{"plan_id": plan.PlanID, "dry_run": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var exec executeResponse
	decode(t, rec, &exec)
	assert.Equal(t, 4, exec.ActionsExecuted)
	assert.Equal(t, 0, exec.ActionsFailed)
	assert.NotEmpty(t, exec.AuditID)

	// The audit record is retrievable and intact.
	rec = env.do(t, http.MethodGet, "/api/v1/continuity/audit/"+exec.AuditID, env.operatorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var audit struct {
		Record    auditor.Record          `json:"record"`
		Integrity auditor.IntegrityResult `json:"integrity"`
	}
	decode(t, rec, &audit)
	assert.Equal(t, exec.AuditID, audit.Record.AuditID)
	assert.True(t, audit.Integrity.Valid)
}

func TestAPI_ExecuteRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodPost, "/api/v1/continuity/execute", env.operatorToken,
		map[string]interface{}{"plan_id": "plan-x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_ExecuteUnknownPlan(t *testing.T) {
	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodPost, "/api/v1/continuity/execute", env.adminToken,
		map[string]interface{}{"plan_id": "plan-missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_PlanConflictWhenNoQuorum(t *testing.T) {
	env := newTestEnv(t, 0)
	env.monitor.Tick(context.Background())
	env.monitor.SetNodeStatus("node-a", cluster.StatusFailed)
	env.monitor.SetNodeStatus("node-b", cluster.StatusFailed)

	rec := env.do(t, http.MethodPost, "/api/v1/continuity/plan", env.operatorToken,
		map[string]string{"trigger_reason": "partition"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "no_quorum", body["code"])
}

func TestAPI_ApprovalGate(t *testing.T) {
	env := newTestEnv(t, 2)
	env.monitor.Tick(context.Background())
	env.monitor.SetNodeStatus("node-a", cluster.StatusFailed)

	rec := env.do(t, http.MethodPost, "/api/v1/continuity/plan", env.operatorToken,
		map[string]string{"trigger_reason": "manual failover"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var plan planResponse
	decode(t, rec, &plan)

	// Live execution is blocked until enough approvals land.
	rec = env.do(t, http.MethodPost, "/api/v1/continuity/execute", env.adminToken,
		map[string]interface{}{"plan_id": plan.PlanID, "dry_run": false})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/continuity/plans/"+plan.PlanID+"/approve", env.operatorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Same approver cannot count twice.
	rec = env.do(t, http.MethodPost, "/api/v1/continuity/plans/"+plan.PlanID+"/approve", env.operatorToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	bobToken, err := env.svc.IssueToken("bob", auth.RoleOperator)
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/api/v1/continuity/plans/"+plan.PlanID+"/approve", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/continuity/execute", env.adminToken,
		map[string]interface{}{"plan_id": plan.PlanID, "dry_run": false})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The approvals are part of the audit trail.
	var exec executeResponse
	decode(t, rec, &exec)
	rec = env.do(t, http.MethodGet, "/api/v1/continuity/audit/"+exec.AuditID, env.operatorToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var audit struct {
		Record auditor.Record `json:"record"`
	}
	decode(t, rec, &audit)
	var manifest auditor.Manifest
	require.NoError(t, json.Unmarshal(audit.Record.Manifest, &manifest))
	assert.Len(t, manifest.Approvers, 2)
}

func TestAPI_Simulate(t *testing.T) {
	env := newTestEnv(t, 0)
	env.monitor.Tick(context.Background())

	rec := env.do(t, http.MethodPost, "/api/v1/continuity/simulate", env.operatorToken,
		map[string]interface{}{"scenario": "primary_failure", "seed": 42})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result simulator.Result
	decode(t, rec, &result)
	assert.Equal(t, simulator.ScenarioPrimaryFailure, result.Scenario)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"node-a"}, result.InjectedFailures)
}

func TestAPI_AuditNotFound(t *testing.T) {
	env := newTestEnv(t, 0)
	rec := env.do(t, http.MethodGet, "/api/v1/continuity/audit/audit-missing", env.operatorToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
