// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/continuity/internal/cluster"
	"github.com/FairForge/continuity/internal/errs"
	"github.com/FairForge/continuity/internal/metrics"
	"github.com/FairForge/continuity/internal/planner"
)

// ErrExecutionInProgress means another execution holds the cluster lock
var ErrExecutionInProgress = errors.New("executor: execution already in progress for cluster")

// ActionResult records one action's outcome
type ActionResult struct {
	Type       planner.ActionType `json:"type"`
	NodeID     string             `json:"node_id"`
	Success    bool               `json:"success"`
	DurationMS int64              `json:"duration_ms"`
	Error      string             `json:"error,omitempty"`
}

// Execution is the sealed record of running a plan. Immutable once sealed.
type Execution struct {
	ID              string         `json:"execution_id"`
	PlanID          string         `json:"plan_id"`
	ClusterID       string         `json:"cluster_id"`
	DryRun          bool           `json:"dry_run"`
	Actions         []ActionResult `json:"actions"`
	ActionsExecuted int            `json:"actions_executed"`
	ActionsFailed   int            `json:"actions_failed"`
	TotalDurationMS int64          `json:"total_duration_ms"`
	AuditID         string         `json:"audit_id,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at"`
	AbortReason     string         `json:"abort_reason,omitempty"`
}

// Succeeded reports whether every action completed
func (e *Execution) Succeeded() bool {
	return e.ActionsFailed == 0 && e.AbortReason == ""
}

// Executor runs a plan's actions in order. Actions within one plan are
// sequential; independent clusters may fail over concurrently, guarded by a
// per-cluster lock.
type Executor struct {
	driver  ActionDriver
	metrics *metrics.Collector
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	newID func() string
	clock func() time.Time
}

// NewExecutor creates an executor bound to a live action driver
func NewExecutor(driver ActionDriver, collector *metrics.Collector, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		driver:  driver,
		metrics: collector,
		logger:  logger.Named("executor"),
		locks:   make(map[string]*sync.Mutex),
		newID:   func() string { return "exec-" + uuid.NewString() },
		clock:   time.Now,
	}
}

// SetIDFunc replaces the execution ID source, for deterministic simulation
func (e *Executor) SetIDFunc(fn func() string) { e.newID = fn }

// SetClock replaces the timestamp source, for deterministic simulation
func (e *Executor) SetClock(clock func() time.Time) { e.clock = clock }

func (e *Executor) clusterLock(clusterID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[clusterID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[clusterID] = lock
	}
	return lock
}

// Execute runs the plan against the snapshot. In dry-run mode actions are
// validated and applied to the snapshot only, with the plan's estimates as
// synthetic durations; in live mode they go through the configured driver.
// A failed or over-budget action aborts the rest: already-applied actions
// are never rolled back automatically, the sealed partial execution is
// handed to the verifier to assess instead.
func (e *Executor) Execute(ctx context.Context, snap *cluster.Cluster, policy *cluster.FailoverPolicy, plan *planner.Plan, dryRun bool) (*Execution, error) {
	lock := e.clusterLock(plan.ClusterID)
	if !lock.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrExecutionInProgress, plan.ClusterID)
	}
	defer lock.Unlock()

	budget := policy.MaxFailoverTime
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	driver := e.driver
	if dryRun {
		driver = NewDryRunDriver()
	}

	exec := &Execution{
		ID:        e.newID(),
		PlanID:    plan.ID,
		ClusterID: plan.ClusterID,
		DryRun:    dryRun,
		Actions:   make([]ActionResult, 0, len(plan.Actions)),
		StartedAt: e.clock().UTC(),
	}

	started := time.Now()
	var elapsedMS int64
	var execErr error

	for i, action := range plan.Actions {
		if !dryRun {
			elapsedMS = time.Since(started).Milliseconds()
		}
		if elapsedMS+action.EstimatedMS > budget.Milliseconds() {
			execErr = errs.BudgetExceeded(
				fmt.Sprintf("aborting after %d of %d actions at %dms", i, len(plan.Actions), elapsedMS),
				fmt.Sprintf("max_failover_time_s=%d", int(budget.Seconds())))
			e.abortRemaining(exec, plan.Actions[i:], "budget exceeded")
			break
		}

		result := e.runAction(ctx, driver, snap, plan, action, dryRun)
		exec.Actions = append(exec.Actions, result)
		if e.metrics != nil {
			e.metrics.ObserveAction(string(action.Type), result.Success)
		}

		if result.Success {
			exec.ActionsExecuted++
		} else {
			exec.ActionsFailed++
			execErr = errs.ActionFailed(fmt.Sprintf("%s on %s: %s", action.Type, action.NodeID, result.Error))
			if i+1 < len(plan.Actions) {
				e.abortRemaining(exec, plan.Actions[i+1:], "prior action failed")
			}
			break
		}
		if dryRun {
			elapsedMS += result.DurationMS
		}
	}

	if dryRun {
		exec.TotalDurationMS = elapsedMS
	} else {
		exec.TotalDurationMS = time.Since(started).Milliseconds()
	}
	exec.CompletedAt = e.clock().UTC()
	if execErr != nil {
		exec.AbortReason = execErr.Error()
	}

	if e.metrics != nil {
		e.metrics.ObserveExecution(exec.ClusterID, dryRun, time.Duration(exec.TotalDurationMS)*time.Millisecond, exec.Succeeded())
	}
	e.logger.Info("execution sealed",
		zap.String("execution", exec.ID),
		zap.String("plan", plan.ID),
		zap.Bool("dry_run", dryRun),
		zap.Int("executed", exec.ActionsExecuted),
		zap.Int("failed", exec.ActionsFailed),
		zap.Int64("total_ms", exec.TotalDurationMS))

	return exec, execErr
}

// runAction dispatches one action through the driver
func (e *Executor) runAction(ctx context.Context, driver ActionDriver, snap *cluster.Cluster, plan *planner.Plan, action planner.Action, dryRun bool) ActionResult {
	result := ActionResult{Type: action.Type, NodeID: action.NodeID}

	start := time.Now()
	var err error
	switch action.Type {
	case planner.ActionDemotePrimary:
		err = driver.DemotePrimary(ctx, snap.Node(action.NodeID))
	case planner.ActionPromoteSecondary:
		err = driver.PromoteSecondary(ctx, snap.Node(action.NodeID))
	case planner.ActionRepointTraffic:
		err = driver.RepointTraffic(ctx, snap.Node(plan.PrimaryNodeID), snap.Node(action.NodeID))
	case planner.ActionRecheckHealth:
		err = driver.RecheckHealth(ctx, snap.Node(action.NodeID))
	default:
		err = fmt.Errorf("unknown action type %q", action.Type)
	}

	if dryRun {
		result.DurationMS = action.EstimatedMS
	} else {
		result.DurationMS = time.Since(start).Milliseconds()
	}
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}

// abortRemaining seals the not-run tail of the plan as failed
func (e *Executor) abortRemaining(exec *Execution, remaining []planner.Action, reason string) {
	for _, action := range remaining {
		exec.Actions = append(exec.Actions, ActionResult{
			Type:   action.Type,
			NodeID: action.NodeID,
			Error:  "aborted: " + reason,
		})
		exec.ActionsFailed++
	}
}
