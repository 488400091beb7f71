// internal/simulator/simulator.go
package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/continuity/internal/cluster"
	"github.com/FairForge/continuity/internal/executor"
	"github.com/FairForge/continuity/internal/planner"
	"github.com/FairForge/continuity/internal/verifier"
)

// Scenario names a fault-injection scenario
type Scenario string

const (
	ScenarioPrimaryFailure   Scenario = "primary_failure"
	ScenarioSecondaryFailure Scenario = "secondary_failure"
	ScenarioRegionFailure    Scenario = "region_failure"
	ScenarioNetworkPartition Scenario = "network_partition"
	ScenarioCascadingFailure Scenario = "cascading_failure"
)

// Scenarios lists every known scenario
func Scenarios() []Scenario {
	return []Scenario{
		ScenarioPrimaryFailure,
		ScenarioSecondaryFailure,
		ScenarioRegionFailure,
		ScenarioNetworkPartition,
		ScenarioCascadingFailure,
	}
}

// Result is the outcome of one simulated failover cycle. Identical
// (cluster, policy, scenario, seed) inputs always produce byte-identical
// results, which is what makes the simulator usable as a regression oracle.
type Result struct {
	Scenario         Scenario            `json:"scenario"`
	Seed             int64               `json:"seed"`
	InjectedFailures []string            `json:"injected_failures"`
	Success          bool                `json:"success"`
	Error            string              `json:"error,omitempty"`
	Plan             *planner.Plan       `json:"plan,omitempty"`
	Execution        *executor.Execution `json:"failover,omitempty"`
	Verification     *verifier.Report    `json:"verification,omitempty"`
}

// SuiteReport summarizes a scenario suite run
type SuiteReport struct {
	GeneratedAt   time.Time `json:"generated_at"`
	Total         int       `json:"total"`
	Passed        int       `json:"passed"`
	Failed        int       `json:"failed"`
	AvgFailoverMS int64     `json:"avg_failover_ms"`
	Results       []*Result `json:"results"`
}

// Config configures the simulated pipeline
type Config struct {
	Durations planner.Durations
	Weights   verifier.Weights
	StaleSLA  time.Duration
}

// DefaultConfig returns the standard simulation settings
func DefaultConfig() *Config {
	return &Config{
		Durations: planner.DefaultDurations(),
		Weights:   verifier.DefaultWeights(),
		StaleSLA:  5 * time.Minute,
	}
}

// Simulator drives plan -> execute -> verify against synthetic fault
// scenarios, in dry-run mode, without touching real infrastructure.
type Simulator struct {
	cfg    *Config
	logger *zap.Logger
}

// NewSimulator creates a simulator
func NewSimulator(cfg *Config, logger *zap.Logger) *Simulator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{cfg: cfg, logger: logger.Named("simulator")}
}

// simEpoch anchors all simulated timestamps so outputs never depend on the
// wall clock.
var simEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Simulate applies the scenario's failures to a copy of the cluster using a
// seeded pseudo-random source, then runs the normal pipeline in dry-run.
func (s *Simulator) Simulate(ctx context.Context, cl *cluster.Cluster, policy *cluster.FailoverPolicy, scenario Scenario, seed int64) (*Result, error) {
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 - deterministic chaos source
	simNow := simEpoch.Add(time.Duration(seed%86400) * time.Second)
	clock := func() time.Time { return simNow }

	// Work on a steady-state copy: every node starts healthy, then failures
	// are injected.
	working := cl.Clone()
	for _, node := range working.Nodes {
		node.Status = cluster.StatusHealthy
	}

	injected, err := inject(working, scenario, rng)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Scenario:         scenario,
		Seed:             seed,
		InjectedFailures: injected,
	}

	pre := working.Clone()

	plnr := planner.NewPlanner(s.cfg.Durations, s.logger)
	plnr.SetClock(clock)

	plan, err := plnr.Plan(working, policy, "simulated "+string(scenario))
	if err != nil {
		result.Error = err.Error()
		s.logResult(result)
		return result, nil
	}
	result.Plan = plan

	exec := executor.NewExecutor(executor.NewDryRunDriver(), nil, s.logger)
	exec.SetClock(clock)
	exec.SetIDFunc(func() string { return fmt.Sprintf("exec-%016x", rng.Uint64()) })

	execution, execErr := exec.Execute(ctx, working, policy, plan, true)
	if execution == nil {
		return nil, execErr
	}
	result.Execution = execution

	freshness := verifier.NewStaticFreshness()
	for _, node := range working.Nodes {
		freshness.Set(node.ID, simNow.Add(-time.Minute))
	}

	vrf := verifier.NewVerifier(s.cfg.Weights, freshness, s.cfg.StaleSLA, s.logger)
	vrf.SetClock(clock)
	vrf.SetIDFunc(func() string { return fmt.Sprintf("report-%016x", rng.Uint64()) })

	report, err := vrf.Verify(ctx, pre, working, policy, plan, execution)
	if err != nil {
		return nil, err
	}
	result.Verification = report
	result.Success = execution.Succeeded() && report.Passed

	s.logResult(result)
	return result, nil
}

// RunSuite executes every scenario with the same seed and summarizes
func (s *Simulator) RunSuite(ctx context.Context, cl *cluster.Cluster, policy *cluster.FailoverPolicy, scenarios []Scenario, seed int64) (*SuiteReport, error) {
	report := &SuiteReport{
		GeneratedAt: time.Now().UTC(),
		Results:     make([]*Result, 0, len(scenarios)),
	}

	var totalMS int64
	executed := 0
	for _, scenario := range scenarios {
		result, err := s.Simulate(ctx, cl, policy, scenario, seed)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, result)
		report.Total++
		if result.Success {
			report.Passed++
		} else {
			report.Failed++
		}
		if result.Execution != nil {
			totalMS += result.Execution.TotalDurationMS
			executed++
		}
	}
	if executed > 0 {
		report.AvgFailoverMS = totalMS / int64(executed)
	}
	return report, nil
}

func (s *Simulator) logResult(result *Result) {
	s.logger.Info("scenario complete",
		zap.String("scenario", string(result.Scenario)),
		zap.Int64("seed", result.Seed),
		zap.Strings("injected", result.InjectedFailures),
		zap.Bool("success", result.Success))
}

// inject applies the named scenario's failures and returns the failed nodes
func inject(working *cluster.Cluster, scenario Scenario, rng *rand.Rand) ([]string, error) {
	var victims []*cluster.Node

	switch scenario {
	case ScenarioPrimaryFailure:
		if primary := working.Primary(); primary != nil {
			victims = append(victims, primary)
		}

	case ScenarioSecondaryFailure:
		if secondary := pickNode(working, cluster.RoleSecondary, rng); secondary != nil {
			victims = append(victims, secondary)
		}

	case ScenarioRegionFailure:
		regions := working.RegionSet()
		if len(regions) > 0 {
			region := regions[rng.Intn(len(regions))]
			for _, node := range working.Nodes {
				if node.Region == region {
					victims = append(victims, node)
				}
			}
		}

	case ScenarioNetworkPartition:
		// The minority side of the partition goes dark.
		n := len(working.Nodes) / 2
		perm := rng.Perm(len(working.Nodes))
		for _, idx := range perm[:n] {
			victims = append(victims, working.Nodes[idx])
		}

	case ScenarioCascadingFailure:
		if primary := working.Primary(); primary != nil {
			victims = append(victims, primary)
		}
		if secondary := pickNode(working, cluster.RoleSecondary, rng); secondary != nil {
			victims = append(victims, secondary)
		}

	default:
		return nil, fmt.Errorf("simulator: unknown scenario %q", scenario)
	}

	injected := make([]string, 0, len(victims))
	for _, node := range victims {
		node.Status = cluster.StatusFailed
		injected = append(injected, node.ID)
	}
	return injected, nil
}

// pickNode selects a random node with the given role
func pickNode(working *cluster.Cluster, role cluster.Role, rng *rand.Rand) *cluster.Node {
	matches := make([]*cluster.Node, 0, len(working.Nodes))
	for _, node := range working.Nodes {
		if node.Role == role {
			matches = append(matches, node)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	return matches[rng.Intn(len(matches))]
}
