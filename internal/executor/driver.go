// internal/executor/driver.go
package executor

import (
	"context"
	"fmt"

	"github.com/FairForge/continuity/internal/cluster"
)

// ActionDriver applies failover actions to infrastructure. The executor
// depends only on this interface; real DNS and service-control drivers are
// swappable implementations supplied by the deployment environment.
type ActionDriver interface {
	DemotePrimary(ctx context.Context, node *cluster.Node) error
	PromoteSecondary(ctx context.Context, node *cluster.Node) error
	RepointTraffic(ctx context.Context, from, to *cluster.Node) error
	RecheckHealth(ctx context.Context, node *cluster.Node) error
}

// DryRunDriver validates each action's pre-conditions and applies the role
// change to the in-memory snapshot only, never to real infrastructure. The
// mutated snapshot is what the verifier inspects afterwards.
type DryRunDriver struct{}

// NewDryRunDriver creates the no-side-effect driver
func NewDryRunDriver() *DryRunDriver {
	return &DryRunDriver{}
}

// DemotePrimary strips the primary role from a node
func (d *DryRunDriver) DemotePrimary(_ context.Context, node *cluster.Node) error {
	if node == nil {
		return fmt.Errorf("demote: node not found")
	}
	if node.Role != cluster.RolePrimary {
		return fmt.Errorf("demote %s: role is %s, expected primary", node.ID, node.Role)
	}
	node.Role = cluster.RoleSecondary
	return nil
}

// PromoteSecondary promotes a healthy secondary to primary
func (d *DryRunDriver) PromoteSecondary(_ context.Context, node *cluster.Node) error {
	if node == nil {
		return fmt.Errorf("promote: node not found")
	}
	if node.Role != cluster.RoleSecondary {
		return fmt.Errorf("promote %s: role is %s, expected secondary", node.ID, node.Role)
	}
	if node.Status != cluster.StatusHealthy {
		return fmt.Errorf("promote %s: status is %s, expected healthy", node.ID, node.Status)
	}
	node.Role = cluster.RolePrimary
	return nil
}

// RepointTraffic re-points traffic at the new primary
func (d *DryRunDriver) RepointTraffic(_ context.Context, _ *cluster.Node, to *cluster.Node) error {
	if to == nil {
		return fmt.Errorf("repoint: target not found")
	}
	if to.Role != cluster.RolePrimary {
		return fmt.Errorf("repoint %s: target role is %s, expected primary", to.ID, to.Role)
	}
	return nil
}

// RecheckHealth confirms the promoted node still looks healthy
func (d *DryRunDriver) RecheckHealth(_ context.Context, node *cluster.Node) error {
	if node == nil {
		return fmt.Errorf("recheck: node not found")
	}
	if node.Status != cluster.StatusHealthy {
		return fmt.Errorf("recheck %s: status is %s", node.ID, node.Status)
	}
	return nil
}
