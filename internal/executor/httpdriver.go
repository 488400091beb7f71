// internal/executor/httpdriver.go
package executor

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/FairForge/continuity/internal/cluster"
)

// HTTPDriver applies failover actions by calling each node's control
// endpoints. Nodes are expected to expose the role-change API under
// /control on their health endpoint.
type HTTPDriver struct {
	client *http.Client
}

// NewHTTPDriver creates a driver using the deployment's transport security
func NewHTTPDriver(tlsConf *tls.Config) *HTTPDriver {
	transport := &http.Transport{TLSClientConfig: tlsConf}
	return &HTTPDriver{client: &http.Client{Transport: transport}}
}

// DemotePrimary asks the node to step down to secondary
func (d *HTTPDriver) DemotePrimary(ctx context.Context, node *cluster.Node) error {
	if node == nil {
		return fmt.Errorf("demote: node not found")
	}
	return d.post(ctx, node, "/control/demote", "")
}

// PromoteSecondary asks the node to take the primary role
func (d *HTTPDriver) PromoteSecondary(ctx context.Context, node *cluster.Node) error {
	if node == nil {
		return fmt.Errorf("promote: node not found")
	}
	return d.post(ctx, node, "/control/promote", "")
}

// RepointTraffic tells the new primary to take over the traffic endpoint
func (d *HTTPDriver) RepointTraffic(ctx context.Context, from, to *cluster.Node) error {
	if to == nil {
		return fmt.Errorf("repoint: target not found")
	}
	var body string
	if from != nil {
		body = fmt.Sprintf(`{"previous_primary":%q}`, from.ID)
	}
	return d.post(ctx, to, "/control/repoint", body)
}

// RecheckHealth runs the deep health check against the promoted node
func (d *HTTPDriver) RecheckHealth(ctx context.Context, node *cluster.Node) error {
	if node == nil {
		return fmt.Errorf("recheck: node not found")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, node.Endpoint+"/healthz/deep", nil)
	if err != nil {
		return fmt.Errorf("recheck %s: %w", node.ID, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("recheck %s: %w", node.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recheck %s: status %d", node.ID, resp.StatusCode)
	}
	return nil
}

func (d *HTTPDriver) post(ctx context.Context, node *cluster.Node, path, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, node.Endpoint+path, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s %s: %w", path, node.ID, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", path, node.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d", path, node.ID, resp.StatusCode)
	}
	return nil
}
