// internal/heartbeat/probe.go
package heartbeat

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/FairForge/continuity/internal/cluster"
)

// Layer identifies a health-check layer
type Layer string

const (
	LayerLiveness  Layer = "liveness"
	LayerReadiness Layer = "readiness"
	LayerDeep      Layer = "deep"
)

// ProbeTimeouts holds the per-layer probe timeouts
type ProbeTimeouts struct {
	Liveness  time.Duration
	Readiness time.Duration
	Deep      time.Duration
}

// DefaultProbeTimeouts returns the standard layer timeouts
func DefaultProbeTimeouts() ProbeTimeouts {
	return ProbeTimeouts{
		Liveness:  100 * time.Millisecond,
		Readiness: 200 * time.Millisecond,
		Deep:      500 * time.Millisecond,
	}
}

// For returns the timeout for a layer
func (t ProbeTimeouts) For(layer Layer) time.Duration {
	switch layer {
	case LayerLiveness:
		return t.Liveness
	case LayerReadiness:
		return t.Readiness
	default:
		return t.Deep
	}
}

// Prober issues a single bounded-time health probe against a node.
// Implementations must respect context cancellation.
type Prober interface {
	Probe(ctx context.Context, node *cluster.Node, layer Layer) error
}

// HTTPProber probes nodes over HTTP health endpoints
type HTTPProber struct {
	client *http.Client
	paths  map[Layer]string
}

// NewHTTPProber creates a prober. tlsConf carries the deployment's transport
// security settings (minimum version, certificate validation mode).
func NewHTTPProber(tlsConf *tls.Config) *HTTPProber {
	transport := &http.Transport{TLSClientConfig: tlsConf}
	return &HTTPProber{
		client: &http.Client{Transport: transport},
		paths: map[Layer]string{
			LayerLiveness:  "/livez",
			LayerReadiness: "/readyz",
			LayerDeep:      "/healthz/deep",
		},
	}
}

// Probe issues a GET against the node's health endpoint for the layer
func (p *HTTPProber) Probe(ctx context.Context, node *cluster.Node, layer Layer) error {
	url := node.Endpoint + p.paths[layer]
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("probe %s: %w", node.ID, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", node.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: %s returned %d", node.ID, layer, resp.StatusCode)
	}
	return nil
}

// StaticProber returns scripted results, for tests and operator drills
type StaticProber struct {
	mu      sync.RWMutex
	results map[string]error
}

// NewStaticProber creates a prober where every node passes by default
func NewStaticProber() *StaticProber {
	return &StaticProber{results: make(map[string]error)}
}

// SetResult scripts the probe outcome for a node (nil means success)
func (p *StaticProber) SetResult(nodeID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[nodeID] = err
}

// Probe returns the scripted result for the node
func (p *StaticProber) Probe(_ context.Context, node *cluster.Node, _ Layer) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.results[node.ID]
}
