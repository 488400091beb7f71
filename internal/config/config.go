// internal/config/config.go
package config

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/continuity/internal/cluster"
	"github.com/FairForge/continuity/internal/errs"
	"github.com/FairForge/continuity/internal/heartbeat"
	"github.com/FairForge/continuity/internal/verifier"
)

// Config is the declarative configuration document: cluster topology,
// failover policy, probe settings, and security settings.
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Cluster       ClusterConfig      `yaml:"cluster"`
	Policy        PolicyConfig       `yaml:"policy"`
	Heartbeat     HeartbeatConfig    `yaml:"heartbeat"`
	Verifier      VerifierConfig     `yaml:"verifier"`
	Audit         AuditConfig        `yaml:"audit"`
	Notifications NotificationConfig `yaml:"notifications"`
	Security      SecurityConfig     `yaml:"security"`
	Auth          AuthConfig         `yaml:"auth"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	LogLevel    string `yaml:"log_level"`
}

type ClusterConfig struct {
	ClusterID  string       `yaml:"cluster_id"`
	QuorumSize int          `yaml:"quorum_size"`
	Nodes      []NodeConfig `yaml:"nodes"`
}

type NodeConfig struct {
	NodeID   string  `yaml:"node_id"`
	Endpoint string  `yaml:"endpoint"`
	Role     string  `yaml:"role"`
	Region   string  `yaml:"region"`
	Site     string  `yaml:"site"`
	Priority int     `yaml:"priority"`
	Capacity float64 `yaml:"capacity"`
}

type PolicyConfig struct {
	PolicyID         string   `yaml:"policy_id"`
	Strategy         string   `yaml:"strategy"`
	MaxFailoverTimeS int      `yaml:"max_failover_time_s"`
	RequireQuorum    bool     `yaml:"require_quorum"`
	RegionPriority   []string `yaml:"region_priority"`
	SitePriority     []string `yaml:"site_priority"`
	MinHealthyNodes  int      `yaml:"min_healthy_nodes"`
}

type HeartbeatConfig struct {
	IntervalS           int     `yaml:"interval_s"`
	JitterPercent       float64 `yaml:"jitter_percent"`
	FailureThreshold    int     `yaml:"failure_threshold"`
	RecoveryThreshold   int     `yaml:"recovery_threshold"`
	MaxConcurrentProbes int     `yaml:"max_concurrent_probes"`
	LivenessTimeoutMS   int     `yaml:"liveness_timeout_ms"`
	ReadinessTimeoutMS  int     `yaml:"readiness_timeout_ms"`
	DeepCheckTimeoutMS  int     `yaml:"deep_check_timeout_ms"`
}

type VerifierConfig struct {
	StalenessSLAS int           `yaml:"staleness_sla_s"`
	Weights       WeightsConfig `yaml:"weights"`
}

type WeightsConfig struct {
	Consistency int `yaml:"consistency"`
	Quorum      int `yaml:"quorum"`
	Policy      int `yaml:"policy"`
	Freshness   int `yaml:"freshness"`
}

type AuditConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	SigningSecret string `yaml:"signing_secret"`
}

type NotificationConfig struct {
	RatePerMinute int `yaml:"rate_per_minute"`
	Burst         int `yaml:"burst"`
}

type SecurityConfig struct {
	MinTLSVersion  string         `yaml:"min_tls_version"`
	CertValidation string         `yaml:"cert_validation"`
	Allowlist      []NodeIdentity `yaml:"allowlist"`
}

// NodeIdentity pins a node to an expected identity fingerprint
type NodeIdentity struct {
	NodeID      string `yaml:"node_id"`
	Fingerprint string `yaml:"fingerprint"`
}

type AuthConfig struct {
	JWTSecret         string   `yaml:"jwt_secret"`
	RequiredApprovals int      `yaml:"required_approvals"`
	Approvers         []string `yaml:"approvers"`
}

// ApplyDefaults fills in default values
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Heartbeat.IntervalS == 0 {
		c.Heartbeat.IntervalS = 5
	}
	if c.Heartbeat.JitterPercent == 0 {
		c.Heartbeat.JitterPercent = 10
	}
	if c.Heartbeat.FailureThreshold == 0 {
		c.Heartbeat.FailureThreshold = 3
	}
	if c.Heartbeat.RecoveryThreshold == 0 {
		c.Heartbeat.RecoveryThreshold = 2
	}
	if c.Heartbeat.MaxConcurrentProbes == 0 {
		c.Heartbeat.MaxConcurrentProbes = 32
	}
	if c.Heartbeat.LivenessTimeoutMS == 0 {
		c.Heartbeat.LivenessTimeoutMS = 100
	}
	if c.Heartbeat.ReadinessTimeoutMS == 0 {
		c.Heartbeat.ReadinessTimeoutMS = 200
	}
	if c.Heartbeat.DeepCheckTimeoutMS == 0 {
		c.Heartbeat.DeepCheckTimeoutMS = 500
	}
	if c.Verifier.StalenessSLAS == 0 {
		c.Verifier.StalenessSLAS = 300
	}
	if c.Notifications.RatePerMinute == 0 {
		c.Notifications.RatePerMinute = 30
	}
	if c.Notifications.Burst == 0 {
		c.Notifications.Burst = 10
	}
	if c.Policy.MaxFailoverTimeS == 0 {
		c.Policy.MaxFailoverTimeS = 300
	}
	if c.Security.MinTLSVersion == "" {
		c.Security.MinTLSVersion = "1.2"
	}
	if c.Security.CertValidation == "" {
		c.Security.CertValidation = "strict"
	}
}

// Load reads, schema-validates and decodes a configuration document
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a configuration document from raw YAML
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.PolicyValidation(fmt.Sprintf("parse config: %v", err))
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs the typed validation pass over the decoded document
func (c *Config) Validate() error {
	cl := c.ToCluster()
	if err := cl.Validate(); err != nil {
		return errs.PolicyValidation(err.Error())
	}
	pol := c.ToPolicy()
	if err := pol.Validate(); err != nil {
		return errs.PolicyValidation(err.Error())
	}
	if c.Policy.MinHealthyNodes > len(c.Cluster.Nodes) {
		return errs.PolicyValidation(fmt.Sprintf(
			"policy %s: min_healthy_nodes %d exceeds node count %d",
			pol.ID, c.Policy.MinHealthyNodes, len(c.Cluster.Nodes)))
	}
	if c.Heartbeat.FailureThreshold < 1 || c.Heartbeat.RecoveryThreshold < 1 {
		return errs.PolicyValidation("heartbeat thresholds must be at least 1")
	}
	// One tick must complete before the next begins
	deepest := time.Duration(c.Heartbeat.DeepCheckTimeoutMS) * time.Millisecond
	if deepest >= time.Duration(c.Heartbeat.IntervalS)*time.Second {
		return errs.PolicyValidation("deep_check_timeout_ms must be shorter than interval_s")
	}
	switch c.Security.CertValidation {
	case "strict", "allowlist", "insecure_skip":
	default:
		return errs.PolicyValidation(fmt.Sprintf("invalid cert_validation mode %q", c.Security.CertValidation))
	}
	return nil
}

// ToCluster builds the cluster model from the topology section. All nodes
// start with status unknown until the first probe completes.
func (c *Config) ToCluster() *cluster.Cluster {
	cl := &cluster.Cluster{
		ID:             c.Cluster.ClusterID,
		QuorumOverride: c.Cluster.QuorumSize,
		Nodes:          make([]*cluster.Node, 0, len(c.Cluster.Nodes)),
	}
	for _, n := range c.Cluster.Nodes {
		cl.Nodes = append(cl.Nodes, &cluster.Node{
			ID:       n.NodeID,
			Endpoint: n.Endpoint,
			Role:     cluster.Role(n.Role),
			Region:   n.Region,
			Site:     n.Site,
			Status:   cluster.StatusUnknown,
			Priority: n.Priority,
			Capacity: n.Capacity,
		})
	}
	cl.Regions = cl.RegionSet()
	return cl
}

// ToHeartbeat builds the monitor settings from the heartbeat section
func (c *Config) ToHeartbeat() *heartbeat.Config {
	return &heartbeat.Config{
		Interval:            time.Duration(c.Heartbeat.IntervalS) * time.Second,
		JitterPercent:       c.Heartbeat.JitterPercent,
		FailureThreshold:    c.Heartbeat.FailureThreshold,
		RecoveryThreshold:   c.Heartbeat.RecoveryThreshold,
		MaxConcurrentProbes: c.Heartbeat.MaxConcurrentProbes,
		Timeouts:            c.ToProbeTimeouts(),
	}
}

// ToProbeTimeouts builds the per-layer probe deadlines
func (c *Config) ToProbeTimeouts() heartbeat.ProbeTimeouts {
	return heartbeat.ProbeTimeouts{
		Liveness:  time.Duration(c.Heartbeat.LivenessTimeoutMS) * time.Millisecond,
		Readiness: time.Duration(c.Heartbeat.ReadinessTimeoutMS) * time.Millisecond,
		Deep:      time.Duration(c.Heartbeat.DeepCheckTimeoutMS) * time.Millisecond,
	}
}

// ToWeights builds the confidence weighting, falling back to the defaults
// when the section is absent.
func (c *Config) ToWeights() verifier.Weights {
	w := c.Verifier.Weights
	if w.Consistency == 0 && w.Quorum == 0 && w.Policy == 0 && w.Freshness == 0 {
		return verifier.DefaultWeights()
	}
	return verifier.Weights{
		Consistency: w.Consistency,
		Quorum:      w.Quorum,
		Policy:      w.Policy,
		Freshness:   w.Freshness,
	}
}

// ToTLS builds the client TLS settings used for node probes
func (c *Config) ToTLS() *tls.Config {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.Security.MinTLSVersion == "1.3" {
		cfg.MinVersion = tls.VersionTLS13
	}
	switch c.Security.CertValidation {
	case "insecure_skip":
		cfg.InsecureSkipVerify = true // #nosec G402 - explicit operator opt-in for lab setups
	case "allowlist":
		pins := make(map[string]struct{}, len(c.Security.Allowlist))
		for _, id := range c.Security.Allowlist {
			pins[strings.ToLower(id.Fingerprint)] = struct{}{}
		}
		// Chain validation is replaced by fingerprint pinning against the
		// node allowlist.
		cfg.InsecureSkipVerify = true // #nosec G402
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("peer presented no certificate")
			}
			sum := sha256.Sum256(rawCerts[0])
			if _, ok := pins[hex.EncodeToString(sum[:])]; !ok {
				return fmt.Errorf("peer certificate fingerprint is not in the node allowlist")
			}
			return nil
		}
	}
	return cfg
}

// ToPolicy builds the failover policy from the policy section
func (c *Config) ToPolicy() *cluster.FailoverPolicy {
	return &cluster.FailoverPolicy{
		ID:              c.Policy.PolicyID,
		Strategy:        cluster.Strategy(c.Policy.Strategy),
		MaxFailoverTime: time.Duration(c.Policy.MaxFailoverTimeS) * time.Second,
		RequireQuorum:   c.Policy.RequireQuorum,
		RegionPriority:  append([]string(nil), c.Policy.RegionPriority...),
		SitePriority:    append([]string(nil), c.Policy.SitePriority...),
		MinHealthyNodes: c.Policy.MinHealthyNodes,
	}
}
