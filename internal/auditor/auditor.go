// internal/auditor/auditor.go
package auditor

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/continuity/internal/errs"
	"github.com/FairForge/continuity/internal/executor"
	"github.com/FairForge/continuity/internal/planner"
	"github.com/FairForge/continuity/internal/verifier"
)

// Manifest is the canonicalized summary of one planning -> verification
// cycle. Field order is fixed by the struct, and no wall-clock values are
// included, so the same cycle always hashes to the same digest.
type Manifest struct {
	PlanID           string                  `json:"plan_id"`
	ClusterID        string                  `json:"cluster_id"`
	PolicyID         string                  `json:"policy_id"`
	PrimaryNodeID    string                  `json:"primary_node_id,omitempty"`
	TargetNodeID     string                  `json:"failover_target_id"`
	Reason           string                  `json:"reason"`
	Approvers        []string                `json:"approvers,omitempty"`
	Actions          []planner.Action        `json:"actions"`
	EstimatedTotalMS int64                   `json:"estimated_total_ms"`
	ExecutionID      string                  `json:"execution_id"`
	DryRun           bool                    `json:"dry_run"`
	ActionResults    []executor.ActionResult `json:"action_results"`
	ActionsExecuted  int                     `json:"actions_executed"`
	ActionsFailed    int                     `json:"actions_failed"`
	TotalDurationMS  int64                   `json:"total_duration_ms"`
	AbortReason      string                  `json:"abort_reason,omitempty"`
	ReportID         string                  `json:"report_id"`
	ConsistencyOK    bool                    `json:"consistency_ok"`
	PolicyOK         bool                    `json:"policy_ok"`
	QuorumOK         bool                    `json:"quorum_ok"`
	FreshnessOK      bool                    `json:"freshness_ok"`
	Passed           bool                    `json:"passed"`
	ConfidenceScore  int                     `json:"confidence_score"`
	ConfidenceBand   string                  `json:"confidence_band"`
}

// Record is the tamper-evident audit entry. Append-only: corrections
// require a new record referencing the old one via Supersedes.
type Record struct {
	AuditID     string          `json:"audit_id"`
	CreatedAt   time.Time       `json:"created_at"`
	PlanID      string          `json:"plan_id"`
	ExecutionID string          `json:"execution_id"`
	ReportID    string          `json:"report_id"`
	Manifest    json.RawMessage `json:"manifest"`
	Digest      string          `json:"digest"`
	Signature   string          `json:"signature,omitempty"`
	Supersedes  string          `json:"supersedes,omitempty"`
}

// IntegrityResult reports the outcome of an integrity verification
type IntegrityResult struct {
	AuditID        string `json:"audit_id"`
	Valid          bool   `json:"valid"`
	StoredDigest   string `json:"stored_digest"`
	ComputedDigest string `json:"computed_digest"`
	Detail         string `json:"detail,omitempty"`
}

// Auditor builds and verifies the audit trail of failover cycles
type Auditor struct {
	store  Store
	signer ed25519.PrivateKey
	logger *zap.Logger
	newID  func() string
	clock  func() time.Time
}

// NewAuditor creates an auditor. signer may be nil for unsigned records.
func NewAuditor(store Store, signer ed25519.PrivateKey, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		store:  store,
		signer: signer,
		logger: logger.Named("auditor"),
		newID:  func() string { return "audit-" + uuid.NewString() },
		clock:  time.Now,
	}
}

// SetIDFunc replaces the audit ID source, for deterministic tests
func (a *Auditor) SetIDFunc(fn func() string) { a.newID = fn }

// buildManifest assembles the canonical manifest for a cycle. execution and
// report may be nil when planning was refused before any side effect.
func buildManifest(plan *planner.Plan, exec *executor.Execution, report *verifier.Report, approvers []string) *Manifest {
	m := &Manifest{
		PlanID:           plan.ID,
		ClusterID:        plan.ClusterID,
		PolicyID:         plan.PolicyID,
		PrimaryNodeID:    plan.PrimaryNodeID,
		TargetNodeID:     plan.TargetNodeID,
		Reason:           plan.Reason,
		Approvers:        approvers,
		Actions:          plan.Actions,
		EstimatedTotalMS: plan.EstimatedTotalMS,
	}
	if exec != nil {
		m.ExecutionID = exec.ID
		m.DryRun = exec.DryRun
		m.ActionResults = exec.Actions
		m.ActionsExecuted = exec.ActionsExecuted
		m.ActionsFailed = exec.ActionsFailed
		m.TotalDurationMS = exec.TotalDurationMS
		m.AbortReason = exec.AbortReason
	}
	if report != nil {
		m.ReportID = report.ID
		m.ConsistencyOK = report.ConsistencyOK
		m.PolicyOK = report.PolicyOK
		m.QuorumOK = report.QuorumOK
		m.FreshnessOK = report.FreshnessOK
		m.Passed = report.Passed
		m.ConfidenceScore = report.Confidence.Score
		m.ConfidenceBand = string(report.Confidence.Band)
	}
	return m
}

func digestOf(manifest []byte) string {
	sum := sha256.Sum256(manifest)
	return hex.EncodeToString(sum[:])
}

// Record serializes a cycle into canonical form, digests it, optionally
// signs it, and persists the resulting record. Failed cycles are recorded
// just the same: failed failovers must be as auditable as successful ones.
// approvers lists the principals who approved the plan, empty for dry runs
// and automatic failovers.
func (a *Auditor) Record(ctx context.Context, plan *planner.Plan, exec *executor.Execution, report *verifier.Report, approvers []string) (*Record, error) {
	manifest, err := json.Marshal(buildManifest(plan, exec, report, approvers))
	if err != nil {
		return nil, fmt.Errorf("auditor: marshal manifest: %w", err)
	}

	record := &Record{
		AuditID:   a.newID(),
		CreatedAt: a.clock().UTC(),
		PlanID:    plan.ID,
		Manifest:  manifest,
		Digest:    digestOf(manifest),
	}
	if exec != nil {
		record.ExecutionID = exec.ID
	}
	if report != nil {
		record.ReportID = report.ID
	}
	if a.signer != nil {
		record.Signature = hex.EncodeToString(ed25519.Sign(a.signer, []byte(record.Digest)))
	}

	if err := a.store.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("auditor: append record: %w", err)
	}

	a.logger.Info("audit record persisted",
		zap.String("audit", record.AuditID),
		zap.String("plan", record.PlanID),
		zap.String("digest", record.Digest))
	return record, nil
}

// Get returns a stored record by ID
func (a *Auditor) Get(ctx context.Context, auditID string) (*Record, error) {
	return a.store.Get(ctx, auditID)
}

// VerifyIntegrity recomputes the digest from stored content and compares it
// to the stored digest. A mismatch returns the populated result together
// with an integrity error; it is never silently ignored.
func (a *Auditor) VerifyIntegrity(ctx context.Context, auditID string) (*IntegrityResult, error) {
	record, err := a.store.Get(ctx, auditID)
	if err != nil {
		return nil, err
	}

	result := &IntegrityResult{
		AuditID:        record.AuditID,
		StoredDigest:   record.Digest,
		ComputedDigest: digestOf(record.Manifest),
	}

	if result.ComputedDigest != result.StoredDigest {
		result.Detail = fmt.Sprintf("stored digest %s does not match recomputed %s",
			result.StoredDigest, result.ComputedDigest)
		a.logger.Error("audit integrity failure",
			zap.String("audit", auditID),
			zap.String("detail", result.Detail))
		return result, errs.Integrity(result.Detail)
	}

	if record.Signature != "" && a.signer != nil {
		sig, decodeErr := hex.DecodeString(record.Signature)
		pub := a.signer.Public().(ed25519.PublicKey)
		if decodeErr != nil || !ed25519.Verify(pub, []byte(record.Digest), sig) {
			result.Detail = "signature does not verify against the audit signing key"
			return result, errs.Integrity(result.Detail)
		}
	}

	result.Valid = true
	return result, nil
}
