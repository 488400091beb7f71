// internal/api/api.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/FairForge/continuity/internal/auditor"
	"github.com/FairForge/continuity/internal/auth"
	"github.com/FairForge/continuity/internal/cluster"
	"github.com/FairForge/continuity/internal/errs"
	"github.com/FairForge/continuity/internal/executor"
	"github.com/FairForge/continuity/internal/heartbeat"
	"github.com/FairForge/continuity/internal/planner"
	"github.com/FairForge/continuity/internal/simulator"
	"github.com/FairForge/continuity/internal/verifier"
)

// Handler handles HTTP requests for the continuity API
type Handler struct {
	monitor   *heartbeat.Monitor
	planner   *planner.Planner
	executor  *executor.Executor
	verifier  *verifier.Verifier
	simulator *simulator.Simulator
	auditor   *auditor.Auditor
	approvals *auth.ApprovalRegistry
	policy    *cluster.FailoverPolicy
	logger    *zap.Logger

	mu    sync.Mutex
	plans map[string]*pendingPlan
}

// pendingPlan pins the snapshot a plan was computed against so execution
// and verification see the same pre-state.
type pendingPlan struct {
	plan *planner.Plan
	pre  *cluster.Cluster
}

// NewHandler creates the API handler
func NewHandler(monitor *heartbeat.Monitor, pl *planner.Planner, ex *executor.Executor, vf *verifier.Verifier, sim *simulator.Simulator, aud *auditor.Auditor, approvals *auth.ApprovalRegistry, policy *cluster.FailoverPolicy, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		monitor:   monitor,
		planner:   pl,
		executor:  ex,
		verifier:  vf,
		simulator: sim,
		auditor:   aud,
		approvals: approvals,
		policy:    policy,
		logger:    logger.Named("api"),
		plans:     make(map[string]*pendingPlan),
	}
}

// RegisterRoutes registers all continuity API routes. Failover execution
// requires the admin role, the rest operator.
func (h *Handler) RegisterRoutes(r chi.Router, svc *auth.Service) {
	r.Route("/api/v1/continuity", func(r chi.Router) {
		r.Use(svc.Middleware)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleOperator))
			r.Get("/status", h.GetStatus)
			r.Post("/plan", h.CreatePlan)
			r.Post("/plans/{planID}/approve", h.ApprovePlan)
			r.Post("/simulate", h.Simulate)
			r.Get("/audit/{auditID}", h.GetAudit)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Post("/execute", h.Execute)
		})
	})
}

// GetStatus returns the cluster health summary
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.monitor.Status())
}

type planRequest struct {
	TriggerReason string `json:"trigger_reason"`
}

type planResponse struct {
	PlanID           string `json:"plan_id"`
	PrimaryNodeID    string `json:"primary_node_id,omitempty"`
	FailoverTargetID string `json:"failover_target_id"`
	EstimatedTotalMS int64  `json:"estimated_total_ms"`
	ActionCount      int    `json:"action_count"`
}

// CreatePlan computes a failover plan against the current cluster snapshot
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.TriggerReason == "" {
		req.TriggerReason = "manual"
	}

	pre := h.monitor.Snapshot()
	plan, err := h.planner.Plan(pre, h.policy, req.TriggerReason)
	if err != nil {
		h.respondError(w, statusForError(err), err)
		return
	}

	h.mu.Lock()
	h.plans[plan.ID] = &pendingPlan{plan: plan, pre: pre}
	h.mu.Unlock()

	h.respondJSON(w, http.StatusCreated, planResponse{
		PlanID:           plan.ID,
		PrimaryNodeID:    plan.PrimaryNodeID,
		FailoverTargetID: plan.TargetNodeID,
		EstimatedTotalMS: plan.EstimatedTotalMS,
		ActionCount:      len(plan.Actions),
	})
}

// ApprovePlan records the caller's approval on a pending plan
func (h *Handler) ApprovePlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	h.mu.Lock()
	_, ok := h.plans[planID]
	h.mu.Unlock()
	if !ok {
		h.respondError(w, http.StatusNotFound, errors.New("unknown plan"))
		return
	}

	claims := auth.FromContext(r.Context())
	approval, err := h.approvals.Approve(planID, claims.Subject)
	if err != nil {
		h.respondError(w, http.StatusConflict, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"plan_id":   planID,
		"approver":  approval.Approver,
		"approvals": len(h.approvals.Approvals(planID)),
		"required":  h.approvals.Required(),
		"approved":  h.approvals.Approved(planID),
	})
}

type executeRequest struct {
	PlanID string `json:"plan_id"`
	DryRun bool   `json:"dry_run"`
}

type confidenceResponse struct {
	Score int    `json:"score"`
	Band  string `json:"band"`
}

type executeResponse struct {
	ExecutionID     string             `json:"execution_id"`
	Success         bool               `json:"success"`
	ActionsExecuted int                `json:"actions_executed"`
	ActionsFailed   int                `json:"actions_failed"`
	TotalDurationMS int64              `json:"total_duration_ms"`
	AuditID         string             `json:"audit_id,omitempty"`
	Confidence      confidenceResponse `json:"confidence"`
}

// Execute runs a previously computed plan. The partial execution is still
// verified and audited when an action fails or the budget is exceeded.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}

	h.mu.Lock()
	pending, ok := h.plans[req.PlanID]
	h.mu.Unlock()
	if !ok {
		h.respondError(w, http.StatusNotFound, errors.New("unknown plan"))
		return
	}
	if !req.DryRun && !h.approvals.Approved(req.PlanID) {
		h.respondError(w, http.StatusForbidden, errors.New("plan lacks required approvals"))
		return
	}

	// The executor works on a clone so the pinned pre-state stays intact for
	// verification.
	working := pending.pre.Clone()
	exec, execErr := h.executor.Execute(r.Context(), working, h.policy, pending.plan, req.DryRun)
	if exec == nil {
		status := http.StatusInternalServerError
		if errors.Is(execErr, executor.ErrExecutionInProgress) {
			status = http.StatusConflict
		}
		h.respondError(w, status, execErr)
		return
	}
	if execErr != nil {
		h.logger.Warn("execution did not complete",
			zap.String("plan_id", req.PlanID), zap.Error(execErr))
	}

	var post *cluster.Cluster
	if req.DryRun {
		post = working
	} else {
		if execErr == nil {
			if pending.plan.PrimaryNodeID != "" {
				h.monitor.SetNodeRole(pending.plan.PrimaryNodeID, cluster.RoleSecondary)
			}
			h.monitor.SetNodeRole(pending.plan.TargetNodeID, cluster.RolePrimary)
		}
		post = h.monitor.Snapshot()
	}

	report, err := h.verifier.Verify(r.Context(), pending.pre, post, h.policy, pending.plan, exec)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}

	var approvers []string
	if !req.DryRun {
		for _, approval := range h.approvals.Approvals(req.PlanID) {
			approvers = append(approvers, approval.Approver)
		}
	}

	record, err := h.auditor.Record(r.Context(), pending.plan, exec, report, approvers)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	exec.AuditID = record.AuditID

	// A dry run does not consume the plan; a live execution does.
	if !req.DryRun {
		h.mu.Lock()
		delete(h.plans, req.PlanID)
		h.mu.Unlock()
	}

	h.respondJSON(w, http.StatusOK, executeResponse{
		ExecutionID:     exec.ID,
		Success:         exec.Succeeded() && report.Passed,
		ActionsExecuted: exec.ActionsExecuted,
		ActionsFailed:   exec.ActionsFailed,
		TotalDurationMS: exec.TotalDurationMS,
		AuditID:         record.AuditID,
		Confidence: confidenceResponse{
			Score: report.Confidence.Score,
			Band:  string(report.Confidence.Band),
		},
	})
}

type simulateRequest struct {
	Scenario string `json:"scenario"`
	Seed     int64  `json:"seed"`
}

// Simulate runs a failure scenario against a copy of the current cluster
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.simulator.Simulate(r.Context(), h.monitor.Snapshot(), h.policy, simulator.Scenario(req.Scenario), req.Seed)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// GetAudit returns an audit record along with its integrity status
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	auditID := chi.URLParam(r, "auditID")

	record, err := h.auditor.Get(r.Context(), auditID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err)
		return
	}

	integrity, err := h.auditor.VerifyIntegrity(r.Context(), auditID)
	if err != nil && integrity == nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"record":    record,
		"integrity": integrity,
	})
}

func statusForError(err error) int {
	switch errs.CodeOf(err) {
	case errs.CodeNoQuorum, errs.CodeNoTarget, errs.CodeBudgetExceeded:
		return http.StatusConflict
	case errs.CodePolicyValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, err error) {
	h.logger.Error("API error", zap.Error(err), zap.Int("status", status))
	body := map[string]string{"error": err.Error()}
	if code := errs.CodeOf(err); code != "" {
		body["code"] = string(code)
	}
	h.respondJSON(w, status, body)
}
