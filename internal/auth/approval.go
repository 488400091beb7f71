// internal/auth/approval.go
package auth

import (
	"fmt"
	"sync"
	"time"
)

// Approval is one operator's sign-off on a plan
type Approval struct {
	PlanID     string    `json:"plan_id"`
	Approver   string    `json:"approver"`
	ApprovedAt time.Time `json:"approved_at"`
}

// ApprovalRegistry collects N-of-M operator approvals before a manually
// triggered failover may execute. Each approver counts once per plan.
type ApprovalRegistry struct {
	mu        sync.Mutex
	required  int
	approvers map[string]bool
	approvals map[string][]Approval
}

// NewApprovalRegistry creates a registry requiring the given number of
// approvals drawn from the approver set. A required count of zero disables
// the approval gate.
func NewApprovalRegistry(required int, approvers []string) *ApprovalRegistry {
	set := make(map[string]bool, len(approvers))
	for _, a := range approvers {
		set[a] = true
	}
	return &ApprovalRegistry{
		required:  required,
		approvers: set,
		approvals: make(map[string][]Approval),
	}
}

// Approve records an approval for a plan
func (r *ApprovalRegistry) Approve(planID, approver string) (*Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.approvers) > 0 && !r.approvers[approver] {
		return nil, fmt.Errorf("%s is not an authorized approver", approver)
	}
	for _, a := range r.approvals[planID] {
		if a.Approver == approver {
			return nil, fmt.Errorf("%s already approved plan %s", approver, planID)
		}
	}

	approval := Approval{PlanID: planID, Approver: approver, ApprovedAt: time.Now().UTC()}
	r.approvals[planID] = append(r.approvals[planID], approval)
	return &approval, nil
}

// Approved reports whether the plan has collected enough approvals
func (r *ApprovalRegistry) Approved(planID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.approvals[planID]) >= r.required
}

// Approvals returns the approvals recorded for a plan
func (r *ApprovalRegistry) Approvals(planID string) []Approval {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Approval, len(r.approvals[planID]))
	copy(out, r.approvals[planID])
	return out
}

// Required returns the approval threshold
func (r *ApprovalRegistry) Required() int {
	return r.required
}
