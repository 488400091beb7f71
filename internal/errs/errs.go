// internal/errs/errs.go
package errs

import (
	"errors"
	"fmt"
)

// Code identifies a failover error category
type Code string

const (
	CodeNoQuorum         Code = "no_quorum"
	CodeNoTarget         Code = "no_target"
	CodeBudgetExceeded   Code = "budget_exceeded"
	CodeActionFailed     Code = "action_failed"
	CodeIntegrity        Code = "integrity"
	CodePolicyValidation Code = "policy_validation"
)

// Error is a structured failover error. Every rejected or partially-failed
// operation carries a taxonomy code, a human-readable explanation, and the
// specific policy or threshold that was violated.
type Error struct {
	Code     Code
	Message  string
	Violated string // the policy/threshold that was violated, if any
}

func (e *Error) Error() string {
	if e.Violated != "" {
		return fmt.Sprintf("%s: %s (violated: %s)", e.Code, e.Message, e.Violated)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NoQuorum reports planning refused because quorum is already lost
func NoQuorum(message, violated string) *Error {
	return &Error{Code: CodeNoQuorum, Message: message, Violated: violated}
}

// NoTarget reports that no healthy secondary qualifies as failover target
func NoTarget(message string) *Error {
	return &Error{Code: CodeNoTarget, Message: message}
}

// BudgetExceeded reports an estimated or actual duration over the policy budget
func BudgetExceeded(message, violated string) *Error {
	return &Error{Code: CodeBudgetExceeded, Message: message, Violated: violated}
}

// ActionFailed reports a single action failure during execution
func ActionFailed(message string) *Error {
	return &Error{Code: CodeActionFailed, Message: message}
}

// Integrity reports an audit digest mismatch
func Integrity(message string) *Error {
	return &Error{Code: CodeIntegrity, Message: message}
}

// PolicyValidation reports malformed or contradictory configuration
func PolicyValidation(message string) *Error {
	return &Error{Code: CodePolicyValidation, Message: message}
}

// CodeOf extracts the taxonomy code from an error chain, or "" if none
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
