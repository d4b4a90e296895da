package models

import "time"

// ApprovalDecision enumerates the outcomes an approver can record.
type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "APPROVED"
	DecisionDenied   ApprovalDecision = "DENIED"
	DecisionReturned ApprovalDecision = "RETURNED"
)

// Approval is an immutable, append-only record of an approver decision
// against a request. Rows are never updated or deleted.
type Approval struct {
	ID         string           `db:"id" json:"id"`
	RequestID  string           `db:"request_id" json:"request_id"`
	ApproverID string           `db:"approver_id" json:"approver_id"`
	Decision   ApprovalDecision `db:"decision" json:"decision"`
	Comment    *string          `db:"comment" json:"comment,omitempty"`
	DecidedAt  time.Time        `db:"decided_at" json:"decided_at"`
}
