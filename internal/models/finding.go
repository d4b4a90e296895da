package models

import "time"

// FindingType classifies the weight of a compliance issue.
type FindingType string

const (
	FindingCritical FindingType = "CRITICAL"
	FindingWarning  FindingType = "WARNING"
	FindingInfo     FindingType = "INFO"
)

// FindingCategory groups findings for reporting.
type FindingCategory string

const (
	CategoryDocumentation FindingCategory = "DOCUMENTATION"
	CategoryCompliance    FindingCategory = "COMPLIANCE"
	CategoryProcedural    FindingCategory = "PROCEDURAL"
	CategoryFinancial     FindingCategory = "FINANCIAL"
)

// FindingSeverity grades a finding for prioritisation.
type FindingSeverity string

const (
	SeverityLow      FindingSeverity = "LOW"
	SeverityMedium   FindingSeverity = "MEDIUM"
	SeverityHigh     FindingSeverity = "HIGH"
	SeverityCritical FindingSeverity = "CRITICAL"
)

// FindingStatus enumerates the finding sub-workflow states.
type FindingStatus string

const (
	FindingOpen         FindingStatus = "OPEN"
	FindingAcknowledged FindingStatus = "ACKNOWLEDGED"
	FindingInProgress   FindingStatus = "IN_PROGRESS"
	FindingResolved     FindingStatus = "RESOLVED"
	FindingDisputed     FindingStatus = "DISPUTED"
	FindingEscalated    FindingStatus = "ESCALATED"
)

// CardholderResponseType enumerates responses a cardholder may submit.
type CardholderResponseType string

const (
	CardholderAcknowledge      CardholderResponseType = "ACKNOWLEDGE"
	CardholderResolve          CardholderResponseType = "RESOLVE"
	CardholderRequestExtension CardholderResponseType = "REQUEST_EXTENSION"
)

// AuditorResponseType enumerates decisions an auditor may record.
type AuditorResponseType string

const (
	AuditorAccept   AuditorResponseType = "ACCEPT"
	AuditorReject   AuditorResponseType = "REJECT"
	AuditorEscalate AuditorResponseType = "ESCALATE"
)

// CardholderResponse is the cardholder's latest reply on a finding.
// At most one live response exists per actor role; a new response replaces
// the pending one.
type CardholderResponse struct {
	Type        CardholderResponseType `db:"type" json:"type"`
	Comment     string                 `db:"comment" json:"comment"`
	RespondedBy string                 `db:"responded_by" json:"responded_by"`
	RespondedAt time.Time              `db:"responded_at" json:"responded_at"`
}

// AuditorResponse is the auditor's latest decision on a finding.
type AuditorResponse struct {
	Type        AuditorResponseType `db:"type" json:"type"`
	Comment     string              `db:"comment" json:"comment"`
	RespondedBy string              `db:"responded_by" json:"responded_by"`
	RespondedAt time.Time           `db:"responded_at" json:"responded_at"`
}

// Finding is one discrete compliance issue raised against an audit package.
// Findings are never deleted; the retention rule is enforced by the store.
type Finding struct {
	ID          string              `db:"id" json:"id"`
	RequestID   string              `db:"request_id" json:"request_id"`
	Type        FindingType         `db:"type" json:"type"`
	Category    FindingCategory     `db:"category" json:"category"`
	Severity    FindingSeverity     `db:"severity" json:"severity"`
	Status      FindingStatus       `db:"status" json:"status"`
	Description string              `db:"description" json:"description"`
	DueDate     *time.Time          `db:"due_date" json:"due_date,omitempty"`
	Cardholder  *CardholderResponse `db:"-" json:"cardholder_response,omitempty"`
	Auditor     *AuditorResponse    `db:"-" json:"auditor_response,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// FindingFilter constrains finding listing queries.
type FindingFilter struct {
	RequestID string
	Statuses  []FindingStatus
	Severity  FindingSeverity
	Limit     int
	Offset    int
}
