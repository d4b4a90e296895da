package dto

import (
	"time"

	"github.com/openprocure/procure-api/internal/models"
)

// AttachmentPayload registers an uploaded supporting document for a request.
type AttachmentPayload struct {
	DocumentType models.DocumentType `json:"documentType" validate:"required"`
	FileURL      string              `json:"fileUrl" validate:"required,url"`
}

// CardholderResponsePayload is the cardholder reply to a finding.
type CardholderResponsePayload struct {
	Type    models.CardholderResponseType `json:"type" validate:"required"`
	Comment string                        `json:"comment"`
}

// AuditorResponsePayload is the auditor disposition of a finding.
type AuditorResponsePayload struct {
	Type    models.AuditorResponseType `json:"type" validate:"required"`
	Comment string                     `json:"comment"`
}

// FindingQuery mirrors supported finding list filters.
type FindingQuery struct {
	RequestID string
	Status    []models.FindingStatus
	Severity  []models.FindingSeverity
	Page      int
	PerPage   int
}

// PackageSummary is the condensed audit package view for list endpoints.
type PackageSummary struct {
	RequestID   string               `json:"requestId"`
	Status      models.PackageStatus `json:"status"`
	AuditScore  int                  `json:"auditScore"`
	Critical    int                  `json:"criticalIssues"`
	Warnings    int                  `json:"warnings"`
	GeneratedAt time.Time            `json:"generatedAt"`
}

// ExportRequestPayload asks for an audit package artifact.
type ExportRequestPayload struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportResult returns the signed link for a finished export.
type ExportResult struct {
	ExportID    string    `json:"exportId"`
	RequestID   string    `json:"requestId"`
	Format      string    `json:"format"`
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
