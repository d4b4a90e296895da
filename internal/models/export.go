package models

import "time"

// ExportStatus tracks the lifecycle of an export job.
type ExportStatus string

const (
	ExportPending   ExportStatus = "PENDING"
	ExportRunning   ExportStatus = "RUNNING"
	ExportCompleted ExportStatus = "COMPLETED"
	ExportFailed    ExportStatus = "FAILED"
)

// ExportJob records one audit package export artifact.
type ExportJob struct {
	ID          string       `db:"id" json:"id"`
	RequestID   string       `db:"request_id" json:"request_id"`
	RequestedBy string       `db:"requested_by" json:"requested_by"`
	Format      string       `db:"format" json:"format"`
	Status      ExportStatus `db:"status" json:"status"`
	FilePath    *string      `db:"file_path" json:"file_path,omitempty"`
	Error       *string      `db:"error" json:"error,omitempty"`
	ExpiresAt   *time.Time   `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}
