package models

import "time"

// Attachment links an uploaded supporting document to a request. One
// attachment per document type is kept; re-uploading replaces the URL.
type Attachment struct {
	ID           string       `db:"id" json:"id"`
	RequestID    string       `db:"request_id" json:"request_id"`
	DocumentType DocumentType `db:"document_type" json:"document_type"`
	FileURL      string       `db:"file_url" json:"file_url"`
	UploadedBy   string       `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}
