package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openprocure/procure-api/internal/models"
)

// AttachmentRepository links uploaded documents to requests.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository constructs the repository.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Upsert registers a document for a request, replacing any previous upload
// of the same document type.
func (r *AttachmentRepository) Upsert(ctx context.Context, attachment *models.Attachment) error {
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = now
	}
	attachment.UpdatedAt = now

	const query = `INSERT INTO attachments (id, request_id, document_type, file_url, uploaded_by, created_at, updated_at)
	VALUES (:id, :request_id, :document_type, :file_url, :uploaded_by, :created_at, :updated_at)
	ON CONFLICT (request_id, document_type) DO UPDATE SET
	file_url = EXCLUDED.file_url, uploaded_by = EXCLUDED.uploaded_by, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, attachment); err != nil {
		return fmt.Errorf("upsert attachment: %w", err)
	}
	return nil
}

// ListByRequest returns all attachments for a request.
func (r *AttachmentRepository) ListByRequest(ctx context.Context, requestID string) ([]models.Attachment, error) {
	const query = `SELECT id, request_id, document_type, file_url, uploaded_by, created_at, updated_at
	FROM attachments WHERE request_id = $1 ORDER BY document_type`
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, requestID); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return attachments, nil
}

// MapByRequest returns a document type to URL map, the shape the scoring
// engine consumes.
func (r *AttachmentRepository) MapByRequest(ctx context.Context, requestID string) (map[models.DocumentType]string, error) {
	attachments, err := r.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	result := make(map[models.DocumentType]string, len(attachments))
	for _, attachment := range attachments {
		result[attachment.DocumentType] = attachment.FileURL
	}
	return result, nil
}
