package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openprocure/procure-api/internal/models"
)

// ApprovalRepository stores approver decisions. The table is append-only;
// there are no update or delete operations.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create appends a decision record.
func (r *ApprovalRepository) Create(ctx context.Context, approval *models.Approval) error {
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	if approval.DecidedAt.IsZero() {
		approval.DecidedAt = time.Now().UTC()
	}
	const query = `INSERT INTO approvals (id, request_id, approver_id, decision, comment, decided_at)
	VALUES (:id, :request_id, :approver_id, :decision, :comment, :decided_at)`
	if _, err := r.db.NamedExecContext(ctx, query, approval); err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// ListByRequest returns all decisions recorded against a request, oldest first.
func (r *ApprovalRepository) ListByRequest(ctx context.Context, requestID string) ([]models.Approval, error) {
	const query = `SELECT id, request_id, approver_id, decision, comment, decided_at FROM approvals WHERE request_id = $1 ORDER BY decided_at`
	var approvals []models.Approval
	if err := r.db.SelectContext(ctx, &approvals, query, requestID); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return approvals, nil
}
