package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openprocure/procure-api/internal/models"
)

// ExportRepository tracks audit package export jobs.
type ExportRepository struct {
	db *sqlx.DB
}

// NewExportRepository constructs the repository.
func NewExportRepository(db *sqlx.DB) *ExportRepository {
	return &ExportRepository{db: db}
}

const exportColumns = `id, request_id, requested_by, format, status, file_path, error, expires_at, created_at, updated_at`

// Create inserts a pending export job.
func (r *ExportRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	const query = `INSERT INTO export_jobs (id, request_id, requested_by, format, status, file_path, error, expires_at, created_at, updated_at)
	VALUES (:id, :request_id, :requested_by, :format, :status, :file_path, :error, :expires_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// GetByID returns an export job.
func (r *ExportRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM export_jobs WHERE id = $1 LIMIT 1`, exportColumns)
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find export job: %w", err)
	}
	return &job, nil
}

// MarkCompleted records a finished artifact with its path and link expiry.
func (r *ExportRepository) MarkCompleted(ctx context.Context, id, filePath string, expiresAt time.Time) error {
	const query = `UPDATE export_jobs SET status = $2, file_path = $3, expires_at = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportCompleted, filePath, expiresAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("complete export job: %w", err)
	}
	return nil
}

// MarkFailed records a failed job with the error message.
func (r *ExportRepository) MarkFailed(ctx context.Context, id, message string) error {
	const query = `UPDATE export_jobs SET status = $2, error = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportFailed, message, time.Now().UTC()); err != nil {
		return fmt.Errorf("fail export job: %w", err)
	}
	return nil
}
