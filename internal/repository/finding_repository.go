package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openprocure/procure-api/internal/models"
)

// FindingRepository persists audit findings and their responses. Findings
// are retained indefinitely; there is no delete operation.
type FindingRepository struct {
	db *sqlx.DB
}

// NewFindingRepository constructs the repository.
func NewFindingRepository(db *sqlx.DB) *FindingRepository {
	return &FindingRepository{db: db}
}

const findingColumns = `id, request_id, type, category, severity, status, description, due_date, created_at, updated_at`

// Create inserts a finding row.
func (r *FindingRepository) Create(ctx context.Context, finding *models.Finding) error {
	if finding.ID == "" {
		finding.ID = uuid.NewString()
	}
	if finding.Status == "" {
		finding.Status = models.FindingOpen
	}
	now := time.Now().UTC()
	if finding.CreatedAt.IsZero() {
		finding.CreatedAt = now
	}
	finding.UpdatedAt = now

	const query = `INSERT INTO findings (id, request_id, type, category, severity, status, description, due_date, created_at, updated_at)
	VALUES (:id, :request_id, :type, :category, :severity, :status, :description, :due_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, finding); err != nil {
		return fmt.Errorf("create finding: %w", err)
	}
	return nil
}

// GetByID fetches a finding with its latest responses.
func (r *FindingRepository) GetByID(ctx context.Context, id string) (*models.Finding, error) {
	query := fmt.Sprintf(`SELECT %s FROM findings WHERE id = $1 LIMIT 1`, findingColumns)
	var finding models.Finding
	if err := r.db.GetContext(ctx, &finding, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find finding by id: %w", err)
	}

	if err := r.attachResponses(ctx, &finding); err != nil {
		return nil, err
	}
	return &finding, nil
}

// List returns findings matching the filter, newest first.
func (r *FindingRepository) List(ctx context.Context, filter models.FindingFilter) ([]models.Finding, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM findings`, findingColumns))

	conditions := make([]string, 0, 3)
	if filter.RequestID != "" {
		args = append(args, filter.RequestID)
		conditions = append(conditions, fmt.Sprintf("request_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var findings []models.Finding
	if err := r.db.SelectContext(ctx, &findings, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	return findings, nil
}

// UpdateStatus moves a finding to a new status.
func (r *FindingRepository) UpdateStatus(ctx context.Context, id string, status models.FindingStatus, updatedAt time.Time) error {
	const query = `UPDATE findings SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, updatedAt)
	if err != nil {
		return fmt.Errorf("update finding status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check finding update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SaveCardholderResponse upserts the single live cardholder response.
func (r *FindingRepository) SaveCardholderResponse(ctx context.Context, findingID string, resp models.CardholderResponse) error {
	const query = `INSERT INTO finding_cardholder_responses (finding_id, type, comment, responded_by, responded_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (finding_id) DO UPDATE SET type = $2, comment = $3, responded_by = $4, responded_at = $5`
	if _, err := r.db.ExecContext(ctx, query, findingID, resp.Type, resp.Comment, resp.RespondedBy, resp.RespondedAt); err != nil {
		return fmt.Errorf("save cardholder response: %w", err)
	}
	return nil
}

// SaveAuditorResponse upserts the single live auditor response.
func (r *FindingRepository) SaveAuditorResponse(ctx context.Context, findingID string, resp models.AuditorResponse) error {
	const query = `INSERT INTO finding_auditor_responses (finding_id, type, comment, responded_by, responded_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (finding_id) DO UPDATE SET type = $2, comment = $3, responded_by = $4, responded_at = $5`
	if _, err := r.db.ExecContext(ctx, query, findingID, resp.Type, resp.Comment, resp.RespondedBy, resp.RespondedAt); err != nil {
		return fmt.Errorf("save auditor response: %w", err)
	}
	return nil
}

func (r *FindingRepository) attachResponses(ctx context.Context, finding *models.Finding) error {
	var cardholder models.CardholderResponse
	err := r.db.GetContext(ctx, &cardholder,
		`SELECT type, comment, responded_by, responded_at FROM finding_cardholder_responses WHERE finding_id = $1`, finding.ID)
	switch err {
	case nil:
		finding.Cardholder = &cardholder
	case sql.ErrNoRows:
	default:
		return fmt.Errorf("load cardholder response: %w", err)
	}

	var auditor models.AuditorResponse
	err = r.db.GetContext(ctx, &auditor,
		`SELECT type, comment, responded_by, responded_at FROM finding_auditor_responses WHERE finding_id = $1`, finding.ID)
	switch err {
	case nil:
		finding.Auditor = &auditor
	case sql.ErrNoRows:
	default:
		return fmt.Errorf("load auditor response: %w", err)
	}
	return nil
}
