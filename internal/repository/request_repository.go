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

// RequestRepository persists procurement requests and their line items.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `id, org_id, requester_id, vendor, justification, need_by, accounting_code, delivery_address, total_estimate, suspected_split, status, created_at, updated_at`

// Create inserts a new request with its line items in one transaction.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.StatusDraft
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO requests
	(id, org_id, requester_id, vendor, justification, need_by, accounting_code, delivery_address, total_estimate, suspected_split, status, created_at, updated_at)
	VALUES (:id, :org_id, :requester_id, :vendor, :justification, :need_by, :accounting_code, :delivery_address, :total_estimate, :suspected_split, :status, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if err := insertItems(ctx, tx, request.ID, request.Items); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}
	return nil
}

// GetByID fetches a request with its line items.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM requests WHERE id = $1 LIMIT 1`, requestColumns)
	var request models.Request
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find request by id: %w", err)
	}

	const itemQuery = `SELECT id, request_id, sku, description, quantity, unit_price FROM request_items WHERE request_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &request.Items, itemQuery, id); err != nil {
		return nil, fmt.Errorf("load request items: %w", err)
	}
	return &request, nil
}

// List returns requests matching the filter (latest first) with a total count.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	baseQuery := `FROM requests WHERE org_id = $1`
	args := []interface{}{filter.OrgID}
	var conditions []string

	if filter.RequesterID != "" {
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", len(args)+1))
		args = append(args, filter.RequesterID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Vendor != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(vendor) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Vendor)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", requestColumns, baseQuery, limit, offset)

	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	return requests, total, nil
}

// ListByRequesterWithin returns other requests by the same requester created
// inside [from, to], excluding the given request. Feeds split detection.
func (r *RequestRepository) ListByRequesterWithin(ctx context.Context, requesterID, excludeID string, from, to time.Time) ([]models.Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM requests
	WHERE requester_id = $1 AND id <> $2 AND created_at BETWEEN $3 AND $4
	AND status NOT IN ($5, $6)
	ORDER BY created_at`, requestColumns)

	var requests []models.Request
	err := r.db.SelectContext(ctx, &requests, query, requesterID, excludeID, from, to, models.StatusDenied, models.StatusDraft)
	if err != nil {
		return nil, fmt.Errorf("list peer requests: %w", err)
	}
	return requests, nil
}

// Update rewrites editable request fields and replaces line items.
func (r *RequestRepository) Update(ctx context.Context, request *models.Request) error {
	request.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update request: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `UPDATE requests SET vendor = :vendor, justification = :justification, need_by = :need_by,
	accounting_code = :accounting_code, delivery_address = :delivery_address, total_estimate = :total_estimate,
	suspected_split = :suspected_split, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("update request: %w", err)
	}

	if request.Items != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM request_items WHERE request_id = $1`, request.ID); err != nil {
			return fmt.Errorf("clear request items: %w", err)
		}
		if err := insertItems(ctx, tx, request.ID, request.Items); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update request: %w", err)
	}
	return nil
}

// UpdateStatus moves a request between lifecycle states. The expected current
// status is part of the WHERE clause so concurrent transitions lose cleanly;
// sql.ErrNoRows signals the caller to reload and retry.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus, updatedAt time.Time) error {
	const query = `UPDATE requests SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, updatedAt)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check status update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkSuspectedSplit flags a request after split detection.
func (r *RequestRepository) MarkSuspectedSplit(ctx context.Context, id string, suspected bool) error {
	const query = `UPDATE requests SET suspected_split = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, suspected, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark suspected split: %w", err)
	}
	return nil
}

func insertItems(ctx context.Context, tx *sqlx.Tx, requestID string, items []models.LineItem) error {
	const query = `INSERT INTO request_items (id, request_id, sku, description, quantity, unit_price)
	VALUES (:id, :request_id, :sku, :description, :quantity, :unit_price)`
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		items[i].RequestID = requestID
		if _, err := tx.NamedExecContext(ctx, query, items[i]); err != nil {
			return fmt.Errorf("insert request item: %w", err)
		}
	}
	return nil
}
