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

// PurchaseRepository persists cardholder purchase records.
type PurchaseRepository struct {
	db *sqlx.DB
}

// NewPurchaseRepository constructs the repository.
func NewPurchaseRepository(db *sqlx.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

const purchaseColumns = `id, request_id, cardholder_id, merchant, order_number, final_total, tax, purchased_at, receipt_url, reconciled_at, created_at, updated_at`

// Create inserts a purchase record for a request.
func (r *PurchaseRepository) Create(ctx context.Context, purchase *models.Purchase) error {
	if purchase.ID == "" {
		purchase.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = now
	}
	purchase.UpdatedAt = now

	const query = `INSERT INTO purchases
	(id, request_id, cardholder_id, merchant, order_number, final_total, tax, purchased_at, receipt_url, reconciled_at, created_at, updated_at)
	VALUES (:id, :request_id, :cardholder_id, :merchant, :order_number, :final_total, :tax, :purchased_at, :receipt_url, :reconciled_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, purchase); err != nil {
		return fmt.Errorf("create purchase: %w", err)
	}
	return nil
}

// GetByRequest returns the purchase for a request, or sql.ErrNoRows when the
// request has not been purchased yet.
func (r *PurchaseRepository) GetByRequest(ctx context.Context, requestID string) (*models.Purchase, error) {
	query := fmt.Sprintf(`SELECT %s FROM purchases WHERE request_id = $1 LIMIT 1`, purchaseColumns)
	var purchase models.Purchase
	if err := r.db.GetContext(ctx, &purchase, query, requestID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find purchase by request: %w", err)
	}
	return &purchase, nil
}

// Update rewrites mutable purchase fields.
func (r *PurchaseRepository) Update(ctx context.Context, purchase *models.Purchase) error {
	purchase.UpdatedAt = time.Now().UTC()
	const query = `UPDATE purchases SET merchant = :merchant, order_number = :order_number, final_total = :final_total,
	tax = :tax, purchased_at = :purchased_at, receipt_url = :receipt_url, reconciled_at = :reconciled_at, updated_at = :updated_at
	WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, purchase); err != nil {
		return fmt.Errorf("update purchase: %w", err)
	}
	return nil
}

// Reconcile stamps the receipt and reconciliation timestamp. Already
// reconciled purchases are left untouched and reported via sql.ErrNoRows.
func (r *PurchaseRepository) Reconcile(ctx context.Context, id, receiptURL string, finalTotal float64, reconciledAt time.Time) error {
	const query = `UPDATE purchases SET receipt_url = $2, final_total = $3, reconciled_at = $4, updated_at = $4
	WHERE id = $1 AND reconciled_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, receiptURL, finalTotal, reconciledAt)
	if err != nil {
		return fmt.Errorf("reconcile purchase: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check reconcile rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
