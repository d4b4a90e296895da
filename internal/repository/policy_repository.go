package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/openprocure/procure-api/internal/models"
)

// PolicyRepository loads and stores organization procurement policies. List
// columns are Postgres text arrays handled through pq.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

type policyRow struct {
	OrgID                string         `db:"org_id"`
	MicroPurchaseLimit   float64        `db:"micro_purchase_limit"`
	SplitWindowSeconds   int64          `db:"split_window_seconds"`
	SplitThreshold       float64        `db:"split_threshold"`
	BlockedMerchants     pq.StringArray `db:"blocked_merchants"`
	ApprovedVendors      pq.StringArray `db:"approved_vendors"`
	ValidAccountingCodes pq.StringArray `db:"valid_accounting_codes"`
	Addresses            pq.StringArray `db:"addresses"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

// GetByOrg returns the stored policy for an organization, or sql.ErrNoRows
// when none has been configured.
func (r *PolicyRepository) GetByOrg(ctx context.Context, orgID string) (*models.OrgPolicy, error) {
	const query = `SELECT org_id, micro_purchase_limit, split_window_seconds, split_threshold,
	blocked_merchants, approved_vendors, valid_accounting_codes, addresses, updated_at
	FROM org_policies WHERE org_id = $1 LIMIT 1`

	var row policyRow
	if err := r.db.GetContext(ctx, &row, query, orgID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find org policy: %w", err)
	}

	return &models.OrgPolicy{
		OrgID:                row.OrgID,
		MicroPurchaseLimit:   row.MicroPurchaseLimit,
		SplitWindowSeconds:   row.SplitWindowSeconds,
		SplitThreshold:       row.SplitThreshold,
		BlockedMerchants:     row.BlockedMerchants,
		ApprovedVendors:      row.ApprovedVendors,
		ValidAccountingCodes: row.ValidAccountingCodes,
		Addresses:            row.Addresses,
		UpdatedAt:            row.UpdatedAt,
	}, nil
}

// Upsert writes the full policy for an organization.
func (r *PolicyRepository) Upsert(ctx context.Context, policy *models.OrgPolicy) error {
	policy.UpdatedAt = time.Now().UTC()
	if policy.SplitWindowSeconds == 0 && policy.SplitWindow > 0 {
		policy.SplitWindowSeconds = int64(policy.SplitWindow.Seconds())
	}

	const query = `INSERT INTO org_policies
	(org_id, micro_purchase_limit, split_window_seconds, split_threshold, blocked_merchants, approved_vendors, valid_accounting_codes, addresses, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (org_id) DO UPDATE SET
	micro_purchase_limit = $2, split_window_seconds = $3, split_threshold = $4,
	blocked_merchants = $5, approved_vendors = $6, valid_accounting_codes = $7, addresses = $8, updated_at = $9`

	_, err := r.db.ExecContext(ctx, query,
		policy.OrgID,
		policy.MicroPurchaseLimit,
		policy.SplitWindowSeconds,
		policy.SplitThreshold,
		pq.StringArray(policy.BlockedMerchants),
		pq.StringArray(policy.ApprovedVendors),
		pq.StringArray(policy.ValidAccountingCodes),
		pq.StringArray(policy.Addresses),
		policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert org policy: %w", err)
	}
	return nil
}
