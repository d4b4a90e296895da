package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openprocure/procure-api/internal/models"
)

// PackageRepository stores the latest built compliance package per request.
// The package body is a JSONB snapshot; summary columns are duplicated for
// cheap list queries.
type PackageRepository struct {
	db *sqlx.DB
}

// NewPackageRepository constructs the repository.
func NewPackageRepository(db *sqlx.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

type packageRow struct {
	RequestID      string               `db:"request_id"`
	Status         models.PackageStatus `db:"status"`
	AuditScore     int                  `db:"audit_score"`
	CriticalIssues int                  `db:"critical_issues"`
	Warnings       int                  `db:"warnings"`
	Body           []byte               `db:"body"`
	GeneratedAt    time.Time            `db:"generated_at"`
}

// Save upserts the package snapshot for its request.
func (r *PackageRepository) Save(ctx context.Context, pkg *models.CompliancePackage) error {
	body, err := json.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("encode package: %w", err)
	}

	const query = `INSERT INTO compliance_packages (request_id, status, audit_score, critical_issues, warnings, body, generated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (request_id) DO UPDATE SET
	status = $2, audit_score = $3, critical_issues = $4, warnings = $5, body = $6, generated_at = $7`

	_, err = r.db.ExecContext(ctx, query,
		pkg.RequestID, pkg.Status, pkg.AuditScore, pkg.CriticalIssues, pkg.Warnings, body, pkg.GeneratedAt)
	if err != nil {
		return fmt.Errorf("save package: %w", err)
	}
	return nil
}

// GetByRequest returns the stored package for a request.
func (r *PackageRepository) GetByRequest(ctx context.Context, requestID string) (*models.CompliancePackage, error) {
	const query = `SELECT request_id, status, audit_score, critical_issues, warnings, body, generated_at
	FROM compliance_packages WHERE request_id = $1 LIMIT 1`

	var row packageRow
	if err := r.db.GetContext(ctx, &row, query, requestID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find package: %w", err)
	}

	var pkg models.CompliancePackage
	if err := json.Unmarshal(row.Body, &pkg); err != nil {
		return nil, fmt.Errorf("decode package: %w", err)
	}
	return &pkg, nil
}

// ListSummaries returns summary rows for packages in the given statuses.
func (r *PackageRepository) ListSummaries(ctx context.Context, statuses []models.PackageStatus, limit, offset int) ([]models.CompliancePackage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT request_id, status, audit_score, critical_issues, warnings, body, generated_at FROM compliance_packages`
	args := make([]interface{}, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := ""
		for i, status := range statuses {
			if i > 0 {
				placeholders += ","
			}
			args = append(args, status)
			placeholders += fmt.Sprintf("$%d", len(args))
		}
		query += fmt.Sprintf(" WHERE status IN (%s)", placeholders)
	}
	query += fmt.Sprintf(" ORDER BY generated_at DESC LIMIT %d OFFSET %d", limit, offset)

	var rows []packageRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}

	packages := make([]models.CompliancePackage, 0, len(rows))
	for _, row := range rows {
		var pkg models.CompliancePackage
		if err := json.Unmarshal(row.Body, &pkg); err != nil {
			return nil, fmt.Errorf("decode package: %w", err)
		}
		packages = append(packages, pkg)
	}
	return packages, nil
}
