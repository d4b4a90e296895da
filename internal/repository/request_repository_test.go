package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/openprocure/procure-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func requestRows(id string, status models.RequestStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "org_id", "requester_id", "vendor", "justification", "need_by", "accounting_code", "delivery_address", "total_estimate", "suspected_split", "status", "created_at", "updated_at"}).
		AddRow(id, "org-1", "user-1", "Acme Office Supply", "replacing broken chairs", time.Now(), "6100-200", "100 Main Street", 1800.0, false, status, time.Now(), time.Now())
}

func TestRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO requests")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO request_items")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	request := &models.Request{
		OrgID:       "org-1",
		RequesterID: "user-1",
		Vendor:      "Acme Office Supply",
		Items:       []models.LineItem{{Description: "Desk chair", Quantity: 2, UnitPrice: 900}},
	}
	require.NoError(t, repo.Create(context.Background(), request))
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.StatusDraft, request.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryGetByIDLoadsItems(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, org_id, requester_id")).
		WithArgs("req-1").
		WillReturnRows(requestRows("req-1", models.StatusSubmitted))
	itemRows := sqlmock.NewRows([]string{"id", "request_id", "sku", "description", "quantity", "unit_price"}).
		AddRow("item-1", "req-1", "CH-100", "Desk chair", 2, 900.0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, request_id, sku")).
		WithArgs("req-1").
		WillReturnRows(itemRows)

	found, err := repo.GetByID(context.Background(), "req-1")
	require.NoError(t, err)
	require.Equal(t, "req-1", found.ID)
	require.Len(t, found.Items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, org_id, requester_id")).
		WithArgs("org-1", "user-1", string(models.StatusSubmitted)).
		WillReturnRows(requestRows("req-1", models.StatusSubmitted))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("org-1", "user-1", string(models.StatusSubmitted)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.RequestFilter{
		OrgID:       "org-1",
		RequesterID: "user-1",
		Statuses:    []models.RequestStatus{models.StatusSubmitted},
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, list, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateStatusOptimistic(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status")).
		WithArgs("req-1", string(models.StatusSubmitted), string(models.StatusAOReview), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "req-1", models.StatusSubmitted, models.StatusAOReview, now))

	// a concurrent transition already moved the row
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status")).
		WithArgs("req-1", string(models.StatusSubmitted), string(models.StatusAOReview), now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateStatus(context.Background(), "req-1", models.StatusSubmitted, models.StatusAOReview, now)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
