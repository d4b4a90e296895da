package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openprocure/procure-api/internal/dto"
	"github.com/openprocure/procure-api/internal/models"
	appErrors "github.com/openprocure/procure-api/pkg/errors"
	"github.com/openprocure/procure-api/pkg/storage"
)

type exportJobStoreStub struct {
	jobs      map[string]*models.ExportJob
	completed map[string]string
	failed    map[string]string
}

func (s *exportJobStoreStub) Create(ctx context.Context, job *models.ExportJob) error {
	job.ID = "exp-1"
	job.Status = models.ExportPending
	if s.jobs == nil {
		s.jobs = make(map[string]*models.ExportJob)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *exportJobStoreStub) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (s *exportJobStoreStub) MarkCompleted(ctx context.Context, id, filePath string, expiresAt time.Time) error {
	if s.completed == nil {
		s.completed = make(map[string]string)
	}
	s.completed[id] = filePath
	return nil
}

func (s *exportJobStoreStub) MarkFailed(ctx context.Context, id, message string) error {
	if s.failed == nil {
		s.failed = make(map[string]string)
	}
	s.failed[id] = message
	return nil
}

func builtPackage(requestID string) *models.CompliancePackage {
	return &models.CompliancePackage{
		RequestID:      requestID,
		Documents:      map[models.DocumentType]models.DocumentStatus{},
		Checks:         map[models.CheckType]models.CheckResult{},
		AuditScore:     80,
		CriticalIssues: 1,
		Warnings:       2,
		Status:         models.PackageNonCompliant,
		GeneratedAt:    time.Now().UTC(),
	}
}

func newExportServiceForTest(t *testing.T, jobs *exportJobStoreStub, packages *packageStoreStub, findings *findingStoreStub, requests *requestStoreStub) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", 720*time.Hour)
	return NewExportService(jobs, packages, findings, requests, &trailStub{}, store, signer, ExportConfig{APIPrefix: "/api/v1"}, zap.NewNop())
}

func TestExportServiceRendersCSVAndSignsLink(t *testing.T) {
	req := reconciledRequest("req-1")
	requests := &requestStoreStub{byID: map[string]*models.Request{"req-1": req}}
	packages := &packageStoreStub{byRequest: map[string]*models.CompliancePackage{"req-1": builtPackage("req-1")}}
	jobs := &exportJobStoreStub{}
	svc := newExportServiceForTest(t, jobs, packages, &findingStoreStub{}, requests)

	result, err := svc.RequestExport(context.Background(), auditor(), "req-1", dto.ExportRequestPayload{Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "exp-1", result.ExportID)
	assert.Equal(t, "csv", result.Format)
	assert.Contains(t, result.DownloadURL, "/api/v1/exports/download/")
	assert.True(t, result.ExpiresAt.After(time.Now().Add(600*time.Hour)))
	require.NotEmpty(t, jobs.completed["exp-1"])

	token := result.DownloadURL[len("/api/v1/exports/download/"):]
	jobID, relPath, _, err := svc.ParseToken(token, false)
	require.NoError(t, err)
	assert.Equal(t, "exp-1", jobID)
	assert.Equal(t, jobs.completed["exp-1"], relPath)

	file, err := svc.Open(relPath)
	require.NoError(t, err)
	require.NoError(t, file.Close())
}

func TestExportServicePDFFormat(t *testing.T) {
	req := reconciledRequest("req-1")
	requests := &requestStoreStub{byID: map[string]*models.Request{"req-1": req}}
	packages := &packageStoreStub{byRequest: map[string]*models.CompliancePackage{"req-1": builtPackage("req-1")}}
	jobs := &exportJobStoreStub{}
	findings := &findingStoreStub{listed: []models.Finding{
		{ID: "f-1", RequestID: "req-1", Type: models.FindingCritical, Severity: models.SeverityHigh, Status: models.FindingOpen, Description: "receipt missing"},
	}}
	svc := newExportServiceForTest(t, jobs, packages, findings, requests)

	result, err := svc.RequestExport(context.Background(), auditor(), "req-1", dto.ExportRequestPayload{Format: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, "pdf", result.Format)
	require.NotEmpty(t, jobs.completed["exp-1"])
}

func TestExportServiceDeniedForCardholder(t *testing.T) {
	svc := newExportServiceForTest(t, &exportJobStoreStub{}, &packageStoreStub{}, &findingStoreStub{}, &requestStoreStub{byID: map[string]*models.Request{}})

	_, err := svc.RequestExport(context.Background(), cardholderUser(), "req-1", dto.ExportRequestPayload{Format: "csv"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportServiceMissingPackage(t *testing.T) {
	req := reconciledRequest("req-1")
	requests := &requestStoreStub{byID: map[string]*models.Request{"req-1": req}}
	svc := newExportServiceForTest(t, &exportJobStoreStub{}, &packageStoreStub{}, &findingStoreStub{}, requests)

	_, err := svc.RequestExport(context.Background(), auditor(), "req-1", dto.ExportRequestPayload{Format: "csv"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
