package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openprocure/procure-api/internal/authz"
	"github.com/openprocure/procure-api/internal/dto"
	"github.com/openprocure/procure-api/internal/models"
	appErrors "github.com/openprocure/procure-api/pkg/errors"
	"github.com/openprocure/procure-api/pkg/export"
	"github.com/openprocure/procure-api/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	MarkCompleted(ctx context.Context, id, filePath string, expiresAt time.Time) error
	MarkFailed(ctx context.Context, id, message string) error
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	RenderSections(title string, sections []export.Section) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	LinkTTL   time.Duration
}

// ExportService renders audit package artifacts and hands out signed
// download links. Artifacts stay valid for thirty days by default.
type ExportService struct {
	jobs     exportJobStore
	packages packageStore
	findings findingStore
	requests requestStore
	trail    auditTrail
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(jobs exportJobStore, packages packageStore, findings findingStore, requests requestStore, trail auditTrail, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 720 * time.Hour
	}
	return &ExportService{
		jobs:     jobs,
		packages: packages,
		findings: findings,
		requests: requests,
		trail:    trail,
		storage:  store,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// RequestExport renders the compliance package for a request into the asked
// format and returns a signed download link.
func (s *ExportService) RequestExport(ctx context.Context, actor *models.User, requestID string, payload dto.ExportRequestPayload) (*dto.ExportResult, error) {
	if !authz.CanAccess(actor, authz.ResourceExports, authz.ActionCreate) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to export audit packages")
	}

	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if !authz.CanAccessRequest(actor, request) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this request")
	}

	pkg, err := s.packages.GetByRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no compliance package for this request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load compliance package")
	}

	findings, err := s.findings.List(ctx, models.FindingFilter{RequestID: requestID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load findings")
	}

	job := &models.ExportJob{
		RequestID:   requestID,
		RequestedBy: actor.ID,
		Format:      payload.Format,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	artifact, err := s.render(pkg, findings, payload.Format)
	if err != nil {
		s.fail(ctx, job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("package_%s_%s.%s", sanitizeFilename(requestID), time.Now().UTC().Format("20060102_150405"), payload.Format)
	relPath, err := s.storage.Save(filename, artifact)
	if err != nil {
		s.fail(ctx, job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		s.fail(ctx, job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	if err := s.jobs.MarkCompleted(ctx, job.ID, relPath, expiresAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize export job")
	}

	s.record(ctx, actor, requestID, job)

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &dto.ExportResult{
		ExportID:    job.ID,
		RequestID:   requestID,
		Format:      payload.Format,
		DownloadURL: fmt.Sprintf("%s/exports/download/%s", prefix, token),
		ExpiresAt:   expiresAt,
	}, nil
}

// GetJob returns export job metadata.
func (s *ExportService) GetJob(ctx context.Context, actor *models.User, id string) (*models.ExportJob, error) {
	if !authz.CanAccess(actor, authz.ResourceExports, authz.ActionRead) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view exports")
	}
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

// ParseToken validates download token metadata. Downloads are unauthenticated
// so the token itself is the credential.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored artifact.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes artifacts older than ttl (defaults to the configured link TTL).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.LinkTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) render(pkg *models.CompliancePackage, findings []models.Finding, format string) ([]byte, error) {
	switch format {
	case "csv":
		return s.csv.Render(buildPackageDataset(pkg, findings))
	case "pdf":
		title := fmt.Sprintf("Audit Package %s", pkg.RequestID)
		return s.pdf.RenderSections(title, buildPackageSections(pkg, findings))
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
}

func (s *ExportService) fail(ctx context.Context, jobID string, cause error) {
	if err := s.jobs.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *ExportService) record(ctx context.Context, actor *models.User, requestID string, job *models.ExportJob) {
	if s.trail == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actor.ID,
		Action:     models.AuditActionPackageExport,
		Resource:   "exports",
		ResourceID: &requestID,
	}
	log.NewValues, _ = json.Marshal(job)
	if err := s.trail.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", models.AuditActionPackageExport), zap.Error(err))
	}
}

func buildPackageDataset(pkg *models.CompliancePackage, findings []models.Finding) export.Dataset {
	rows := []map[string]string{
		{"Section": "Summary", "Item": "Audit Score", "Status": fmt.Sprintf("%d", pkg.AuditScore), "Detail": string(pkg.Status)},
		{"Section": "Summary", "Item": "Critical Issues", "Status": fmt.Sprintf("%d", pkg.CriticalIssues), "Detail": ""},
		{"Section": "Summary", "Item": "Warnings", "Status": fmt.Sprintf("%d", pkg.Warnings), "Detail": ""},
		{"Section": "Summary", "Item": "Generated At", "Status": pkg.GeneratedAt.UTC().Format(time.RFC3339), "Detail": ""},
	}
	for _, docType := range models.DocumentTypes() {
		doc := pkg.Documents[docType]
		rows = append(rows, map[string]string{
			"Section": "Documents",
			"Item":    string(docType),
			"Status":  documentVerdict(doc),
			"Detail":  strings.Join(doc.Issues, "; "),
		})
	}
	for _, checkType := range models.CheckTypes() {
		check := pkg.Checks[checkType]
		rows = append(rows, map[string]string{
			"Section": "Checks",
			"Item":    string(checkType),
			"Status":  checkVerdict(check),
			"Detail":  strings.Join(check.Issues, "; "),
		})
	}
	for _, finding := range sortedFindings(findings) {
		rows = append(rows, map[string]string{
			"Section": "Findings",
			"Item":    string(finding.Type),
			"Status":  string(finding.Status),
			"Detail":  finding.Description,
		})
	}
	return export.Dataset{
		Headers: []string{"Section", "Item", "Status", "Detail"},
		Rows:    rows,
	}
}

func buildPackageSections(pkg *models.CompliancePackage, findings []models.Finding) []export.Section {
	summary := export.Section{
		Title: "Summary",
		Lines: []export.Line{
			{Label: "Request", Value: pkg.RequestID},
			{Label: "Status", Value: string(pkg.Status)},
			{Label: "Audit Score", Value: fmt.Sprintf("%d / 100", pkg.AuditScore)},
			{Label: "Critical Issues", Value: fmt.Sprintf("%d", pkg.CriticalIssues)},
			{Label: "Warnings", Value: fmt.Sprintf("%d", pkg.Warnings)},
			{Label: "Generated At", Value: pkg.GeneratedAt.UTC().Format(time.RFC3339)},
		},
	}

	documents := export.Section{Title: "Documents"}
	for _, docType := range models.DocumentTypes() {
		doc := pkg.Documents[docType]
		value := documentVerdict(doc)
		if len(doc.Issues) > 0 {
			value += " (" + strings.Join(doc.Issues, "; ") + ")"
		}
		documents.Lines = append(documents.Lines, export.Line{Label: string(docType), Value: value})
	}

	checks := export.Section{Title: "Compliance Checks"}
	for _, checkType := range models.CheckTypes() {
		check := pkg.Checks[checkType]
		value := checkVerdict(check)
		if len(check.Issues) > 0 {
			value += " (" + strings.Join(check.Issues, "; ") + ")"
		}
		checks.Lines = append(checks.Lines, export.Line{Label: string(checkType), Value: value})
	}

	sections := []export.Section{summary, documents, checks}
	if len(findings) > 0 {
		section := export.Section{Title: "Findings"}
		for _, finding := range sortedFindings(findings) {
			section.Lines = append(section.Lines, export.Line{
				Label: fmt.Sprintf("%s [%s]", finding.Type, finding.Severity),
				Value: fmt.Sprintf("%s: %s", finding.Status, finding.Description),
			})
		}
		sections = append(sections, section)
	}
	return sections
}

func documentVerdict(doc models.DocumentStatus) string {
	switch {
	case !doc.Present:
		return "MISSING"
	case !doc.Compliant:
		return "NON_COMPLIANT"
	default:
		return "COMPLIANT"
	}
}

func checkVerdict(check models.CheckResult) string {
	if check.Passed {
		return "PASSED"
	}
	return "FAILED"
}

func sortedFindings(findings []models.Finding) []models.Finding {
	out := make([]models.Finding, len(findings))
	copy(out, findings)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
