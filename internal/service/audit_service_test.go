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
)

type packageStoreStub struct {
	byRequest map[string]*models.CompliancePackage
	summaries []models.CompliancePackage
	saved     []*models.CompliancePackage
}

func (s *packageStoreStub) Save(ctx context.Context, pkg *models.CompliancePackage) error {
	if s.byRequest == nil {
		s.byRequest = make(map[string]*models.CompliancePackage)
	}
	s.byRequest[pkg.RequestID] = pkg
	s.saved = append(s.saved, pkg)
	return nil
}

func (s *packageStoreStub) GetByRequest(ctx context.Context, requestID string) (*models.CompliancePackage, error) {
	pkg, ok := s.byRequest[requestID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return pkg, nil
}

func (s *packageStoreStub) ListSummaries(ctx context.Context, statuses []models.PackageStatus, limit, offset int) ([]models.CompliancePackage, error) {
	return s.summaries, nil
}

type findingStoreStub struct {
	byID            map[string]*models.Finding
	listed          []models.Finding
	created         []*models.Finding
	statusUpdates   map[string]models.FindingStatus
	savedCardholder map[string]models.CardholderResponse
	savedAuditor    map[string]models.AuditorResponse
}

func (s *findingStoreStub) Create(ctx context.Context, finding *models.Finding) error {
	s.created = append(s.created, finding)
	return nil
}

func (s *findingStoreStub) GetByID(ctx context.Context, id string) (*models.Finding, error) {
	finding, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *finding
	return &clone, nil
}

func (s *findingStoreStub) List(ctx context.Context, filter models.FindingFilter) ([]models.Finding, error) {
	if len(filter.Statuses) > 0 {
		var out []models.Finding
		for _, finding := range s.listed {
			for _, status := range filter.Statuses {
				if finding.Status == status {
					out = append(out, finding)
					break
				}
			}
		}
		return out, nil
	}
	return s.listed, nil
}

func (s *findingStoreStub) UpdateStatus(ctx context.Context, id string, status models.FindingStatus, updatedAt time.Time) error {
	if s.statusUpdates == nil {
		s.statusUpdates = make(map[string]models.FindingStatus)
	}
	s.statusUpdates[id] = status
	return nil
}

func (s *findingStoreStub) SaveCardholderResponse(ctx context.Context, findingID string, resp models.CardholderResponse) error {
	if s.savedCardholder == nil {
		s.savedCardholder = make(map[string]models.CardholderResponse)
	}
	s.savedCardholder[findingID] = resp
	return nil
}

func (s *findingStoreStub) SaveAuditorResponse(ctx context.Context, findingID string, resp models.AuditorResponse) error {
	if s.savedAuditor == nil {
		s.savedAuditor = make(map[string]models.AuditorResponse)
	}
	s.savedAuditor[findingID] = resp
	return nil
}

type attachmentStoreStub struct {
	attachments map[models.DocumentType]string
	upserted    []*models.Attachment
}

func (s *attachmentStoreStub) Upsert(ctx context.Context, attachment *models.Attachment) error {
	s.upserted = append(s.upserted, attachment)
	return nil
}

func (s *attachmentStoreStub) MapByRequest(ctx context.Context, requestID string) (map[models.DocumentType]string, error) {
	if s.attachments == nil {
		return map[models.DocumentType]string{}, nil
	}
	return s.attachments, nil
}

type purchaseStoreStub struct {
	byRequest    map[string]*models.Purchase
	reconcileErr error
	reconciled   []string
	created      []*models.Purchase
}

func (s *purchaseStoreStub) Create(ctx context.Context, purchase *models.Purchase) error {
	purchase.ID = "pur-new"
	s.created = append(s.created, purchase)
	return nil
}

func (s *purchaseStoreStub) GetByRequest(ctx context.Context, requestID string) (*models.Purchase, error) {
	purchase, ok := s.byRequest[requestID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return purchase, nil
}

func (s *purchaseStoreStub) Update(ctx context.Context, purchase *models.Purchase) error {
	return nil
}

func (s *purchaseStoreStub) Reconcile(ctx context.Context, id, receiptURL string, finalTotal float64, reconciledAt time.Time) error {
	if s.reconcileErr != nil {
		return s.reconcileErr
	}
	s.reconciled = append(s.reconciled, id)
	return nil
}

func auditor() *models.User {
	return &models.User{ID: "u-aud", OrgID: "org-1", Role: models.RoleAuditor, Active: true}
}

func cardholderUser() *models.User {
	return &models.User{ID: "u-card", OrgID: "org-1", Role: models.RoleCardholder, Active: true}
}

func newAuditServiceForTest(packages *packageStoreStub, findings *findingStoreStub, requests *requestStoreStub, purchases *purchaseStoreStub, attachments *attachmentStoreStub) (*AuditService, *trailStub) {
	trail := &trailStub{}
	svc := NewAuditService(packages, findings, attachments, requests, &approvalStoreStub{}, purchases, &policyStoreStub{}, trail, zap.NewNop())
	return svc, trail
}

func reconciledRequest(id string) *models.Request {
	now := time.Now().UTC()
	return &models.Request{
		ID:            id,
		OrgID:         "org-1",
		RequesterID:   "u-req",
		Vendor:        "Acme Supply",
		Status:        models.StatusReconciled,
		TotalEstimate: 500,
		CreatedAt:     now.Add(-48 * time.Hour),
		UpdatedAt:     now,
	}
}

func TestAuditServiceBuildPackagePersistsAndRaisesFindings(t *testing.T) {
	req := reconciledRequest("req-1")
	requests := &requestStoreStub{byID: map[string]*models.Request{"req-1": req}}
	packages := &packageStoreStub{}
	findings := &findingStoreStub{}
	purchases := &purchaseStoreStub{}
	svc, trail := newAuditServiceForTest(packages, findings, requests, purchases, &attachmentStoreStub{})

	pkg, err := svc.BuildPackage(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", pkg.RequestID)
	require.Len(t, packages.saved, 1)

	// A bare request with no attachments or purchase fails documents and
	// checks, so findings must have been raised.
	assert.NotEmpty(t, findings.created)
	for _, finding := range findings.created {
		assert.Equal(t, models.FindingOpen, finding.Status)
		assert.Equal(t, "req-1", finding.RequestID)
	}
	require.Len(t, trail.logs, 1)
	assert.Equal(t, models.AuditActionPackageBuild, trail.logs[0].Action)
}

func TestAuditServiceBuildPackageSkipsFindingsWhenOpenOnesExist(t *testing.T) {
	req := reconciledRequest("req-1")
	requests := &requestStoreStub{byID: map[string]*models.Request{"req-1": req}}
	findings := &findingStoreStub{
		listed: []models.Finding{{ID: "f-1", RequestID: "req-1", Status: models.FindingOpen}},
	}
	svc, _ := newAuditServiceForTest(&packageStoreStub{}, findings, requests, &purchaseStoreStub{}, &attachmentStoreStub{})

	_, err := svc.BuildPackage(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Empty(t, findings.created)
}

func TestAuditServiceGetPackageBuildsOnDemand(t *testing.T) {
	req := reconciledRequest("req-1")
	requests := &requestStoreStub{byID: map[string]*models.Request{"req-1": req}}
	packages := &packageStoreStub{}
	svc, _ := newAuditServiceForTest(packages, &findingStoreStub{}, requests, &purchaseStoreStub{}, &attachmentStoreStub{})

	pkg, err := svc.GetPackage(context.Background(), auditor(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "req-1", pkg.RequestID)
	require.Len(t, packages.saved, 1)
}

func TestAuditServiceGetPackageDeniedForRequester(t *testing.T) {
	svc, _ := newAuditServiceForTest(&packageStoreStub{}, &findingStoreStub{}, &requestStoreStub{byID: map[string]*models.Request{}}, &purchaseStoreStub{}, &attachmentStoreStub{})

	_, err := svc.GetPackage(context.Background(), requester(), "req-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuditServiceRespondAsCardholderAcknowledges(t *testing.T) {
	finding := &models.Finding{ID: "f-1", RequestID: "req-1", Status: models.FindingOpen, Severity: models.SeverityHigh}
	findings := &findingStoreStub{byID: map[string]*models.Finding{"f-1": finding}}
	svc, trail := newAuditServiceForTest(&packageStoreStub{}, findings, &requestStoreStub{byID: map[string]*models.Request{}}, &purchaseStoreStub{}, &attachmentStoreStub{})

	updated, err := svc.RespondAsCardholder(context.Background(), cardholderUser(), "f-1", dto.CardholderResponsePayload{
		Type:    models.CardholderAcknowledge,
		Comment: "will fix",
	})
	require.NoError(t, err)
	assert.Equal(t, models.FindingAcknowledged, updated.Status)
	assert.Equal(t, models.FindingAcknowledged, findings.statusUpdates["f-1"])
	assert.Equal(t, "will fix", findings.savedCardholder["f-1"].Comment)
	require.Len(t, trail.logs, 1)
}

func TestAuditServiceRespondOnTerminalFinding(t *testing.T) {
	finding := &models.Finding{ID: "f-1", RequestID: "req-1", Status: models.FindingResolved}
	findings := &findingStoreStub{byID: map[string]*models.Finding{"f-1": finding}}
	svc, _ := newAuditServiceForTest(&packageStoreStub{}, findings, &requestStoreStub{byID: map[string]*models.Request{}}, &purchaseStoreStub{}, &attachmentStoreStub{})

	_, err := svc.RespondAsCardholder(context.Background(), cardholderUser(), "f-1", dto.CardholderResponsePayload{Type: models.CardholderAcknowledge})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFinalized.Code, appErrors.FromError(err).Code)

	_, err = svc.RespondAsAuditor(context.Background(), auditor(), "f-1", dto.AuditorResponsePayload{Type: models.AuditorAccept})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFinalized.Code, appErrors.FromError(err).Code)
}

func TestAuditServiceRespondWrongRole(t *testing.T) {
	finding := &models.Finding{ID: "f-1", RequestID: "req-1", Status: models.FindingOpen}
	findings := &findingStoreStub{byID: map[string]*models.Finding{"f-1": finding}}
	svc, _ := newAuditServiceForTest(&packageStoreStub{}, findings, &requestStoreStub{byID: map[string]*models.Request{}}, &purchaseStoreStub{}, &attachmentStoreStub{})

	_, err := svc.RespondAsCardholder(context.Background(), auditor(), "f-1", dto.CardholderResponsePayload{Type: models.CardholderAcknowledge})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.RespondAsAuditor(context.Background(), cardholderUser(), "f-1", dto.AuditorResponsePayload{Type: models.AuditorAccept})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuditServiceAuditorEscalateIsTerminal(t *testing.T) {
	finding := &models.Finding{ID: "f-1", RequestID: "req-1", Status: models.FindingAcknowledged}
	findings := &findingStoreStub{byID: map[string]*models.Finding{"f-1": finding}}
	svc, _ := newAuditServiceForTest(&packageStoreStub{}, findings, &requestStoreStub{byID: map[string]*models.Request{}}, &purchaseStoreStub{}, &attachmentStoreStub{})

	updated, err := svc.RespondAsAuditor(context.Background(), auditor(), "f-1", dto.AuditorResponsePayload{Type: models.AuditorEscalate})
	require.NoError(t, err)
	assert.Equal(t, models.FindingEscalated, updated.Status)
}

func TestAuditServiceAuditStatusRollup(t *testing.T) {
	findings := &findingStoreStub{
		listed: []models.Finding{
			{ID: "f-1", RequestID: "req-1", Status: models.FindingOpen, Severity: models.SeverityCritical},
		},
	}
	svc, _ := newAuditServiceForTest(&packageStoreStub{}, findings, &requestStoreStub{byID: map[string]*models.Request{}}, &purchaseStoreStub{}, &attachmentStoreStub{})

	status, err := svc.AuditStatus(context.Background(), auditor(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.AuditNonCompliant, status)

	findings.listed = nil
	status, err = svc.AuditStatus(context.Background(), auditor(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.AuditPending, status)
}

func TestAuditServiceRegisterAttachment(t *testing.T) {
	req := reconciledRequest("req-1")
	requests := &requestStoreStub{byID: map[string]*models.Request{"req-1": req}}
	attachments := &attachmentStoreStub{}
	svc, _ := newAuditServiceForTest(&packageStoreStub{}, &findingStoreStub{}, requests, &purchaseStoreStub{}, attachments)

	attachment, err := svc.RegisterAttachment(context.Background(), cardholderUser(), "req-1", dto.AttachmentPayload{
		DocumentType: models.DocReceipt,
		FileURL:      "https://files.example.com/receipt.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DocReceipt, attachment.DocumentType)
	require.Len(t, attachments.upserted, 1)
}
