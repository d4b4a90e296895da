package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openprocure/procure-api/internal/audit"
	"github.com/openprocure/procure-api/internal/authz"
	"github.com/openprocure/procure-api/internal/dto"
	"github.com/openprocure/procure-api/internal/models"
	appErrors "github.com/openprocure/procure-api/pkg/errors"
)

type packageStore interface {
	Save(ctx context.Context, pkg *models.CompliancePackage) error
	GetByRequest(ctx context.Context, requestID string) (*models.CompliancePackage, error)
	ListSummaries(ctx context.Context, statuses []models.PackageStatus, limit, offset int) ([]models.CompliancePackage, error)
}

type findingStore interface {
	Create(ctx context.Context, finding *models.Finding) error
	GetByID(ctx context.Context, id string) (*models.Finding, error)
	List(ctx context.Context, filter models.FindingFilter) ([]models.Finding, error)
	UpdateStatus(ctx context.Context, id string, status models.FindingStatus, updatedAt time.Time) error
	SaveCardholderResponse(ctx context.Context, findingID string, resp models.CardholderResponse) error
	SaveAuditorResponse(ctx context.Context, findingID string, resp models.AuditorResponse) error
}

type attachmentStore interface {
	Upsert(ctx context.Context, attachment *models.Attachment) error
	MapByRequest(ctx context.Context, requestID string) (map[models.DocumentType]string, error)
}

// AuditService builds compliance packages, manages findings, and exposes the
// audit rollup. Package bodies are cached in Redis keyed by request.
type AuditService struct {
	packages    packageStore
	findings    findingStore
	attachments attachmentStore
	requests    requestStore
	approvals   approvalStore
	purchases   purchaseStore
	policies    policyStore
	trail       auditTrail

	cache    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger

	defaultPolicy models.OrgPolicy
}

// AuditOption customises the service.
type AuditOption func(*AuditService)

// WithPackageCache enables Redis caching of built packages.
func WithPackageCache(client *redis.Client, ttl time.Duration) AuditOption {
	return func(s *AuditService) {
		s.cache = client
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithAuditDefaultPolicy sets the fallback policy for orgs without one.
func WithAuditDefaultPolicy(policy models.OrgPolicy) AuditOption {
	return func(s *AuditService) { s.defaultPolicy = policy }
}

// NewAuditService constructs the service.
func NewAuditService(packages packageStore, findings findingStore, attachments attachmentStore, requests requestStore, approvals approvalStore, purchases purchaseStore, policies policyStore, trail auditTrail, logger *zap.Logger, opts ...AuditOption) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AuditService{
		packages:    packages,
		findings:    findings,
		attachments: attachments,
		requests:    requests,
		approvals:   approvals,
		purchases:   purchases,
		policies:    policies,
		trail:       trail,
		cacheTTL:    10 * time.Minute,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// BuildPackage gathers the source facts for a request, runs the scoring
// engine, persists the snapshot, and raises findings for new failures.
func (s *AuditService) BuildPackage(ctx context.Context, requestID string) (*models.CompliancePackage, error) {
	facts, err := s.gatherFacts(ctx, requestID)
	if err != nil {
		return nil, err
	}

	pkg := audit.BuildPackage(*facts, time.Now())
	if err := s.packages.Save(ctx, &pkg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist package")
	}
	s.cacheSet(ctx, &pkg)

	if err := s.raiseFindings(ctx, pkg); err != nil {
		s.logger.Error("failed to raise findings", zap.String("request_id", requestID), zap.Error(err))
	}

	s.record(ctx, nil, models.AuditActionPackageBuild, requestID, &pkg)
	return &pkg, nil
}

// GetPackage returns the stored package for a request, building it on demand
// when none exists yet.
func (s *AuditService) GetPackage(ctx context.Context, actor *models.User, requestID string) (*models.CompliancePackage, error) {
	if !authz.CanAccess(actor, authz.ResourceAudit, authz.ActionRead) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view audit packages")
	}
	if _, err := s.accessibleRequest(ctx, actor, requestID); err != nil {
		return nil, err
	}

	if pkg := s.cacheGet(ctx, requestID); pkg != nil {
		return pkg, nil
	}

	pkg, err := s.packages.GetByRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.BuildPackage(ctx, requestID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load package")
	}
	s.cacheSet(ctx, pkg)
	return pkg, nil
}

// RebuildPackage discards the cached package and rebuilds from facts.
func (s *AuditService) RebuildPackage(ctx context.Context, actor *models.User, requestID string) (*models.CompliancePackage, error) {
	if !authz.CanAccess(actor, authz.ResourceAudit, authz.ActionCreate) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to build audit packages")
	}
	if _, err := s.accessibleRequest(ctx, actor, requestID); err != nil {
		return nil, err
	}
	s.cacheDel(ctx, requestID)
	return s.BuildPackage(ctx, requestID)
}

// Validate reports the package's missing pieces with remediation hints.
func (s *AuditService) Validate(ctx context.Context, actor *models.User, requestID string) (*audit.ValidationReport, error) {
	pkg, err := s.GetPackage(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	report := audit.ValidatePackage(*pkg)
	return &report, nil
}

// ListPackages returns package summaries filtered by status.
func (s *AuditService) ListPackages(ctx context.Context, actor *models.User, statuses []models.PackageStatus, limit, offset int) ([]dto.PackageSummary, error) {
	if !authz.CanAccess(actor, authz.ResourceAudit, authz.ActionRead) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view audit packages")
	}
	packages, err := s.packages.ListSummaries(ctx, statuses, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list packages")
	}
	summaries := make([]dto.PackageSummary, 0, len(packages))
	for _, pkg := range packages {
		summaries = append(summaries, dto.PackageSummary{
			RequestID:   pkg.RequestID,
			Status:      pkg.Status,
			AuditScore:  pkg.AuditScore,
			Critical:    pkg.CriticalIssues,
			Warnings:    pkg.Warnings,
			GeneratedAt: pkg.GeneratedAt,
		})
	}
	return summaries, nil
}

// RegisterAttachment links an uploaded document to a request and invalidates
// the cached package so the next read reflects it.
func (s *AuditService) RegisterAttachment(ctx context.Context, actor *models.User, requestID string, payload dto.AttachmentPayload) (*models.Attachment, error) {
	if !authz.CanAccess(actor, authz.ResourceAttachments, authz.ActionCreate) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to upload attachments")
	}
	if _, err := s.accessibleRequest(ctx, actor, requestID); err != nil {
		return nil, err
	}

	attachment := &models.Attachment{
		RequestID:    requestID,
		DocumentType: payload.DocumentType,
		FileURL:      payload.FileURL,
		UploadedBy:   actor.ID,
	}
	if err := s.attachments.Upsert(ctx, attachment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register attachment")
	}
	s.cacheDel(ctx, requestID)
	return attachment, nil
}

// ListFindings returns findings matching the filter.
func (s *AuditService) ListFindings(ctx context.Context, actor *models.User, query dto.FindingQuery) ([]models.Finding, error) {
	if !authz.CanAccess(actor, authz.ResourceAudit, authz.ActionRead) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view findings")
	}

	limit := query.PerPage
	offset := 0
	if query.Page > 1 && limit > 0 {
		offset = (query.Page - 1) * limit
	}

	filter := models.FindingFilter{
		RequestID: query.RequestID,
		Statuses:  query.Status,
		Limit:     limit,
		Offset:    offset,
	}
	if len(query.Severity) == 1 {
		filter.Severity = query.Severity[0]
	}

	findings, err := s.findings.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list findings")
	}
	return findings, nil
}

// RespondAsCardholder applies a cardholder response to a finding. Terminal
// findings reject the response; the check runs here so stale clients get a
// clean conflict instead of silently mutating closed findings.
func (s *AuditService) RespondAsCardholder(ctx context.Context, actor *models.User, findingID string, payload dto.CardholderResponsePayload) (*models.Finding, error) {
	if !authz.CanAccess(actor, authz.ResourceAudit, authz.ActionUpdate) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to respond to findings")
	}
	if actor.Role != models.RoleCardholder && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only cardholders may submit this response")
	}

	finding, err := s.loadFinding(ctx, findingID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := audit.ApplyCardholderResponse(finding, models.CardholderResponse{
		Type:        payload.Type,
		Comment:     payload.Comment,
		RespondedBy: actor.ID,
	}, now)
	if !result.Valid {
		if audit.IsFindingTerminal(finding.Status) {
			return nil, appErrors.Clone(appErrors.ErrFinalized, result.Reason)
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, result.Reason)
	}

	if err := s.findings.SaveCardholderResponse(ctx, finding.ID, *finding.Cardholder); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save response")
	}
	if err := s.findings.UpdateStatus(ctx, finding.ID, finding.Status, finding.UpdatedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update finding")
	}

	s.record(ctx, actor, models.AuditActionFindingResponse, finding.RequestID, finding)
	return finding, nil
}

// RespondAsAuditor applies an auditor decision to a finding.
func (s *AuditService) RespondAsAuditor(ctx context.Context, actor *models.User, findingID string, payload dto.AuditorResponsePayload) (*models.Finding, error) {
	if !authz.CanAccess(actor, authz.ResourceAudit, authz.ActionUpdate) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to respond to findings")
	}
	if actor.Role != models.RoleAuditor && actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only auditors may submit this response")
	}

	finding, err := s.loadFinding(ctx, findingID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := audit.ApplyAuditorResponse(finding, models.AuditorResponse{
		Type:        payload.Type,
		Comment:     payload.Comment,
		RespondedBy: actor.ID,
	}, now)
	if !result.Valid {
		if audit.IsFindingTerminal(finding.Status) {
			return nil, appErrors.Clone(appErrors.ErrFinalized, result.Reason)
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, result.Reason)
	}

	if err := s.findings.SaveAuditorResponse(ctx, finding.ID, *finding.Auditor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save response")
	}
	if err := s.findings.UpdateStatus(ctx, finding.ID, finding.Status, finding.UpdatedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update finding")
	}

	s.record(ctx, actor, models.AuditActionFindingResponse, finding.RequestID, finding)
	return finding, nil
}

// AuditStatus derives the package-level rollup from the request's findings.
func (s *AuditService) AuditStatus(ctx context.Context, actor *models.User, requestID string) (models.AuditStatus, error) {
	if !authz.CanAccess(actor, authz.ResourceAudit, authz.ActionRead) {
		return "", appErrors.Clone(appErrors.ErrForbidden, "not allowed to view audit status")
	}
	findings, err := s.findings.List(ctx, models.FindingFilter{RequestID: requestID})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list findings")
	}
	return audit.DeriveAuditStatus(findings), nil
}

func (s *AuditService) gatherFacts(ctx context.Context, requestID string) (*audit.PackageFacts, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}

	approvals, err := s.approvals.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}

	var purchase *models.Purchase
	purchase, err = s.purchases.GetByRequest(ctx, requestID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load purchase")
		}
		purchase = nil
	}

	policy := s.policyFor(ctx, request.OrgID)
	window := policy.Window()
	peers, err := s.requests.ListByRequesterWithin(ctx, request.RequesterID, request.ID,
		request.CreatedAt.Add(-window), request.CreatedAt.Add(window))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load peer requests")
	}

	attachments, err := s.attachments.MapByRequest(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachments")
	}

	return &audit.PackageFacts{
		Request:     *request,
		Approvals:   approvals,
		Purchase:    purchase,
		Peers:       peers,
		Policy:      policy,
		Attachments: attachments,
	}, nil
}

// raiseFindings creates findings for package failures, skipping when any
// finding is already open or acknowledged for the request so repeated
// rebuilds do not duplicate them.
func (s *AuditService) raiseFindings(ctx context.Context, pkg models.CompliancePackage) error {
	existing, err := s.findings.List(ctx, models.FindingFilter{
		RequestID: pkg.RequestID,
		Statuses:  []models.FindingStatus{models.FindingOpen, models.FindingAcknowledged, models.FindingInProgress, models.FindingDisputed},
	})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, finding := range audit.FindingsFromPackage(pkg, time.Now()) {
		f := finding
		if err := s.findings.Create(ctx, &f); err != nil {
			return err
		}
	}
	return nil
}

func (s *AuditService) accessibleRequest(ctx context.Context, actor *models.User, requestID string) (*models.Request, error) {
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
	return request, nil
}

func (s *AuditService) loadFinding(ctx context.Context, id string) (*models.Finding, error) {
	finding, err := s.findings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "finding not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load finding")
	}
	return finding, nil
}

func (s *AuditService) policyFor(ctx context.Context, orgID string) models.OrgPolicy {
	policy, err := s.policies.GetByOrg(ctx, orgID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to load org policy", zap.String("org_id", orgID), zap.Error(err))
		}
		fallback := s.defaultPolicy
		fallback.OrgID = orgID
		return fallback
	}
	return *policy
}

func (s *AuditService) cacheKey(requestID string) string {
	return fmt.Sprintf("audit:package:%s", requestID)
}

func (s *AuditService) cacheGet(ctx context.Context, requestID string) *models.CompliancePackage {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, s.cacheKey(requestID)).Bytes()
	if err != nil {
		return nil
	}
	var pkg models.CompliancePackage
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return nil
	}
	return &pkg
}

func (s *AuditService) cacheSet(ctx context.Context, pkg *models.CompliancePackage) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(pkg)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(pkg.RequestID), raw, s.cacheTTL).Err(); err != nil {
		s.logger.Warn("failed to cache package", zap.String("request_id", pkg.RequestID), zap.Error(err))
	}
}

func (s *AuditService) cacheDel(ctx context.Context, requestID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.cacheKey(requestID)).Err(); err != nil {
		s.logger.Warn("failed to invalidate package cache", zap.String("request_id", requestID), zap.Error(err))
	}
}

func (s *AuditService) record(ctx context.Context, actor *models.User, action, requestID string, newValues interface{}) {
	if s.trail == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   "audit",
		ResourceID: &requestID,
	}
	if actor != nil {
		log.UserID = &actor.ID
	}
	if newValues != nil {
		log.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.trail.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
