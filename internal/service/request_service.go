package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openprocure/procure-api/internal/audit"
	"github.com/openprocure/procure-api/internal/authz"
	"github.com/openprocure/procure-api/internal/dto"
	"github.com/openprocure/procure-api/internal/models"
	"github.com/openprocure/procure-api/internal/workflow"
	appErrors "github.com/openprocure/procure-api/pkg/errors"
)

type requestStore interface {
	Create(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error)
	ListByRequesterWithin(ctx context.Context, requesterID, excludeID string, from, to time.Time) ([]models.Request, error)
	Update(ctx context.Context, request *models.Request) error
	UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus, updatedAt time.Time) error
	MarkSuspectedSplit(ctx context.Context, id string, suspected bool) error
}

type approvalStore interface {
	Create(ctx context.Context, approval *models.Approval) error
	ListByRequest(ctx context.Context, requestID string) ([]models.Approval, error)
}

type policyStore interface {
	GetByOrg(ctx context.Context, orgID string) (*models.OrgPolicy, error)
}

// Notifier receives lifecycle transition events. Implementations must not block.
type Notifier interface {
	NotifyTransition(ctx context.Context, request *models.Request, from, to models.RequestStatus, actor *models.User)
}

// RequestService implements the procurement request lifecycle.
type RequestService struct {
	requests  requestStore
	approvals approvalStore
	policies  policyStore
	trail     auditTrail
	validator *validator.Validate
	logger    *zap.Logger

	defaultPolicy models.OrgPolicy
	notifier      Notifier
	onPurchased   func(requestID string)
}

// RequestOption customises the service.
type RequestOption func(*RequestService)

// WithNotifier registers a transition notifier.
func WithNotifier(n Notifier) RequestOption {
	return func(s *RequestService) { s.notifier = n }
}

// WithPackageTrigger registers a callback fired when a request reaches a
// state where its audit package should be rebuilt.
func WithPackageTrigger(fn func(requestID string)) RequestOption {
	return func(s *RequestService) { s.onPurchased = fn }
}

// WithDefaultPolicy sets the fallback policy for orgs without a stored one.
func WithDefaultPolicy(policy models.OrgPolicy) RequestOption {
	return func(s *RequestService) { s.defaultPolicy = policy }
}

// NewRequestService constructs the service.
func NewRequestService(requests requestStore, approvals approvalStore, policies policyStore, trail auditTrail, validate *validator.Validate, logger *zap.Logger, opts ...RequestOption) *RequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &RequestService{
		requests:  requests,
		approvals: approvals,
		policies:  policies,
		trail:     trail,
		validator: validate,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Create registers a new draft request owned by the actor.
func (s *RequestService) Create(ctx context.Context, actor *models.User, payload dto.CreateRequestPayload) (*models.Request, error) {
	if !authz.CanAccess(actor, authz.ResourceRequests, authz.ActionCreate) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to create requests")
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	needBy, err := parseDate(payload.NeedBy)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid needBy date")
	}

	request := &models.Request{
		OrgID:           actor.OrgID,
		RequesterID:     actor.ID,
		Vendor:          payload.Vendor,
		Justification:   payload.Justification,
		NeedBy:          needBy,
		AccountingCode:  payload.AccountingCode,
		DeliveryAddress: payload.DeliveryAddress,
		Status:          models.StatusDraft,
		Items:           itemsFromPayload(payload.Items),
	}
	request.TotalEstimate = totalOf(request.Items)

	if err := s.requests.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.record(ctx, actor, models.AuditActionRequestCreate, request.ID, nil, request)
	return request, nil
}

// Get loads a request after evaluating the access gate.
func (s *RequestService) Get(ctx context.Context, actor *models.User, id string) (*models.Request, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanAccessRequest(actor, request) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this request")
	}
	return request, nil
}

// List returns the requests visible to the actor.
func (s *RequestService) List(ctx context.Context, actor *models.User, query dto.RequestQuery) ([]models.Request, *models.Pagination, error) {
	if !authz.CanAccess(actor, authz.ResourceRequests, authz.ActionRead) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list requests")
	}

	filter := models.RequestFilter{
		OrgID:  actor.OrgID,
		Vendor: query.Vendor,
	}

	switch actor.Role {
	case models.RoleAdmin:
		filter.RequesterID = query.RequesterID
		filter.Statuses = query.Status
	case models.RoleRequester:
		filter.RequesterID = actor.ID
		filter.Statuses = query.Status
	default:
		filter.Statuses = intersectStatuses(authz.VisibleStatuses(actor.Role), query.Status)
		if len(filter.Statuses) == 0 {
			return []models.Request{}, &models.Pagination{Page: 1, PageSize: 0, TotalCount: 0}, nil
		}
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	perPage := query.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage

	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, &models.Pagination{Page: page, PageSize: perPage, TotalCount: total}, nil
}

// Update mutates an editable request.
func (s *RequestService) Update(ctx context.Context, actor *models.User, id string, payload dto.UpdateRequestPayload) (*models.Request, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanAccessRequest(actor, request) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this request")
	}
	if !authz.CanEditRequest(actor, request.Status) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request is not editable in its current state")
	}

	before := *request

	if payload.Vendor != nil {
		request.Vendor = *payload.Vendor
	}
	if payload.Justification != nil {
		request.Justification = *payload.Justification
	}
	if payload.AccountingCode != nil {
		request.AccountingCode = *payload.AccountingCode
	}
	if payload.DeliveryAddress != nil {
		request.DeliveryAddress = *payload.DeliveryAddress
	}
	if payload.NeedBy != nil {
		needBy, err := parseDate(*payload.NeedBy)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid needBy date")
		}
		request.NeedBy = needBy
	}
	if payload.Items != nil {
		request.Items = itemsFromPayload(payload.Items)
		request.TotalEstimate = totalOf(request.Items)
	}

	if err := s.requests.Update(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request")
	}

	s.record(ctx, actor, models.AuditActionRequestUpdate, request.ID, &before, request)
	return request, nil
}

// Transition moves a request along the lifecycle graph. The structural edge
// check, role check, and approval limit recheck all happen here; the store's
// conditional update guarantees at most one concurrent transition wins.
func (s *RequestService) Transition(ctx context.Context, actor *models.User, id string, payload dto.TransitionPayload) (*models.Request, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanAccessRequest(actor, request) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this request")
	}
	if !payload.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown target status")
	}

	from := request.Status
	to := payload.Status

	var tctx *workflow.TransitionContext
	if to == models.StatusApproved {
		amount := request.TotalEstimate
		limit := actor.ApprovalLimit
		tctx = &workflow.TransitionContext{Amount: &amount, ApprovalLimit: &limit}
	}

	result := workflow.ValidateTransition(from, to, actor.Role, tctx)
	if !result.Valid {
		if to == models.StatusApproved && actor.Role == models.RoleApprover && !authz.CanApproveAmount(actor, request.TotalEstimate) {
			return nil, appErrors.Clone(appErrors.ErrOverApprovalLimit, result.Reason)
		}
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, result.Reason)
	}

	now := time.Now().UTC()
	if err := s.requests.UpdateStatus(ctx, request.ID, from, to, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request was transitioned concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transition request")
	}
	request.Status = to
	request.UpdatedAt = now

	if decision, ok := decisionFor(from, to); ok {
		approval := &models.Approval{
			RequestID:  request.ID,
			ApproverID: actor.ID,
			Decision:   decision,
			DecidedAt:  now,
		}
		if payload.Comment != "" {
			comment := payload.Comment
			approval.Comment = &comment
		}
		if err := s.approvals.Create(ctx, approval); err != nil {
			s.logger.Error("failed to record approval decision", zap.String("request_id", request.ID), zap.Error(err))
		}
	}

	if to == models.StatusSubmitted {
		s.detectSplit(ctx, request)
	}

	s.record(ctx, actor, models.AuditActionRequestTransition, request.ID,
		map[string]models.RequestStatus{"status": from},
		map[string]models.RequestStatus{"status": to})

	if s.notifier != nil {
		s.notifier.NotifyTransition(ctx, request, from, to, actor)
	}
	if s.onPurchased != nil && (to == models.StatusPurchased || to == models.StatusReconciled) {
		s.onPurchased(request.ID)
	}

	return request, nil
}

// NextActions reports the states the actor can move the request to.
func (s *RequestService) NextActions(ctx context.Context, actor *models.User, id string) ([]models.RequestStatus, error) {
	request, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return workflow.ValidNextStates(request.Status, actor.Role), nil
}

// Approvals lists the decision history of a request.
func (s *RequestService) Approvals(ctx context.Context, actor *models.User, id string) ([]models.Approval, error) {
	if !authz.CanAccess(actor, authz.ResourceApprovals, authz.ActionRead) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view approvals")
	}
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	approvals, err := s.approvals.ListByRequest(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	return approvals, nil
}

func (s *RequestService) load(ctx context.Context, id string) (*models.Request, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

// detectSplit flags the request when sibling requests inside the policy
// window push the aggregate over the threshold. Detection failures are
// logged, never fatal to the submission.
func (s *RequestService) detectSplit(ctx context.Context, request *models.Request) {
	policy := s.policyFor(ctx, request.OrgID)
	window := policy.Window()

	peers, err := s.requests.ListByRequesterWithin(ctx, request.RequesterID, request.ID,
		request.CreatedAt.Add(-window), request.CreatedAt.Add(window))
	if err != nil {
		s.logger.Warn("split detection peer lookup failed", zap.String("request_id", request.ID), zap.Error(err))
		return
	}

	result := audit.SplitPurchaseCheck(*request, peers, window, policy.SplitThreshold)
	suspected := !result.Passed
	if suspected == request.SuspectedSplit {
		return
	}
	if err := s.requests.MarkSuspectedSplit(ctx, request.ID, suspected); err != nil {
		s.logger.Warn("failed to persist split flag", zap.String("request_id", request.ID), zap.Error(err))
		return
	}
	request.SuspectedSplit = suspected
}

func (s *RequestService) policyFor(ctx context.Context, orgID string) models.OrgPolicy {
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

func (s *RequestService) record(ctx context.Context, actor *models.User, action, resourceID string, oldValues, newValues interface{}) {
	if s.trail == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actor.ID,
		Action:     action,
		Resource:   "requests",
		ResourceID: &resourceID,
	}
	if oldValues != nil {
		log.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		log.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.trail.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func decisionFor(from, to models.RequestStatus) (models.ApprovalDecision, bool) {
	if from != models.StatusAOReview {
		return "", false
	}
	switch to {
	case models.StatusApproved:
		return models.DecisionApproved, true
	case models.StatusDenied:
		return models.DecisionDenied, true
	case models.StatusReturned:
		return models.DecisionReturned, true
	}
	return "", false
}

func itemsFromPayload(inputs []dto.LineItemInput) []models.LineItem {
	items := make([]models.LineItem, len(inputs))
	for i, input := range inputs {
		items[i] = models.LineItem{
			SKU:         input.SKU,
			Description: input.Description,
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
		}
	}
	return items
}

func totalOf(items []models.LineItem) float64 {
	var total float64
	for _, item := range items {
		total += float64(item.Quantity) * item.UnitPrice
	}
	return total
}

func intersectStatuses(visible, requested []models.RequestStatus) []models.RequestStatus {
	if len(requested) == 0 {
		return visible
	}
	allowed := make(map[models.RequestStatus]struct{}, len(visible))
	for _, status := range visible {
		allowed[status] = struct{}{}
	}
	var out []models.RequestStatus
	for _, status := range requested {
		if _, ok := allowed[status]; ok {
			out = append(out, status)
		}
	}
	return out
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", raw)
}
