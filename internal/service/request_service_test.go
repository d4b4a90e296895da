package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openprocure/procure-api/internal/dto"
	"github.com/openprocure/procure-api/internal/models"
	appErrors "github.com/openprocure/procure-api/pkg/errors"
)

type requestStoreStub struct {
	byID            map[string]*models.Request
	peers           []models.Request
	listResult      []models.Request
	listTotal       int
	lastFilter      models.RequestFilter
	created         *models.Request
	updateStatusErr error
	splitFlags      map[string]bool
	statusUpdates   []models.RequestStatus
}

func (s *requestStoreStub) Create(ctx context.Context, request *models.Request) error {
	request.ID = "req-new"
	s.created = request
	return nil
}

func (s *requestStoreStub) GetByID(ctx context.Context, id string) (*models.Request, error) {
	req, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *req
	return &clone, nil
}

func (s *requestStoreStub) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	s.lastFilter = filter
	return s.listResult, s.listTotal, nil
}

func (s *requestStoreStub) ListByRequesterWithin(ctx context.Context, requesterID, excludeID string, from, to time.Time) ([]models.Request, error) {
	return s.peers, nil
}

func (s *requestStoreStub) Update(ctx context.Context, request *models.Request) error {
	s.byID[request.ID] = request
	return nil
}

func (s *requestStoreStub) UpdateStatus(ctx context.Context, id string, from, to models.RequestStatus, updatedAt time.Time) error {
	if s.updateStatusErr != nil {
		return s.updateStatusErr
	}
	if req, ok := s.byID[id]; ok {
		req.Status = to
	}
	s.statusUpdates = append(s.statusUpdates, to)
	return nil
}

func (s *requestStoreStub) MarkSuspectedSplit(ctx context.Context, id string, suspected bool) error {
	if s.splitFlags == nil {
		s.splitFlags = make(map[string]bool)
	}
	s.splitFlags[id] = suspected
	return nil
}

type approvalStoreStub struct {
	created []models.Approval
	listed  []models.Approval
}

func (s *approvalStoreStub) Create(ctx context.Context, approval *models.Approval) error {
	s.created = append(s.created, *approval)
	return nil
}

func (s *approvalStoreStub) ListByRequest(ctx context.Context, requestID string) ([]models.Approval, error) {
	return s.listed, nil
}

type policyStoreStub struct {
	policy *models.OrgPolicy
}

func (s *policyStoreStub) GetByOrg(ctx context.Context, orgID string) (*models.OrgPolicy, error) {
	if s.policy == nil {
		return nil, sql.ErrNoRows
	}
	return s.policy, nil
}

type trailStub struct {
	logs []*models.AuditLog
}

func (s *trailStub) Create(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func newRequestService(requests *requestStoreStub, approvals *approvalStoreStub, policies *policyStoreStub, opts ...RequestOption) (*RequestService, *trailStub) {
	trail := &trailStub{}
	svc := NewRequestService(requests, approvals, policies, trail, validator.New(), zap.NewNop(), opts...)
	return svc, trail
}

func requester() *models.User {
	return &models.User{ID: "u-req", OrgID: "org-1", Role: models.RoleRequester, Active: true}
}

func approver(limit float64) *models.User {
	return &models.User{ID: "u-app", OrgID: "org-1", Role: models.RoleApprover, ApprovalLimit: limit, Active: true}
}

func draftRequest(id string, total float64) *models.Request {
	return &models.Request{
		ID:            id,
		OrgID:         "org-1",
		RequesterID:   "u-req",
		Vendor:        "Acme Supply",
		Status:        models.StatusDraft,
		TotalEstimate: total,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestRequestServiceCreateComputesTotal(t *testing.T) {
	requests := &requestStoreStub{byID: map[string]*models.Request{}}
	svc, trail := newRequestService(requests, &approvalStoreStub{}, &policyStoreStub{})

	payload := dto.CreateRequestPayload{
		Vendor: "Acme Supply",
		Items: []dto.LineItemInput{
			{Description: "Widgets", Quantity: 3, UnitPrice: 100},
			{Description: "Bolts", Quantity: 2, UnitPrice: 25.5},
		},
	}
	created, err := svc.Create(context.Background(), requester(), payload)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, created.Status)
	assert.InDelta(t, 351, created.TotalEstimate, 0.001)
	assert.Equal(t, "org-1", created.OrgID)
	require.Len(t, trail.logs, 1)
	assert.Equal(t, models.AuditActionRequestCreate, trail.logs[0].Action)
}

func TestRequestServiceCreateDeniedForApprover(t *testing.T) {
	svc, _ := newRequestService(&requestStoreStub{byID: map[string]*models.Request{}}, &approvalStoreStub{}, &policyStoreStub{})

	_, err := svc.Create(context.Background(), approver(1000), dto.CreateRequestPayload{
		Vendor: "Acme Supply",
		Items:  []dto.LineItemInput{{Description: "Widgets", Quantity: 1, UnitPrice: 10}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceTransitionSubmit(t *testing.T) {
	req := draftRequest("req-1", 500)
	requests := &requestStoreStub{byID: map[string]*models.Request{"req-1": req}}
	svc, trail := newRequestService(requests, &approvalStoreStub{}, &policyStoreStub{})

	updated, err := svc.Transition(context.Background(), requester(), "req-1", dto.TransitionPayload{Status: models.StatusSubmitted})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, updated.Status)
	require.Len(t, trail.logs, 1)
	assert.Equal(t, models.AuditActionRequestTransition, trail.logs[0].Action)
}

func TestRequestServiceTransitionRoleDenied(t *testing.T) {
	req := draftRequest("req-1", 500)
	req.Status = models.StatusSubmitted
	requests := &requestStoreStub{byID: map[string]*models.Request{"req-1": req}}
	svc, _ := newRequestService(requests, &approvalStoreStub{}, &policyStoreStub{})

	cardholder := &models.User{ID: "u-card", OrgID: "org-1", Role: models.RoleCardholder, Active: true}
	_, err := svc.Transition(context.Background(), cardholder, "req-1", dto.TransitionPayload{Status: models.StatusAOReview})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceTransitionOverApprovalLimit(t *testing.T) {
	req := draftRequest("req-1", 5000)
	req.Status = models.StatusAOReview
	requests := &requestStoreStub{byID: map[string]*models.Request{"req-1": req}}
	svc, _ := newRequestService(requests, &approvalStoreStub{}, &policyStoreStub{})

	_, err := svc.Transition(context.Background(), approver(1000), "req-1", dto.TransitionPayload{Status: models.StatusApproved})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOverApprovalLimit.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceTransitionRecordsApproval(t *testing.T) {
	req := draftRequest("req-1", 500)
	req.Status = models.StatusAOReview
	requests := &requestStoreStub{byID: map[string]*models.Request{"req-1": req}}
	approvals := &approvalStoreStub{}
	svc, _ := newRequestService(requests, approvals, &policyStoreStub{})

	_, err := svc.Transition(context.Background(), approver(1000), "req-1", dto.TransitionPayload{Status: models.StatusApproved, Comment: "within budget"})
	require.NoError(t, err)
	require.Len(t, approvals.created, 1)
	assert.Equal(t, models.DecisionApproved, approvals.created[0].Decision)
	require.NotNil(t, approvals.created[0].Comment)
	assert.Equal(t, "within budget", *approvals.created[0].Comment)
}

func TestRequestServiceTransitionConcurrentConflict(t *testing.T) {
	req := draftRequest("req-1", 500)
	requests := &requestStoreStub{
		byID:            map[string]*models.Request{"req-1": req},
		updateStatusErr: sql.ErrNoRows,
	}
	svc, _ := newRequestService(requests, &approvalStoreStub{}, &policyStoreStub{})

	_, err := svc.Transition(context.Background(), requester(), "req-1", dto.TransitionPayload{Status: models.StatusSubmitted})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceSubmitFlagsSplitPurchase(t *testing.T) {
	req := draftRequest("req-1", 2000)
	now := req.CreatedAt
	requests := &requestStoreStub{
		byID: map[string]*models.Request{"req-1": req},
		peers: []models.Request{
			{ID: "req-2", RequesterID: "u-req", Vendor: "Acme Supply", TotalEstimate: 2000, Status: models.StatusSubmitted, CreatedAt: now.Add(-time.Hour)},
		},
	}
	policies := &policyStoreStub{policy: &models.OrgPolicy{OrgID: "org-1", MicroPurchaseLimit: 3500, SplitThreshold: 3000, SplitWindowSeconds: 86400}}
	svc, _ := newRequestService(requests, &approvalStoreStub{}, policies)

	updated, err := svc.Transition(context.Background(), requester(), "req-1", dto.TransitionPayload{Status: models.StatusSubmitted})
	require.NoError(t, err)
	assert.True(t, updated.SuspectedSplit)
	assert.True(t, requests.splitFlags["req-1"])
}

func TestRequestServiceListScopesApproverStatuses(t *testing.T) {
	requests := &requestStoreStub{byID: map[string]*models.Request{}}
	svc, _ := newRequestService(requests, &approvalStoreStub{}, &policyStoreStub{})

	_, _, err := svc.List(context.Background(), approver(1000), dto.RequestQuery{Status: []models.RequestStatus{models.StatusDraft, models.StatusSubmitted}})
	require.NoError(t, err)
	assert.Equal(t, []models.RequestStatus{models.StatusSubmitted}, requests.lastFilter.Statuses)
}

func TestRequestServiceListEmptyIntersection(t *testing.T) {
	requests := &requestStoreStub{byID: map[string]*models.Request{}}
	svc, _ := newRequestService(requests, &approvalStoreStub{}, &policyStoreStub{})

	auditor := &models.User{ID: "u-aud", OrgID: "org-1", Role: models.RoleAuditor, Active: true}
	items, page, err := svc.List(context.Background(), auditor, dto.RequestQuery{Status: []models.RequestStatus{models.StatusDraft}})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, page.TotalCount)
}

func TestRequestServiceUpdateOnlyEditableStates(t *testing.T) {
	req := draftRequest("req-1", 500)
	req.Status = models.StatusSubmitted
	requests := &requestStoreStub{byID: map[string]*models.Request{"req-1": req}}
	svc, _ := newRequestService(requests, &approvalStoreStub{}, &policyStoreStub{})

	vendor := "Other Vendor"
	_, err := svc.Update(context.Background(), requester(), "req-1", dto.UpdateRequestPayload{Vendor: &vendor})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRequestServicePackageTriggerOnPurchased(t *testing.T) {
	req := draftRequest("req-1", 500)
	req.Status = models.StatusCardholderPurchasing
	requests := &requestStoreStub{byID: map[string]*models.Request{"req-1": req}}

	var triggered []string
	svc, _ := newRequestService(requests, &approvalStoreStub{}, &policyStoreStub{},
		WithPackageTrigger(func(requestID string) { triggered = append(triggered, requestID) }))

	cardholder := &models.User{ID: "u-card", OrgID: "org-1", Role: models.RoleCardholder, Active: true}
	_, err := svc.Transition(context.Background(), cardholder, "req-1", dto.TransitionPayload{Status: models.StatusPurchased})
	require.NoError(t, err)
	assert.Equal(t, []string{"req-1"}, triggered)
}
