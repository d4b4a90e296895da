package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openprocure/procure-api/internal/authz"
	"github.com/openprocure/procure-api/internal/dto"
	"github.com/openprocure/procure-api/internal/models"
	appErrors "github.com/openprocure/procure-api/pkg/errors"
)

type purchaseStore interface {
	Create(ctx context.Context, purchase *models.Purchase) error
	GetByRequest(ctx context.Context, requestID string) (*models.Purchase, error)
	Update(ctx context.Context, purchase *models.Purchase) error
	Reconcile(ctx context.Context, id, receiptURL string, finalTotal float64, reconciledAt time.Time) error
}

type purchaseRequestStore interface {
	GetByID(ctx context.Context, id string) (*models.Request, error)
}

// PurchaseService records and reconciles cardholder purchases.
type PurchaseService struct {
	purchases purchaseStore
	requests  purchaseRequestStore
	trail     auditTrail
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPurchaseService constructs the service.
func NewPurchaseService(purchases purchaseStore, requests purchaseRequestStore, trail auditTrail, validate *validator.Validate, logger *zap.Logger) *PurchaseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseService{purchases: purchases, requests: requests, trail: trail, validator: validate, logger: logger}
}

// Record stores the executed purchase details against a request that is in
// the purchasing stage.
func (s *PurchaseService) Record(ctx context.Context, actor *models.User, requestID string, payload dto.RecordPurchasePayload) (*models.Purchase, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid purchase payload")
	}

	request, err := s.loadRequest(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	if !authz.CanPurchaseRequest(actor, request.Status) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request is not in a purchasable state")
	}

	purchasedAt, err := parseDate(payload.PurchasedAt)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid purchasedAt date")
	}

	if existing, err := s.purchases.GetByRequest(ctx, requestID); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "purchase already recorded for this request")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing purchase")
	}

	purchase := &models.Purchase{
		RequestID:    requestID,
		CardholderID: actor.ID,
		Merchant:     payload.Merchant,
		OrderNumber:  payload.OrderNumber,
		FinalTotal:   payload.FinalTotal,
		Tax:          payload.Tax,
		PurchasedAt:  &purchasedAt,
	}
	if err := s.purchases.Create(ctx, purchase); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record purchase")
	}

	s.record(ctx, actor, models.AuditActionPurchaseRecord, requestID, purchase)
	return purchase, nil
}

// Get returns the purchase for a request.
func (s *PurchaseService) Get(ctx context.Context, actor *models.User, requestID string) (*models.Purchase, error) {
	if !authz.CanAccess(actor, authz.ResourcePurchases, authz.ActionRead) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view purchases")
	}
	if _, err := s.loadRequest(ctx, actor, requestID); err != nil {
		return nil, err
	}

	purchase, err := s.purchases.GetByRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no purchase recorded for this request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load purchase")
	}
	return purchase, nil
}

// Reconcile attaches the receipt and closes the purchase out. A purchase can
// only be reconciled once.
func (s *PurchaseService) Reconcile(ctx context.Context, actor *models.User, requestID string, payload dto.ReconcilePayload) (*models.Purchase, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reconcile payload")
	}

	request, err := s.loadRequest(ctx, actor, requestID)
	if err != nil {
		return nil, err
	}
	if !authz.CanReconcileRequest(actor, request.Status) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "request is not in a reconcilable state")
	}

	purchase, err := s.purchases.GetByRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no purchase recorded for this request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load purchase")
	}

	finalTotal := purchase.FinalTotal
	if payload.FinalTotal > 0 {
		finalTotal = payload.FinalTotal
	}

	now := time.Now().UTC()
	if err := s.purchases.Reconcile(ctx, purchase.ID, payload.ReceiptURL, finalTotal, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrFinalized, "purchase is already reconciled")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile purchase")
	}

	purchase.ReceiptURL = &payload.ReceiptURL
	purchase.FinalTotal = finalTotal
	purchase.ReconciledAt = &now

	s.record(ctx, actor, models.AuditActionPurchaseReconcile, requestID, purchase)
	return purchase, nil
}

func (s *PurchaseService) loadRequest(ctx context.Context, actor *models.User, requestID string) (*models.Request, error) {
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

func (s *PurchaseService) record(ctx context.Context, actor *models.User, action, requestID string, newValues interface{}) {
	if s.trail == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actor.ID,
		Action:     action,
		Resource:   "purchases",
		ResourceID: &requestID,
	}
	if newValues != nil {
		log.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.trail.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
