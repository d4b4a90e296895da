package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/openprocure/procure-api/internal/authz"
	"github.com/openprocure/procure-api/internal/dto"
	"github.com/openprocure/procure-api/internal/models"
	appErrors "github.com/openprocure/procure-api/pkg/errors"
)

type userStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

// UserService manages user accounts. Mutations are admin only; reads follow
// the permission table.
type UserService struct {
	users     userStore
	trail     auditTrail
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(users userStore, trail auditTrail, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, trail: trail, validator: validate, logger: logger}
}

// Create registers a new user in the actor's organization.
func (s *UserService) Create(ctx context.Context, actor *models.User, payload dto.CreateUserPayload) (*models.User, error) {
	if !authz.CanAccess(actor, authz.ResourceUsers, authz.ActionCreate) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to create users")
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if !payload.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	if existing, err := s.users.FindByEmail(ctx, payload.Email); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		OrgID:         actor.OrgID,
		Email:         payload.Email,
		PasswordHash:  string(hash),
		FullName:      payload.FullName,
		Role:          payload.Role,
		ApprovalLimit: payload.ApprovalLimit,
		Active:        true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.record(ctx, actor, models.AuditActionUserCreate, user.ID, user)
	return user, nil
}

// Get returns a single user in the actor's organization.
func (s *UserService) Get(ctx context.Context, actor *models.User, id string) (*models.User, error) {
	if !authz.CanAccess(actor, authz.ResourceUsers, authz.ActionRead) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view users")
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.OrgID != actor.OrgID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return user, nil
}

// List returns users in the actor's organization matching the query.
func (s *UserService) List(ctx context.Context, actor *models.User, query dto.UserQuery) ([]models.User, *models.Pagination, error) {
	if !authz.CanAccess(actor, authz.ResourceUsers, authz.ActionRead) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list users")
	}

	filter := models.UserFilter{
		OrgID:    actor.OrgID,
		Active:   query.IsActive,
		Search:   query.Search,
		Page:     query.Page,
		PageSize: query.PerPage,
	}
	if query.Role != "" {
		role := query.Role
		filter.Role = &role
	}

	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Update mutates the mutable account attributes.
func (s *UserService) Update(ctx context.Context, actor *models.User, id string, payload dto.UpdateUserPayload) (*models.User, error) {
	if !authz.CanAccess(actor, authz.ResourceUsers, authz.ActionUpdate) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to update users")
	}

	user, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if payload.FullName != nil {
		user.FullName = *payload.FullName
	}
	if payload.Role != nil {
		if !payload.Role.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
		}
		user.Role = *payload.Role
	}
	if payload.ApprovalLimit != nil {
		if *payload.ApprovalLimit < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "approval limit cannot be negative")
		}
		user.ApprovalLimit = *payload.ApprovalLimit
	}
	if payload.IsActive != nil {
		user.Active = *payload.IsActive
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.record(ctx, actor, models.AuditActionUserUpdate, user.ID, user)
	return user, nil
}

// Deactivate soft-deletes a user account.
func (s *UserService) Deactivate(ctx context.Context, actor *models.User, id string) error {
	if !authz.CanAccess(actor, authz.ResourceUsers, authz.ActionDelete) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to deactivate users")
	}
	if actor.ID == id {
		return appErrors.Clone(appErrors.ErrValidation, "cannot deactivate your own account")
	}
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}

	s.record(ctx, actor, models.AuditActionUserDelete, id, nil)
	return nil
}

func (s *UserService) record(ctx context.Context, actor *models.User, action, userID string, newValues interface{}) {
	if s.trail == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &actor.ID,
		Action:     action,
		Resource:   "users",
		ResourceID: &userID,
	}
	if newValues != nil {
		log.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.trail.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
