package dto

import (
	"github.com/openprocure/procure-api/internal/models"
)

// CreateUserPayload registers a new account. Admin only.
type CreateUserPayload struct {
	Email         string      `json:"email" validate:"required,email"`
	FullName      string      `json:"fullName" validate:"required"`
	Password      string      `json:"password" validate:"required,min=8"`
	Role          models.Role `json:"role" validate:"required"`
	ApprovalLimit float64     `json:"approvalLimit" validate:"gte=0"`
}

// UpdateUserPayload mutates account attributes. Admin only.
type UpdateUserPayload struct {
	FullName      *string      `json:"fullName"`
	Role          *models.Role `json:"role"`
	ApprovalLimit *float64     `json:"approvalLimit"`
	IsActive      *bool        `json:"isActive"`
}

// UserQuery mirrors supported user list filters.
type UserQuery struct {
	Role     models.Role
	IsActive *bool
	Search   string
	Page     int
	PerPage  int
}
