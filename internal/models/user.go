package models

import "time"

// Role represents the available roles for the procurement RBAC system.
type Role string

const (
	RoleRequester  Role = "REQUESTER"
	RoleApprover   Role = "APPROVER"
	RoleCardholder Role = "CARDHOLDER"
	RoleAuditor    Role = "AUDITOR"
	RoleAdmin      Role = "ADMIN"
)

// Valid reports whether the role belongs to the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleRequester, RoleApprover, RoleCardholder, RoleAuditor, RoleAdmin:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
// ApprovalLimit is only meaningful for approvers; a zero limit denies all amounts.
type User struct {
	ID            string     `db:"id" json:"id"`
	OrgID         string     `db:"org_id" json:"org_id"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	FullName      string     `db:"full_name" json:"full_name"`
	Role          Role       `db:"role" json:"role"`
	ApprovalLimit float64    `db:"approval_limit" json:"approval_limit"`
	Active        bool       `db:"active" json:"active"`
	LastLogin     *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	OrgID     string
	Role      *Role
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
