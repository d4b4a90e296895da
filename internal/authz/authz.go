// Package authz implements the static permission table and contextual
// predicates gating every procurement action. All predicates are pure
// boolean functions: callers translate false into a forbidden outcome.
package authz

import (
	"github.com/openprocure/procure-api/internal/models"
)

// Resource enumerates the protected resource kinds.
type Resource string

const (
	ResourceUsers       Resource = "users"
	ResourceOrgs        Resource = "orgs"
	ResourceSettings    Resource = "settings"
	ResourceRequests    Resource = "requests"
	ResourceApprovals   Resource = "approvals"
	ResourcePurchases   Resource = "purchases"
	ResourceAttachments Resource = "attachments"
	ResourceCycles      Resource = "cycles"
	ResourceAudit       Resource = "audit"
	ResourceExports     Resource = "exports"
	ResourceVendors     Resource = "vendors"
)

// Action enumerates the operations that can be performed on a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
)

type roleSet map[models.Role]struct{}

func roles(rs ...models.Role) roleSet {
	set := make(roleSet, len(rs))
	for _, r := range rs {
		set[r] = struct{}{}
	}
	return set
}

// permissionTable maps (resource, action) to the non-admin roles allowed to
// perform it. Pairs absent from the table deny by default; admin bypasses
// the table entirely.
var permissionTable = map[Resource]map[Action]roleSet{
	ResourceUsers: {
		ActionRead: roles(models.RoleApprover, models.RoleAuditor),
	},
	ResourceOrgs: {
		ActionRead: roles(models.RoleRequester, models.RoleApprover, models.RoleCardholder, models.RoleAuditor),
	},
	ResourceSettings: {},
	ResourceRequests: {
		ActionCreate: roles(models.RoleRequester),
		ActionRead:   roles(models.RoleRequester, models.RoleApprover, models.RoleCardholder, models.RoleAuditor),
		ActionUpdate: roles(models.RoleRequester),
	},
	ResourceApprovals: {
		ActionCreate: roles(models.RoleApprover),
		ActionRead:   roles(models.RoleRequester, models.RoleApprover, models.RoleAuditor),
	},
	ResourcePurchases: {
		ActionCreate: roles(models.RoleCardholder),
		ActionRead:   roles(models.RoleRequester, models.RoleApprover, models.RoleCardholder, models.RoleAuditor),
		ActionUpdate: roles(models.RoleCardholder),
	},
	ResourceAttachments: {
		ActionCreate: roles(models.RoleRequester, models.RoleCardholder),
		ActionRead:   roles(models.RoleRequester, models.RoleApprover, models.RoleCardholder, models.RoleAuditor),
	},
	ResourceCycles: {
		ActionRead: roles(models.RoleApprover, models.RoleCardholder, models.RoleAuditor),
	},
	ResourceAudit: {
		ActionCreate: roles(models.RoleAuditor),
		ActionRead:   roles(models.RoleCardholder, models.RoleAuditor),
		ActionUpdate: roles(models.RoleCardholder, models.RoleAuditor),
	},
	ResourceExports: {
		ActionCreate: roles(models.RoleAuditor),
		ActionRead:   roles(models.RoleAuditor),
	},
	ResourceVendors: {
		ActionRead: roles(models.RoleRequester, models.RoleApprover, models.RoleCardholder, models.RoleAuditor),
	},
}

// CanAccess answers whether the user may perform action on resource.
// Admin is implicitly allowed everything; unknown combinations deny.
func CanAccess(user *models.User, resource Resource, action Action) bool {
	if user == nil {
		return false
	}
	if user.Role == models.RoleAdmin {
		return true
	}
	actions, ok := permissionTable[resource]
	if !ok {
		return false
	}
	allowed, ok := actions[action]
	if !ok {
		return false
	}
	_, ok = allowed[user.Role]
	return ok
}

// CanEditRequest reports whether user may edit a request in the given status.
// Edit rights belong to requesters (Draft/Returned only) and admins; approver,
// cardholder, and auditor are never granted edit, preserving separation of
// duties.
func CanEditRequest(user *models.User, status models.RequestStatus) bool {
	if user == nil {
		return false
	}
	if user.Role == models.RoleAdmin {
		return true
	}
	if user.Role != models.RoleRequester {
		return false
	}
	return status == models.StatusDraft || status == models.StatusReturned
}

// CanApproveRequest reports whether user may record an approval decision
// against a request in the given status.
func CanApproveRequest(user *models.User, status models.RequestStatus) bool {
	if user == nil {
		return false
	}
	if user.Role == models.RoleAdmin {
		return true
	}
	if user.Role != models.RoleApprover {
		return false
	}
	return status == models.StatusSubmitted || status == models.StatusAOReview
}

// CanPurchaseRequest reports whether user may act on the purchasing steps.
func CanPurchaseRequest(user *models.User, status models.RequestStatus) bool {
	if user == nil {
		return false
	}
	if user.Role == models.RoleAdmin {
		return true
	}
	if user.Role != models.RoleCardholder {
		return false
	}
	return status == models.StatusApproved || status == models.StatusCardholderPurchasing
}

// CanReconcileRequest reports whether user may reconcile a purchase.
func CanReconcileRequest(user *models.User, status models.RequestStatus) bool {
	if user == nil {
		return false
	}
	if user.Role == models.RoleAdmin {
		return true
	}
	if user.Role != models.RoleCardholder {
		return false
	}
	return status == models.StatusPurchased || status == models.StatusReconciled
}

// CanApproveAmount reports whether user is authorized to approve the given
// amount. A missing or zero approval limit denies all amounts.
func CanApproveAmount(user *models.User, amount float64) bool {
	if user == nil {
		return false
	}
	if user.Role == models.RoleAdmin {
		return true
	}
	if user.Role != models.RoleApprover {
		return false
	}
	if user.ApprovalLimit <= 0 {
		return false
	}
	return amount <= user.ApprovalLimit
}

// visibleStatuses maps each non-requester role to the request statuses it may
// see. Requesters are scoped to their own requests instead.
var visibleStatuses = map[models.Role][]models.RequestStatus{
	models.RoleApprover: {
		models.StatusSubmitted,
		models.StatusAOReview,
		models.StatusApproved,
		models.StatusCardholderPurchasing,
		models.StatusPurchased,
		models.StatusReconciled,
		models.StatusClosed,
		models.StatusReturned,
		models.StatusDenied,
	},
	models.RoleCardholder: {
		models.StatusApproved,
		models.StatusCardholderPurchasing,
		models.StatusPurchased,
		models.StatusReconciled,
		models.StatusClosed,
	},
	models.RoleAuditor: {
		models.StatusPurchased,
		models.StatusReconciled,
		models.StatusClosed,
	},
}

// VisibleStatuses returns the request statuses a role may list. Requesters
// and admins return nil: requesters are scoped by ownership, admins see all.
func VisibleStatuses(role models.Role) []models.RequestStatus {
	statuses, ok := visibleStatuses[role]
	if !ok {
		return nil
	}
	out := make([]models.RequestStatus, len(statuses))
	copy(out, statuses)
	return out
}

// CanAccessRequest is the single gate evaluated before returning or mutating
// any request record. Tenant isolation is a hard precondition; the remaining
// visibility depends on role.
func CanAccessRequest(user *models.User, request *models.Request) bool {
	if user == nil || request == nil {
		return false
	}
	if user.OrgID != request.OrgID {
		return false
	}
	switch user.Role {
	case models.RoleAdmin:
		return true
	case models.RoleRequester:
		return request.RequesterID == user.ID
	default:
		for _, status := range visibleStatuses[user.Role] {
			if request.Status == status {
				return true
			}
		}
		return false
	}
}
