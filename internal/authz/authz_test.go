package authz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openprocure/procure-api/internal/models"
)

func user(role models.Role) *models.User {
	return &models.User{ID: "user-1", OrgID: "org-1", Role: role}
}

func TestCanAccessAdminBypassesTable(t *testing.T) {
	admin := user(models.RoleAdmin)
	resources := []Resource{
		ResourceUsers, ResourceOrgs, ResourceSettings, ResourceRequests,
		ResourceApprovals, ResourcePurchases, ResourceAttachments,
		ResourceCycles, ResourceAudit, ResourceExports, ResourceVendors,
	}
	actions := []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExport}
	for _, res := range resources {
		for _, act := range actions {
			require.True(t, CanAccess(admin, res, act), "admin denied %s %s", act, res)
		}
	}
}

func TestCanAccessFailsClosed(t *testing.T) {
	nonAdmins := []models.Role{models.RoleRequester, models.RoleApprover, models.RoleCardholder, models.RoleAuditor}
	for _, role := range nonAdmins {
		// settings has no entries; delete is granted to nobody but admin
		require.False(t, CanAccess(user(role), ResourceSettings, ActionUpdate))
		require.False(t, CanAccess(user(role), ResourceRequests, ActionDelete))
		require.False(t, CanAccess(user(role), Resource("unknown"), ActionRead))
	}
	require.False(t, CanAccess(nil, ResourceRequests, ActionRead))
}

func TestCanAccessTableEntries(t *testing.T) {
	require.True(t, CanAccess(user(models.RoleRequester), ResourceRequests, ActionCreate))
	require.False(t, CanAccess(user(models.RoleApprover), ResourceRequests, ActionCreate))
	require.True(t, CanAccess(user(models.RoleApprover), ResourceApprovals, ActionCreate))
	require.False(t, CanAccess(user(models.RoleCardholder), ResourceApprovals, ActionCreate))
	require.True(t, CanAccess(user(models.RoleCardholder), ResourcePurchases, ActionUpdate))
	require.True(t, CanAccess(user(models.RoleAuditor), ResourceExports, ActionCreate))
	require.False(t, CanAccess(user(models.RoleRequester), ResourceExports, ActionCreate))
}

func TestCanEditRequestSeparationOfDuties(t *testing.T) {
	editable := []models.RequestStatus{models.StatusDraft, models.StatusReturned}
	for _, status := range models.AllStatuses() {
		require.False(t, CanEditRequest(user(models.RoleApprover), status))
		require.False(t, CanEditRequest(user(models.RoleCardholder), status))
		require.False(t, CanEditRequest(user(models.RoleAuditor), status))
		require.True(t, CanEditRequest(user(models.RoleAdmin), status))
	}
	for _, status := range editable {
		require.True(t, CanEditRequest(user(models.RoleRequester), status))
	}
	require.False(t, CanEditRequest(user(models.RoleRequester), models.StatusSubmitted))
	require.False(t, CanEditRequest(user(models.RoleRequester), models.StatusClosed))
}

func TestCanApproveAmount(t *testing.T) {
	approver := user(models.RoleApprover)
	approver.ApprovalLimit = 2000

	require.True(t, CanApproveAmount(approver, 1999.99))
	require.True(t, CanApproveAmount(approver, 2000))
	require.False(t, CanApproveAmount(approver, 2000.01))

	noLimit := user(models.RoleApprover)
	require.False(t, CanApproveAmount(noLimit, 1))

	require.True(t, CanApproveAmount(user(models.RoleAdmin), 1_000_000))
	require.False(t, CanApproveAmount(user(models.RoleRequester), 1))
}

func TestCanAccessRequestTenantIsolation(t *testing.T) {
	req := &models.Request{ID: "req-1", OrgID: "org-2", RequesterID: "user-1", Status: models.StatusDraft}
	require.False(t, CanAccessRequest(user(models.RoleAdmin), req), "cross-org access must be denied even for admin")
}

func TestCanAccessRequestByRole(t *testing.T) {
	req := &models.Request{ID: "req-1", OrgID: "org-1", RequesterID: "user-1", Status: models.StatusDraft}

	require.True(t, CanAccessRequest(user(models.RoleRequester), req))
	other := user(models.RoleRequester)
	other.ID = "user-2"
	require.False(t, CanAccessRequest(other, req))

	auditor := user(models.RoleAuditor)
	require.False(t, CanAccessRequest(auditor, req), "auditor must not see drafts")
	req.Status = models.StatusReconciled
	require.True(t, CanAccessRequest(auditor, req))

	cardholder := user(models.RoleCardholder)
	req.Status = models.StatusSubmitted
	require.False(t, CanAccessRequest(cardholder, req))
	req.Status = models.StatusApproved
	require.True(t, CanAccessRequest(cardholder, req))
}

func TestContextualPredicatesByStatus(t *testing.T) {
	require.True(t, CanApproveRequest(user(models.RoleApprover), models.StatusAOReview))
	require.False(t, CanApproveRequest(user(models.RoleApprover), models.StatusDraft))
	require.False(t, CanApproveRequest(user(models.RoleCardholder), models.StatusAOReview))

	require.True(t, CanPurchaseRequest(user(models.RoleCardholder), models.StatusApproved))
	require.False(t, CanPurchaseRequest(user(models.RoleCardholder), models.StatusDraft))

	require.True(t, CanReconcileRequest(user(models.RoleCardholder), models.StatusPurchased))
	require.False(t, CanReconcileRequest(user(models.RoleAuditor), models.StatusPurchased))
}
