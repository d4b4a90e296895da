package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openprocure/procure-api/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func TestIsValidTransitionByRole(t *testing.T) {
	require.True(t, IsValidTransition(models.StatusDraft, models.StatusSubmitted, models.RoleRequester))
	require.False(t, IsValidTransition(models.StatusDraft, models.StatusSubmitted, models.RoleCardholder))
	require.True(t, IsValidTransition(models.StatusAOReview, models.StatusDenied, models.RoleApprover))
	require.False(t, IsValidTransition(models.StatusDraft, models.StatusApproved, models.RoleAdmin), "no edge skips review")
}

func TestValidateTransitionRoleReason(t *testing.T) {
	result := ValidateTransition(models.StatusDraft, models.StatusSubmitted, models.RoleCardholder, nil)
	require.False(t, result.Valid)
	require.Contains(t, result.Reason, "CARDHOLDER")

	result = ValidateTransition(models.StatusDraft, models.StatusSubmitted, models.RoleRequester, nil)
	require.True(t, result.Valid)
	require.Empty(t, result.Reason)
}

func TestValidateTransitionApprovalLimit(t *testing.T) {
	ctx := &TransitionContext{Amount: floatPtr(5000), ApprovalLimit: floatPtr(2000)}
	result := ValidateTransition(models.StatusAOReview, models.StatusApproved, models.RoleApprover, ctx)
	require.False(t, result.Valid)
	require.Contains(t, result.Reason, "exceeds approval limit")

	ctx.ApprovalLimit = floatPtr(10000)
	result = ValidateTransition(models.StatusAOReview, models.StatusApproved, models.RoleApprover, ctx)
	require.True(t, result.Valid)

	// admin is exempt from the limit recheck
	ctx.ApprovalLimit = floatPtr(2000)
	result = ValidateTransition(models.StatusAOReview, models.StatusApproved, models.RoleAdmin, ctx)
	require.True(t, result.Valid)

	// limit only applies when both context values are supplied
	result = ValidateTransition(models.StatusAOReview, models.StatusApproved, models.RoleApprover,
		&TransitionContext{Amount: floatPtr(5000)})
	require.True(t, result.Valid)
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	for _, edge := range Transitions() {
		require.NotEqual(t, models.StatusClosed, edge.From)
		require.NotEqual(t, models.StatusDenied, edge.From)
	}
	for _, state := range TerminalStates() {
		for _, role := range []models.Role{models.RoleRequester, models.RoleApprover, models.RoleCardholder, models.RoleAuditor, models.RoleAdmin} {
			require.Empty(t, ValidNextStates(state, role))
		}
	}
}

func TestEveryEdgeHasRolesAndAdmitsAdmin(t *testing.T) {
	for _, edge := range Transitions() {
		require.NotEmpty(t, edge.Roles, "edge %s->%s has no roles", edge.From, edge.To)
		require.True(t, IsValidTransition(edge.From, edge.To, models.RoleAdmin),
			"admin denied on %s->%s", edge.From, edge.To)
	}
}

func TestEveryStateReachableFromDraft(t *testing.T) {
	reached := map[models.RequestStatus]bool{models.StatusDraft: true}
	frontier := []models.RequestStatus{models.StatusDraft}
	for len(frontier) > 0 {
		state := frontier[0]
		frontier = frontier[1:]
		for _, edge := range Transitions() {
			if edge.From == state && !reached[edge.To] {
				reached[edge.To] = true
				frontier = append(frontier, edge.To)
			}
		}
	}
	for _, state := range models.AllStatuses() {
		require.True(t, reached[state], "state %s unreachable from Draft", state)
	}
}

func TestValidNextAndPreviousStates(t *testing.T) {
	next := ValidNextStates(models.StatusAOReview, models.RoleApprover)
	require.ElementsMatch(t, []models.RequestStatus{models.StatusApproved, models.StatusDenied, models.StatusReturned}, next)

	require.Empty(t, ValidNextStates(models.StatusAOReview, models.RoleCardholder))

	prev := ValidPreviousStates(models.StatusSubmitted, models.RoleRequester)
	require.ElementsMatch(t, []models.RequestStatus{models.StatusDraft, models.StatusReturned}, prev)
}

func TestWorkflowStage(t *testing.T) {
	require.Equal(t, StagePreparation, WorkflowStage(models.StatusDraft))
	require.Equal(t, StagePreparation, WorkflowStage(models.StatusReturned))
	require.Equal(t, StageApproval, WorkflowStage(models.StatusAOReview))
	require.Equal(t, StagePurchasing, WorkflowStage(models.StatusCardholderPurchasing))
	require.Equal(t, StageReconciliation, WorkflowStage(models.StatusPurchased))
	require.Equal(t, StageComplete, WorkflowStage(models.StatusClosed))
	require.Equal(t, StageRejected, WorkflowStage(models.StatusDenied))
}

func TestStatusPriorityTotalOrder(t *testing.T) {
	seen := map[int]bool{}
	for _, state := range models.AllStatuses() {
		p := StatusPriority(state)
		require.Greater(t, p, 0)
		require.False(t, seen[p], "duplicate priority %d", p)
		seen[p] = true
	}
	require.Equal(t, 1, StatusPriority(models.StatusDraft))
	require.Equal(t, 10, StatusPriority(models.StatusDenied))
}

func TestNextRequiredAction(t *testing.T) {
	action, ok := NextRequiredAction(models.StatusDraft, models.RoleRequester)
	require.True(t, ok)
	require.NotEmpty(t, action)

	_, ok = NextRequiredAction(models.StatusDraft, models.RoleAuditor)
	require.False(t, ok)

	_, ok = NextRequiredAction(models.StatusClosed, models.RoleAdmin)
	require.False(t, ok)
}
