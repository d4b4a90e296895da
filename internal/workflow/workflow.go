// Package workflow defines the procurement request lifecycle as a fixed
// directed transition graph. Every function here is a pure computation over
// (from, to, role, context); persistence and locking belong to the caller.
package workflow

import (
	"fmt"

	"github.com/openprocure/procure-api/internal/models"
)

// Transition is a single edge in the lifecycle graph.
type Transition struct {
	From        models.RequestStatus
	To          models.RequestStatus
	Roles       []models.Role
	Description string
}

// transitions is the complete edge set. Closed and Denied are terminal and
// never appear as a From state. Every edge admits admin.
var transitions = []Transition{
	{models.StatusDraft, models.StatusSubmitted, []models.Role{models.RoleRequester, models.RoleAdmin}, "Submit request for review"},
	{models.StatusSubmitted, models.StatusAOReview, []models.Role{models.RoleApprover, models.RoleAdmin}, "Begin approving official review"},
	{models.StatusAOReview, models.StatusApproved, []models.Role{models.RoleApprover, models.RoleAdmin}, "Approve request"},
	{models.StatusAOReview, models.StatusDenied, []models.Role{models.RoleApprover, models.RoleAdmin}, "Deny request"},
	{models.StatusAOReview, models.StatusReturned, []models.Role{models.RoleApprover, models.RoleAdmin}, "Return request for rework"},
	{models.StatusApproved, models.StatusCardholderPurchasing, []models.Role{models.RoleCardholder, models.RoleAdmin}, "Begin cardholder purchasing"},
	{models.StatusCardholderPurchasing, models.StatusPurchased, []models.Role{models.RoleCardholder, models.RoleAdmin}, "Record completed purchase"},
	{models.StatusPurchased, models.StatusReconciled, []models.Role{models.RoleCardholder, models.RoleAdmin}, "Reconcile purchase against receipt"},
	{models.StatusReconciled, models.StatusClosed, []models.Role{models.RoleCardholder, models.RoleAdmin}, "Close request"},
	{models.StatusReturned, models.StatusDraft, []models.Role{models.RoleRequester, models.RoleAdmin}, "Reopen returned request as draft"},
	{models.StatusReturned, models.StatusSubmitted, []models.Role{models.RoleRequester, models.RoleAdmin}, "Resubmit returned request"},
}

// Transitions returns a copy of the full edge set.
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	copy(out, transitions)
	return out
}

// TerminalStates returns the states with no outgoing edges.
func TerminalStates() []models.RequestStatus {
	return []models.RequestStatus{models.StatusClosed, models.StatusDenied}
}

// IsTerminal reports whether state has no outgoing transitions.
func IsTerminal(state models.RequestStatus) bool {
	return state == models.StatusClosed || state == models.StatusDenied
}

// IsEditable reports whether requests in state may have their fields changed.
func IsEditable(state models.RequestStatus) bool {
	return state == models.StatusDraft || state == models.StatusReturned
}

func findEdge(from, to models.RequestStatus) *Transition {
	for i := range transitions {
		if transitions[i].From == from && transitions[i].To == to {
			return &transitions[i]
		}
	}
	return nil
}

// IsValidTransition reports whether an edge (from, to) exists and role may
// traverse it.
func IsValidTransition(from, to models.RequestStatus, role models.Role) bool {
	edge := findEdge(from, to)
	if edge == nil {
		return false
	}
	for _, r := range edge.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// TransitionContext supplies the contextual facts that business policy may
// need at transition time. Fields are pointers so absence is distinguishable
// from zero.
type TransitionContext struct {
	Amount        *float64
	ApprovalLimit *float64
}

// TransitionResult is the verdict for a requested transition. Invalid
// transitions are a local, recoverable outcome, never an error value.
type TransitionResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ValidateTransition applies the structural edge check, then re-validates
// approval authority when entering Approved with amount context supplied.
// The limit recheck lives here because approval authority is capped per
// approver and must hold at the moment of transition, not only at read time.
func ValidateTransition(from, to models.RequestStatus, role models.Role, ctx *TransitionContext) TransitionResult {
	edge := findEdge(from, to)
	if edge == nil {
		return TransitionResult{Valid: false, Reason: fmt.Sprintf("no transition from %s to %s", from, to)}
	}
	if !IsValidTransition(from, to, role) {
		return TransitionResult{Valid: false, Reason: fmt.Sprintf("role %s may not transition %s to %s", role, from, to)}
	}
	if to == models.StatusApproved && role != models.RoleAdmin && ctx != nil && ctx.Amount != nil && ctx.ApprovalLimit != nil {
		if *ctx.Amount > *ctx.ApprovalLimit {
			return TransitionResult{
				Valid:  false,
				Reason: fmt.Sprintf("amount %.2f exceeds approval limit %.2f", *ctx.Amount, *ctx.ApprovalLimit),
			}
		}
	}
	return TransitionResult{Valid: true}
}

// ValidNextStates enumerates the states reachable from the given state by the
// given role.
func ValidNextStates(from models.RequestStatus, role models.Role) []models.RequestStatus {
	var next []models.RequestStatus
	for _, t := range transitions {
		if t.From != from {
			continue
		}
		if IsValidTransition(t.From, t.To, role) {
			next = append(next, t.To)
		}
	}
	return next
}

// ValidPreviousStates enumerates the states from which the given role can
// reach the target state.
func ValidPreviousStates(to models.RequestStatus, role models.Role) []models.RequestStatus {
	var prev []models.RequestStatus
	for _, t := range transitions {
		if t.To != to {
			continue
		}
		if IsValidTransition(t.From, t.To, role) {
			prev = append(prev, t.From)
		}
	}
	return prev
}

// Stage groups lifecycle states for reporting.
type Stage string

const (
	StagePreparation    Stage = "PREPARATION"
	StageApproval       Stage = "APPROVAL"
	StagePurchasing     Stage = "PURCHASING"
	StageReconciliation Stage = "RECONCILIATION"
	StageComplete       Stage = "COMPLETE"
	StageRejected       Stage = "REJECTED"
)

// WorkflowStage classifies a state into its reporting stage.
func WorkflowStage(state models.RequestStatus) Stage {
	switch state {
	case models.StatusDraft, models.StatusReturned:
		return StagePreparation
	case models.StatusSubmitted, models.StatusAOReview:
		return StageApproval
	case models.StatusApproved, models.StatusCardholderPurchasing:
		return StagePurchasing
	case models.StatusPurchased, models.StatusReconciled:
		return StageReconciliation
	case models.StatusClosed:
		return StageComplete
	default:
		return StageRejected
	}
}

// statusPriority fixes the total sort order for lifecycle states.
var statusPriority = map[models.RequestStatus]int{
	models.StatusDraft:                1,
	models.StatusSubmitted:            2,
	models.StatusAOReview:             3,
	models.StatusApproved:             4,
	models.StatusCardholderPurchasing: 5,
	models.StatusPurchased:            6,
	models.StatusReconciled:           7,
	models.StatusClosed:               8,
	models.StatusReturned:             9,
	models.StatusDenied:               10,
}

// StatusPriority returns the fixed sort priority for a state (Draft=1 ... Denied=10).
func StatusPriority(state models.RequestStatus) int {
	return statusPriority[state]
}

// NextRequiredAction returns the human-readable next step for the role in the
// given state, or false when the state is terminal or the role has no action.
func NextRequiredAction(state models.RequestStatus, role models.Role) (string, bool) {
	if IsTerminal(state) {
		return "", false
	}
	for _, t := range transitions {
		if t.From != state {
			continue
		}
		if IsValidTransition(t.From, t.To, role) {
			return t.Description, true
		}
	}
	return "", false
}
