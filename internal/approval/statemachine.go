package approval

import (
	"strings"

	"silexa/approvals/internal/apperr"
	"silexa/approvals/internal/identity"
)

// Transition names one of the six legal edges in the state graph.
type Transition string

const (
	TransitionSubmit       Transition = "submit"
	TransitionTLApprove    Transition = "tl_approve"
	TransitionTLReject     Transition = "tl_reject"
	TransitionWithdraw     Transition = "withdraw"
	TransitionAdminApprove Transition = "admin_approve"
	TransitionAdminReject  Transition = "admin_reject"
)

// legal maps each transition to the state it must be requested from,
// the state it lands on, and the role allowed to request it. Only these
// edges exist; any other attempt fails with apperr.IllegalTransition.
var legal = map[Transition]struct {
	From State
	To   State
	Role identity.Role
}{
	TransitionSubmit:       {From: StateDraft, To: StatePendingTeamLeader, Role: identity.RoleUser},
	TransitionTLApprove:    {From: StatePendingTeamLeader, To: StatePendingAdmin, Role: identity.RoleTeamLeader},
	TransitionTLReject:     {From: StatePendingTeamLeader, To: StateRejectedByTeamLeader, Role: identity.RoleTeamLeader},
	TransitionWithdraw:     {From: StatePendingTeamLeader, To: StateWithdrawn, Role: identity.RoleUser},
	TransitionAdminApprove: {From: StatePendingAdmin, To: StateApproved, Role: identity.RoleAdmin},
	TransitionAdminReject:  {From: StatePendingAdmin, To: StateRejectedByAdmin, Role: identity.RoleAdmin},
}

// CheckTransition validates that t may be applied to sub by an actor
// with the given identity, without mutating sub. It enforces both the
// state-graph edge and the actor authorization rules (submitter-only
// for submit/withdraw, matching team for team-leader decisions).
func CheckTransition(sub *Submission, t Transition, actor identity.Identity) error {
	e, ok := legal[t]
	if !ok {
		return apperr.New(apperr.IllegalTransition, "unknown transition %q", t)
	}
	if sub.State != e.From {
		return apperr.New(apperr.IllegalTransition,
			"cannot apply %q to submission %s in state %s", t, sub.ID, sub.State)
	}
	if actor.Role != e.Role {
		return apperr.New(apperr.Forbidden,
			"transition %q requires role %s, actor has %s", t, e.Role, actor.Role)
	}

	switch t {
	case TransitionSubmit, TransitionWithdraw:
		if actor.Username != sub.SubmitterUsername {
			return apperr.New(apperr.Forbidden, "actor must be the submitter")
		}
	case TransitionTLApprove, TransitionTLReject:
		if !hasTeam(actor.Teams, sub.SubmitterTeam) {
			return apperr.New(apperr.Forbidden,
				"actor's teams do not include submission team %s", sub.SubmitterTeam)
		}
	case TransitionAdminApprove, TransitionAdminReject:
		// no additional constraint.
	}
	return nil
}

func hasTeam(teams []string, team string) bool {
	for _, t := range teams {
		if strings.EqualFold(t, team) {
			return true
		}
	}
	return false
}

// ValidateReason normalizes and bounds a rejection reason: trimmed,
// 1-2000 characters.
func ValidateReason(reason string) (string, error) {
	trimmed := strings.TrimSpace(reason)
	if len(trimmed) == 0 {
		return "", apperr.New(apperr.BadInput, "rejection reason must not be empty")
	}
	if len(trimmed) > 2000 {
		return "", apperr.New(apperr.BadInput, "rejection reason exceeds 2000 characters")
	}
	return trimmed, nil
}

// TargetState reports the state a given legal transition lands on.
func (t Transition) TargetState() State {
	return legal[t].To
}

// HasReviewStanding reports whether actor's role currently has standing
// to act on sub, i.e. CheckTransition would pass the role/team gate
// for at least one transition available from sub's current state. Used
// by the comment visibility rule.
func HasReviewStanding(sub *Submission, actor identity.Identity) bool {
	for t, e := range legal {
		if e.From != sub.State || actor.Role != e.Role {
			continue
		}
		if CheckTransition(sub, t, actor) == nil {
			return true
		}
	}
	return false
}
