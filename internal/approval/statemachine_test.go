package approval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silexa/approvals/internal/apperr"
	"silexa/approvals/internal/approval"
	"silexa/approvals/internal/identity"
)

func submitter() identity.Identity {
	return identity.Identity{Username: "alice", Role: identity.RoleUser, Teams: []string{"video"}}
}

func teamLeader(team string) identity.Identity {
	return identity.Identity{Username: "bob", Role: identity.RoleTeamLeader, Teams: []string{team}}
}

func admin() identity.Identity {
	return identity.Identity{Username: "root", Role: identity.RoleAdmin}
}

func TestCheckTransitionHappyPath(t *testing.T) {
	sub := &approval.Submission{State: approval.StateDraft, SubmitterUsername: "alice", SubmitterTeam: "video"}
	require.NoError(t, approval.CheckTransition(sub, approval.TransitionSubmit, submitter()))

	sub.State = approval.StatePendingTeamLeader
	require.NoError(t, approval.CheckTransition(sub, approval.TransitionTLApprove, teamLeader("video")))

	sub.State = approval.StatePendingAdmin
	require.NoError(t, approval.CheckTransition(sub, approval.TransitionAdminApprove, admin()))
}

func TestCheckTransitionWrongTeamLeaderForbidden(t *testing.T) {
	sub := &approval.Submission{State: approval.StatePendingTeamLeader, SubmitterUsername: "alice", SubmitterTeam: "video"}
	err := approval.CheckTransition(sub, approval.TransitionTLApprove, teamLeader("audio"))
	assert.True(t, apperr.Is(err, apperr.Forbidden))
}

func TestCheckTransitionWrongRoleForbidden(t *testing.T) {
	sub := &approval.Submission{State: approval.StatePendingTeamLeader, SubmitterUsername: "alice", SubmitterTeam: "video"}
	err := approval.CheckTransition(sub, approval.TransitionTLApprove, submitter())
	assert.True(t, apperr.Is(err, apperr.Forbidden))
}

func TestCheckTransitionIllegalFromState(t *testing.T) {
	sub := &approval.Submission{State: approval.StateApproved, SubmitterUsername: "alice", SubmitterTeam: "video"}
	err := approval.CheckTransition(sub, approval.TransitionTLApprove, teamLeader("video"))
	assert.True(t, apperr.Is(err, apperr.IllegalTransition))
}

func TestCheckTransitionOnlySubmitterMayWithdraw(t *testing.T) {
	sub := &approval.Submission{State: approval.StatePendingTeamLeader, SubmitterUsername: "alice", SubmitterTeam: "video"}
	other := identity.Identity{Username: "mallory", Role: identity.RoleUser}
	err := approval.CheckTransition(sub, approval.TransitionWithdraw, other)
	assert.True(t, apperr.Is(err, apperr.Forbidden))

	require.NoError(t, approval.CheckTransition(sub, approval.TransitionWithdraw, submitter()))
}

func TestValidateReason(t *testing.T) {
	_, err := approval.ValidateReason("   ")
	assert.True(t, apperr.Is(err, apperr.BadInput))

	trimmed, err := approval.ValidateReason("  missing license info  ")
	require.NoError(t, err)
	assert.Equal(t, "missing license info", trimmed)

	tooLong := make([]byte, 2001)
	for i := range tooLong {
		tooLong[i] = 'x'
	}
	_, err = approval.ValidateReason(string(tooLong))
	assert.True(t, apperr.Is(err, apperr.BadInput))
}

func TestTargetState(t *testing.T) {
	assert.Equal(t, approval.StatePendingTeamLeader, approval.TransitionSubmit.TargetState())
	assert.Equal(t, approval.StateApproved, approval.TransitionAdminApprove.TargetState())
	assert.Equal(t, approval.StateWithdrawn, approval.TransitionWithdraw.TargetState())
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, approval.StateApproved.Terminal())
	assert.True(t, approval.StateWithdrawn.Terminal())
	assert.True(t, approval.StateRejectedByAdmin.Terminal())
	assert.True(t, approval.StateRejectedByTeamLeader.Terminal())
	assert.False(t, approval.StatePendingTeamLeader.Terminal())
	assert.False(t, approval.StatePendingAdmin.Terminal())
	assert.False(t, approval.StateDraft.Terminal())
}
