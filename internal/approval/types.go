// Package approval holds the submission type, the transition state
// machine with its actor authorization rules, and the queue-backed
// repository that applies transitions under per-submission locking.
package approval

import "time"

// State is one of the submission lifecycle states.
type State string

const (
	StateDraft                State = "DRAFT"
	StatePendingTeamLeader    State = "PENDING_TEAM_LEADER"
	StatePendingAdmin         State = "PENDING_ADMIN"
	StateApproved             State = "APPROVED"
	StateRejectedByTeamLeader State = "REJECTED_BY_TEAM_LEADER"
	StateRejectedByAdmin      State = "REJECTED_BY_ADMIN"
	StateWithdrawn            State = "WITHDRAWN"
)

// Terminal reports whether state has no further legal transition.
func (s State) Terminal() bool {
	switch s {
	case StateApproved, StateRejectedByTeamLeader, StateRejectedByAdmin, StateWithdrawn:
		return true
	default:
		return false
	}
}

// PlacementOutcome records how an approved artifact ended up relative
// to its target project path.
type PlacementOutcome string

const (
	PlacementDelivered       PlacementOutcome = "DELIVERED"
	PlacementStaged          PlacementOutcome = "STAGED"
	PlacementManualRequested PlacementOutcome = "MANUAL_REQUESTED"
)

// HistoryEntry is one append-only record of a state transition.
type HistoryEntry struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
	Actor string    `json:"actor,omitempty"`
	Note  string    `json:"note,omitempty"`
}

// Submission is the central entity of the approval core.
type Submission struct {
	ID string `json:"id"`

	SubmitterUsername string `json:"submitter_username"`
	SubmitterTeam     string `json:"submitter_team"`

	OriginalFilename string `json:"original_filename"`
	UploadPath       string `json:"upload_path"`
	SizeBytes        int64  `json:"size_bytes"`
	ContentTypeHint  string `json:"content_type_hint"`

	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`

	State State `json:"state"`

	CreatedAt      time.Time  `json:"created_at"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	TLDecidedAt    *time.Time `json:"tl_decided_at,omitempty"`
	AdminDecidedAt *time.Time `json:"admin_decided_at,omitempty"`
	ArchivedAt     *time.Time `json:"archived_at,omitempty"`

	TLReviewer        string `json:"tl_reviewer,omitempty"`
	TLRejectionReason string `json:"tl_rejection_reason,omitempty"`

	AdminReviewer        string `json:"admin_reviewer,omitempty"`
	AdminRejectionReason string `json:"admin_rejection_reason,omitempty"`

	PlacementOutcome    PlacementOutcome `json:"placement_outcome,omitempty"`
	PlacementTargetPath string           `json:"placement_target_path,omitempty"`

	StateHistory []HistoryEntry `json:"state_history"`

	SideEffectFailures []string `json:"side_effect_failures,omitempty"`
}

// Queue is the live, in-memory-sized document: {id -> Submission}. It
// is the single source of truth; terminal submissions are removed from
// it the moment they are archived, so only live work remains.
type Queue struct {
	Submissions map[string]*Submission `json:"submissions"`
}
