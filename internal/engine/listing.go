package engine

import (
	"sort"
	"strings"

	"silexa/approvals/internal/approval"
	"silexa/approvals/internal/identity"
)

// Filter further restricts List beyond the role-scoped visibility
// predicate, which always applies first.
type Filter struct {
	State      approval.State
	Team       string
	Submitter  string
	FreeText   string
	SortBy     SortKey
	Descending bool
}

type SortKey string

const (
	SortByCreatedAt SortKey = "created_at"
	SortByState     SortKey = "state"
	SortByTeam      SortKey = "team"
)

// ListResult carries the filtered submissions plus counts derived over
// that same filtered set, not the full queue, so stat cards reflect
// what is actually shown.
type ListResult struct {
	Submissions []approval.Submission
	Counts      map[approval.State]int
}

// List applies the role-scoped visibility predicate, then filter, then
// sorts. ADMIN sees everything; TEAM_LEADER sees submissions whose
// submitter_team is among the actor's teams; USER sees only their own.
func (e *Engine) List(actor string, filter Filter) (ListResult, error) {
	ident, err := e.resolveActor(actor)
	if err != nil {
		return ListResult{}, err
	}

	all, err := e.repo.List()
	if err != nil {
		return ListResult{}, err
	}

	visible := make([]approval.Submission, 0, len(all))
	for _, s := range all {
		if visibleTo(ident, s) {
			visible = append(visible, s)
		}
	}

	filtered := make([]approval.Submission, 0, len(visible))
	for _, s := range visible {
		if matchesFilter(s, filter) {
			filtered = append(filtered, s)
		}
	}

	sortSubmissions(filtered, filter.SortBy, filter.Descending)

	counts := make(map[approval.State]int)
	for _, s := range filtered {
		counts[s.State]++
	}

	return ListResult{Submissions: filtered, Counts: counts}, nil
}

// AllSubmissions returns every live submission with no visibility
// filtering, for operator-facing consumers (internal/digest,
// approvalctl) that already run with full trust.
func (e *Engine) AllSubmissions() ([]approval.Submission, error) {
	return e.repo.List()
}

func visibleTo(actor identity.Identity, sub approval.Submission) bool {
	switch actor.Role {
	case identity.RoleAdmin:
		return true
	case identity.RoleTeamLeader:
		for _, t := range actor.Teams {
			if strings.EqualFold(t, sub.SubmitterTeam) {
				return true
			}
		}
		return false
	default: // USER
		return sub.SubmitterUsername == actor.Username
	}
}

func matchesFilter(s approval.Submission, f Filter) bool {
	if f.State != "" && s.State != f.State {
		return false
	}
	if f.Team != "" && !strings.EqualFold(s.SubmitterTeam, f.Team) {
		return false
	}
	if f.Submitter != "" && s.SubmitterUsername != f.Submitter {
		return false
	}
	if f.FreeText != "" {
		needle := strings.ToLower(f.FreeText)
		haystack := strings.ToLower(s.OriginalFilename + " " + s.Description + " " + s.SubmitterUsername)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func sortSubmissions(subs []approval.Submission, key SortKey, desc bool) {
	less := func(i, j int) bool {
		switch key {
		case SortByState:
			return subs[i].State < subs[j].State
		case SortByTeam:
			return subs[i].SubmitterTeam < subs[j].SubmitterTeam
		default:
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
	}
	if desc {
		sort.SliceStable(subs, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.SliceStable(subs, less)
}
