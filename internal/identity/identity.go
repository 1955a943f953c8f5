// Package identity resolves a username to its role and team
// memberships. The core never caches identity beyond a single
// operation; Provider implementations are free to cache internally,
// but callers always resolve fresh per actor.
//
// Role string canonicalization lives here, at the boundary: "TEAM
// LEADER" is rewritten to TEAM_LEADER before the role ever reaches
// internal/approval, so downstream comparisons stay plain equality.
package identity

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"silexa/approvals/internal/apperr"
)

// Role is one of the three roles the approval core understands.
type Role string

const (
	RoleUser       Role = "USER"
	RoleTeamLeader Role = "TEAM_LEADER"
	RoleAdmin      Role = "ADMIN"
)

// Identity is what a Provider resolves a username to.
type Identity struct {
	Username string   `json:"username"`
	Role     Role     `json:"role"`
	Teams    []string `json:"teams"`
}

// Provider resolves usernames to identities. Implementations are
// external collaborators from the approval core's point of view.
type Provider interface {
	GetIdentity(username string) (Identity, error)
}

// Canonicalize rewrites the single known whitespace-containing role
// variant to its canonical underscore form. Any other input is
// returned unchanged (validity is judged by the Provider, not here).
func Canonicalize(role string) Role {
	trimmed := strings.TrimSpace(role)
	if strings.EqualFold(trimmed, "TEAM LEADER") {
		return RoleTeamLeader
	}
	return Role(strings.ToUpper(strings.ReplaceAll(trimmed, " ", "_")))
}

// FileProvider is a file-backed Provider: a JSON object mapping
// username to {role, teams}, loaded once from the configured
// identity_provider_source and held in memory. Intended for tests and
// small deployments; a directory- or database-backed Provider can
// implement the same interface.
type FileProvider struct {
	mu    sync.RWMutex
	users map[string]fileRecord
}

type fileRecord struct {
	Role  string   `json:"role"`
	Teams []string `json:"teams"`
}

// LoadFileProvider reads path as a JSON object of username → {role, teams}.
func LoadFileProvider(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, err, "read identity source %s", path)
	}
	var users map[string]fileRecord
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, apperr.Wrap(apperr.Corrupt, err, "parse identity source %s", path)
	}
	return &FileProvider{users: users}, nil
}

func (p *FileProvider) GetIdentity(username string) (Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.users[username]
	if !ok {
		return Identity{}, apperr.New(apperr.UnknownUser, "unknown user %q", username)
	}
	return Identity{
		Username: username,
		Role:     Canonicalize(rec.Role),
		Teams:    rec.Teams,
	}, nil
}

// TeamLeaderLister is an optional Provider capability: enumerating the
// team leaders of a team, used by internal/engine to fan out
// SUBMITTED_TO_TL notifications to every leader of the submitter's
// team. A Provider that doesn't implement it simply isn't asked.
type TeamLeaderLister interface {
	ListTeamLeaders(team string) ([]string, error)
}

// ListTeamLeaders scans the loaded user set for TEAM_LEADER role
// holders whose teams include team.
func (p *FileProvider) ListTeamLeaders(team string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for username, rec := range p.users {
		if Canonicalize(rec.Role) != RoleTeamLeader {
			continue
		}
		if hasTeam(rec.Teams, team) {
			out = append(out, username)
		}
	}
	return out, nil
}

func hasTeam(teams []string, team string) bool {
	for _, t := range teams {
		if strings.EqualFold(t, team) {
			return true
		}
	}
	return false
}

// StaticProvider is an in-memory Provider used by tests to inject a
// stub identity without touching the filesystem.
type StaticProvider struct {
	Users map[string]Identity
}

func (p StaticProvider) GetIdentity(username string) (Identity, error) {
	id, ok := p.Users[username]
	if !ok {
		return Identity{}, apperr.New(apperr.UnknownUser, "unknown user %q", username)
	}
	id.Role = Canonicalize(string(id.Role))
	return id, nil
}

// ListTeamLeaders implements TeamLeaderLister for tests.
func (p StaticProvider) ListTeamLeaders(team string) ([]string, error) {
	var out []string
	for username, id := range p.Users {
		if Canonicalize(string(id.Role)) == RoleTeamLeader && hasTeam(id.Teams, team) {
			out = append(out, username)
		}
	}
	return out, nil
}
