// Package comments keeps per-submission comment threads, one document
// per submission. Comment ids are derived from (submission_id, at,
// author, body) rather than minted randomly, so a retried append is
// detectably the same comment.
package comments

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"silexa/approvals/internal/apperr"
	"silexa/approvals/internal/docstore"
	"silexa/approvals/internal/identity"
)

// Comment is one entry in a submission's comment thread.
type Comment struct {
	ID           string    `json:"comment_id"`
	SubmissionID string    `json:"submission_id"`
	Author       string    `json:"author_username"`
	AuthorRole   string    `json:"author_role"`
	Body         string    `json:"body"`
	At           time.Time `json:"at"`
}

type thread struct {
	Comments []Comment `json:"comments"`
}

func threadDoc(submissionID string) string {
	return submissionID + ".json"
}

// Store reads and appends per-submission comment threads.
type Store struct {
	docs *docstore.Store
}

func New(docs *docstore.Store) *Store {
	return &Store{docs: docs}
}

// Append validates body, derives the comment id, and appends it to the
// submission's thread, returning the stored comment (which may already
// exist if this is a retried post-commit effect; the derived id makes
// that detectable rather than silently duplicating).
func (s *Store) Append(submissionID string, author identity.Identity, body string) (Comment, error) {
	trimmed := strings.TrimSpace(body)
	if len(trimmed) == 0 {
		return Comment{}, apperr.New(apperr.BadInput, "comment body must not be empty")
	}

	at := time.Now().UTC()
	id := derive(submissionID, at, author.Username, trimmed)
	c := Comment{
		ID:           id,
		SubmissionID: submissionID,
		Author:       author.Username,
		AuthorRole:   string(author.Role),
		Body:         trimmed,
		At:           at,
	}

	var t thread
	err := s.docs.Modify(threadDoc(submissionID), &t, false, func() error {
		for _, existing := range t.Comments {
			if existing.ID == c.ID {
				c = existing
				return nil
			}
		}
		t.Comments = append(t.Comments, c)
		return nil
	})
	if err != nil {
		return Comment{}, err
	}
	return c, nil
}

// AppendRaw merges already-constructed comments into submissionID's
// thread, keeping the result sorted chronologically. Used only by
// internal/migrate's one-shot legacy-document merge; request-path
// callers use Append, which derives the id and timestamp themselves.
func (s *Store) AppendRaw(submissionID string, extra []Comment) error {
	var t thread
	return s.docs.Modify(threadDoc(submissionID), &t, false, func() error {
		existing := make(map[string]bool, len(t.Comments))
		for _, c := range t.Comments {
			existing[c.ID] = true
		}
		for _, c := range extra {
			if !existing[c.ID] {
				t.Comments = append(t.Comments, c)
				existing[c.ID] = true
			}
		}
		sort.Slice(t.Comments, func(i, j int) bool { return t.Comments[i].At.Before(t.Comments[j].At) })
		return nil
	})
}

// List returns submissionID's comment thread in chronological order.
func (s *Store) List(submissionID string) ([]Comment, error) {
	var t thread
	if err := s.docs.ReadInto(threadDoc(submissionID), &t); err != nil {
		return nil, err
	}
	return t.Comments, nil
}

// PriorCommenters returns the distinct set of usernames who have
// commented on submissionID, used both by the visibility rule below
// and by internal/notify's comment-derived fanout.
func (s *Store) PriorCommenters(submissionID string) ([]string, error) {
	cs, err := s.List(submissionID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, c := range cs {
		if !seen[c.Author] {
			seen[c.Author] = true
			out = append(out, c.Author)
		}
	}
	return out, nil
}

// CanView reports whether actor may read submissionID's comment thread:
// the submitter, a prior commenter, or a reviewer whose role currently
// has standing to act on the submission.
func CanView(actor identity.Identity, submitterUsername string, priorCommenters []string, hasStanding bool) bool {
	if actor.Username == submitterUsername {
		return true
	}
	for _, u := range priorCommenters {
		if u == actor.Username {
			return true
		}
	}
	return hasStanding
}

func derive(submissionID string, at time.Time, author, body string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", submissionID, at.Format(time.RFC3339Nano), author, body)
	return hex.EncodeToString(h.Sum(nil))[:24]
}
