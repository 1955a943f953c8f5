// Package archive keeps three ring-buffered append-only logs, one per
// terminal outcome kind, each capped at a configurable number of most
// recent records (default 1000). On append: read, prepend, truncate,
// rewrite.
package archive

import (
	"time"

	"silexa/approvals/internal/approval"
	"silexa/approvals/internal/docstore"
)

// Kind names one of the three archive ring buffers.
type Kind string

const (
	KindApproved         Kind = "approved"
	KindRejectedAdmin    Kind = "rejected_admin"
	KindRejectedTeamLead Kind = "rejected_tl"
)

func docFor(kind Kind) string {
	switch kind {
	case KindApproved:
		return "archive/approved.json"
	case KindRejectedAdmin:
		return "archive/rejected_admin.json"
	case KindRejectedTeamLead:
		return "archive/rejected_tl.json"
	default:
		return "archive/unknown.json"
	}
}

// Record is one archived terminal submission.
type Record struct {
	SubmissionID string               `json:"submission_id"`
	Submission   approval.Submission  `json:"submission"`
	ArchivedAt   time.Time            `json:"archived_at"`
}

type ring struct {
	Records []Record `json:"records"`
}

// Store appends terminal submissions to capped ring-buffer logs.
type Store struct {
	docs *docstore.Store
	cap  int
}

func New(docs *docstore.Store, capacity int) *Store {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Store{docs: docs, cap: capacity}
}

// Append writes sub into the archive for kind. It is idempotent per
// submission id, so at-least-once delivery from the engine's
// post-commit effects never double-archives the same submission.
func (s *Store) Append(kind Kind, sub approval.Submission, archivedAt time.Time) error {
	doc := docFor(kind)
	var r ring
	return s.docs.Modify(doc, &r, false, func() error {
		for _, rec := range r.Records {
			if rec.SubmissionID == sub.ID {
				return nil
			}
		}
		sub.ArchivedAt = &archivedAt
		rec := Record{SubmissionID: sub.ID, Submission: sub, ArchivedAt: archivedAt}
		r.Records = append([]Record{rec}, r.Records...)
		if len(r.Records) > s.cap {
			r.Records = r.Records[:s.cap]
		}
		return nil
	})
}

// UpdateRecord mutates the archived record for submissionID in place.
// The placement retrier uses it to promote a STAGED/MANUAL_REQUESTED
// record to DELIVERED after the submission has already left the live
// queue. It is a no-op if the record is not present.
func (s *Store) UpdateRecord(kind Kind, submissionID string, mutate func(*Record)) error {
	var r ring
	return s.docs.Modify(docFor(kind), &r, false, func() error {
		for i := range r.Records {
			if r.Records[i].SubmissionID == submissionID {
				mutate(&r.Records[i])
				return nil
			}
		}
		return nil
	})
}

// List returns the current contents of kind's archive, newest first.
func (s *Store) List(kind Kind) ([]Record, error) {
	var r ring
	if err := s.docs.ReadInto(docFor(kind), &r); err != nil {
		return nil, err
	}
	return r.Records, nil
}

// Contains reports whether submissionID has been archived under kind.
func (s *Store) Contains(kind Kind, submissionID string) (bool, error) {
	records, err := s.List(kind)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.SubmissionID == submissionID {
			return true, nil
		}
	}
	return false, nil
}

// KindForState maps a terminal approval.State to its archive kind.
// Withdrawn submissions have no archive kind: they leave the live
// queue but are not archived, so the empty Kind signals "do not
// archive" to the caller. Non-terminal states also map to "".
func KindForState(state approval.State) Kind {
	switch state {
	case approval.StateApproved:
		return KindApproved
	case approval.StateRejectedByAdmin:
		return KindRejectedAdmin
	case approval.StateRejectedByTeamLeader:
		return KindRejectedTeamLead
	default:
		return ""
	}
}
