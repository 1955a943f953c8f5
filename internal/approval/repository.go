package approval

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"silexa/approvals/internal/apperr"
	"silexa/approvals/internal/docstore"
	"silexa/approvals/internal/identity"
)

const queueDoc = "queue.json"

// Repository owns the global submission queue keyed by submission id
// and enforces the state machine. It holds the per-submission
// in-process mutex map; internal/engine acquires a submission's lock
// for the full read-validate-write cycle plus its derived effects.
type Repository struct {
	store *docstore.Store
	log   *log.Logger

	idMu  sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRepository(store *docstore.Store, logger *log.Logger) *Repository {
	if logger == nil {
		logger = log.Default()
	}
	return &Repository{store: store, log: logger, locks: make(map[string]*sync.Mutex)}
}

// Lock returns the in-process mutex for submission id, creating it on
// first use. Callers (internal/engine) acquire it before the document
// lock, per the fixed total order submission-id lock -> document lock.
func (r *Repository) Lock(id string) *sync.Mutex {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	m, ok := r.locks[id]
	if !ok {
		m = &sync.Mutex{}
		r.locks[id] = m
	}
	return m
}

// Get returns a copy of submission id from the live queue, or
// apperr.NotFound if absent (it may have been archived already).
func (r *Repository) Get(id string) (Submission, error) {
	var q Queue
	if err := r.store.ReadInto(queueDoc, &q); err != nil {
		return Submission{}, err
	}
	if q.Submissions == nil {
		return Submission{}, apperr.New(apperr.NotFound, "submission %s not found", id)
	}
	sub, ok := q.Submissions[id]
	if !ok {
		return Submission{}, apperr.New(apperr.NotFound, "submission %s not found", id)
	}
	return *sub, nil
}

// List returns copies of all live submissions. Callers apply
// visibility and filtering (internal/engine's listing.go).
func (r *Repository) List() ([]Submission, error) {
	var q Queue
	if err := r.store.ReadInto(queueDoc, &q); err != nil {
		return nil, err
	}
	out := make([]Submission, 0, len(q.Submissions))
	for _, s := range q.Submissions {
		out = append(out, *s)
	}
	return out, nil
}

// Create inserts a new DRAFT submission and immediately transitions it
// to PENDING_TEAM_LEADER (the submit transition), returning the
// committed submission. Create mints the id itself, so no per-id lock
// is held around it; the insert is serialized by the queue document
// lock alone.
func (r *Repository) Create(actor identity.Identity, uploadPath, originalFilename, contentType string, size int64, description string, tags []string) (Submission, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	sub := &Submission{
		ID:                 id,
		SubmitterUsername:  actor.Username,
		SubmitterTeam:      firstTeam(actor.Teams),
		OriginalFilename:   originalFilename,
		UploadPath:         uploadPath,
		SizeBytes:          size,
		ContentTypeHint:    contentType,
		Description:        description,
		Tags:               tags,
		State:              StateDraft,
		CreatedAt:          now,
	}

	if err := CheckTransition(sub, TransitionSubmit, actor); err != nil {
		return Submission{}, err
	}
	sub.State = TransitionSubmit.TargetState()
	sub.SubmittedAt = &now
	sub.StateHistory = append(sub.StateHistory, HistoryEntry{State: sub.State, At: now, Actor: actor.Username})

	var q Queue
	err := r.store.Modify(queueDoc, &q, false, func() error {
		if q.Submissions == nil {
			q.Submissions = make(map[string]*Submission)
		}
		q.Submissions[id] = sub
		return nil
	})
	if err != nil {
		return Submission{}, err
	}
	return *sub, nil
}

func firstTeam(teams []string) string {
	if len(teams) == 0 {
		return ""
	}
	return teams[0]
}

// Apply performs one transition on submission id: re-reads the queue
// under the document lock, re-validates the current state (failing
// with IllegalTransition on a stale read rather than overwriting),
// applies the transition, appends to state_history, and persists.
// mutate may set transition-specific fields (reviewer, reason,
// placement outcome) before the history entry is appended; it runs
// after CheckTransition succeeds and before persistence.
func (r *Repository) Apply(id string, t Transition, actor identity.Identity, mutate func(*Submission, time.Time) error) (Submission, error) {
	var q Queue
	var result Submission

	err := r.store.Modify(queueDoc, &q, false, func() error {
		if q.Submissions == nil {
			return apperr.New(apperr.NotFound, "submission %s not found", id)
		}
		sub, ok := q.Submissions[id]
		if !ok {
			return apperr.New(apperr.NotFound, "submission %s not found", id)
		}

		if err := CheckTransition(sub, t, actor); err != nil {
			return err
		}

		now := time.Now().UTC()
		if mutate != nil {
			if err := mutate(sub, now); err != nil {
				return err
			}
		}
		sub.State = t.TargetState()
		sub.StateHistory = append(sub.StateHistory, HistoryEntry{State: sub.State, At: now, Actor: actor.Username})

		if sub.State.Terminal() {
			delete(q.Submissions, id)
		}

		result = *sub
		return nil
	})
	if err != nil {
		return Submission{}, err
	}
	return result, nil
}

// RecordSideEffectFailure appends a note to the (already-terminal or
// still-live) submission's side_effect_failures without re-validating
// the state machine. It is used by internal/engine after a committed
// transition's derived effects (archive, notify, placement) fail:
// effects never reverse the commit, they only leave a trace.
//
// Because terminal submissions leave the live queue immediately, this
// only has an effect while the submission is still live (PENDING_ADMIN
// between TLApprove and a later terminal transition, for instance);
// callers of terminal-transition effects log the failure instead.
func (r *Repository) RecordSideEffectFailure(id, note string) error {
	var q Queue
	return r.store.Modify(queueDoc, &q, false, func() error {
		if q.Submissions == nil {
			return nil
		}
		sub, ok := q.Submissions[id]
		if !ok {
			return nil
		}
		sub.SideEffectFailures = append(sub.SideEffectFailures, note)
		return nil
	})
}
