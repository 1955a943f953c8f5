// Package engine exposes the public approval operations: Submit,
// Withdraw, TLApprove, TLReject, AdminApprove, AdminReject, AddComment,
// List, GetInbox, MarkRead. Each transition operation (Withdraw,
// TLApprove, TLReject, AdminApprove, AdminReject) acquires the
// submission's per-id lock for the full read-validate-write cycle plus
// its derived effects, commits the transition through internal/approval, then fans
// out archive/notify/placement/metadata effects. Side-effect failures
// never reverse a committed transition.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"silexa/approvals/internal/apperr"
	"silexa/approvals/internal/approval"
	"silexa/approvals/internal/archive"
	"silexa/approvals/internal/comments"
	"silexa/approvals/internal/identity"
	"silexa/approvals/internal/metadata"
	"silexa/approvals/internal/notify"
	"silexa/approvals/internal/pathresolver"
	"silexa/approvals/internal/placement"
)

// Engine composes the stores, resolver, and pipeline into the public
// approval operations.
type Engine struct {
	repo      *approval.Repository
	identity  identity.Provider
	archive   *archive.Store
	metadata  *metadata.Store
	notify    *notify.Service
	comments  *comments.Store
	placement *placement.Pipeline
	resolver  *pathresolver.Resolver
	policy    Policy
	log       *log.Logger

	// AllowDegradedWrites, when true, permits state-changing operations
	// while the path resolver is degraded. Default false: writing to the
	// local fallback creates divergent histories that cannot later be
	// merged back into the shared tree.
	AllowDegradedWrites bool
}

type Deps struct {
	Repo      *approval.Repository
	Identity  identity.Provider
	Archive   *archive.Store
	Metadata  *metadata.Store
	Notify    *notify.Service
	Comments  *comments.Store
	Placement *placement.Pipeline
	Resolver  *pathresolver.Resolver
	Policy    Policy
	Log       *log.Logger
}

func New(d Deps) *Engine {
	logger := d.Log
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		repo: d.Repo, identity: d.Identity, archive: d.Archive, metadata: d.Metadata,
		notify: d.Notify, comments: d.Comments, placement: d.Placement, resolver: d.Resolver,
		policy: d.Policy, log: logger,
	}
}

func (e *Engine) checkWritable() error {
	if e.resolver != nil && e.resolver.Degraded() && !e.AllowDegradedWrites {
		return apperr.New(apperr.StoreUnavailable, "path resolver is degraded, state-changing operations are disabled")
	}
	return nil
}

func (e *Engine) resolveActor(actor string) (identity.Identity, error) {
	return e.identity.GetIdentity(actor)
}

// Submit creates a new submission and advances it from DRAFT to
// PENDING_TEAM_LEADER in one step: the public operation performs both
// the creation and the submit transition.
func (e *Engine) Submit(actor, uploadPath, originalFilename, contentType string, size int64, description string, tags []string) (approval.Submission, error) {
	id, err := e.resolveActor(actor)
	if err != nil {
		return approval.Submission{}, err
	}
	if err := e.checkWritable(); err != nil {
		return approval.Submission{}, err
	}

	openCount, err := e.countOpenSubmissions(actor)
	if err != nil {
		return approval.Submission{}, err
	}
	if err := validateSubmitPolicy(e.policy, originalFilename, contentType, openCount); err != nil {
		return approval.Submission{}, err
	}

	sub, err := e.repo.Create(id, uploadPath, originalFilename, contentType, size, description, tags)
	if err != nil {
		return approval.Submission{}, err
	}

	e.fanOutSubmitted(sub)
	return sub, nil
}

func (e *Engine) countOpenSubmissions(username string) (int, error) {
	subs, err := e.repo.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range subs {
		if s.SubmitterUsername == username && !s.State.Terminal() {
			n++
		}
	}
	return n, nil
}

// fanOutSubmitted appends SUBMITTED_TO_TL to the submitter's own inbox
// (satisfying "every transition grows the submitter's inbox") and to
// every team leader of the submitter's team.
func (e *Engine) fanOutSubmitted(sub approval.Submission) {
	id := effectID(sub, notify.KindSubmittedToTL)
	g := new(errgroup.Group)
	g.Go(func() error {
		_, err := e.notify.Append(sub.SubmitterUsername, notify.KindSubmittedToTL, sub.ID, payload(sub), id)
		return err
	})
	if lister, ok := e.identity.(identity.TeamLeaderLister); ok {
		leaders, err := lister.ListTeamLeaders(sub.SubmitterTeam)
		if err != nil {
			e.log.Printf("engine: list team leaders for %s: %v", sub.SubmitterTeam, err)
		}
		for _, leader := range leaders {
			leader := leader
			g.Go(func() error {
				_, err := e.notify.Append(leader, notify.KindSubmittedToTL, sub.ID, payload(sub), id)
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		e.recordSideEffectFailure(sub.ID, err)
	}
}

// Withdraw transitions a submission from PENDING_TEAM_LEADER to the
// terminal WITHDRAWN state; only the submitter may withdraw.
func (e *Engine) Withdraw(actor, id string) (approval.Submission, error) {
	return e.transition(actor, id, approval.TransitionWithdraw, nil, nil)
}

// TLApprove transitions PENDING_TEAM_LEADER to PENDING_ADMIN.
func (e *Engine) TLApprove(actor, id string) (approval.Submission, error) {
	return e.transition(actor, id, approval.TransitionTLApprove, nil, func(sub *approval.Submission, ident identity.Identity, now time.Time) {
		sub.TLReviewer = ident.Username
	})
}

// TLReject transitions PENDING_TEAM_LEADER to the terminal
// REJECTED_BY_TEAM_LEADER state; reason must be non-empty.
func (e *Engine) TLReject(actor, id, reason string) (approval.Submission, error) {
	trimmed, err := approval.ValidateReason(reason)
	if err != nil {
		return approval.Submission{}, err
	}
	return e.transition(actor, id, approval.TransitionTLReject, nil, func(sub *approval.Submission, ident identity.Identity, now time.Time) {
		sub.TLReviewer = ident.Username
		sub.TLRejectionReason = trimmed
	})
}

// AdminApprove transitions PENDING_ADMIN to the terminal APPROVED
// state and drives the file placement pipeline plus the metadata
// sidecar write.
func (e *Engine) AdminApprove(actor, id string) (approval.Submission, error) {
	return e.transition(actor, id, approval.TransitionAdminApprove, e.placeAndRecordMetadata, func(sub *approval.Submission, ident identity.Identity, now time.Time) {
		sub.AdminReviewer = ident.Username
		sub.AdminDecidedAt = &now
	})
}

// AdminReject transitions PENDING_ADMIN to the terminal
// REJECTED_BY_ADMIN state; reason must be non-empty.
func (e *Engine) AdminReject(actor, id, reason string) (approval.Submission, error) {
	trimmed, err := approval.ValidateReason(reason)
	if err != nil {
		return approval.Submission{}, err
	}
	return e.transition(actor, id, approval.TransitionAdminReject, nil, func(sub *approval.Submission, ident identity.Identity, now time.Time) {
		sub.AdminReviewer = ident.Username
		sub.AdminRejectionReason = trimmed
	})
}

// postCommitFunc runs after a transition has been committed, with the
// post-transition submission available for further mutation (e.g.
// setting placement_outcome) before the caller sees the final value.
// It is invoked inside the same submission lock as the transition:
// the first placement attempt happens inline on admin approval, and
// only the retrier runs off the hot path.
type postCommitFunc func(sub *approval.Submission) error

func (e *Engine) transition(actor, id string, t approval.Transition, postCommit postCommitFunc, mutate func(*approval.Submission, identity.Identity, time.Time)) (approval.Submission, error) {
	ident, err := e.resolveActor(actor)
	if err != nil {
		return approval.Submission{}, err
	}
	if err := e.checkWritable(); err != nil {
		return approval.Submission{}, err
	}

	lock := e.repo.Lock(id)
	lock.Lock()
	defer lock.Unlock()

	sub, err := e.repo.Apply(id, t, ident, func(s *approval.Submission, now time.Time) error {
		if mutate != nil {
			mutate(s, ident, now)
		}
		return nil
	})
	if err != nil {
		return approval.Submission{}, err
	}

	if postCommit != nil {
		if err := postCommit(&sub); err != nil {
			e.recordSideEffectFailure(sub.ID, err)
		}
	}

	e.fanOutTransition(sub, t)

	if sub.State.Terminal() {
		e.archiveTerminal(sub)
	}

	return sub, nil
}

// placeAndRecordMetadata runs placement then the metadata sidecar
// write on a freshly-approved submission, mutating sub's placement
// fields in place. The transition has already committed; errors are
// returned only so the caller can log them as side_effect_failures.
func (e *Engine) placeAndRecordMetadata(sub *approval.Submission) error {
	if e.placement == nil {
		return nil
	}
	year := time.Now().UTC().Year()
	if sub.AdminDecidedAt != nil {
		year = sub.AdminDecidedAt.UTC().Year()
	}
	outcome, err := e.placement.Place(sub.ID, sub.UploadPath, sub.SubmitterTeam, year, sub.OriginalFilename)
	if err != nil {
		return fmt.Errorf("placement: %w", err)
	}
	sub.PlacementOutcome = outcome.PlacementOutcome
	sub.PlacementTargetPath = outcome.TargetPath

	if outcome.PlacementOutcome == approval.PlacementDelivered && e.metadata != nil {
		rec := metadata.Record{
			Filename:         sub.OriginalFilename,
			Team:             sub.SubmitterTeam,
			Year:             year,
			Submitter:        sub.SubmitterUsername,
			ApproverChain:    []string{sub.TLReviewer, sub.AdminReviewer},
			ApprovedAt:       sub.AdminDecidedAt.Format(time.RFC3339),
			Description:      sub.Description,
			Tags:             sub.Tags,
			SourceUploadPath: sub.UploadPath,
			FinalPath:        outcome.TargetPath,
		}
		if err := e.metadata.Put(rec); err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
	}
	return nil
}

func (e *Engine) fanOutTransition(sub approval.Submission, t approval.Transition) {
	kind, ok := kindFor(t)
	if !ok {
		return
	}
	if _, err := e.notify.Append(sub.SubmitterUsername, kind, sub.ID, payload(sub), effectID(sub, kind)); err != nil {
		e.recordSideEffectFailure(sub.ID, err)
	}
}

// effectID derives a stable notification id from the submission, the
// notification kind, and the transition timestamp, so an at-least-once
// replay of a post-commit fan-out dedups instead of duplicating.
func effectID(sub approval.Submission, kind notify.Kind) string {
	at := sub.CreatedAt
	if n := len(sub.StateHistory); n > 0 {
		at = sub.StateHistory[n-1].At
	}
	h := sha256.Sum256([]byte(sub.ID + "|" + string(kind) + "|" + at.Format(time.RFC3339Nano)))
	return hex.EncodeToString(h[:])[:24]
}

func kindFor(t approval.Transition) (notify.Kind, bool) {
	switch t {
	case approval.TransitionTLApprove:
		return notify.KindTLApproved, true
	case approval.TransitionTLReject:
		return notify.KindTLRejected, true
	case approval.TransitionAdminApprove:
		return notify.KindAdminApproved, true
	case approval.TransitionAdminReject:
		return notify.KindAdminRejected, true
	case approval.TransitionWithdraw:
		return notify.KindWithdrawn, true
	default:
		return "", false
	}
}

func (e *Engine) archiveTerminal(sub approval.Submission) {
	if e.archive == nil {
		return
	}
	kind := archive.KindForState(sub.State)
	if kind == "" {
		return
	}
	at := time.Now().UTC()
	if err := e.archive.Append(kind, sub, at); err != nil {
		e.recordSideEffectFailure(sub.ID, err)
	}
}

// AddComment appends a comment to a submission's thread and fans
// out COMMENT_ADDED notifications to the submitter and every distinct
// prior commenter other than the author, deduped by comment id.
func (e *Engine) AddComment(actor, id, body string) (comments.Comment, error) {
	ident, err := e.resolveActor(actor)
	if err != nil {
		return comments.Comment{}, err
	}
	sub, err := e.repo.Get(id)
	if err != nil {
		return comments.Comment{}, err
	}

	priorCommenters, err := e.comments.PriorCommenters(id)
	if err != nil {
		return comments.Comment{}, err
	}

	c, err := e.comments.Append(id, ident, body)
	if err != nil {
		return comments.Comment{}, err
	}

	recipients := map[string]bool{sub.SubmitterUsername: true}
	for _, u := range priorCommenters {
		recipients[u] = true
	}
	delete(recipients, ident.Username)

	g := new(errgroup.Group)
	for recipient := range recipients {
		recipient := recipient
		g.Go(func() error {
			_, err := e.notify.Append(recipient, notify.KindCommentAdded, id, map[string]any{
				"comment_id": c.ID, "author": c.Author, "body": c.Body,
			}, c.ID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		e.recordSideEffectFailure(id, err)
	}
	return c, nil
}

// ListComments returns submissionID's comment thread if actor has
// standing to view it: the submitter, a prior commenter, or a reviewer
// whose role currently has standing to act on the submission. Returns
// apperr.Forbidden otherwise.
func (e *Engine) ListComments(actor, id string) ([]comments.Comment, error) {
	ident, err := e.resolveActor(actor)
	if err != nil {
		return nil, err
	}
	sub, err := e.repo.Get(id)
	if err != nil {
		return nil, err
	}

	priorCommenters, err := e.comments.PriorCommenters(id)
	if err != nil {
		return nil, err
	}

	standing := approval.HasReviewStanding(&sub, ident)
	if !comments.CanView(ident, sub.SubmitterUsername, priorCommenters, standing) {
		return nil, apperr.New(apperr.Forbidden, "actor %s may not view comments on submission %s", actor, id)
	}
	return e.comments.List(id)
}

// GetInbox returns actor's notifications.
func (e *Engine) GetInbox(actor string, unreadOnly bool) ([]notify.Notification, error) {
	if _, err := e.resolveActor(actor); err != nil {
		return nil, err
	}
	return e.notify.List(actor, unreadOnly)
}

// MarkRead flips a notification's read flag.
func (e *Engine) MarkRead(actor, notificationID string) error {
	if _, err := e.resolveActor(actor); err != nil {
		return err
	}
	return e.notify.MarkRead(actor, notificationID)
}

func (e *Engine) recordSideEffectFailure(id string, err error) {
	e.log.Printf("engine: side effect failure for submission %s: %v", id, err)
	if rerr := e.repo.RecordSideEffectFailure(id, err.Error()); rerr != nil {
		e.log.Printf("engine: record side effect failure for %s: %v", id, rerr)
	}
}

func payload(sub approval.Submission) map[string]any {
	return map[string]any{
		"filename": sub.OriginalFilename,
		"state":    string(sub.State),
	}
}

// PendingPlacements and PromoteToDelivered implement
// placement.SubmissionSource. An APPROVED submission leaves the live
// queue the instant it becomes terminal, so a non-DELIVERED placement
// outcome has to be tracked, and retried, against the approved archive
// rather than the live queue.
func (e *Engine) PendingPlacements() ([]approval.Submission, error) {
	records, err := e.archive.List(archive.KindApproved)
	if err != nil {
		return nil, err
	}
	var out []approval.Submission
	for _, r := range records {
		if r.Submission.PlacementOutcome == approval.PlacementStaged ||
			r.Submission.PlacementOutcome == approval.PlacementManualRequested {
			out = append(out, r.Submission)
		}
	}
	return out, nil
}

func (e *Engine) PromoteToDelivered(id, targetPath string) error {
	return e.archive.UpdateRecord(archive.KindApproved, id, func(r *archive.Record) {
		r.Submission.PlacementOutcome = approval.PlacementDelivered
		r.Submission.PlacementTargetPath = targetPath
	})
}

// WithRetry retries fn up to three times with exponential backoff,
// bounded by deadline, but only for STORE_UNAVAILABLE and DEADLINE
// errors. Authorization and state errors are final.
func WithRetry(ctx context.Context, deadline time.Time, fn func() error) error {
	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if !deadline.IsZero() && time.Now().After(deadline) {
			return apperr.New(apperr.Deadline, "retry budget exhausted before attempt %d", attempt+1)
		}
		lastErr = fn()
		if lastErr == nil || !apperr.Retryable(lastErr) {
			return lastErr
		}
		wait := backoff
		if !deadline.IsZero() {
			if remaining := time.Until(deadline); remaining < wait {
				wait = remaining
			}
		}
		if wait <= 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff *= 2
	}
	return lastErr
}
