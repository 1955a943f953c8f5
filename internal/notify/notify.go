// Package notify keeps per-user durable notification inboxes,
// append-only with a read/unread flag, one document per recipient
// (notifications/{u}/inbox.json). An optional best-effort push sink
// (push.go) mirrors inbox appends to an outbound channel.
package notify

import (
	"time"

	"github.com/google/uuid"

	"silexa/approvals/internal/apperr"
	"silexa/approvals/internal/docstore"
)

// Kind classifies a notification by the event that produced it.
type Kind string

const (
	KindTLApproved    Kind = "TL_APPROVED"
	KindTLRejected    Kind = "TL_REJECTED"
	KindAdminApproved Kind = "ADMIN_APPROVED"
	KindAdminRejected Kind = "ADMIN_REJECTED"
	KindCommentAdded  Kind = "COMMENT_ADDED"
	KindSubmittedToTL Kind = "SUBMITTED_TO_TL"

	// Withdrawal notifies the submitter like every other transition,
	// even though no archive record accompanies it.
	KindWithdrawn Kind = "WITHDRAWN"
)

// Notification is one entry in a recipient's inbox.
type Notification struct {
	ID                string         `json:"id"`
	RecipientUsername string         `json:"recipient_username"`
	Kind              Kind           `json:"kind"`
	SubmissionID      string         `json:"submission_id,omitempty"`
	Payload           map[string]any `json:"payload,omitempty"`
	At                time.Time      `json:"at"`
	Read              bool           `json:"read"`
}

type inbox struct {
	Notifications []Notification `json:"notifications"`
}

// Service appends and lists per-user notifications.
type Service struct {
	docs *docstore.Store
	push PushSink // optional; nil disables the companion push channel
}

// PushSink is the optional best-effort side channel (webhook or
// Telegram) alongside the durable inbox. A nil error from Send does
// not guarantee delivery; Service.Append discards Send errors, so they
// never block the inbox append.
type PushSink interface {
	Send(n Notification) error
}

func New(docs *docstore.Store, push PushSink) *Service {
	return &Service{docs: docs, push: push}
}

func inboxDoc(username string) string {
	return username + "/inbox.json"
}

// Append durably records a notification for recipient, deduplicating
// by id when the caller supplies one so that at-least-once retries
// from the engine's post-commit side effects stay idempotent.
func (s *Service) Append(recipient string, kind Kind, submissionID string, payload map[string]any, id string) (Notification, error) {
	if id == "" {
		id = uuid.NewString()
	}
	n := Notification{
		ID:                id,
		RecipientUsername: recipient,
		Kind:              kind,
		SubmissionID:      submissionID,
		Payload:           payload,
		At:                time.Now().UTC(),
	}

	var box inbox
	err := s.docs.Modify(inboxDoc(recipient), &box, false, func() error {
		for _, existing := range box.Notifications {
			if existing.ID == n.ID {
				n = existing
				return nil
			}
		}
		box.Notifications = append([]Notification{n}, box.Notifications...)
		return nil
	})
	if err != nil {
		return Notification{}, err
	}

	if s.push != nil {
		_ = s.push.Send(n)
	}
	return n, nil
}

// List returns username's inbox, newest first, optionally unread only.
func (s *Service) List(username string, unreadOnly bool) ([]Notification, error) {
	var box inbox
	if err := s.docs.ReadInto(inboxDoc(username), &box); err != nil {
		return nil, err
	}
	if !unreadOnly {
		return box.Notifications, nil
	}
	out := make([]Notification, 0, len(box.Notifications))
	for _, n := range box.Notifications {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out, nil
}

// MarkRead flips the read flag for a single notification. It returns
// apperr.NotFound when notificationID does not exist in username's
// inbox.
func (s *Service) MarkRead(username, notificationID string) error {
	var box inbox
	found := false
	err := s.docs.Modify(inboxDoc(username), &box, false, func() error {
		for i := range box.Notifications {
			if box.Notifications[i].ID == notificationID {
				box.Notifications[i].Read = true
				found = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return apperr.New(apperr.NotFound, "notification %s not found for %s", notificationID, username)
	}
	return nil
}
