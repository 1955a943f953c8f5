package notify_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silexa/approvals/internal/apperr"
	"silexa/approvals/internal/docstore"
	"silexa/approvals/internal/notify"
)

type fakeSink struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (f *fakeSink) Send(n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, n)
	return nil
}

func newService(t *testing.T, push notify.PushSink) *notify.Service {
	t.Helper()
	docs, err := docstore.New(t.TempDir(), nil, 0)
	require.NoError(t, err)
	return notify.New(docs, push)
}

func TestAppendAndList(t *testing.T) {
	s := newService(t, nil)
	n, err := s.Append("alice", notify.KindSubmittedToTL, "sub-1", map[string]any{"filename": "a.psd"}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Read)

	list, err := s.List("alice", false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "sub-1", list[0].SubmissionID)
}

func TestAppendDedupsByExplicitID(t *testing.T) {
	s := newService(t, nil)
	first, err := s.Append("alice", notify.KindCommentAdded, "sub-1", nil, "comment-42")
	require.NoError(t, err)
	second, err := s.Append("alice", notify.KindCommentAdded, "sub-1", nil, "comment-42")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	list, err := s.List("alice", false)
	require.NoError(t, err)
	assert.Len(t, list, 1, "duplicate explicit id must not append twice")
}

func TestListUnreadOnly(t *testing.T) {
	s := newService(t, nil)
	n1, err := s.Append("alice", notify.KindTLApproved, "sub-1", nil, "")
	require.NoError(t, err)
	_, err = s.Append("alice", notify.KindAdminApproved, "sub-1", nil, "")
	require.NoError(t, err)

	require.NoError(t, s.MarkRead("alice", n1.ID))

	unread, err := s.List("alice", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, notify.KindAdminApproved, unread[0].Kind)
}

func TestMarkReadUnknownIDReturnsNotFound(t *testing.T) {
	s := newService(t, nil)
	err := s.MarkRead("alice", "ghost")
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.CodeOf(err))
}

func TestAppendAlsoPushesToOptionalSink(t *testing.T) {
	sink := &fakeSink{}
	s := newService(t, sink)

	_, err := s.Append("alice", notify.KindWithdrawn, "sub-1", nil, "")
	require.NoError(t, err)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.got, 1)
	assert.Equal(t, notify.KindWithdrawn, sink.got[0].Kind)
}

func TestAppendInboxGrowsPerRecipient(t *testing.T) {
	s := newService(t, nil)
	_, err := s.Append("alice", notify.KindSubmittedToTL, "sub-1", nil, "")
	require.NoError(t, err)
	_, err = s.Append("bob", notify.KindSubmittedToTL, "sub-1", nil, "")
	require.NoError(t, err)

	aliceList, err := s.List("alice", false)
	require.NoError(t, err)
	bobList, err := s.List("bob", false)
	require.NoError(t, err)
	assert.Len(t, aliceList, 1)
	assert.Len(t, bobList, 1)
}
