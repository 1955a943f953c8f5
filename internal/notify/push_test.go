package notify_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silexa/approvals/internal/notify"
)

func TestWebhookSinkSendPostsFormattedMessage(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := notify.NewWebhookSink(srv.URL, nil)
	err := sink.Send(notify.Notification{Kind: notify.KindAdminApproved, SubmissionID: "sub-1", RecipientUsername: "alice"})
	require.NoError(t, err)
	assert.Contains(t, received, "ADMIN_APPROVED")
	assert.Contains(t, received, "sub-1")
}

func TestWebhookSinkSendTextPostsRawText(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := notify.NewWebhookSink(srv.URL, nil)
	require.NoError(t, sink.SendText("daily digest: 3 pending"))
	assert.Contains(t, received, "daily digest: 3 pending")
}

func TestWebhookSinkErrorsOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := notify.NewWebhookSink(srv.URL, nil)
	err := sink.SendText("hello")
	assert.Error(t, err)
}
