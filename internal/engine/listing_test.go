package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silexa/approvals/internal/engine"
)

func TestListFiltersByStateAndFreeText(t *testing.T) {
	h := newHarness(t)
	src1 := writeUpload(t, "a")
	src2 := writeUpload(t, "b")
	sub1, err := h.eng.Submit("alice", src1, "sunset.psd", "", 10, "evening shot", nil)
	require.NoError(t, err)
	_, err = h.eng.Submit("alice", src2, "sunrise.psd", "", 10, "morning shot", nil)
	require.NoError(t, err)

	_, err = h.eng.TLApprove("bob", sub1.ID)
	require.NoError(t, err)

	result, err := h.eng.List("root", engine.Filter{State: "PENDING_ADMIN"})
	require.NoError(t, err)
	require.Len(t, result.Submissions, 1)
	assert.Equal(t, sub1.ID, result.Submissions[0].ID)
	assert.Equal(t, 1, result.Counts["PENDING_ADMIN"])

	result, err = h.eng.List("root", engine.Filter{FreeText: "sunset"})
	require.NoError(t, err)
	require.Len(t, result.Submissions, 1)
	assert.Equal(t, "sunset.psd", result.Submissions[0].OriginalFilename)
}

func TestListCountsReflectFilteredSetNotFullQueue(t *testing.T) {
	h := newHarness(t)
	src1 := writeUpload(t, "a")
	src2 := writeUpload(t, "b")
	_, err := h.eng.Submit("alice", src1, "one.psd", "", 10, "", nil)
	require.NoError(t, err)
	sub2, err := h.eng.Submit("alice", src2, "two.psd", "", 10, "", nil)
	require.NoError(t, err)
	_, err = h.eng.TLApprove("bob", sub2.ID)
	require.NoError(t, err)

	result, err := h.eng.List("root", engine.Filter{Team: "video"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts["PENDING_TEAM_LEADER"])
	assert.Equal(t, 1, result.Counts["PENDING_ADMIN"])
}

func TestAllSubmissionsBypassesVisibility(t *testing.T) {
	h := newHarness(t)
	src := writeUpload(t, "a")
	_, err := h.eng.Submit("alice", src, "one.psd", "", 10, "", nil)
	require.NoError(t, err)

	all, err := h.eng.AllSubmissions()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
