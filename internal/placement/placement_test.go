package placement_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silexa/approvals/internal/approval"
	"silexa/approvals/internal/docstore"
	"silexa/approvals/internal/placement"
)

func newPipeline(t *testing.T) (*placement.Pipeline, string, string) {
	t.Helper()
	docRoot := t.TempDir()
	projectRoot := t.TempDir()
	stagingRoot := t.TempDir()
	docs, err := docstore.New(docRoot, nil, 0)
	require.NoError(t, err)
	return placement.New(docs, projectRoot, stagingRoot), projectRoot, stagingRoot
}

func writeUpload(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "artifact.psd")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestPlaceDirectMoveDelivers(t *testing.T) {
	pipeline, projectRoot, _ := newPipeline(t)
	src := writeUpload(t, "hello")

	outcome, err := pipeline.Place("sub-1", src, "video", 2026, "artifact.psd")
	require.NoError(t, err)
	assert.Equal(t, approval.PlacementDelivered, outcome.PlacementOutcome)
	assert.Equal(t, filepath.Join(projectRoot, "video", "2026", "artifact.psd"), outcome.TargetPath)

	data, err := os.ReadFile(outcome.TargetPath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source must be moved, not copied, on direct delivery")
}

func TestPlaceCollisionAvoidanceAppendsSuffix(t *testing.T) {
	pipeline, projectRoot, _ := newPipeline(t)
	require.NoError(t, os.MkdirAll(filepath.Join(projectRoot, "video", "2026"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectRoot, "video", "2026", "artifact.psd"), []byte("existing"), 0o644))

	src := writeUpload(t, "new content")
	outcome, err := pipeline.Place("sub-2", src, "video", 2026, "artifact.psd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(projectRoot, "video", "2026", "artifact (1).psd"), outcome.TargetPath)
}

func TestPlaceRejectsSymlinkSource(t *testing.T) {
	pipeline, _, _ := newPipeline(t)

	real := writeUpload(t, "secret")
	link := filepath.Join(t.TempDir(), "link.psd")
	require.NoError(t, os.Symlink(real, link))

	// Both the direct move and the staged-copy fallback must refuse to
	// follow the symlink, leaving only the manual-request escalation.
	outcome, err := pipeline.Place("sub-3", link, "video", 2026, "link.psd")
	require.NoError(t, err)
	assert.Equal(t, approval.PlacementManualRequested, outcome.PlacementOutcome)

	requests, err := pipeline.OpenRequests()
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "sub-3", requests[0].SubmissionID)
}

func TestPlaceRejectsSymlinkSourceOnDirectMove(t *testing.T) {
	pipeline, projectRoot, stagingRoot := newPipeline(t)
	_ = stagingRoot

	real := writeUpload(t, "secret")
	link := filepath.Join(t.TempDir(), "link.psd")
	require.NoError(t, os.Symlink(real, link))

	// Project root stays writable here: os.Rename would succeed on the
	// common case (same filesystem), so the symlink must be rejected
	// before moveFile ever calls os.Rename, not only in copyFile's
	// staged-copy fallback.
	outcome, err := pipeline.Place("sub-3b", link, "video", 2026, "link.psd")
	require.NoError(t, err)
	assert.Equal(t, approval.PlacementManualRequested, outcome.PlacementOutcome)

	_, err = os.Lstat(filepath.Join(projectRoot, "video", "2026", "link.psd"))
	assert.True(t, os.IsNotExist(err), "symlink must never be delivered into the project tree")
}

// unreachableDir returns a path that can never be created because it is
// nested under a regular file, regardless of the user running tests.
func unreachableDir(t *testing.T) string {
	t.Helper()
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	return filepath.Join(blocker, "root")
}

func TestPlaceFallsBackToStagingWhenProjectRootUnreachable(t *testing.T) {
	docs, err := docstore.New(t.TempDir(), nil, 0)
	require.NoError(t, err)
	stagingRoot := t.TempDir()
	pipeline := placement.New(docs, unreachableDir(t), stagingRoot)

	src := writeUpload(t, "staged bytes")
	outcome, err := pipeline.Place("sub-staged", src, "video", 2026, "artifact.psd")
	require.NoError(t, err)
	assert.Equal(t, approval.PlacementStaged, outcome.PlacementOutcome)
	assert.Equal(t, filepath.Join(stagingRoot, "video", "2026", "artifact.psd"), outcome.TargetPath)

	data, err := os.ReadFile(outcome.TargetPath)
	require.NoError(t, err)
	assert.Equal(t, "staged bytes", string(data))

	requests, err := pipeline.OpenRequests()
	require.NoError(t, err)
	assert.Empty(t, requests, "a staged placement is not a manual request")
}

func TestRetryPromoteSucceedsOncePermissionsRestored(t *testing.T) {
	pipeline, projectRoot, stagingRoot := newPipeline(t)
	_ = stagingRoot

	src := writeUpload(t, "staged content")
	stagedPath := filepath.Join(t.TempDir(), "staged", "artifact.psd")
	require.NoError(t, os.MkdirAll(filepath.Dir(stagedPath), 0o755))
	require.NoError(t, os.Rename(src, stagedPath))

	outcome, promoted, err := pipeline.RetryPromote("sub-4", stagedPath, "video", 2026, "artifact.psd")
	require.NoError(t, err)
	assert.True(t, promoted)
	assert.Equal(t, approval.PlacementDelivered, outcome.PlacementOutcome)
	assert.Equal(t, filepath.Join(projectRoot, "video", "2026", "artifact.psd"), outcome.TargetPath)
}

func TestRetryPromoteFailsSilentlyWhenStillUnreachable(t *testing.T) {
	pipeline, _, _ := newPipeline(t)
	_, promoted, err := pipeline.RetryPromote("sub-5", "/does/not/exist.psd", "video", 2026, "artifact.psd")
	require.NoError(t, err)
	assert.False(t, promoted)
}

func TestClearRequestRemovesOnlyMatchingEntry(t *testing.T) {
	docs, err := docstore.New(t.TempDir(), nil, 0)
	require.NoError(t, err)
	// Both the project and staging roots are unreachable, so every
	// placement escalates to a manual request.
	pipeline := placement.New(docs, unreachableDir(t), unreachableDir(t))

	src1 := writeUpload(t, "a")
	src2 := writeUpload(t, "b")
	_, err = pipeline.Place("keep", src1, "video", 2026, "a.psd")
	require.NoError(t, err)
	_, err = pipeline.Place("drop", src2, "video", 2026, "b.psd")
	require.NoError(t, err)

	require.NoError(t, pipeline.ClearRequest("drop"))
	requests, err := pipeline.OpenRequests()
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "keep", requests[0].SubmissionID)
}
