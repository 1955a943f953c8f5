// Package placement moves an approved artifact from its upload
// location to {project}/{team}/{year}/{filename}, falling back to a
// staged copy and then a manual-placement request when direct
// placement is denied, with collision-avoidance naming throughout. A
// background retrier re-attempts the direct move until it lands.
package placement

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"silexa/approvals/internal/approval"
	"silexa/approvals/internal/docstore"
)

// Request is one open manual-placement request, appended to
// placement_requests.json when both direct move and staging fail.
type Request struct {
	SubmissionID string `json:"submission_id"`
	From         string `json:"from"`
	To           string `json:"to"`
	Reason       string `json:"reason"`
}

type requestLog struct {
	Requests []Request `json:"requests"`
}

const requestsDoc = "placement_requests.json"

// Pipeline relocates approved artifacts, with staged fallback and a
// manual-request escalation, never overwriting an existing target.
type Pipeline struct {
	docs        *docstore.Store
	projectRoot string
	stagingRoot string
}

func New(docs *docstore.Store, projectRoot, stagingRoot string) *Pipeline {
	return &Pipeline{docs: docs, projectRoot: projectRoot, stagingRoot: stagingRoot}
}

// Outcome is the result of one placement attempt.
type Outcome struct {
	PlacementOutcome approval.PlacementOutcome
	TargetPath       string
}

// Place attempts to relocate sourcePath (the submission's upload_path)
// to team/year/filename under the project root. On a permission
// failure it copies into the staging root instead; if staging also
// fails it records a manual-placement request. The caller (internal
// engine) never rolls back the approval transition regardless of the
// outcome here.
func (p *Pipeline) Place(submissionID, sourcePath, team string, year int, filename string) (Outcome, error) {
	// A target-resolution failure (unreachable or read-only project
	// root) is just another way the direct move can fail: fall through
	// to staging with the nominal target recorded for the request.
	target, err := resolveCollisionFreePath(p.projectRoot, team, year, filename)
	if err != nil {
		target = nominalPath(p.projectRoot, team, year, filename)
	} else if err := moveFile(sourcePath, target); err == nil {
		return Outcome{PlacementOutcome: approval.PlacementDelivered, TargetPath: target}, nil
	}

	stagedTarget, stageErr := resolveCollisionFreePath(p.stagingRoot, team, year, filename)
	if stageErr == nil {
		if copyErr := copyFile(sourcePath, stagedTarget); copyErr == nil {
			return Outcome{PlacementOutcome: approval.PlacementStaged, TargetPath: stagedTarget}, nil
		}
	}

	if err := p.recordManualRequest(submissionID, sourcePath, target, "direct move and staging both failed"); err != nil {
		return Outcome{}, err
	}
	return Outcome{PlacementOutcome: approval.PlacementManualRequested, TargetPath: target}, nil
}

// RetryPromote re-attempts step 2 (direct move) for a submission whose
// placement_outcome is STAGED or MANUAL_REQUESTED. Retries are
// idempotent because the target is computed fresh each attempt. On
// promotion to DELIVERED, any staged copy at the previously recorded
// path is removed.
func (p *Pipeline) RetryPromote(submissionID, currentArtifactPath, team string, year int, filename string) (Outcome, bool, error) {
	target, err := resolveCollisionFreePath(p.projectRoot, team, year, filename)
	if err != nil {
		// Still unreachable; the next sweep will try again.
		return Outcome{}, false, nil
	}
	if err := moveFile(currentArtifactPath, target); err != nil {
		return Outcome{}, false, nil
	}
	return Outcome{PlacementOutcome: approval.PlacementDelivered, TargetPath: target}, true, nil
}

func (p *Pipeline) recordManualRequest(submissionID, from, to, reason string) error {
	var rl requestLog
	return p.docs.Modify(requestsDoc, &rl, false, func() error {
		for _, r := range rl.Requests {
			if r.SubmissionID == submissionID {
				return nil
			}
		}
		rl.Requests = append(rl.Requests, Request{SubmissionID: submissionID, From: from, To: to, Reason: reason})
		return nil
	})
}

// OpenRequests returns the current manual-placement request log.
func (p *Pipeline) OpenRequests() ([]Request, error) {
	var rl requestLog
	if err := p.docs.ReadInto(requestsDoc, &rl); err != nil {
		return nil, err
	}
	return rl.Requests, nil
}

// ClearRequest removes submissionID's manual-placement request once it
// has been promoted to DELIVERED.
func (p *Pipeline) ClearRequest(submissionID string) error {
	var rl requestLog
	return p.docs.Modify(requestsDoc, &rl, false, func() error {
		out := rl.Requests[:0]
		for _, r := range rl.Requests {
			if r.SubmissionID != submissionID {
				out = append(out, r)
			}
		}
		rl.Requests = out
		return nil
	})
}

func nominalPath(root, team string, year int, filename string) string {
	return filepath.Join(root, team, fmt.Sprintf("%04d", year), filename)
}

// resolveCollisionFreePath computes root/team/YYYY/filename, appending
// " (n)" before the extension with the smallest n >= 1 that is free,
// never overwriting an existing file.
func resolveCollisionFreePath(root, team string, year int, filename string) (string, error) {
	dir := filepath.Join(root, team, fmt.Sprintf("%04d", year))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create target dir %s: %w", dir, err)
	}

	candidate := filepath.Join(dir, filename)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	for n := 1; ; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
}

func moveFile(src, dst string) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing to place symlink %s", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Cross-device rename falls back to copy+remove.
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	if fi, err := os.Lstat(src); err != nil {
		return err
	} else if fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing to place symlink %s", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(dst)
		return err
	}
	return out.Sync()
}
