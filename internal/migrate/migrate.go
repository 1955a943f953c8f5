// Package migrate performs the one-shot legacy-comment consolidation.
// Older deployments kept a second flat approval_comments.json next to
// the per-submission thread; the approval core keeps a single
// comments/{id}.json and this package merges any legacy sibling into
// it exactly once, then deletes it, so the hot path never dual-reads.
package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"silexa/approvals/internal/comments"
)

// legacyComment mirrors the shape the old approval_comments.json
// documents used: same fields as comments.Comment, field names intact
// so json.Unmarshal needs no translation layer.
type legacyComment = comments.Comment

// CommentsOnce merges legacyPath (if it exists) into the canonical
// comments/{submissionID}.json document via store, then removes
// legacyPath so a second run is a no-op. It is invoked from
// approvalctl migrate-comments, never from the hot request path.
func CommentsOnce(store *comments.Store, legacyPath, submissionID string) (merged int, err error) {
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read legacy comments %s: %w", legacyPath, err)
	}

	var legacy []legacyComment
	if err := json.Unmarshal(data, &legacy); err != nil {
		return 0, fmt.Errorf("parse legacy comments %s: %w", legacyPath, err)
	}

	existing, err := store.List(submissionID)
	if err != nil {
		return 0, fmt.Errorf("list existing comments for %s: %w", submissionID, err)
	}

	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[c.ID] = true
	}

	sort.Slice(legacy, func(i, j int) bool { return legacy[i].At.Before(legacy[j].At) })

	var toMerge []legacyComment
	for _, c := range legacy {
		if !seen[c.ID] {
			toMerge = append(toMerge, c)
			seen[c.ID] = true
		}
	}
	if len(toMerge) == 0 {
		return 0, os.Remove(legacyPath)
	}

	if err := store.AppendRaw(submissionID, toMerge); err != nil {
		return 0, fmt.Errorf("merge legacy comments for %s: %w", submissionID, err)
	}

	if err := os.Remove(legacyPath); err != nil {
		return len(toMerge), fmt.Errorf("remove legacy comments %s after merge: %w", legacyPath, err)
	}
	return len(toMerge), nil
}
