// policy.go enforces submission intake policy: path-safety on the
// original filename, a max-open-submissions-per-user throttle, and an
// optional content-type allowlist. The knobs come from the layered
// config (APPROVAL_MAX_OPEN_PER_USER / APPROVAL_ALLOWED_CONTENT_TYPES),
// not a second, parallel env read here.
package engine

import (
	"path/filepath"
	"strings"

	"silexa/approvals/internal/apperr"
)

// Policy holds the intake guard's tunables.
type Policy struct {
	MaxOpenSubmissionsPerUser int      // 0 means unlimited
	AllowedContentTypes       []string // empty means "allow any"
}

// validateSubmitPolicy checks a prospective submission against the
// intake policy: path-safety on the filename, the per-user open-count
// throttle, and the content-type allowlist.
func validateSubmitPolicy(p Policy, originalFilename, contentType string, openCount int) error {
	if err := validateFilenameSafety(originalFilename); err != nil {
		return err
	}
	if p.MaxOpenSubmissionsPerUser > 0 && openCount >= p.MaxOpenSubmissionsPerUser {
		return apperr.New(apperr.BadInput,
			"user already has %d open submissions (limit %d)", openCount, p.MaxOpenSubmissionsPerUser)
	}
	if len(p.AllowedContentTypes) > 0 && contentType != "" {
		ok := false
		for _, ct := range p.AllowedContentTypes {
			if strings.EqualFold(strings.TrimSpace(ct), contentType) {
				ok = true
				break
			}
		}
		if !ok {
			return apperr.New(apperr.BadInput, "content type %q is not allowed", contentType)
		}
	}
	return nil
}

// validateFilenameSafety rejects any original_filename containing path
// separators, NUL, or parent references.
func validateFilenameSafety(name string) error {
	if name == "" {
		return apperr.New(apperr.BadInput, "original_filename must not be empty")
	}
	if len(name) > 255 {
		return apperr.New(apperr.BadInput, "original_filename too long")
	}
	if strings.ContainsRune(name, 0) {
		return apperr.New(apperr.BadInput, "original_filename contains NUL")
	}
	if strings.ContainsAny(name, `/\`) {
		return apperr.New(apperr.BadInput, "original_filename must not contain path separators")
	}
	if name == "." || name == ".." {
		return apperr.New(apperr.BadInput, "original_filename must not be a parent reference")
	}
	if filepath.Base(name) != name {
		return apperr.New(apperr.BadInput, "original_filename must be a bare filename")
	}
	return nil
}
