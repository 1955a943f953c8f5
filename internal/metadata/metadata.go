// Package metadata keeps per-file metadata sidecars keyed by (team,
// year, filename), stored in a tree distinct from the project tree so
// the project tree holds only artifacts. Legacy sidecars co-located
// with the project file are read transparently if present, but never
// created by this package.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"silexa/approvals/internal/docstore"
)

// Record is the metadata sidecar written on admin approval.
type Record struct {
	Filename         string   `json:"filename"`
	Team             string   `json:"team"`
	Year             int      `json:"year"`
	Submitter        string   `json:"submitter"`
	ApproverChain    []string `json:"approver_chain"`
	ApprovedAt       string   `json:"approved_at"`
	Description      string   `json:"description"`
	Tags             []string `json:"tags,omitempty"`
	SourceUploadPath string   `json:"source_upload_path"`
	FinalPath        string   `json:"final_path,omitempty"`
}

// Store reads and writes metadata sidecars.
type Store struct {
	docs        *docstore.Store
	projectRoot string // for legacy same-directory fallback reads only
}

func New(docs *docstore.Store, projectRoot string) *Store {
	return &Store{docs: docs, projectRoot: projectRoot}
}

func sidecarDoc(team string, year int, filename string) string {
	return fmt.Sprintf("%s/%04d/%s.meta.json", team, year, filename)
}

// Put writes (overwrites) the sidecar for (team, year, filename).
func (s *Store) Put(rec Record) error {
	doc := sidecarDoc(rec.Team, rec.Year, rec.Filename)
	var out Record
	return s.docs.Modify(doc, &out, false, func() error {
		out = rec
		return nil
	})
}

// Get returns the sidecar for (team, year, filename), falling back to
// a legacy same-directory sidecar under the project tree if the
// canonical one under METADATA_ROOT does not exist. The legacy path is
// never written to.
func (s *Store) Get(team string, year int, filename string) (Record, error) {
	var rec Record
	err := s.docs.ReadInto(sidecarDoc(team, year, filename), &rec)
	if err == nil && rec.Filename != "" {
		return rec, nil
	}
	if err != nil {
		return Record{}, err
	}
	return s.legacyFallback(team, year, filename)
}

// legacyFallback reads {projectRoot}/{team}/{year}/{filename}.meta.json
// if present, the co-located layout some older deployments used before
// the metadata tree was split out.
func (s *Store) legacyFallback(team string, year int, filename string) (Record, error) {
	if s.projectRoot == "" {
		return Record{}, nil
	}
	legacyPath := filepath.Join(s.projectRoot, team, fmt.Sprintf("%04d", year), filename+".meta.json")
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		return Record{}, nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, nil
	}
	return rec, nil
}

// List returns every sidecar under (team, year).
func (s *Store) List(team string, year int) ([]Record, error) {
	prefix := fmt.Sprintf("%s/%04d/", team, year)
	names, err := s.docs.List(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(names))
	for _, n := range names {
		var rec Record
		if err := s.docs.ReadInto(n, &rec); err == nil && rec.Filename != "" {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Search returns every sidecar (regardless of team/year) matching pred.
func (s *Store) Search(pred func(Record) bool) ([]Record, error) {
	names, err := s.docs.List("")
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, n := range names {
		var rec Record
		if err := s.docs.ReadInto(n, &rec); err == nil && rec.Filename != "" && pred(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}
