// Package docstore implements read/modify/append/list over named JSON
// documents with per-document exclusive locking, atomic
// write-temp-then-rename persistence, and corruption-safe loading.
//
// Writes take two lock layers: an in-process mutex per document path,
// then a cross-process advisory file lock (gofrs/flock), so that
// independent processes mutating the same shared tree serialize too.
package docstore

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"

	"silexa/approvals/internal/apperr"
)

// Store reads and writes JSON documents rooted at a base directory.
// One Store instance should be shared by everything in a process that
// touches a given root; it keeps an in-process mutex per document path
// so that same-process callers serialize before ever reaching the
// cross-process file lock.
type Store struct {
	root string
	log  *log.Logger

	docMu sync.Mutex
	locks map[string]*sync.Mutex

	readCache *lru.Cache[string, cachedDoc]
}

// cachedDoc pairs a document's bytes with the mtime they were read at.
// A cache hit is only served while a fresh stat reports the same mtime,
// so writes from other processes invalidate naturally.
type cachedDoc struct {
	mtime time.Time
	data  []byte
}

// New builds a Store rooted at root. readCacheSize bounds the number of
// documents whose last-read bytes are cached for non-locking Read calls;
// 0 disables the cache.
func New(root string, logger *log.Logger, readCacheSize int) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, err, "create store root %s", root)
	}
	s := &Store{root: root, log: logger, locks: make(map[string]*sync.Mutex)}
	if readCacheSize > 0 {
		c, err := lru.New[string, cachedDoc](readCacheSize)
		if err != nil {
			return nil, err
		}
		s.readCache = c
	}
	return s, nil
}

func (s *Store) path(doc string) string {
	return filepath.Join(s.root, filepath.FromSlash(doc))
}

func (s *Store) inProcessLock(doc string) *sync.Mutex {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	m, ok := s.locks[doc]
	if !ok {
		m = &sync.Mutex{}
		s.locks[doc] = m
	}
	return m
}

// Read returns the raw bytes of doc without acquiring any lock. It may
// return a slightly stale snapshot relative to an in-flight Modify.
// Returns apperr.NotFound if the document has never been written.
//
// With a read cache configured, an unchanged document (same mtime as
// the cached entry) is served from memory after a stat, skipping the
// full file read.
func (s *Store) Read(doc string) ([]byte, error) {
	p := s.path(doc)

	if s.readCache != nil {
		if cached, ok := s.readCache.Get(doc); ok {
			if fi, err := os.Stat(p); err == nil && fi.ModTime().Equal(cached.mtime) {
				return cached.data, nil
			}
		}
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.NotFound, "document %s not found", doc)
		}
		return nil, apperr.Wrap(apperr.StoreUnavailable, err, "read %s", doc)
	}
	if s.readCache != nil {
		if fi, err := os.Stat(p); err == nil {
			s.readCache.Add(doc, cachedDoc{mtime: fi.ModTime(), data: data})
		}
	}
	return data, nil
}

// ReadInto reads doc and unmarshals it into out. A missing document
// leaves out untouched and returns no error so callers can treat a
// zero-value out as the "never written" case.
func (s *Store) ReadInto(doc string, out any) error {
	data, err := s.Read(doc)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Wrap(apperr.Corrupt, err, "parse %s", doc)
	}
	return nil
}

// ModifyFunc mutates the in-memory value of a document. It takes no
// arguments: it works on the value Modify has already unmarshaled into
// the out pointer passed to Modify (left at its zero value if the
// document does not yet exist). Returning an error aborts the
// modification without writing anything.
type ModifyFunc func() error

// Modify acquires the document's exclusive lock (in-process, then
// cross-process advisory), loads current contents into out (zero value
// if not-found, or failing with Corrupt unless salvage is set), invokes
// fn to mutate out in place, then persists out atomically. The lock is
// held across the full sequence and released on every exit path.
func (s *Store) Modify(doc string, out any, salvage bool, fn ModifyFunc) error {
	inproc := s.inProcessLock(doc)
	inproc.Lock()
	defer inproc.Unlock()

	p := s.path(doc)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, err, "create parent dir for %s", doc)
	}

	fl := flock.New(p + ".lock")
	if err := fl.Lock(); err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, err, "acquire file lock for %s", doc)
	}
	defer fl.Unlock()

	data, err := os.ReadFile(p)
	switch {
	case os.IsNotExist(err):
		// zero value of out stands.
	case err != nil:
		return apperr.Wrap(apperr.StoreUnavailable, err, "read %s", doc)
	case len(data) > 0:
		if uerr := json.Unmarshal(data, out); uerr != nil {
			if !salvage {
				return apperr.Wrap(apperr.Corrupt, uerr, "parse %s", doc)
			}
			s.log.Printf("docstore: salvaging corrupt document %s: %v", doc, uerr)
		}
	}

	if err := fn(); err != nil {
		return err
	}

	return s.persist(p, out)
}

// Append is a convenience wrapper over Modify for documents holding a
// JSON array: it loads the array into items, appends record marshaled
// as JSON, and persists the result.
func (s *Store) Append(doc string, items *[]json.RawMessage, record any) error {
	return s.Modify(doc, items, false, func() error {
		raw, err := json.Marshal(record)
		if err != nil {
			return apperr.Wrap(apperr.BadInput, err, "marshal record for %s", doc)
		}
		*items = append(*items, raw)
		return nil
	})
}

// List enumerates document names (relative to root, slash-separated)
// whose path starts with prefix.
func (s *Store) List(prefix string) ([]string, error) {
	var out []string
	base := s.root
	err := filepath.WalkDir(base, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(p) == ".tmp" || filepath.Ext(p) == ".lock" {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if prefix == "" || hasPrefix(rel, prefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, err, "list %s", prefix)
	}
	return out, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// persist marshals v and atomically replaces the file at p: write to a
// ".tmp" sibling, fsync, rename over the target.
func (s *Store) persist(p string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.BadInput, err, "marshal %s", p)
	}

	tmp := p + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, err, "open tmp for %s", p)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperr.Wrap(apperr.StoreUnavailable, err, "write tmp for %s", p)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperr.Wrap(apperr.StoreUnavailable, err, "fsync tmp for %s", p)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return apperr.Wrap(apperr.StoreUnavailable, err, "close tmp for %s", p)
	}
	if err := os.Rename(tmp, p); err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, err, "rename tmp for %s", p)
	}

	if s.readCache != nil {
		rel, rerr := filepath.Rel(s.root, p)
		fi, serr := os.Stat(p)
		if rerr == nil && serr == nil {
			s.readCache.Add(filepath.ToSlash(rel), cachedDoc{mtime: fi.ModTime(), data: data})
		}
	}
	return nil
}

// LastModified returns the mtime of doc, used by pollers to detect
// inbox growth without rereading the full document.
func (s *Store) LastModified(doc string) (time.Time, error) {
	fi, err := os.Stat(s.path(doc))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, apperr.New(apperr.NotFound, "document %s not found", doc)
		}
		return time.Time{}, apperr.Wrap(apperr.StoreUnavailable, err, "stat %s", doc)
	}
	return fi.ModTime(), nil
}
