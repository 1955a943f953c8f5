// Package pathresolver resolves the engine's logical roots to physical
// locations, probing reachability of the shared network mount and
// falling back to local disk when it is unreachable. Probe results are
// cached for a TTL; concurrent probes of the same root collapse into
// one filesystem check via singleflight.
package pathresolver

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Root names the logical roots the engine addresses.
type Root string

const (
	RootQueue    Root = "queue"
	RootArchive  Root = "archive"
	RootNotify   Root = "notify"
	RootUpload   Root = "upload"
	RootProject  Root = "project"
	RootMetadata Root = "metadata"
	RootStaging  Root = "staging"
)

// Config carries the network and local-fallback base directories plus
// how long a reachability probe result is cached.
type Config struct {
	NetworkRoot   string
	LocalFallback string
	ProjectRoot   string
	StagingRoot   string
	MetadataRoot  string
	ProbeCacheTTL time.Duration
}

type probeResult struct {
	ok      bool
	checked time.Time
}

// Resolver resolves logical roots to physical directories, probing the
// network root's writability and caching the result for ProbeCacheTTL.
type Resolver struct {
	cfg Config

	mu     sync.RWMutex
	probes map[string]probeResult

	group singleflight.Group

	degraded atomic.Bool
}

func New(cfg Config) *Resolver {
	if cfg.ProbeCacheTTL <= 0 {
		cfg.ProbeCacheTTL = 30 * time.Second
	}
	return &Resolver{cfg: cfg, probes: make(map[string]probeResult)}
}

// Degraded reports whether the most recent probe found the network root
// unreachable. It is safe to call from any goroutine.
func (r *Resolver) Degraded() bool { return r.degraded.Load() }

// Resolve returns the physical base directory for the given logical root,
// probing reachability of the network mount as needed (cached, at most
// ProbeCacheTTL old, coalesced across concurrent callers).
func (r *Resolver) Resolve(root Root) (string, error) {
	base := r.networkBase(root)
	if base == "" {
		return "", fmt.Errorf("unresolvable root %q", root)
	}
	if r.probeNetwork() {
		r.degraded.Store(false)
		return base, nil
	}
	r.degraded.Store(true)
	return r.localBase(root), nil
}

// networkBase maps a logical root onto the shared filesystem layout:
// queue, archive, comments, and placement_requests all live under a
// single "approvals" tree (RootQueue and RootArchive both resolve
// there; store callers address individual documents by name within it).
func (r *Resolver) networkBase(root Root) string {
	switch root {
	case RootQueue, RootArchive:
		return filepath.Join(r.cfg.NetworkRoot, "approvals")
	case RootNotify:
		return filepath.Join(r.cfg.NetworkRoot, "notifications")
	case RootUpload:
		return filepath.Join(r.cfg.NetworkRoot, "uploads")
	case RootProject:
		return r.cfg.ProjectRoot
	case RootStaging:
		return r.cfg.StagingRoot
	case RootMetadata:
		return r.cfg.MetadataRoot
	default:
		return ""
	}
}

func (r *Resolver) localBase(root Root) string {
	switch root {
	case RootQueue, RootArchive:
		return filepath.Join(r.cfg.LocalFallback, "approvals")
	case RootNotify:
		return filepath.Join(r.cfg.LocalFallback, "notifications")
	case RootUpload:
		return filepath.Join(r.cfg.LocalFallback, "uploads")
	case RootProject:
		return filepath.Join(r.cfg.LocalFallback, "projects")
	case RootStaging:
		return filepath.Join(r.cfg.LocalFallback, "staging")
	case RootMetadata:
		return filepath.Join(r.cfg.LocalFallback, "metadata")
	default:
		return ""
	}
}

// probeNetwork reports whether the network root is currently reachable
// (exists, or can be created, and accepts a sentinel write). The result
// is cached for ProbeCacheTTL and concurrent probes of the root are
// collapsed via singleflight.
func (r *Resolver) probeNetwork() bool {
	r.mu.RLock()
	cached, ok := r.probes[r.cfg.NetworkRoot]
	r.mu.RUnlock()
	if ok && time.Since(cached.checked) < r.cfg.ProbeCacheTTL {
		return cached.ok
	}

	v, _, _ := r.group.Do(r.cfg.NetworkRoot, func() (any, error) {
		ok := probeWritable(r.cfg.NetworkRoot)
		r.mu.Lock()
		r.probes[r.cfg.NetworkRoot] = probeResult{ok: ok, checked: time.Now()}
		r.mu.Unlock()
		return ok, nil
	})
	return v.(bool)
}

// probeWritable performs an idempotent sentinel write under root: create
// the directory if absent, write a fixed-name marker file, and read it
// back. Any failure means the root is not currently usable.
func probeWritable(root string) bool {
	if root == "" {
		return false
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return false
	}
	sentinel := filepath.Join(root, ".approvals-probe")
	if err := os.WriteFile(sentinel, []byte("ok"), 0o644); err != nil {
		return false
	}
	if _, err := os.ReadFile(sentinel); err != nil {
		return false
	}
	return true
}
