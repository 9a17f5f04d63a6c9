// Package assetcache provides offline availability for a fixed allowlist of
// static assets. A worker installs one versioned cache, activates by
// deleting every other version, and serves allowlisted paths cache-first.
// The cache is static per version; bumping the version name is the only
// update mechanism.
package assetcache

import (
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/peterbourgon/diskv/v3"
)

// State is the worker lifecycle phase.
type State int

const (
	StateInstalling State = iota
	StateActivating
	StateActive
	StateFailed
)

// Worker owns one versioned cache directory under baseDir. Install and
// Activate run from a background goroutine while Handler serves requests,
// so the lifecycle state is atomic.
type Worker struct {
	version   string
	baseDir   string
	origin    string
	allowlist map[string]struct{}
	cache     *diskv.Diskv
	client    *http.Client
	state     atomic.Int32
}

func New(baseDir, version, origin string, allowlist []string) *Worker {
	allowed := make(map[string]struct{}, len(allowlist))
	for _, path := range allowlist {
		allowed[path] = struct{}{}
	}
	w := &Worker{
		version:   version,
		baseDir:   baseDir,
		origin:    strings.TrimRight(origin, "/"),
		allowlist: allowed,
		cache: diskv.New(diskv.Options{
			BasePath:     filepath.Join(baseDir, version),
			CacheSizeMax: 1024 * 1024,
		}),
		client: http.DefaultClient,
	}
	w.state.Store(int32(StateInstalling))
	return w
}

// WithHTTPClient overrides the install-time fetcher, for tests.
func (w *Worker) WithHTTPClient(c *http.Client) *Worker {
	w.client = c
	return w
}

// State returns the current lifecycle phase.
func (w *Worker) State() State { return State(w.state.Load()) }

// Version returns the cache name this worker owns.
func (w *Worker) Version() string { return w.version }

// Install populates the versioned cache from the origin. Any single fetch
// failure fails the install; the worker then never activates and requests
// fall through to the network untouched.
func (w *Worker) Install() error {
	for path := range w.allowlist {
		if err := w.fetchIntoCache(path); err != nil {
			w.state.Store(int32(StateFailed))
			return fmt.Errorf("install %s: %w", path, err)
		}
	}
	w.state.Store(int32(StateActivating))
	return nil
}

// Activate removes every cached version whose name differs from the current
// one, then starts serving.
func (w *Worker) Activate() error {
	if state := w.State(); state != StateActivating {
		return fmt.Errorf("activate from state %d", state)
	}
	entries, err := os.ReadDir(w.baseDir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == w.version {
			continue
		}
		stale := filepath.Join(w.baseDir, entry.Name())
		if err := os.RemoveAll(stale); err != nil {
			return fmt.Errorf("delete stale cache %s: %w", entry.Name(), err)
		}
		log.Printf("assetcache: deleted old cache %s", entry.Name())
	}
	w.state.Store(int32(StateActive))
	return nil
}

// Handler serves allowlisted GET requests cache-first, falling back to next
// on a miss. Requests outside the allowlist are not intercepted at all.
// Nothing fetched at serve time is re-cached.
func (w *Worker) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if w.State() != StateActive || r.Method != http.MethodGet {
			next.ServeHTTP(rw, r)
			return
		}
		if _, ok := w.allowlist[r.URL.Path]; !ok {
			next.ServeHTTP(rw, r)
			return
		}
		data, err := w.cache.Read(cacheKey(r.URL.Path))
		if err != nil {
			next.ServeHTTP(rw, r)
			return
		}
		if ct := contentTypeFor(r.URL.Path); ct != "" {
			rw.Header().Set("Content-Type", ct)
		}
		rw.Write(data)
	})
}

func (w *Worker) fetchIntoCache(path string) error {
	resp, err := w.client.Get(w.origin + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return w.cache.Write(cacheKey(path), data)
}

// cacheKey flattens a URL path into a diskv key.
func cacheKey(path string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(path))
}

func contentTypeFor(path string) string {
	return mime.TypeByExtension(filepath.Ext(path))
}
