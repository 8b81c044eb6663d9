// Package cache stores acquired media files on disk behind a
// least-recently-used index with file-count, byte-size, and age limits.
// Concurrent requests for the same key share a single acquisition.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	apperrors "github.com/harmoniaapp/harmonia-server/internal/errors"
)

// Config bounds the cache.
type Config struct {
	Dir      string
	MaxFiles int
	MaxBytes int64
	TTL      time.Duration
}

type entry struct {
	key     string
	path    string
	size    int64
	touched time.Time
}

type inflight struct {
	done chan struct{}
	path string
	err  error
}

// Cache is a disk-backed LRU of media files.
type Cache struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	order   *list.List               // front is most recent
	index   map[string]*list.Element // key -> element holding *entry
	bytes   int64
	pending map[string]*inflight
}

// New opens the cache directory and rebuilds the index from the files
// already present. Stale partial files from interrupted acquisitions
// are removed.
func New(cfg Config, log *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{
		cfg:     cfg,
		log:     log,
		order:   list.New(),
		index:   make(map[string]*list.Element),
		pending: make(map[string]*inflight),
	}
	if err := c.rebuild(); err != nil {
		return nil, err
	}
	return c, nil
}

// FilePath returns the on-disk location a key maps to, whether or not
// it is cached.
func (c *Cache) FilePath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.cfg.Dir, hex.EncodeToString(sum[:])+".m4a")
}

// Get returns the cached file path for key if present and still on
// disk. A hit refreshes the entry's age. An index entry whose file has
// been removed out of band is dropped and reported as a miss.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		// A file indexed during a restart scan carries a synthetic key,
		// but its name is the hash of the real key. Re-key on first hit.
		recovered := "recovered:" + filepath.Base(c.FilePath(key))
		if el, ok = c.index[recovered]; !ok {
			return "", false
		}
		delete(c.index, recovered)
		c.index[key] = el
		el.Value.(*entry).key = key
	}
	e := el.Value.(*entry)

	if time.Since(e.touched) > c.cfg.TTL {
		c.removeLocked(el, true)
		return "", false
	}
	if _, err := os.Stat(e.path); err != nil {
		c.log.Warn("cached file missing, dropping index entry", "key", key, "path", e.path)
		c.removeLocked(el, false)
		return "", false
	}

	e.touched = time.Now()
	c.order.MoveToFront(el)
	return e.path, true
}

// InProgress reports whether an acquisition for key is currently
// running.
func (c *Cache) InProgress(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

// FetchFunc writes the media for a key to dest. It must either produce
// a complete file at dest or return an error.
type FetchFunc func(ctx context.Context, dest string) error

// GetOrFetch returns the cached path for key, running fetch to acquire
// it on a miss. Concurrent callers with the same key block on the one
// acquisition already underway and share its outcome.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (string, error) {
	if path, ok := c.Get(key); ok {
		return path, nil
	}

	c.mu.Lock()
	// Re-check under the lock: another caller may have completed the
	// acquisition between Get and here.
	if el, ok := c.index[key]; ok {
		e := el.Value.(*entry)
		e.touched = time.Now()
		c.order.MoveToFront(el)
		c.mu.Unlock()
		return e.path, nil
	}
	if flight, ok := c.pending[key]; ok {
		c.mu.Unlock()
		select {
		case <-flight.done:
			return flight.path, flight.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	flight := &inflight{done: make(chan struct{})}
	c.pending[key] = flight
	c.mu.Unlock()

	path, err := c.acquire(ctx, key, fetch)
	flight.path, flight.err = path, err

	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
	close(flight.done)

	return path, err
}

func (c *Cache) acquire(ctx context.Context, key string, fetch FetchFunc) (string, error) {
	final := c.FilePath(key)
	partial := final + ".part"

	if err := fetch(ctx, partial); err != nil {
		_ = os.Remove(partial)
		return "", err
	}

	info, err := os.Stat(partial)
	if err != nil {
		return "", fmt.Errorf("stat acquired file: %w", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(partial)
		return "", apperrors.ExtractionFailed("acquisition produced an empty file")
	}
	if err := os.Rename(partial, final); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("finalize cached file: %w", err)
	}

	c.mu.Lock()
	c.insertLocked(key, final, info.Size())
	c.evictLocked()
	c.mu.Unlock()

	c.log.Info("cached media", "key", key, "bytes", info.Size())
	return final, nil
}

// Invalidate removes key from the index and deletes its file.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.removeLocked(el, true)
	}
}

// Len returns the number of cached files.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Bytes returns the total size of cached files.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

func (c *Cache) insertLocked(key, path string, size int64) {
	if el, ok := c.index[key]; ok {
		c.removeLocked(el, false)
	}
	e := &entry{key: key, path: path, size: size, touched: time.Now()}
	c.index[key] = c.order.PushFront(e)
	c.bytes += size
}

// evictLocked trims least-recently-used entries until the cache fits
// its limits. The file is unlinked before the index forgets it, so an
// index entry never outlives its file by more than the eviction itself.
func (c *Cache) evictLocked() {
	for c.order.Len() > c.cfg.MaxFiles || c.bytes > c.cfg.MaxBytes {
		back := c.order.Back()
		if back == nil {
			return
		}
		e := back.Value.(*entry)
		c.log.Debug("evicting cached media", "key", e.key, "bytes", e.size)
		c.removeLocked(back, true)
	}
}

func (c *Cache) removeLocked(el *list.Element, unlink bool) {
	e := el.Value.(*entry)
	if unlink {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			c.log.Warn("failed to remove cached file", "path", e.path, "error", err)
		}
	}
	c.order.Remove(el)
	delete(c.index, e.key)
	c.bytes -= e.size
}

// rebuild scans the cache directory after a restart. Complete files are
// re-indexed under a synthetic key derived from their name (their real
// keys are unrecoverable, but re-indexing keeps them eligible for
// eviction instead of leaking disk). Partial files are deleted.
func (c *Cache) rebuild() error {
	entries, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		return fmt.Errorf("scan cache dir: %w", err)
	}

	type found struct {
		name string
		size int64
		mod  time.Time
	}
	var files []found

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		full := filepath.Join(c.cfg.Dir, name)
		if filepath.Ext(name) == ".part" {
			c.log.Info("removing stale partial file", "path", full)
			_ = os.Remove(full)
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, found{name: name, size: info.Size(), mod: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })

	for _, f := range files {
		e := &entry{
			key:     "recovered:" + f.name,
			path:    filepath.Join(c.cfg.Dir, f.name),
			size:    f.size,
			touched: f.mod,
		}
		c.index[e.key] = c.order.PushFront(e)
		c.bytes += f.size
	}
	c.evictLocked()

	if len(files) > 0 {
		c.log.Info("rebuilt cache index", "files", c.order.Len(), "bytes", c.bytes)
	}
	return nil
}
