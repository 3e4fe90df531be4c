// Package cache is the content-addressed, byte-bounded artifact
// store. It keeps the teacher's sized-LRU shape (internal/cache
// sized_cache.go: container/list + map + byte accounting) but moves
// the bytes themselves onto disk under cache_dir and adds SHA-256
// verification on put plus reference counting so eviction never
// breaks an in-flight read, per the artifact cache's eviction
// invariant.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrIntegrityMismatch is returned by Put when the recomputed hash of
// the supplied bytes does not match the caller's expected hash.
var ErrIntegrityMismatch = errors.New("cache: integrity mismatch")

// ErrNotFound is returned by Get for an unknown hash.
var ErrNotFound = errors.New("cache: not found")

type entry struct {
	hash       string
	size       int64
	lastAccess time.Time
	refs       int
	// deleted marks an entry evicted from the index while still
	// referenced by an in-flight reader; its file is unlinked once
	// refs drops to zero.
	deleted bool
}

// Cache is a disk-backed, SHA-256-content-addressed store bounded by
// total byte size, LRU-evicted.
type Cache struct {
	mu       sync.Mutex
	dir      string
	maxBytes int64
	curBytes int64

	index   map[string]*list.Element
	lru     *list.List // of *entry, front = most recently used

	// evictedEntries holds entries dropped from index/lru while a
	// reader still held them open; release() unlinks their file once
	// the last reference goes away.
	evictedEntries map[string]*entry

	hits, misses, evictions int64

	log *zap.Logger
}

// New creates a cache rooted at dir, bounded to maxBytes. dir is
// created if absent.
func New(dir string, maxBytes int64, log *zap.Logger) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}
	return &Cache{
		dir:            dir,
		maxBytes:       maxBytes,
		index:          make(map[string]*list.Element),
		lru:            list.New(),
		evictedEntries: make(map[string]*entry),
		log:            log,
	}, nil
}

func (c *Cache) path(hash string) string {
	return filepath.Join(c.dir, hash+".wasm")
}

// Reader is a held reference to cached bytes; Close releases it and,
// if the entry was evicted while the reader was outstanding, unlinks
// the file.
type Reader struct {
	io.ReadCloser
	cache *Cache
	hash  string
}

// Close releases the reference this Reader held on the cache entry.
func (r *Reader) Close() error {
	err := r.ReadCloser.Close()
	r.cache.release(r.hash)
	return err
}

// Get opens the cached blob for hash, bumping its LRU recency. The
// returned Reader must be closed by the caller; until it is, the
// entry will not be unlinked from disk even if evicted.
func (c *Cache) Get(hash string) (*Reader, error) {
	c.mu.Lock()
	el, ok := c.index[hash]
	if !ok {
		c.misses++
		c.mu.Unlock()
		return nil, ErrNotFound
	}
	e := el.Value.(*entry)
	c.lru.MoveToFront(el)
	e.lastAccess = time.Now()
	e.refs++
	c.hits++
	c.mu.Unlock()

	f, err := os.Open(c.path(hash))
	if err != nil {
		c.release(hash)
		return nil, fmt.Errorf("cache: open %s: %w", hash, err)
	}
	return &Reader{ReadCloser: f, cache: c, hash: hash}, nil
}

func (c *Cache) release(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[hash]
	if ok {
		e := el.Value.(*entry)
		e.refs--
		return
	}
	// Evicted while this reader was outstanding; drop the file once
	// the last reference goes away.
	if e, ok := c.evictedEntries[hash]; ok {
		e.refs--
		if e.refs <= 0 {
			delete(c.evictedEntries, hash)
			if err := os.Remove(c.path(hash)); err != nil && !os.IsNotExist(err) {
				c.log.Warn("cache: unlink evicted file failed", zap.String("hash", hash), zap.Error(err))
			}
		}
	}
}

// Put verifies data's SHA-256 equals hash, writes it to disk, records
// its size, and runs eviction. The file is not written if the hash
// does not match.
func (c *Cache) Put(hash string, data []byte) error {
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != hash {
		return ErrIntegrityMismatch
	}

	tmp := c.path(hash) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cache: write %s: %w", hash, err)
	}
	if err := os.Rename(tmp, c.path(hash)); err != nil {
		return fmt.Errorf("cache: rename %s: %w", hash, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, exists := c.index[hash]; exists {
		e := el.Value.(*entry)
		c.curBytes += int64(len(data)) - e.size
		e.size = int64(len(data))
		e.lastAccess = time.Now()
		c.lru.MoveToFront(el)
	} else {
		e := &entry{hash: hash, size: int64(len(data)), lastAccess: time.Now()}
		el := c.lru.PushFront(e)
		c.index[hash] = el
		c.curBytes += e.size
	}
	c.evictLocked()
	return nil
}

// evictLocked must be called with c.mu held. It evicts the smallest
// last-access entries until curBytes is within bound. An entry with
// outstanding references is skipped for file removal but still
// dropped from the index and byte accounting, and its file is
// unlinked lazily by release() once the last reference drops.
func (c *Cache) evictLocked() {
	for c.curBytes > c.maxBytes && c.lru.Len() > 0 {
		el := c.oldestLocked()
		if el == nil {
			return
		}
		e := el.Value.(*entry)
		c.lru.Remove(el)
		delete(c.index, e.hash)
		c.curBytes -= e.size
		c.evictions++

		if e.refs > 0 {
			e.deleted = true
			c.evictedEntries[e.hash] = e
			continue
		}
		if err := os.Remove(c.path(e.hash)); err != nil && !os.IsNotExist(err) {
			c.log.Warn("cache: unlink failed", zap.String("hash", e.hash), zap.Error(err))
		}
	}
}

func (c *Cache) oldestLocked() *list.Element {
	oldest := c.lru.Back()
	if oldest == nil {
		return nil
	}
	best := oldest
	bestTime := oldest.Value.(*entry).lastAccess
	for el := oldest; el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if e.lastAccess.Before(bestTime) || (e.lastAccess.Equal(bestTime) && e.hash < best.Value.(*entry).hash) {
			best = el
			bestTime = e.lastAccess
		}
	}
	return best
}

// Remove evicts hash unconditionally, deferring file removal if
// referenced.
func (c *Cache) Remove(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[hash]
	if !ok {
		return
	}
	e := el.Value.(*entry)
	c.lru.Remove(el)
	delete(c.index, hash)
	c.curBytes -= e.size
	if e.refs > 0 {
		e.deleted = true
		c.evictedEntries[hash] = e
		return
	}
	if err := os.Remove(c.path(hash)); err != nil && !os.IsNotExist(err) {
		c.log.Warn("cache: unlink failed", zap.String("hash", hash), zap.Error(err))
	}
}

// Has reports whether hash is present without affecting LRU order or
// hit/miss counters.
func (c *Cache) Has(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[hash]
	return ok
}

// Stats is a snapshot of cache counters for the admin debug surface.
type Stats struct {
	Items     int
	Bytes     int64
	MaxBytes  int64
	Hits      int64
	Misses    int64
	Evictions int64
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Items:     c.lru.Len(),
		Bytes:     c.curBytes,
		MaxBytes:  c.maxBytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
