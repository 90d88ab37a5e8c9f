// Package cache keeps one downloaded blob in memory, optionally mirrored to disk.
package cache

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// record is the cached state; it is also the on-disk gob layout.
type record struct {
	Data      []byte
	ETag      string
	FetchedAt time.Time
}

func (r *record) fresh(ttl time.Duration) bool {
	return r != nil && time.Since(r.FetchedAt) <= ttl
}

// BlobCache remembers the last download of a URL together with its ETag.
// A stale record is still served by GetAny so callers can fall back to it
// when revalidation fails.
type BlobCache struct {
	mu   sync.RWMutex
	rec  *record
	ttl  time.Duration
	path string
}

func NewBlobCache(ttl time.Duration) *BlobCache {
	return &BlobCache{ttl: ttl}
}

// SetPersistPath mirrors every update to path.
func (c *BlobCache) SetPersistPath(path string) {
	c.mu.Lock()
	c.path = path
	c.mu.Unlock()
}

// Get returns the data while it is within the TTL. The ETag is returned
// even for a stale record so it can be compared with upstream.
func (c *BlobCache) Get() ([]byte, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.rec == nil:
		return nil, "", false
	case !c.rec.fresh(c.ttl):
		return nil, c.rec.ETag, false
	}
	return c.rec.Data, c.rec.ETag, true
}

// GetAny ignores the TTL.
func (c *BlobCache) GetAny() ([]byte, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.rec == nil {
		return nil, "", false
	}
	return c.rec.Data, c.rec.ETag, true
}

func (c *BlobCache) GetETag() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.rec == nil {
		return ""
	}
	return c.rec.ETag
}

// Set replaces the cached blob.
func (c *BlobCache) Set(data []byte, etag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rec = &record{Data: data, ETag: etag, FetchedAt: time.Now()}
	return c.saveLocked()
}

// Touch restarts the TTL of the current blob, used once upstream confirms
// the ETag is unchanged.
func (c *BlobCache) Touch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec == nil {
		return nil
	}
	c.rec.FetchedAt = time.Now()
	return c.saveLocked()
}

// LoadFromFile restores a record written by a previous run and keeps
// mirroring to the same file.
func (c *BlobCache) LoadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rec := &record{}
	if err := gob.NewDecoder(f).Decode(rec); err != nil {
		return err
	}

	c.mu.Lock()
	c.rec = rec
	c.path = path
	c.mu.Unlock()
	return nil
}

func (c *BlobCache) saveLocked() error {
	if c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	encErr := gob.NewEncoder(tmp).Encode(c.rec)
	closeErr := tmp.Close()
	if encErr == nil {
		encErr = closeErr
	}
	if encErr == nil {
		encErr = os.Rename(tmpPath, c.path)
	}
	if encErr != nil {
		os.Remove(tmpPath)
	}
	return encErr
}
