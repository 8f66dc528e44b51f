package source

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/poiesic/docvec/core"
)

// DefaultListingTTL bounds how long a folder listing is reused before the
// remote service is asked again.
const DefaultListingTTL = 2 * time.Minute

type cacheKey struct {
	folderID  string
	recursive bool
}

type cacheEntry struct {
	files   []core.RemoteFile
	fetched time.Time
}

// ListingCache wraps a Source and reuses listing results for a bounded
// duration, reducing call volume against a rate-limited remote. Downloads
// pass through uncached.
type ListingCache struct {
	mu      sync.Mutex
	src     Source
	ttl     time.Duration
	now     func() time.Time
	entries map[cacheKey]cacheEntry
}

// CacheOption is a functional option for configuring a ListingCache.
type CacheOption func(*ListingCache)

// WithCacheClock injects a time source for tests.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *ListingCache) {
		c.now = now
	}
}

// NewListingCache wraps src with a listing cache. A non-positive ttl uses
// DefaultListingTTL.
func NewListingCache(src Source, ttl time.Duration, opts ...CacheOption) *ListingCache {
	if ttl <= 0 {
		ttl = DefaultListingTTL
	}
	c := &ListingCache{
		src:     src,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[cacheKey]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListFiles returns the cached listing when fresh, otherwise fetches and
// caches a new one. Fetch errors are never cached.
func (c *ListingCache) ListFiles(ctx context.Context, folderID string, recursive bool) ([]core.RemoteFile, error) {
	key := cacheKey{folderID: folderID, recursive: recursive}

	c.mu.Lock()
	entry, ok := c.entries[key]
	fresh := ok && c.now().Sub(entry.fetched) < c.ttl
	c.mu.Unlock()

	if fresh {
		return entry.files, nil
	}

	files, err := c.src.ListFiles(ctx, folderID, recursive)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{files: files, fetched: c.now()}
	c.mu.Unlock()
	return files, nil
}

// Download passes through to the wrapped source.
func (c *ListingCache) Download(ctx context.Context, file core.RemoteFile) (io.ReadCloser, error) {
	return c.src.Download(ctx, file)
}

// Invalidate drops all cached listings, forcing the next ListFiles to hit
// the remote.
func (c *ListingCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}
