package render

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

// DefaultCapacity is the default maximum number of cached images.
const DefaultCapacity = 128

// ReleaseFunc is called for every entry leaving the cache (eviction,
// invalidation, clear) so externally owned resources such as GPU-backed
// image handles can be freed.
type ReleaseFunc func(key Key, data []byte)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	HitRate   float64
	Evictions uint64
}

// ImageCache is a bounded LRU cache of rendered marker images with
// de-duplication of concurrent identical render requests.
//
// The entry table and the in-flight table are the only synchronization
// points of the pipeline; rendering itself always happens outside the
// lock. At most one render is ever outstanding per Key.
type ImageCache struct {
	mu       sync.Mutex
	entries  map[Key]*cacheEntry
	order    *list.List // front = most recently used; element values are Key
	inflight map[Key]*inflightRender
	capacity int
	release  ReleaseFunc

	meterProvider metric.MeterProvider // nil = global provider

	// Statistics (atomic for zero-allocation reads)
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type cacheEntry struct {
	data []byte
	elem *list.Element
}

// inflightRender is the shared result of one outstanding render.
// done is closed exactly once, after data/err are set.
type inflightRender struct {
	done chan struct{}
	data []byte
	err  error
}

// Option configures an ImageCache.
type Option func(*ImageCache)

// WithCapacity sets the maximum number of cached images.
func WithCapacity(n int) Option {
	return func(c *ImageCache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithReleaseFunc installs a hook invoked for entries leaving the cache.
func WithReleaseFunc(f ReleaseFunc) Option {
	return func(c *ImageCache) {
		c.release = f
	}
}

// NewImageCache creates an empty cache with DefaultCapacity unless
// overridden.
func NewImageCache(opts ...Option) *ImageCache {
	c := &ImageCache{
		entries:  make(map[Key]*cacheEntry),
		order:    list.New(),
		inflight: make(map[Key]*inflightRender),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registerMetrics()
	return c
}

// GetOrRender returns the cached image for fields, rendering it at most
// once. Concurrent callers for the same uncached key share a single
// render; all of them receive the same bytes or the same error. A
// failed render leaves no cache entry and may be retried on the next
// call.
func (c *ImageCache) GetOrRender(ctx context.Context, fields KeyFields, r Renderer) ([]byte, error) {
	key := fields.Key()

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		c.order.MoveToFront(entry.elem)
		data := entry.data
		c.mu.Unlock()
		c.hits.Add(1)
		return data, nil
	}

	if fl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-fl.done:
			return fl.data, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fl := &inflightRender{done: make(chan struct{})}
	c.inflight[key] = fl
	c.mu.Unlock()
	c.misses.Add(1)

	data, err := r.Render(ctx, fields)
	if err != nil {
		err = fmt.Errorf("%w: %s: %s", ErrRenderFailed, key, err)
	}

	c.mu.Lock()
	delete(c.inflight, key)
	if err == nil {
		c.insertLocked(key, data)
	}
	fl.data = data
	fl.err = err
	close(fl.done)
	c.mu.Unlock()

	return data, err
}

// insertLocked adds an entry, evicting from the LRU tail first when at
// capacity. Caller holds c.mu.
func (c *ImageCache) insertLocked(key Key, data []byte) {
	if entry, ok := c.entries[key]; ok {
		entry.data = data
		c.order.MoveToFront(entry.elem)
		return
	}
	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			// Eviction on an empty order list is a defensive no-op.
			break
		}
		c.removeLocked(oldest.Value.(Key))
		c.evictions.Add(1)
	}
	elem := c.order.PushFront(key)
	c.entries[key] = &cacheEntry{data: data, elem: elem}
}

// removeLocked removes an entry and fires the release hook. Caller
// holds c.mu.
func (c *ImageCache) removeLocked(key Key) {
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	c.order.Remove(entry.elem)
	delete(c.entries, key)
	if c.release != nil {
		c.release(key, entry.data)
	}
}

// Contains reports whether the key is currently cached. Does not touch
// LRU order.
func (c *ImageCache) Contains(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// InFlight reports whether a render for the key is outstanding.
func (c *ImageCache) InFlight(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[key]
	return ok
}

// Invalidate removes every entry whose key starts with prefix. Used
// with EntityKeyPrefix when an entity stops being tracked. Returns the
// number of entries removed.
func (c *ImageCache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var victims []Key
	for key := range c.entries {
		if strings.HasPrefix(string(key), prefix) {
			victims = append(victims, key)
		}
	}
	for _, key := range victims {
		c.removeLocked(key)
	}
	return len(victims)
}

// Clear releases all entries and resets the hit/miss/eviction counters.
// In-flight renders are unaffected; they complete and re-insert.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	for key := range c.entries {
		c.removeLocked(key)
	}
	c.mu.Unlock()
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

// Len returns the number of cached entries.
func (c *ImageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the maximum number of cached entries.
func (c *ImageCache) Capacity() int {
	return c.capacity
}

// Stats returns current cache statistics.
func (c *ImageCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Len:       c.Len(),
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		HitRate:   hitRate,
		Evictions: c.evictions.Load(),
	}
}
