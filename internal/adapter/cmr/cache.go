package cmr

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/weather-history-analyzer/internal/domain"
	"github.com/couchcryptid/weather-history-analyzer/internal/observability"
)

// Searcher finds granules for one search window.
type Searcher interface {
	SearchGranules(ctx context.Context, window domain.SearchWindow) ([]domain.Granule, error)
}

// CachedSearcher wraps a Searcher with an in-memory LRU cache keyed by
// collection and window. Past-year catalog contents are effectively static.
type CachedSearcher struct {
	inner      Searcher
	collection string
	cache      *lruCache[[]domain.Granule]
	metrics    *observability.Metrics
}

// NewCachedSearcher creates a cache decorator around a searcher.
func NewCachedSearcher(inner Searcher, collection string, maxEntries int, metrics *observability.Metrics) *CachedSearcher {
	return &CachedSearcher{
		inner:      inner,
		collection: collection,
		cache:      newLRUCache[[]domain.Granule](maxEntries),
		metrics:    metrics,
	}
}

func (c *CachedSearcher) SearchGranules(ctx context.Context, window domain.SearchWindow) ([]domain.Granule, error) {
	key := fmt.Sprintf("%s|%s|%s", c.collection,
		window.Start.Format(domain.DateLayout), window.End.Format(domain.DateLayout))
	if granules, ok := c.cache.get(key); ok {
		c.metrics.CatalogCache.WithLabelValues("hit").Inc()
		return slices.Clone(granules), nil
	}
	c.metrics.CatalogCache.WithLabelValues("miss").Inc()

	granules, err := c.inner.SearchGranules(ctx, window)
	if err != nil {
		return nil, err
	}
	// Empty results are not cached so a catalog that was still ingesting can be retried.
	if len(granules) > 0 {
		c.cache.put(key, slices.Clone(granules))
	}
	return granules, nil
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
