package shard

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/echoface/geo_store/geo"
	"github.com/echoface/geo_store/util"
)

const DefaultCacheCapacity = 12

type (
	// Cache an LRU of open shards keyed by quad key. At most one open Shard
	// exists per quad key. Evicted shards are closed. Acquired shards are
	// pinned and never evicted until released, so the bound can be exceeded
	// temporarily while more than capacity shards are in use.
	Cache struct {
		mu       sync.Mutex
		capacity int
		layout   Layout
		opts     Options

		items map[geo.QuadKey]*list.Element
		lru   *list.List

		hits      atomic.Int64
		misses    atomic.Int64
		evictions atomic.Int64
	}

	cacheEntry struct {
		qk    geo.QuadKey
		shard *Shard
		refs  int
	}

	CacheStats struct {
		Hits      int64
		Misses    int64
		Evictions int64
		Len       int
	}
)

func NewCache(layout Layout, capacity int, opts Options) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	opts.normalize()
	return &Cache{
		capacity: capacity,
		layout:   layout,
		opts:     opts,
		items:    make(map[geo.QuadKey]*list.Element),
		lru:      list.New(),
	}
}

func (c *Cache) Capacity() int {
	return c.capacity
}

func (c *Cache) Layout() Layout {
	return c.layout
}

func (c *Cache) FileSystem() FileSystem {
	return c.opts.FS
}

// Get return the open shard of qk, opening it on a miss and marking it most
// recently used
func (c *Cache) Get(qk geo.QuadKey) (*Shard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, err := c.getLocked(qk)
	if err != nil {
		return nil, err
	}
	c.evictLocked(ent)
	return ent.shard, nil
}

// Acquire like Get, but pin the shard until Release
func (c *Cache) Acquire(qk geo.QuadKey) (*Shard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, err := c.getLocked(qk)
	if err != nil {
		return nil, err
	}
	ent.refs++
	c.evictLocked(ent)
	return ent.shard, nil
}

func (c *Cache) Release(s *Shard) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if element, ok := c.items[s.QuadKey()]; ok {
		ent := element.Value.(*cacheEntry)
		if ent.shard == s && ent.refs > 0 {
			ent.refs--
		}
	}
	c.evictLocked(nil)
}

func (c *Cache) getLocked(qk geo.QuadKey) (*cacheEntry, error) {
	if element, ok := c.items[qk]; ok {
		c.hits.Add(1)
		c.lru.MoveToFront(element)
		return element.Value.(*cacheEntry), nil
	}
	c.misses.Add(1)

	s, err := Open(c.layout, qk, c.opts)
	if err != nil {
		return nil, err
	}
	ent := &cacheEntry{qk: qk, shard: s}
	c.items[qk] = c.lru.PushFront(ent)
	return ent, nil
}

// evictLocked drop least recently used unpinned shards above capacity,
// keep is the entry being handed out and is never dropped
func (c *Cache) evictLocked(keep *cacheEntry) {
	for element := c.lru.Back(); element != nil && c.lru.Len() > c.capacity; {
		prev := element.Prev()
		if ent := element.Value.(*cacheEntry); ent != keep && ent.refs == 0 {
			c.removeElement(element)
			c.evictions.Add(1)
		}
		element = prev
	}
}

func (c *Cache) removeElement(element *list.Element) {
	ent := element.Value.(*cacheEntry)
	c.lru.Remove(element)
	delete(c.items, ent.qk)
	util.LogIfErr(ent.shard.Close(), "close evicted shard:%s", ent.qk)
	util.LogDebug("shard:%s evicted from cache", ent.qk)
}

func (c *Cache) Contains(qk geo.QuadKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[qk]
	return ok
}

// Invalidate drop and close the shard of qk, pinned or not
func (c *Cache) Invalidate(qk geo.QuadKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if element, ok := c.items[qk]; ok {
		c.removeElement(element)
	}
}

// Clear close and drop every unpinned shard; calling it repeatedly is harmless
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for element := c.lru.Back(); element != nil; {
		prev := element.Prev()
		if element.Value.(*cacheEntry).refs == 0 {
			c.removeElement(element)
		}
		element = prev
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Len:       c.Len(),
	}
}
