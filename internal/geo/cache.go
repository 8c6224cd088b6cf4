package geo

import (
	"container/list"
	"sync"
	"time"
)

const defaultCacheSize = 10000

type cacheEntry struct {
	ip        string
	loc       Location
	expiresAt time.Time
}

// Cache is a bounded, concurrency-safe LRU of resolved locations. Entries
// expire lazily: an expired entry is dropped when it is read, and the least
// recently used entry is evicted once the cache is full.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns the cached location for ip if present and unexpired.
func (c *Cache) Get(ip string) (Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[ip]
	if !ok {
		return Location{}, false
	}
	e := el.Value.(*cacheEntry)
	if !c.now().Before(e.expiresAt) {
		c.removeElement(el)
		return Location{}, false
	}
	c.ll.MoveToFront(el)
	return e.loc, true
}

// Set stores loc for ip with a fresh TTL.
func (c *Cache) Set(ip string, loc Location) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.items[ip]; ok {
		e := el.Value.(*cacheEntry)
		e.loc, e.expiresAt = loc, expiresAt
		c.ll.MoveToFront(el)
		return
	}
	c.items[ip] = c.ll.PushFront(&cacheEntry{ip: ip, loc: loc, expiresAt: expiresAt})
	for c.ll.Len() > c.capacity {
		c.removeElement(c.ll.Back())
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*cacheEntry).ip)
}
