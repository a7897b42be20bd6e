package middleware

import (
	"sync"
	"time"
)

// lruEntry is one cached value on the recency list.
type lruEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	prev      *lruEntry[V]
	next      *lruEntry[V]
}

// expiringLRU is a size-bounded cache whose entries also expire. The most
// recently used entry sits at the head; eviction takes the tail.
type expiringLRU[V any] struct {
	mu       sync.Mutex
	entries  map[string]*lruEntry[V]
	head     *lruEntry[V]
	tail     *lruEntry[V]
	capacity int
	now      func() time.Time
}

func newExpiringLRU[V any](capacity int) *expiringLRU[V] {
	return &expiringLRU[V]{
		entries:  make(map[string]*lruEntry[V], capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// get returns a live entry and marks it most recently used. Expired
// entries are dropped on the way.
func (c *expiringLRU[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		c.unlink(e)
		delete(c.entries, key)
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

// set stores value until expiresAt, evicting the least recently used entry
// when full.
func (c *expiringLRU[V]) set(key string, value V, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}
	if c.capacity > 0 && len(c.entries) >= c.capacity {
		if victim := c.tail; victim != nil {
			c.unlink(victim)
			delete(c.entries, victim.key)
		}
	}
	e := &lruEntry[V]{key: key, value: value, expiresAt: expiresAt}
	c.pushFront(e)
	c.entries[key] = e
}

func (c *expiringLRU[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *expiringLRU[V]) pushFront(e *lruEntry[V]) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *expiringLRU[V]) unlink(e *lruEntry[V]) {
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
	e.prev, e.next = nil, nil
}

func (c *expiringLRU[V]) moveToFront(e *lruEntry[V]) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}
