package cache

import (
	"sync"
	"time"
)

// LRUCache is a fixed-capacity cache where every entry also carries a
// TTL. Capacity evicts the least recently used entry; reads past the
// TTL behave as misses.
type LRUCache[T any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]*entry[T]

	// Intrusive doubly-linked recency list anchored at head.
	// head.next is the most recently used entry.
	head *entry[T]
}

type entry[T any] struct {
	key        string
	value      T
	expiresAt  time.Time
	prev, next *entry[T]
}

// NewLRUCache returns an empty cache holding at most capacity entries,
// each valid for ttl after its last Set.
func NewLRUCache[T any](capacity int, ttl time.Duration) *LRUCache[T] {
	anchor := &entry[T]{}
	anchor.prev = anchor
	anchor.next = anchor
	return &LRUCache[T]{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*entry[T], capacity),
		head:     anchor,
	}
}

// Get returns the cached value for key. Expired entries are dropped on
// the spot and reported as misses.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.unlink(e)
		return zero, false
	}
	c.promote(e)
	return e.value, true
}

// Set stores value under key, refreshing the TTL. Inserting into a full
// cache evicts the least recently used entry.
func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = time.Now().Add(c.ttl)
		c.promote(e)
		return
	}

	e := &entry[T]{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	c.entries[key] = e
	c.attach(e)

	if len(c.entries) > c.capacity {
		c.unlink(c.head.prev)
	}
}

// Delete removes key if present.
func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.unlink(e)
	}
}

// CleanExpired drops every entry past its TTL and reports how many
// were removed.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for e := c.head.next; e != c.head; {
		next := e.next
		if now.After(e.expiresAt) {
			c.unlink(e)
			removed++
		}
		e = next
	}
	return removed
}

// Size returns the number of entries currently held, expired or not.
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// attach inserts e right after the anchor, making it most recent.
func (c *LRUCache[T]) attach(e *entry[T]) {
	e.prev = c.head
	e.next = c.head.next
	e.prev.next = e
	e.next.prev = e
}

func (c *LRUCache[T]) promote(e *entry[T]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	c.attach(e)
}

func (c *LRUCache[T]) unlink(e *entry[T]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(c.entries, e.key)
}
