package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a Memory cache created without an explicit limit.
const DefaultMaxEntries = 10000

// cleanupInterval is how often expired entries are swept.
const cleanupInterval = time.Minute

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process LRU cache with per-entry TTLs. Once maxEntries is
// reached the least recently used entry is evicted. Expired entries are
// dropped on access and by a background sweep.
type Memory struct {
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List
	closed   bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemory creates a Memory cache whose entries live for defaultTTL unless
// Set is given an explicit ttl. A maxEntries of 0 or less uses
// DefaultMaxEntries. Close stops the background sweep.
func NewMemory(defaultTTL time.Duration, maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c := &Memory{
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		now:        time.Now,
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
		stopCh:     make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	elem, ok := c.items[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	e := elem.Value.(*memoryEntry)
	if c.expired(e) {
		c.removeElement(elem)
		return nil, ErrCacheMiss
	}
	c.eviction.MoveToFront(elem)

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	e := &memoryEntry{key: key, value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	if elem, ok := c.items[key]; ok {
		elem.Value = e
		c.eviction.MoveToFront(elem)
		return nil
	}

	c.items[key] = c.eviction.PushFront(e)
	for c.eviction.Len() > c.maxEntries {
		c.removeElement(c.eviction.Back())
	}
	return nil
}

func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// Len returns the number of stored entries, expired ones not yet swept included.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}

func (c *Memory) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	clear(c.items)
	c.eviction.Init()
	return nil
}

func (c *Memory) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// cleanup removes every expired entry.
func (c *Memory) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.eviction.Back(); elem != nil; {
		prev := elem.Prev()
		if c.expired(elem.Value.(*memoryEntry)) {
			c.removeElement(elem)
		}
		elem = prev
	}
}

// removeElement must be called with mu held.
func (c *Memory) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	delete(c.items, elem.Value.(*memoryEntry).key)
}

func (c *Memory) expired(e *memoryEntry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}
