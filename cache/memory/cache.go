package memory

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/w-h-a/grounded/cache"
	"github.com/w-h-a/grounded/errs"
)

type entry struct {
	key        string
	value      []byte
	insertedAt time.Time
	ttl        time.Duration
	lastAccess time.Time
	hits       uint64
}

func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.insertedAt.Add(e.ttl))
}

type memoryCache struct {
	options   cache.Options
	entries   map[string]*list.Element
	order     *list.List
	hits      uint64
	misses    uint64
	evictions uint64
	mtx       sync.Mutex
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}

	e := c.entryOf(el)
	now := c.options.Clock()

	if e.expired(now) {
		c.remove(el)
		c.misses++
		return nil, false, nil
	}

	e.lastAccess = now
	e.hits++
	c.hits++
	c.order.MoveToFront(el)

	cpy := make([]byte, len(e.value))
	copy(cpy, e.value)

	return cpy, true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if ttl <= 0 {
		if el, ok := c.entries[key]; ok {
			c.remove(el)
		}
		return nil
	}

	now := c.options.Clock()

	cpy := make([]byte, len(value))
	copy(cpy, value)

	if el, ok := c.entries[key]; ok {
		e := c.entryOf(el)
		e.value = cpy
		e.insertedAt = now
		e.ttl = ttl
		e.lastAccess = now
		c.order.MoveToFront(el)
		return nil
	}

	c.entries[key] = c.order.PushFront(&entry{
		key:        key,
		value:      cpy,
		insertedAt: now,
		ttl:        ttl,
		lastAccess: now,
	})

	for c.options.Capacity > 0 && c.order.Len() > c.options.Capacity {
		c.remove(c.order.Back())
		c.evictions++
	}

	c.verify()

	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}

	return nil
}

func (c *memoryCache) Purge(ctx context.Context) (int, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	now := c.options.Clock()
	purged := 0

	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if c.entryOf(el).expired(now) {
			c.remove(el)
			purged++
		}
		el = prev
	}

	c.verify()

	return purged, nil
}

func (c *memoryCache) Stats(ctx context.Context) (cache.Stats, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	now := c.options.Clock()
	expired := 0

	for el := c.order.Front(); el != nil; el = el.Next() {
		if c.entryOf(el).expired(now) {
			expired++
		}
	}

	return cache.Stats{
		Entries:   c.order.Len(),
		Expired:   expired,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}, nil
}

func (c *memoryCache) remove(el *list.Element) {
	e := c.entryOf(el)
	c.order.Remove(el)
	delete(c.entries, e.key)
}

func (c *memoryCache) entryOf(el *list.Element) *entry {
	e, ok := el.Value.(*entry)
	if !ok {
		panic(fmt.Errorf("%w: unexpected element %T", errs.ErrCacheCorruption, el.Value))
	}
	return e
}

// verify must be called with mtx held.
func (c *memoryCache) verify() {
	if len(c.entries) != c.order.Len() {
		panic(fmt.Errorf("%w: index has %d keys but order has %d", errs.ErrCacheCorruption, len(c.entries), c.order.Len()))
	}
}

func NewCache(opts ...cache.Option) cache.Cache {
	options := cache.NewOptions(opts...)

	c := &memoryCache{
		options: options,
		entries: map[string]*list.Element{},
		order:   list.New(),
		mtx:     sync.Mutex{},
	}

	return c
}
