package memo

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache is a populate-once-per-key cache. Concurrent misses for the same key
// share one fetch; errors are returned to every waiter but never stored.
type Cache[V any] struct {
	mu    sync.Mutex
	vals  map[string]V
	group singleflight.Group
}

func New[V any]() *Cache[V] {
	return &Cache[V]{vals: map[string]V{}}
}

func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[key]
	return v, ok
}

func (c *Cache[V]) Get(ctx context.Context, key string, fetch func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Peek(key); ok {
		return v, nil
	}
	res, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Peek(key); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.vals == nil {
			c.vals = map[string]V{}
		}
		c.vals[key] = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.vals)
}
