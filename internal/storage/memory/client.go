package memory

import (
	"context"
	"sync"
	"time"

	"github.com/campaign/internal/storage"
)

type item struct {
	val []byte
	exp time.Time // нулевое значение — без TTL
	ver uint64
}

func (it item) expired(now time.Time) bool {
	return !it.exp.IsZero() && !now.Before(it.exp)
}

// Client — кеш в памяти процесса (режим -dev без Redis).
// ConditionalUpdate реализован оптимистично: версия ключа сверяется перед записью.
type Client struct {
	mu    sync.Mutex
	items map[string]item
	ver   uint64
}

func New() *Client {
	return &Client{items: make(map[string]item)}
}

func (c *Client) Close() error { return nil }

func (c *Client) Ping(ctx context.Context) error { return nil }

// live возвращает неистёкшее значение; вызывать под c.mu.
func (c *Client) live(key string, now time.Time) (item, bool) {
	it, ok := c.items[key]
	if !ok {
		return item{}, false
	}
	if it.expired(now) {
		delete(c.items, key)
		return item{}, false
	}
	return it, true
}

func (c *Client) put(key string, value []byte, ttl time.Duration, now time.Time) {
	c.ver++
	it := item{val: append([]byte(nil), value...), ver: c.ver}
	if ttl > 0 {
		it.exp = now.Add(ttl)
	}
	c.items[key] = it
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.live(key, time.Now())
	if !ok {
		return nil, storage.ErrCacheMiss
	}
	return append([]byte(nil), it.val...), nil
}

func (c *Client) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, ttl, time.Now())
	return nil
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	it, ok := c.live(key, now)
	if !ok {
		return 0, storage.ErrCacheMiss
	}
	if it.exp.IsZero() {
		return 0, nil
	}
	return it.exp.Sub(now), nil
}

func (c *Client) ConditionalUpdate(ctx context.Context, key string, mutate storage.Mutator) error {
	for i := 0; i < storage.MaxRetries; i++ {
		c.mu.Lock()
		now := time.Now()
		seen, ok := c.live(key, now)
		c.mu.Unlock()
		if !ok {
			return nil
		}
		var ttl time.Duration
		if !seen.exp.IsZero() {
			ttl = seen.exp.Sub(now)
		}
		// mutate вызывается без блокировки — параллельные писатели не ждут.
		next, nextTTL, err := mutate(append([]byte(nil), seen.val...), ttl)
		if err != nil {
			return err
		}
		c.mu.Lock()
		cur, ok := c.live(key, time.Now())
		if !ok || cur.ver != seen.ver {
			c.mu.Unlock()
			continue
		}
		c.put(key, next, nextTTL, time.Now())
		c.mu.Unlock()
		return nil
	}
	return storage.ErrRetriesExhausted
}
