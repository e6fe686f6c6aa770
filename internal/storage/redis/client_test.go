package redis

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaign/internal/storage"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	return NewFromClient(cli), mr
}

func TestClient_GetSetDelete(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "k")
	require.ErrorIs(t, err, storage.ErrCacheMiss)

	require.NoError(t, c.SetWithTTL(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.SetWithTTL(ctx, "k2", []byte("v2"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k", "k2", "missing"))
	_, err = c.Get(ctx, "k2")
	require.ErrorIs(t, err, storage.ErrCacheMiss)

	require.NoError(t, c.Delete(ctx))
}

func TestClient_TTL(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, err := c.TTL(ctx, "absent")
	require.ErrorIs(t, err, storage.ErrCacheMiss)

	require.NoError(t, c.SetWithTTL(ctx, "persistent", []byte("x"), 0))
	ttl, err := c.TTL(ctx, "persistent")
	require.NoError(t, err)
	assert.Zero(t, ttl)

	require.NoError(t, c.SetWithTTL(ctx, "k", []byte("x"), time.Hour))
	ttl, err = c.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)

	mr.FastForward(time.Hour + time.Second)
	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, storage.ErrCacheMiss)
}

func TestClient_ConditionalUpdatePreservesTTL(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.SetWithTTL(ctx, "k", []byte("a"), 10*time.Minute))

	err := c.ConditionalUpdate(ctx, "k", func(cur []byte, ttl time.Duration) ([]byte, time.Duration, error) {
		assert.Equal(t, []byte("a"), cur)
		return append(cur, 'b'), ttl, nil
	})
	require.NoError(t, err)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), got)
	ttl, err := c.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, ttl)
}

func TestClient_ConditionalUpdateAbsentKeyIsNoop(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	called := false
	err := c.ConditionalUpdate(ctx, "missing", func(cur []byte, ttl time.Duration) ([]byte, time.Duration, error) {
		called = true
		return cur, ttl, nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.False(t, mr.Exists("missing"))
}

func TestClient_ConditionalUpdateRetriesExhausted(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.SetWithTTL(ctx, "k", []byte("0"), time.Minute))

	// Каждая попытка проигрывает: ключ меняется между WATCH и EXEC.
	attempts := 0
	err := c.ConditionalUpdate(ctx, "k", func(cur []byte, ttl time.Duration) ([]byte, time.Duration, error) {
		attempts++
		require.NoError(t, mr.Set("k", strconv.Itoa(attempts)))
		return []byte("lost"), ttl, nil
	})
	require.ErrorIs(t, err, storage.ErrRetriesExhausted)
	assert.Equal(t, storage.MaxRetries, attempts)

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(storage.MaxRetries), string(got))
}

func TestClient_ConditionalUpdateConcurrent(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.SetWithTTL(ctx, "counter", []byte("0"), time.Hour))

	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.ConditionalUpdate(ctx, "counter", func(cur []byte, ttl time.Duration) ([]byte, time.Duration, error) {
				v, err := strconv.Atoi(string(cur))
				if err != nil {
					return nil, 0, err
				}
				return []byte(strconv.Itoa(v + 1)), ttl, nil
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, storage.ErrRetriesExhausted)
		}()
	}
	wg.Wait()

	got, err := c.Get(ctx, "counter")
	require.NoError(t, err)
	// Ни одно успешное обновление не потеряно.
	assert.Equal(t, strconv.Itoa(succeeded), string(got))
}
