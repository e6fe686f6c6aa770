package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campaign/internal/storage"
)

type Client struct {
	cli redis.UniversalClient
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

// NewFromClient оборачивает готовый клиент (тесты с miniredis, кластер).
func NewFromClient(cli redis.UniversalClient) *Client {
	return &Client{cli: cli}
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.cli.Ping(ctx).Err()
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.cli.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrCacheMiss
	}
	return val, err
}

// SetWithTTL записывает значение; ttl <= 0 — без истечения.
func (c *Client) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.cli.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.cli.Del(ctx, keys...).Err()
}

// TTL: PTTL возвращает -2 для отсутствующего ключа и -1 для ключа без TTL.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.cli.PTTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return pttlToDuration(d)
}

func pttlToDuration(d time.Duration) (time.Duration, error) {
	switch {
	case d == -2:
		return 0, storage.ErrCacheMiss
	case d < 0:
		return 0, nil
	default:
		return d, nil
	}
}

var errKeyAbsent = errors.New("key absent")

// ConditionalUpdate: WATCH → GET → PTTL → mutate → MULTI/SET/EXEC.
// EXEC не выполнится, если ключ изменили после WATCH (redis.TxFailedErr) — тогда повтор.
func (c *Client) ConditionalUpdate(ctx context.Context, key string, mutate storage.Mutator) error {
	for i := 0; i < storage.MaxRetries; i++ {
		err := c.cli.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return errKeyAbsent
			}
			if err != nil {
				return err
			}
			pttl, err := tx.PTTL(ctx, key).Result()
			if err != nil {
				return err
			}
			ttl, err := pttlToDuration(pttl)
			if err != nil {
				// истёк между GET и PTTL
				return errKeyAbsent
			}
			next, nextTTL, err := mutate(cur, ttl)
			if err != nil {
				return err
			}
			if nextTTL < 0 {
				nextTTL = 0
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, nextTTL)
				return nil
			})
			return err
		}, key)
		switch {
		case err == nil, errors.Is(err, errKeyAbsent):
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return err
		}
	}
	return storage.ErrRetriesExhausted
}
