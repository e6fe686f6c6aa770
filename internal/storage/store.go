package storage

import (
	"context"
	"errors"
	"time"
)

// MaxRetries — число попыток ConditionalUpdate при конфликте с параллельной записью.
const MaxRetries = 5

var (
	// ErrCacheMiss — ключа нет (или истёк TTL).
	ErrCacheMiss = errors.New("cache miss")
	// ErrRetriesExhausted — ConditionalUpdate проиграл гонку MaxRetries раз подряд.
	ErrRetriesExhausted = errors.New("conditional update: retries exhausted")
)

// Mutator — чистая функция над текущим значением ключа.
// ttl — оставшийся TTL (0 — без TTL). Вернуть nextTTL == ttl, чтобы сохранить TTL.
type Mutator func(current []byte, ttl time.Duration) (next []byte, nextTTL time.Duration, err error)

// Cache — кеш «ключ-значение» с TTL.
// Реализации: redis.Client, memory.Client (для -dev без Redis).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// TTL возвращает оставшееся время жизни; 0 — ключ без TTL; ErrCacheMiss — ключа нет.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// ConditionalUpdate применяет mutate, только если ключ не менялся с момента чтения.
	// Отсутствующий ключ — успех без изменений. Исчерпание попыток — ErrRetriesExhausted.
	ConditionalUpdate(ctx context.Context, key string, mutate Mutator) error
	Ping(ctx context.Context) error
	Close() error
}
