package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/campaign/internal/logger"
	"github.com/campaign/internal/model"
	"github.com/campaign/internal/storage"
)

const keyPrefix = "session:"

func cacheKey(token string) string { return keyPrefix + token }

// sessionCache — проекции сессий поверх storage.Cache. Все ошибки кеша логируются и не всплывают:
// источник истины — Postgres.
type sessionCache struct {
	c storage.Cache
}

var errNoTTL = errors.New("cached session has no ttl")

// get: промах, ошибка кеша и битое значение — (nil, 0). Битое значение удаляется.
func (sc sessionCache) get(ctx context.Context, token string) (*model.CachedSession, time.Duration) {
	raw, err := sc.c.Get(ctx, cacheKey(token))
	if errors.Is(err, storage.ErrCacheMiss) {
		return nil, 0
	}
	if err != nil {
		logger.Warnf("session cache get: %v", err)
		return nil, 0
	}
	var cs model.CachedSession
	if err := json.Unmarshal(raw, &cs); err != nil || cs.SessionID == 0 {
		logger.Warnf("session cache: corrupt entry, dropping")
		sc.invalidate(ctx, token)
		return nil, 0
	}
	ttl, err := sc.c.TTL(ctx, cacheKey(token))
	if err != nil && !errors.Is(err, storage.ErrCacheMiss) {
		logger.Warnf("session cache ttl: %v", err)
	}
	return &cs, ttl
}

func (sc sessionCache) put(ctx context.Context, token string, cs model.CachedSession, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(cs)
	if err != nil {
		logger.Errorf("session cache marshal: %v", err)
		return
	}
	if err := sc.c.SetWithTTL(ctx, cacheKey(token), raw, ttl); err != nil {
		logger.Warnf("session cache set: %v", err)
	}
}

func (sc sessionCache) invalidate(ctx context.Context, tokens ...string) {
	if len(tokens) == 0 {
		return
	}
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = cacheKey(t)
	}
	if err := sc.c.Delete(ctx, keys...); err != nil {
		logger.Warnf("session cache delete (%d keys): %v", len(keys), err)
	}
}

// setActiveOrg меняет только поле активной организации, TTL сохраняется.
// Если обновить не удалось, ключ удаляется: следующий запрос перечитает Postgres.
func (sc sessionCache) setActiveOrg(ctx context.Context, token string, membershipID *int64) {
	err := sc.c.ConditionalUpdate(ctx, cacheKey(token), func(cur []byte, ttl time.Duration) ([]byte, time.Duration, error) {
		var cs model.CachedSession
		if err := json.Unmarshal(cur, &cs); err != nil {
			return nil, 0, err
		}
		if ttl <= 0 {
			return nil, 0, errNoTTL
		}
		cs.ActiveOrgMembershipID = membershipID
		next, err := json.Marshal(cs)
		return next, ttl, err
	})
	if err == nil {
		return
	}
	if errors.Is(err, storage.ErrRetriesExhausted) {
		logger.Warnf("session cache: active org update lost the race %d times, invalidating", storage.MaxRetries)
	} else {
		logger.Warnf("session cache: active org update: %v", err)
	}
	sc.invalidate(ctx, token)
}

// refreshTTL продлевает TTL, не трогая содержимое.
func (sc sessionCache) refreshTTL(ctx context.Context, token string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	err := sc.c.ConditionalUpdate(ctx, cacheKey(token), func(cur []byte, _ time.Duration) ([]byte, time.Duration, error) {
		var cs model.CachedSession
		if err := json.Unmarshal(cur, &cs); err != nil {
			return nil, 0, err
		}
		return cur, ttl, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrRetriesExhausted):
		// TTL обновит следующее продление
		logger.Warnf("session cache: ttl refresh lost the race %d times", storage.MaxRetries)
	default:
		logger.Warnf("session cache: ttl refresh: %v", err)
		sc.invalidate(ctx, token)
	}
}
