package session

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/campaign/internal/logger"
	"github.com/campaign/internal/model"
	"github.com/campaign/internal/repository"
)

// Scheduler ставит фоновое продление сессии; false — задача не принята (очередь полна или уже стоит).
type Scheduler interface {
	Schedule(sessionID int64, token string) bool
}

// Resolver проверяет токен: кеш, при промахе — Postgres с повторным заполнением кеша.
type Resolver struct {
	mgr      *Manager
	extender Scheduler
	group    singleflight.Group
}

// NewResolver: extender может быть nil — тогда скользящее продление не выполняется.
func NewResolver(mgr *Manager, extender Scheduler) *Resolver {
	return &Resolver{mgr: mgr, extender: extender}
}

// Resolve возвращает личность по токену.
// Ошибки: ErrUnauthenticated, ErrSessionExpired, *ExternalServiceError.
func (r *Resolver) Resolve(ctx context.Context, token string) (*model.Identity, error) {
	tok, ok := canonicalToken(token)
	if !ok {
		return nil, ErrUnauthenticated
	}
	if cs, ttl := r.mgr.cache.get(ctx, tok); cs != nil {
		r.maybeExtend(cs.SessionID, tok, ttl)
		return model.IdentityFromCache(tok, *cs), nil
	}

	// Параллельные промахи по одному токену — один запрос в Postgres.
	// Отмена первого запроса не должна обрывать ожидающих.
	v, err, _ := r.group.Do(tok, func() (any, error) {
		return r.fallback(context.WithoutCancel(ctx), tok)
	})
	if err != nil {
		return nil, err
	}
	id := *v.(*model.Identity)
	return &id, nil
}

// maybeExtend: продление нужно, когда с последнего продления прошло больше threshold,
// т.е. оставшийся TTL меньше lifetime-threshold.
func (r *Resolver) maybeExtend(sessionID int64, token string, ttl time.Duration) {
	if r.extender == nil || ttl <= 0 {
		return
	}
	o := r.mgr.opts
	if ttl >= o.Lifetime-o.RenewalThreshold {
		return
	}
	if !r.extender.Schedule(sessionID, token) {
		logger.Debugf("session extension not scheduled: id=%d", sessionID)
	}
}

func (r *Resolver) fallback(ctx context.Context, token string) (*model.Identity, error) {
	m := r.mgr
	s, err := m.store.FindByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, postgresErr(err)
	}
	now := m.opts.Now()
	if !s.IsValid(now) {
		if _, err := m.store.DeleteByToken(ctx, token); err != nil {
			logger.Warnf("delete expired session id=%d: %v", s.ID, err)
		}
		return nil, ErrSessionExpired
	}
	if touched, err := m.store.Update(ctx, s.ID, model.SessionUpdate{LastAccessedAt: &now}, now); err != nil {
		logger.Warnf("touch session id=%d: %v", s.ID, err)
	} else {
		s = touched
	}
	m.cache.put(ctx, token, s.Cached(), s.Remaining(now))
	return s.Identity(), nil
}
