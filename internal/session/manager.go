// Package session — проверка токенов и жизненный цикл сессий поверх двух хранилищ:
// Postgres (источник истины) и кеша (Redis) с проекцией сессии и TTL = оставшемуся сроку.
package session

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/campaign/internal/logger"
	"github.com/campaign/internal/model"
	"github.com/campaign/internal/repository"
	"github.com/campaign/internal/storage"
)

// NewSessionParams — данные для создания сессии при входе.
type NewSessionParams struct {
	UserID     int64
	Platform   model.Platform
	DeviceInfo string
	IPAddress  string
}

// Manager выполняет все изменения сессий. Ошибки кеша не фатальны, ошибки Postgres всплывают
// как *ExternalServiceError.
type Manager struct {
	store Store
	cache sessionCache
	opts  Options
}

func NewManager(store Store, cache storage.Cache, opts Options) *Manager {
	return &Manager{store: store, cache: sessionCache{c: cache}, opts: opts.withDefaults()}
}

// Create создаёт сессию со сроком now+lifetime и кладёт проекцию в кеш.
func (m *Manager) Create(ctx context.Context, p NewSessionParams) (*model.Session, error) {
	now := m.opts.Now()
	s, err := m.store.Insert(ctx, model.NewSession{
		Token:          uuid.NewString(),
		UserID:         p.UserID,
		DeviceInfo:     p.DeviceInfo,
		IPAddress:      p.IPAddress,
		Platform:       p.Platform,
		ExpiresAt:      now.Add(m.opts.Lifetime),
		LastAccessedAt: now,
	})
	if err != nil {
		return nil, postgresErr(err)
	}
	m.cache.put(ctx, s.Token, s.Cached(), s.Remaining(now))
	logger.Infof("session created: id=%d user=%d platform=%s", s.ID, s.UserID, s.Platform)
	return s, nil
}

// ExtendExpiry сдвигает expires_at на now+lifetime (никогда назад) и обновляет last_accessed_at.
// Кеш не трогает: это делает RefreshCache.
func (m *Manager) ExtendExpiry(ctx context.Context, sessionID int64) (*model.Session, error) {
	now := m.opts.Now()
	exp := now.Add(m.opts.Lifetime)
	s, err := m.store.Update(ctx, sessionID, model.SessionUpdate{ExpiresAt: &exp, LastAccessedAt: &now}, now)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, postgresErr(err)
	}
	return s, nil
}

// RefreshCache выставляет TTL проекции по новому сроку сессии, сохраняя её поля.
func (m *Manager) RefreshCache(ctx context.Context, s *model.Session) {
	m.cache.refreshTTL(ctx, s.Token, s.Remaining(m.opts.Now()))
}

// SetActiveOrganization меняет активное членство (nil — сбросить) у действующей сессии,
// затем условно обновляет это поле в кеше.
func (m *Manager) SetActiveOrganization(ctx context.Context, sessionID int64, membershipID *int64) (*model.Session, error) {
	now := m.opts.Now()
	s, err := m.store.Update(ctx, sessionID, model.SessionUpdate{SetActiveOrg: true, ActiveOrgMembershipID: membershipID}, now)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, postgresErr(err)
	}
	m.cache.setActiveOrg(ctx, s.Token, s.ActiveOrgMembershipID)
	return s, nil
}

// Delete удаляет сессию: сначала кеш, затем Postgres. Отказ Postgres возвращается вызывающему.
// Неизвестный токен — не ошибка.
func (m *Manager) Delete(ctx context.Context, token string) error {
	tok, ok := canonicalToken(token)
	if !ok {
		return nil
	}
	m.cache.invalidate(ctx, tok)
	if _, err := m.store.DeleteByToken(ctx, tok); err != nil {
		return postgresErr(err)
	}
	return nil
}

// DeleteAllForUser удаляет все сессии пользователя, кроме exceptToken (пустой — все).
// Кеш чистится дважды: до удаления по списку и после — по фактически удалённым строкам,
// чтобы не осталась проекция сессии, созданной между перечислением и DELETE.
func (m *Manager) DeleteAllForUser(ctx context.Context, userID int64, exceptToken string) (int, error) {
	except, _ := canonicalToken(exceptToken)
	listed, err := m.store.ListTokensByUser(ctx, userID, except)
	if err != nil {
		return 0, postgresErr(err)
	}
	m.cache.invalidate(ctx, listed...)

	deleted, err := m.store.DeleteAllForUser(ctx, userID, except)
	if err != nil {
		return 0, postgresErr(err)
	}
	seen := make(map[string]struct{}, len(listed))
	for _, t := range listed {
		seen[t] = struct{}{}
	}
	var late []string
	for _, t := range deleted {
		if _, ok := seen[t]; !ok {
			late = append(late, t)
		}
	}
	m.cache.invalidate(ctx, late...)
	if len(deleted) > 0 {
		logger.Infof("sessions revoked: user=%d count=%d", userID, len(deleted))
	}
	return len(deleted), nil
}

// ListForUser — действующие сессии пользователя, свежие сверху.
func (m *Manager) ListForUser(ctx context.Context, userID int64) ([]model.Session, error) {
	list, err := m.store.ListByUser(ctx, userID, m.opts.Now())
	if err != nil {
		return nil, postgresErr(err)
	}
	return list, nil
}

// CleanupExpired удаляет истёкшие строки и их проекции.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	tokens, err := m.store.DeleteExpired(ctx, m.opts.Now())
	if err != nil {
		return 0, postgresErr(err)
	}
	m.cache.invalidate(ctx, tokens...)
	return len(tokens), nil
}

// canonicalToken: токен — UUID; в ключах и запросах используется каноническая форма.
func canonicalToken(token string) (string, bool) {
	u, err := uuid.Parse(token)
	if err != nil {
		return "", false
	}
	return u.String(), true
}
