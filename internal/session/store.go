package session

import (
	"context"
	"time"

	"github.com/campaign/internal/model"
)

const (
	DefaultLifetime         = 7 * 24 * time.Hour
	DefaultRenewalThreshold = 24 * time.Hour
)

// Store — долговременное хранилище сессий (repository.SessionRepository).
// Отсутствие строки — repository.ErrNotFound.
type Store interface {
	Insert(ctx context.Context, ns model.NewSession) (*model.Session, error)
	FindByToken(ctx context.Context, token string) (*model.Session, error)
	Update(ctx context.Context, id int64, upd model.SessionUpdate, now time.Time) (*model.Session, error)
	DeleteByToken(ctx context.Context, token string) (bool, error)
	ListByUser(ctx context.Context, userID int64, now time.Time) ([]model.Session, error)
	ListTokensByUser(ctx context.Context, userID int64, except string) ([]string, error)
	DeleteAllForUser(ctx context.Context, userID int64, except string) ([]string, error)
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)
}

// Options — политика срока жизни. Нулевые значения заменяются значениями по умолчанию.
type Options struct {
	Lifetime         time.Duration
	RenewalThreshold time.Duration
	Now              func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Lifetime <= 0 {
		o.Lifetime = DefaultLifetime
	}
	if o.RenewalThreshold <= 0 || o.RenewalThreshold >= o.Lifetime {
		o.RenewalThreshold = min(DefaultRenewalThreshold, o.Lifetime/7)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
