package middleware

import (
	"context"

	"github.com/campaign/internal/model"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	platformKey contextKey = "platform"
)

// WithIdentity кладёт проверенную личность в контекст (SessionAuth, тесты).
func WithIdentity(ctx context.Context, id *model.Identity, p model.Platform) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return context.WithValue(ctx, platformKey, p)
}

// GetIdentity возвращает личность, установленную SessionAuth; nil — запрос не аутентифицирован.
func GetIdentity(ctx context.Context) *model.Identity {
	v, _ := ctx.Value(identityKey).(*model.Identity)
	return v
}

// GetPlatform — платформа, по транспорту которой пришёл токен.
func GetPlatform(ctx context.Context) model.Platform {
	p, _ := ctx.Value(platformKey).(model.Platform)
	if p == "" {
		return model.PlatformWeb
	}
	return p
}
