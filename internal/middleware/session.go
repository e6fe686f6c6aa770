package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/campaign/internal/logger"
	"github.com/campaign/internal/model"
	"github.com/campaign/internal/session"
	"github.com/campaign/internal/transport"
)

// Resolver — проверка токена (session.Resolver).
type Resolver interface {
	Resolve(ctx context.Context, token string) (*model.Identity, error)
}

// SessionAuth извлекает токен транспортом (cookie, затем X-Session-Token), проверяет его
// и кладёт личность в контекст. Без валидной сессии — 401, при отказе хранилища — 503.
func SessionAuth(resolver Resolver, transports *transport.Set) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, platform, ok := transports.Extract(r)
			if !ok {
				WriteAuthError(w, session.ErrUnauthenticated)
				return
			}
			id, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, session.ErrSessionExpired) {
					// просроченную cookie браузер больше не должен присылать
					transports.For(platform).Clear(w, r)
				}
				if !errors.Is(err, session.ErrUnauthenticated) {
					logger.Errorf("session middleware token=%s: %v", MaskToken(token), err)
				}
				WriteAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id, platform)))
		})
	}
}

// WriteAuthError: 401 unauthorized / 401 session_expired / 503 для отказов хранилищ.
func WriteAuthError(w http.ResponseWriter, err error) {
	status, msg := http.StatusUnauthorized, "unauthorized"
	var ext *session.ExternalServiceError
	switch {
	case errors.Is(err, session.ErrSessionExpired):
		msg = "session_expired"
	case errors.Is(err, session.ErrUnauthenticated):
	case errors.As(err, &ext):
		status, msg = http.StatusServiceUnavailable, "service_unavailable"
	default:
		status, msg = http.StatusInternalServerError, "internal server error"
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
