package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/campaign/internal/middleware"
	"github.com/campaign/internal/transport"
)

type RouterOptions struct {
	AllowedOrigins []string
	// TrustProxy включает chimw.RealIP: RemoteAddr берётся из X-Forwarded-For / X-Real-IP.
	TrustProxy     bool
	LoginRateLimit int // в минуту с одного IP
	InternalSecret string
}

// NewRouter собирает HTTP API сервиса auth.
func NewRouter(authH *AuthHandler, configH *ConfigHandler, resolver middleware.Resolver, transports *transport.Set, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	if opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLog)
	r.Use(middleware.RecoverJSON)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", transport.HeaderName},
		ExposedHeaders:   []string{transport.HeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", Health)
	r.Get("/api/auth/config", configH.GetSessionConfig)
	r.With(middleware.RateLimitByIP(opts.LoginRateLimit, time.Minute)).Post("/api/auth/login", authH.Login)
	r.With(middleware.InternalOnly(opts.InternalSecret)).Post("/internal/validate", authH.ValidateSession)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(resolver, transports))
		r.Post("/api/auth/logout", authH.Logout)
		r.Get("/api/auth/session", authH.Me)
		r.Get("/api/auth/sessions", authH.ListSessions)
		r.Delete("/api/auth/sessions/{id}", authH.RevokeSession)
		r.Post("/api/auth/sessions/revoke-others", authH.RevokeOthers)
		r.With(middleware.RateLimitByIP(opts.LoginRateLimit, time.Minute)).Post("/api/auth/change-password", authH.ChangePassword)
		r.Put("/api/auth/active-organization", authH.SwitchOrganization)
	})
	return r
}
