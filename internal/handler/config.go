package handler

import (
	"net/http"

	"github.com/campaign/internal/config"
	"github.com/campaign/internal/transport"
)

// ConfigHandler отдаёт публичные параметры сессий клиентам (без авторизации).
type ConfigHandler struct {
	cfg *config.Config
}

// NewConfigHandler создаёт обработчик конфигурации.
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// GetSessionConfig — GET /api/auth/config.
func (h *ConfigHandler) GetSessionConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"session_lifetime_seconds":          int(h.cfg.Session.Lifetime.Seconds()),
		"session_renewal_threshold_seconds": int(h.cfg.Session.RenewalThreshold.Seconds()),
		"cookie_name":                       transport.CookieName,
		"header_name":                       transport.HeaderName,
	})
}
