package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/campaign/internal/middleware"
	"github.com/campaign/internal/model"
	"github.com/campaign/internal/service"
	"github.com/campaign/internal/transport"
)

type AuthHandler struct {
	svc        *service.AuthService
	resolver   middleware.Resolver
	transports *transport.Set
}

func NewAuthHandler(svc *service.AuthService, resolver middleware.Resolver, transports *transport.Set) *AuthHandler {
	return &AuthHandler{svc: svc, resolver: resolver, transports: transports}
}

type sessionResponse struct {
	SessionID             int64          `json:"session_id"`
	Platform              model.Platform `json:"platform"`
	ExpiresAt             time.Time      `json:"expires_at"`
	ActiveOrgMembershipID *int64         `json:"active_organization_membership_id"`
}

type loginResponse struct {
	User    model.UserPublic `json:"user"`
	Session sessionResponse  `json:"session"`
	// Token отдаётся в теле только mobile-клиентам; web получает HttpOnly cookie.
	Token string `json:"session_token,omitempty"`
}

// Login — POST /api/auth/login {email, password, platform}.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.svc.Login(r.Context(), req, transport.ClientInfoFrom(r))
	if err != nil {
		writeServiceError(w, "login", err)
		return
	}
	s := res.Session
	h.transports.For(s.Platform).Attach(w, r, s.Token)
	resp := loginResponse{
		User: res.User.ToPublic(),
		Session: sessionResponse{
			SessionID:             s.ID,
			Platform:              s.Platform,
			ExpiresAt:             s.ExpiresAt,
			ActiveOrgMembershipID: s.ActiveOrgMembershipID,
		},
	}
	if s.Platform == model.PlatformMobile {
		resp.Token = s.Token
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout — POST /api/auth/logout. При отказе Postgres сессия остаётся, cookie не сбрасывается.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	if err := h.svc.Logout(r.Context(), id.Token); err != nil {
		writeServiceError(w, "logout", err)
		return
	}
	h.transports.For(middleware.GetPlatform(r.Context())).Clear(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me — GET /api/auth/session: текущий пользователь и сессия.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	u, err := h.svc.CurrentUser(r.Context(), id)
	if err != nil {
		writeServiceError(w, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":                              u.ToPublic(),
		"session_id":                        id.SessionID,
		"active_organization_membership_id": id.ActiveOrgMembershipID,
	})
}

// ListSessions — GET /api/auth/sessions.
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListSessions(r.Context(), middleware.GetIdentity(r.Context()))
	if err != nil {
		writeServiceError(w, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

// RevokeSession — DELETE /api/auth/sessions/{id}.
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathInt64(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	id := middleware.GetIdentity(r.Context())
	if err := h.svc.RevokeSession(r.Context(), id, sessionID); err != nil {
		writeServiceError(w, "revoke session", err)
		return
	}
	if sessionID == id.SessionID {
		h.transports.For(middleware.GetPlatform(r.Context())).Clear(w, r)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RevokeOthers — POST /api/auth/sessions/revoke-others.
func (h *AuthHandler) RevokeOthers(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.RevokeOthers(r.Context(), middleware.GetIdentity(r.Context()))
	if err != nil {
		writeServiceError(w, "revoke others", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword — POST /api/auth/change-password. Остальные сессии завершаются.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := h.svc.ChangePassword(r.Context(), middleware.GetIdentity(r.Context()), req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeServiceError(w, "change password", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

type switchOrgRequest struct {
	MembershipID *int64 `json:"membership_id"`
}

// SwitchOrganization — PUT /api/auth/active-organization {membership_id: 7 | null}.
func (h *AuthHandler) SwitchOrganization(w http.ResponseWriter, r *http.Request) {
	var req switchOrgRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s, err := h.svc.SwitchOrganization(r.Context(), middleware.GetIdentity(r.Context()), req.MembershipID)
	if err != nil {
		writeServiceError(w, "switch organization", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:             s.ID,
		Platform:              s.Platform,
		ExpiresAt:             s.ExpiresAt,
		ActiveOrgMembershipID: s.ActiveOrgMembershipID,
	})
}

type validateRequest struct {
	Token string `json:"token"`
}

// ValidateSession — POST /internal/validate для соседних сервисов (только приватная сеть).
// Токен — в теле или в X-Session-Token.
func (h *AuthHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		token, _, _ = h.transports.Extract(r)
	}
	id, err := h.resolver.Resolve(r.Context(), token)
	if err != nil {
		writeServiceError(w, "validate", err)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// Health — GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
