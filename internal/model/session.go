package model

import (
	"strings"
	"time"
)

// Platform — тип клиента; определяет транспорт токена (cookie или заголовок).
type Platform string

const (
	PlatformWeb    Platform = "web"
	PlatformMobile Platform = "mobile"
)

// ParsePlatform разбирает значение из запроса/БД. Неизвестное значение — web.
func ParsePlatform(s string) Platform {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformMobile:
		return PlatformMobile
	default:
		return PlatformWeb
	}
}

func (p Platform) String() string { return string(p) }

// Session — долговременная запись сессии (таблица sessions). Источник истины.
type Session struct {
	ID                    int64     `json:"id"`
	Token                 string    `json:"-"`
	UserID                int64     `json:"user_id"`
	ActiveOrgMembershipID *int64    `json:"active_organization_membership_id"`
	DeviceInfo            string    `json:"device_info"`
	IPAddress             string    `json:"ip_address,omitempty"`
	Platform              Platform  `json:"platform"`
	CreatedAt             time.Time `json:"created_at"`
	ExpiresAt             time.Time `json:"expires_at"`
	LastAccessedAt        time.Time `json:"last_accessed_at"`
}

// IsValid — сессия действительна, пока expires_at в будущем.
func (s *Session) IsValid(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// Remaining возвращает оставшееся время жизни (0, если истекла).
func (s *Session) Remaining(now time.Time) time.Duration {
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Cached строит проекцию для кеша.
func (s *Session) Cached() CachedSession {
	return CachedSession{
		SessionID:             s.ID,
		UserID:                s.UserID,
		ActiveOrgMembershipID: s.ActiveOrgMembershipID,
	}
}

// Identity строит результат проверки токена.
func (s *Session) Identity() *Identity {
	return &Identity{
		SessionID:             s.ID,
		UserID:                s.UserID,
		ActiveOrgMembershipID: s.ActiveOrgMembershipID,
		Token:                 s.Token,
	}
}

// NewSession — поля для INSERT; id и created_at назначает БД.
type NewSession struct {
	Token                 string
	UserID                int64
	ActiveOrgMembershipID *int64
	DeviceInfo            string
	IPAddress             string
	Platform              Platform
	ExpiresAt             time.Time
	LastAccessedAt        time.Time
}

// SessionUpdate — частичное обновление. nil-поле не меняется.
// ExpiresAt никогда не сдвигается назад.
type SessionUpdate struct {
	SetActiveOrg          bool
	ActiveOrgMembershipID *int64
	ExpiresAt             *time.Time
	LastAccessedAt        *time.Time
}

// CachedSession — проекция сессии в кеше по ключу session:<token>.
type CachedSession struct {
	SessionID             int64  `json:"session_id"`
	UserID                int64  `json:"user_id"`
	ActiveOrgMembershipID *int64 `json:"active_organization_membership_id"`
}

// Identity — проверенная личность запроса.
type Identity struct {
	SessionID             int64  `json:"session_id"`
	UserID                int64  `json:"user_id"`
	ActiveOrgMembershipID *int64 `json:"active_organization_membership_id"`
	Token                 string `json:"-"`
}

// IdentityFromCache восстанавливает Identity из проекции.
func IdentityFromCache(token string, cs CachedSession) *Identity {
	return &Identity{
		SessionID:             cs.SessionID,
		UserID:                cs.UserID,
		ActiveOrgMembershipID: cs.ActiveOrgMembershipID,
		Token:                 token,
	}
}
