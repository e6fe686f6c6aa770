package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/campaign/internal/logger"
	"github.com/campaign/internal/model"
	"github.com/campaign/internal/repository"
	"github.com/campaign/internal/session"
	"github.com/campaign/internal/transport"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserDisabled       = errors.New("user disabled")
	ErrWeakPassword       = errors.New("password does not meet policy")
	ErrMembershipNotFound = errors.New("membership not found")
	ErrSessionNotFound    = errors.New("session not found")
)

const (
	minPasswordLen = 8
	// bcrypt учитывает не больше 72 байт
	maxPasswordBytes = 72
)

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) error
}

type MembershipStore interface {
	GetForUser(ctx context.Context, membershipID, userID int64) (*model.Membership, error)
}

type AuthService struct {
	users       UserStore
	memberships MembershipStore
	sessions    *session.Manager
	bcryptCost  int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService: bcryptCost <= 0 — bcrypt.DefaultCost.
func NewAuthService(users UserStore, memberships MembershipStore, sessions *session.Manager, bcryptCost int) *AuthService {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{users: users, memberships: memberships, sessions: sessions, bcryptCost: bcryptCost}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Platform string `json:"platform"`
}

type LoginResult struct {
	Session *model.Session
	User    *model.User
}

// Login проверяет пароль и создаёт сессию. Неизвестный email и неверный пароль неразличимы
// (в т.ч. по времени ответа).
func (s *AuthService) Login(ctx context.Context, req LoginRequest, client transport.ClientInfo) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(req.Password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, &session.ExternalServiceError{Service: "postgres", Err: fmt.Errorf("authService.Login: %w", err)}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if u.DisabledAt != nil {
		return nil, ErrUserDisabled
	}
	sess, err := s.sessions.Create(ctx, session.NewSessionParams{
		UserID:     u.ID,
		Platform:   model.ParsePlatform(req.Platform),
		DeviceInfo: client.UserAgent,
		IPAddress:  client.IP,
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("login: user=%d session=%d", u.ID, sess.ID)
	return &LoginResult{Session: sess, User: u}, nil
}

func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("timing-equalizer"), s.bcryptCost)
		if err != nil {
			logger.Errorf("bcrypt dummy hash: %v", err)
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// Logout удаляет текущую сессию.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// CurrentUser — профиль владельца сессии.
func (s *AuthService) CurrentUser(ctx context.Context, id *model.Identity) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, session.ErrUnauthenticated
	}
	if err != nil {
		return nil, &session.ExternalServiceError{Service: "postgres", Err: fmt.Errorf("authService.CurrentUser: %w", err)}
	}
	return u, nil
}

// SessionView — сессия в списке «активные устройства».
type SessionView struct {
	ID             int64          `json:"id"`
	DeviceInfo     string         `json:"device_info"`
	IPAddress      string         `json:"ip_address,omitempty"`
	Platform       model.Platform `json:"platform"`
	CreatedAt      time.Time      `json:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
	Current        bool           `json:"current"`
}

func (s *AuthService) ListSessions(ctx context.Context, id *model.Identity) ([]SessionView, error) {
	list, err := s.sessions.ListForUser(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(list))
	for _, ss := range list {
		views = append(views, SessionView{
			ID:             ss.ID,
			DeviceInfo:     ss.DeviceInfo,
			IPAddress:      ss.IPAddress,
			Platform:       ss.Platform,
			CreatedAt:      ss.CreatedAt,
			LastAccessedAt: ss.LastAccessedAt,
			ExpiresAt:      ss.ExpiresAt,
			Current:        ss.ID == id.SessionID,
		})
	}
	return views, nil
}

// RevokeSession завершает одну из сессий пользователя по id.
func (s *AuthService) RevokeSession(ctx context.Context, id *model.Identity, sessionID int64) error {
	list, err := s.sessions.ListForUser(ctx, id.UserID)
	if err != nil {
		return err
	}
	for _, ss := range list {
		if ss.ID == sessionID {
			return s.sessions.Delete(ctx, ss.Token)
		}
	}
	return ErrSessionNotFound
}

// RevokeOthers завершает все сессии пользователя, кроме текущей.
func (s *AuthService) RevokeOthers(ctx context.Context, id *model.Identity) (int, error) {
	return s.sessions.DeleteAllForUser(ctx, id.UserID, id.Token)
}

// ChangePassword проверяет текущий пароль, сохраняет новый и завершает остальные сессии.
func (s *AuthService) ChangePassword(ctx context.Context, id *model.Identity, current, next string) (int, error) {
	if err := ValidatePassword(next); err != nil {
		return 0, err
	}
	u, err := s.CurrentUser(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return 0, ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.bcryptCost)
	if err != nil {
		return 0, fmt.Errorf("authService.ChangePassword: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, u.ID, string(hash)); err != nil {
		return 0, &session.ExternalServiceError{Service: "postgres", Err: fmt.Errorf("authService.ChangePassword: %w", err)}
	}
	n, err := s.sessions.DeleteAllForUser(ctx, u.ID, id.Token)
	if err != nil {
		return 0, err
	}
	logger.Infof("password changed: user=%d revoked_sessions=%d", u.ID, n)
	return n, nil
}

// SwitchOrganization делает активным членство membershipID (nil — сбросить).
// Членство должно принадлежать пользователю сессии.
func (s *AuthService) SwitchOrganization(ctx context.Context, id *model.Identity, membershipID *int64) (*model.Session, error) {
	if membershipID != nil {
		_, err := s.memberships.GetForUser(ctx, *membershipID, id.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMembershipNotFound
		}
		if err != nil {
			return nil, &session.ExternalServiceError{Service: "postgres", Err: fmt.Errorf("authService.SwitchOrganization: %w", err)}
		}
	}
	return s.sessions.SetActiveOrganization(ctx, id.SessionID, membershipID)
}

// ValidatePassword: от 8 символов до 72 байт, хотя бы одна буква и одна цифра.
func ValidatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < minPasswordLen {
		return fmt.Errorf("%w: at least %d characters", ErrWeakPassword, minPasswordLen)
	}
	if len(pw) > maxPasswordBytes {
		return fmt.Errorf("%w: at most %d bytes", ErrWeakPassword, maxPasswordBytes)
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("%w: must contain a letter and a digit", ErrWeakPassword)
	}
	return nil
}
