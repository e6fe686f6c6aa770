package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campaign/internal/config"
	"github.com/campaign/internal/model"
	"github.com/campaign/internal/repository"
	"github.com/campaign/internal/service"
	"github.com/campaign/internal/session"
	"github.com/campaign/internal/session/sessiontest"
	"github.com/campaign/internal/storage/memory"
	"github.com/campaign/internal/transport"
)

type stubUsers struct {
	users map[string]*model.User
}

func (s *stubUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if u, ok := s.users[email]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubUsers) GetByID(ctx context.Context, id int64) (*model.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubUsers) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	for _, u := range s.users {
		if u.ID == userID {
			u.PasswordHash = hash
			return nil
		}
	}
	return repository.ErrNotFound
}

type stubMemberships struct{}

func (stubMemberships) GetForUser(ctx context.Context, membershipID, userID int64) (*model.Membership, error) {
	if membershipID == 7 && userID == 42 {
		return &model.Membership{ID: 7, OrganizationID: 1, UserID: 42, Role: "member"}, nil
	}
	return nil, repository.ErrNotFound
}

const testPassword = "correct1horse"

type server struct {
	h     http.Handler
	store *sessiontest.Store
	cache *memory.Client
	clock *sessiontest.Clock
}

func newServer(t *testing.T) *server {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	users := &stubUsers{users: map[string]*model.User{
		"ada@example.com": {ID: 42, Email: "ada@example.com", FirstName: "Ada", PasswordHash: string(hash)},
	}}
	store := sessiontest.NewStore()
	clock := sessiontest.NewClock(time.Now())
	cfg := &config.Config{Session: config.SessionConfig{Lifetime: 7 * 24 * time.Hour, RenewalThreshold: 24 * time.Hour}}
	cache := memory.New()
	mgr := session.NewManager(store, cache, session.Options{
		Lifetime:         cfg.Session.Lifetime,
		RenewalThreshold: cfg.Session.RenewalThreshold,
		Now:              clock.Now,
	})
	resolver := session.NewResolver(mgr, nil)
	transports := transport.NewSet(
		transport.NewCookie(transport.CookieOptions{MaxAge: cfg.Session.Lifetime}),
		transport.NewHeader(),
	)
	svc := service.NewAuthService(users, stubMemberships{}, mgr, bcrypt.MinCost)
	h := NewRouter(NewAuthHandler(svc, resolver, transports), NewConfigHandler(cfg), resolver, transports, RouterOptions{
		AllowedOrigins: []string{"*"},
		LoginRateLimit: 5,
	})
	return &server{h: h, store: store, cache: cache, clock: clock}
}

type call struct {
	method, path, body string
	cookie, token      string
	remote             string
}

func (s *server) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	r.Header.Set("Content-Type", "application/json")
	if c.cookie != "" {
		r.AddCookie(&http.Cookie{Name: transport.CookieName, Value: c.cookie})
	}
	if c.token != "" {
		r.Header.Set(transport.HeaderName, c.token)
	}
	if c.remote != "" {
		r.RemoteAddr = c.remote
	}
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == transport.CookieName {
			return c
		}
	}
	return nil
}

func (s *server) loginWeb(t *testing.T) string {
	t.Helper()
	w := s.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"ada@example.com","password":"` + testPassword + `"}`})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ck := sessionCookie(w)
	require.NotNil(t, ck)
	return ck.Value
}

func TestWebFlow(t *testing.T) {
	s := newServer(t)

	w := s.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"ada@example.com","password":"` + testPassword + `","platform":"web"}`})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	ck := sessionCookie(w)
	require.NotNil(t, ck)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, 604800, ck.MaxAge)
	assert.Empty(t, w.Header().Get(transport.HeaderName))
	body := decode(t, w)
	assert.NotContains(t, body, "session_token")
	assert.Equal(t, float64(42), body["user"].(map[string]any)["user_id"])
	token := ck.Value

	w = s.do(t, call{method: http.MethodGet, path: "/api/auth/session", cookie: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["active_organization_membership_id"])

	w = s.do(t, call{method: http.MethodPut, path: "/api/auth/active-organization", cookie: token, body: `{"membership_id":7}`})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(7), decode(t, w)["active_organization_membership_id"])

	w = s.do(t, call{method: http.MethodGet, path: "/api/auth/session", cookie: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(7), decode(t, w)["active_organization_membership_id"])

	w = s.do(t, call{method: http.MethodPost, path: "/api/auth/logout", cookie: token})
	require.Equal(t, http.StatusOK, w.Code)
	cleared := sessionCookie(w)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	w = s.do(t, call{method: http.MethodGet, path: "/api/auth/session", cookie: token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decode(t, w)["error"])
}

func TestMobileFlow(t *testing.T) {
	s := newServer(t)
	web := s.loginWeb(t)

	w := s.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"ada@example.com","password":"` + testPassword + `","platform":"mobile"}`})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, sessionCookie(w))
	token := w.Header().Get(transport.HeaderName)
	require.NotEmpty(t, token)
	assert.Equal(t, token, decode(t, w)["session_token"])

	w = s.do(t, call{method: http.MethodGet, path: "/api/auth/sessions", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)["sessions"].([]any)
	assert.Len(t, list, 2)

	w = s.do(t, call{method: http.MethodPost, path: "/api/auth/sessions/revoke-others", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["revoked"])

	w = s.do(t, call{method: http.MethodGet, path: "/api/auth/session", cookie: web})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, call{method: http.MethodGet, path: "/api/auth/session", token: token})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	s := newServer(t)
	w := s.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"ada@example.com","password":"wrong1horse"}`})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", decode(t, w)["error"])

	w = s.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: `{not json`})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_RateLimited(t *testing.T) {
	s := newServer(t)
	var last int
	for i := 0; i < 6; i++ {
		last = s.do(t, call{method: http.MethodPost, path: "/api/auth/login", body: `{}`, remote: "198.51.100.9:1"}).Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestLogout_DurableFailureKeepsCookie(t *testing.T) {
	s := newServer(t)
	token := s.loginWeb(t)
	s.store.SetError(sessiontest.OpDeleteByToken, errors.New("timeout"))

	w := s.do(t, call{method: http.MethodPost, path: "/api/auth/logout", cookie: token})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Nil(t, sessionCookie(w))

	s.store.SetError(sessiontest.OpDeleteByToken, nil)
	w = s.do(t, call{method: http.MethodGet, path: "/api/auth/session", cookie: token})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExpiredSession(t *testing.T) {
	s := newServer(t)
	token := s.loginWeb(t)
	s.clock.Advance(8 * 24 * time.Hour)
	// проекция в кеше живёт по настоящим часам; убираем её, чтобы запрос дошёл до Postgres
	require.NoError(t, s.cache.Delete(context.Background(), "session:"+token))

	w := s.do(t, call{method: http.MethodGet, path: "/api/auth/session", cookie: token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "session_expired", decode(t, w)["error"])
	cleared := sessionCookie(w)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
	assert.Equal(t, 0, s.store.Len())

	w = s.do(t, call{method: http.MethodGet, path: "/api/auth/session", token: "not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decode(t, w)["error"])
}

func TestSwitchOrganization_ForeignMembership(t *testing.T) {
	s := newServer(t)
	token := s.loginWeb(t)
	w := s.do(t, call{method: http.MethodPut, path: "/api/auth/active-organization", cookie: token, body: `{"membership_id":8}`})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "membership_not_found", decode(t, w)["error"])
}

func TestChangePassword(t *testing.T) {
	s := newServer(t)
	token := s.loginWeb(t)
	other := s.loginWeb(t)

	w := s.do(t, call{method: http.MethodPost, path: "/api/auth/change-password", cookie: token,
		body: `{"current_password":"` + testPassword + `","new_password":"short"}`})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: "/api/auth/change-password", cookie: token,
		body: `{"current_password":"` + testPassword + `","new_password":"brand1new2pass"}`})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode(t, w)["revoked"])

	assert.Equal(t, http.StatusUnauthorized, s.do(t, call{method: http.MethodGet, path: "/api/auth/session", cookie: other}).Code)
	assert.Equal(t, http.StatusOK, s.do(t, call{method: http.MethodGet, path: "/api/auth/session", cookie: token}).Code)
}

func TestRevokeSession(t *testing.T) {
	s := newServer(t)
	token := s.loginWeb(t)
	other := s.loginWeb(t)

	w := s.do(t, call{method: http.MethodGet, path: "/api/auth/sessions", cookie: token})
	require.Equal(t, http.StatusOK, w.Code)
	var otherID float64
	for _, item := range decode(t, w)["sessions"].([]any) {
		v := item.(map[string]any)
		if v["current"] == false {
			otherID = v["id"].(float64)
		}
	}
	require.NotZero(t, otherID)

	w = s.do(t, call{method: http.MethodDelete, path: "/api/auth/sessions/" + jsonInt(otherID), cookie: token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusUnauthorized, s.do(t, call{method: http.MethodGet, path: "/api/auth/session", cookie: other}).Code)

	w = s.do(t, call{method: http.MethodDelete, path: "/api/auth/sessions/abc", cookie: token})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, call{method: http.MethodDelete, path: "/api/auth/sessions/" + jsonInt(otherID), cookie: token})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func jsonInt(f float64) string {
	b, _ := json.Marshal(int64(f))
	return string(b)
}

func TestInternalValidate(t *testing.T) {
	s := newServer(t)
	token := s.loginWeb(t)

	w := s.do(t, call{method: http.MethodPost, path: "/internal/validate", body: `{"token":"` + token + `"}`, remote: "203.0.113.1:5000"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: "/internal/validate", body: `{"token":"` + token + `"}`, remote: "10.0.0.5:5000"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(42), body["user_id"])
	assert.NotContains(t, body, "token")

	w = s.do(t, call{method: http.MethodPost, path: "/internal/validate", token: token, remote: "10.0.0.5:5000"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: "/internal/validate", body: `{"token":"garbage"}`, remote: "10.0.0.5:5000"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestConfigAndHealth(t *testing.T) {
	s := newServer(t)
	w := s.do(t, call{method: http.MethodGet, path: "/api/auth/config"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(604800), body["session_lifetime_seconds"])
	assert.Equal(t, float64(86400), body["session_renewal_threshold_seconds"])
	assert.Equal(t, transport.HeaderName, body["header_name"])

	w = s.do(t, call{method: http.MethodGet, path: "/health"})
	assert.Equal(t, http.StatusOK, w.Code)
}
