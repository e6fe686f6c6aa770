package transport

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campaign/internal/model"
)

const tok = "0b7a3f5e-4d1c-4b8e-9f3a-2c6d8e1f0a9b"

func TestCookie_AttachAndClear(t *testing.T) {
	c := NewCookie(CookieOptions{MaxAge: 7 * 24 * time.Hour, Domain: "example.com"})
	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)

	w := httptest.NewRecorder()
	c.Attach(w, r, tok)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	ck := cookies[0]
	assert.Equal(t, CookieName, ck.Name)
	assert.Equal(t, tok, ck.Value)
	assert.Equal(t, "/", ck.Path)
	assert.Equal(t, "example.com", ck.Domain)
	assert.Equal(t, 604800, ck.MaxAge)
	assert.True(t, ck.HttpOnly)
	assert.False(t, ck.Secure)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)

	w = httptest.NewRecorder()
	c.Clear(w, r)
	cookies = w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestCookie_SecureFlag(t *testing.T) {
	plain := NewCookie(CookieOptions{MaxAge: time.Hour})

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-Forwarded-Proto", "HTTPS")
	w := httptest.NewRecorder()
	plain.Attach(w, r, tok)
	assert.True(t, w.Result().Cookies()[0].Secure)

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	r.TLS = &tls.ConnectionState{}
	w = httptest.NewRecorder()
	plain.Attach(w, r, tok)
	assert.True(t, w.Result().Cookies()[0].Secure)

	forced := NewCookie(CookieOptions{MaxAge: time.Hour, Secure: true})
	w = httptest.NewRecorder()
	forced.Attach(w, httptest.NewRequest(http.MethodPost, "/", nil), tok)
	assert.True(t, w.Result().Cookies()[0].Secure)
}

func TestHeader(t *testing.T) {
	h := NewHeader()
	assert.Equal(t, model.PlatformMobile, h.Platform())

	w := httptest.NewRecorder()
	h.Attach(w, nil, tok)
	assert.Equal(t, tok, w.Header().Get(HeaderName))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := h.Extract(r)
	assert.False(t, ok)
	r.Header.Set(HeaderName, "  "+tok+" ")
	got, ok := h.Extract(r)
	require.True(t, ok)
	assert.Equal(t, tok, got)
}

func TestSet_ExtractPrefersCookie(t *testing.T) {
	s := NewSet(NewCookie(CookieOptions{MaxAge: time.Hour}), NewHeader())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, _, ok := s.Extract(r)
	assert.False(t, ok)

	r.Header.Set(HeaderName, "from-header")
	got, platform, ok := s.Extract(r)
	require.True(t, ok)
	assert.Equal(t, "from-header", got)
	assert.Equal(t, model.PlatformMobile, platform)

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	got, platform, ok = s.Extract(r)
	require.True(t, ok)
	assert.Equal(t, "from-cookie", got)
	assert.Equal(t, model.PlatformWeb, platform)

	assert.Equal(t, model.PlatformMobile, s.For(model.PlatformMobile).Platform())
	assert.Equal(t, model.PlatformWeb, s.For(model.Platform("tv")).Platform())
}

func TestClientInfoFrom(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"203.0.113.7:5123", "203.0.113.7"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"198.51.100.2", "198.51.100.2"},
		{"unix-socket", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		r.Header.Set("X-Forwarded-For", "1.1.1.1")
		assert.Equal(t, tt.want, ClientInfoFrom(r).IP, tt.remote)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("User-Agent", strings.Repeat("a", 2*maxUserAgentLen))
	assert.Len(t, ClientInfoFrom(r).UserAgent, maxUserAgentLen)
}
