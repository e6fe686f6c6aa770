package transport

import (
	"net/http"
	"strings"
	"time"

	"github.com/campaign/internal/model"
)

type CookieOptions struct {
	Domain string
	MaxAge time.Duration
	// Secure ставит флаг всегда; иначе — только для HTTPS-запросов.
	Secure bool
}

// Cookie — транспорт web: HttpOnly cookie session_token.
type Cookie struct {
	opts CookieOptions
}

func NewCookie(opts CookieOptions) *Cookie {
	return &Cookie{opts: opts}
}

func (c *Cookie) Platform() model.Platform { return model.PlatformWeb }

func (c *Cookie) Extract(r *http.Request) (string, bool) {
	ck, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(ck.Value)
	return v, v != ""
}

func (c *Cookie) Attach(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, c.cookie(r, token, int(c.opts.MaxAge/time.Second)))
}

func (c *Cookie) Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, c.cookie(r, "", -1))
}

func (c *Cookie) cookie(r *http.Request, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Domain:   c.opts.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.opts.Secure || IsHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	}
}

// IsHTTPS: прямое TLS-соединение или TLS, терминированный прокси (X-Forwarded-Proto).
func IsHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
