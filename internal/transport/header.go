package transport

import (
	"net/http"
	"strings"

	"github.com/campaign/internal/model"
)

// Header — транспорт mobile: токен в заголовке X-Session-Token в обе стороны.
type Header struct{}

func NewHeader() *Header { return &Header{} }

func (Header) Platform() model.Platform { return model.PlatformMobile }

func (Header) Extract(r *http.Request) (string, bool) {
	v := strings.TrimSpace(r.Header.Get(HeaderName))
	return v, v != ""
}

func (Header) Attach(w http.ResponseWriter, _ *http.Request, token string) {
	w.Header().Set(HeaderName, token)
}

// Clear: клиент сам удаляет токен, получив ответ на logout.
func (Header) Clear(http.ResponseWriter, *http.Request) {}
