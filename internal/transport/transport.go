// Package transport — доставка токена сессии клиенту и обратно: cookie для web, заголовок для mobile.
package transport

import (
	"net/http"

	"github.com/campaign/internal/model"
)

const (
	CookieName = "session_token"
	HeaderName = "X-Session-Token"
)

// Transport — способ передачи токена для одной платформы.
type Transport interface {
	Platform() model.Platform
	// Extract возвращает токен из запроса; false — токена нет.
	Extract(r *http.Request) (string, bool)
	// Attach передаёт токен клиенту в ответе.
	Attach(w http.ResponseWriter, r *http.Request, token string)
	// Clear просит клиента забыть токен.
	Clear(w http.ResponseWriter, r *http.Request)
}

// Set — транспорты по платформам. Extract пробует их в порядке регистрации.
type Set struct {
	order      []Transport
	byPlatform map[model.Platform]Transport
}

func NewSet(ts ...Transport) *Set {
	s := &Set{byPlatform: make(map[model.Platform]Transport, len(ts))}
	for _, t := range ts {
		s.order = append(s.order, t)
		s.byPlatform[t.Platform()] = t
	}
	return s
}

// For возвращает транспорт платформы; для незарегистрированной — первый (web).
func (s *Set) For(p model.Platform) Transport {
	if t, ok := s.byPlatform[p]; ok {
		return t
	}
	return s.order[0]
}

// Extract: cookie первым, затем заголовок. Возвращает и платформу, по которой найден токен.
func (s *Set) Extract(r *http.Request) (string, model.Platform, bool) {
	for _, t := range s.order {
		if tok, ok := t.Extract(r); ok {
			return tok, t.Platform(), true
		}
	}
	return "", "", false
}
