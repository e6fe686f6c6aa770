package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/campaign/internal/transport"
)

// InternalOnly разрешает запрос только с приватных IP или при заголовке X-Internal-Secret == secret.
// В prod auth не экспонируется наружу; вызовы только от соседних сервисов в той же сети.
// IP берётся из RemoteAddr (за доверенным прокси его переписывает RealIP).
func InternalOnly(secret string) func(http.Handler) http.Handler {
	secret = strings.TrimSpace(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Internal-Secret")), []byte(secret)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			if isPrivateIP(transport.ClientIP(r)) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func isPrivateIP(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}
