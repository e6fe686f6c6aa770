package transport

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const maxUserAgentLen = 512

// ClientInfo — сведения о клиенте для записи сессии.
type ClientInfo struct {
	UserAgent string
	IP        string // пусто, если адрес не распознан
}

// ClientInfoFrom берёт IP из r.RemoteAddr. За доверенным прокси его заранее переписывает
// chi middleware.RealIP (TRUST_PROXY), заголовки здесь не читаются.
func ClientInfoFrom(r *http.Request) ClientInfo {
	ua := strings.TrimSpace(r.UserAgent())
	if len(ua) > maxUserAgentLen {
		ua = strings.ToValidUTF8(ua[:maxUserAgentLen], "")
	}
	return ClientInfo{UserAgent: ua, IP: ClientIP(r)}
}

func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(host))
	if err != nil {
		return ""
	}
	return addr.WithZone("").String()
}
