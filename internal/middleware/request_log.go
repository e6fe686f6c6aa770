package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/campaign/internal/logger"
)

// RequestLog логирует каждый HTTP-запрос: method, path, статус и время выполнения (асинхронно, не блокирует).
// Токены и заголовки не пишутся.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debugf("http %s %s status=%d bytes=%d duration_ms=%d req_id=%s",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start).Milliseconds(), chimw.GetReqID(r.Context()))
		logger.LogDuration("http "+r.Method+" "+r.URL.Path, start)
	})
}
