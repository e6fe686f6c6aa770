package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/campaign/internal/transport"
)

// sweepEvery — раз в столько вызовов allow удаляются ключи без свежих отметок.
const sweepEvery = 1024

type rateLimiter struct {
	mu     sync.Mutex
	times  map[string][]time.Time
	max    int
	window time.Duration
	calls  int
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{times: make(map[string][]time.Time), max: max, window: window}
}

func (r *rateLimiter) allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-r.window)
	r.calls++
	if r.calls%sweepEvery == 0 {
		r.sweep(cutoff)
	}
	slice := r.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= r.max {
		r.times[key] = slice
		return false
	}
	r.times[key] = append(slice, now)
	return true
}

func (r *rateLimiter) sweep(cutoff time.Time) {
	for k, slice := range r.times {
		if len(slice) == 0 || !slice[len(slice)-1].After(cutoff) {
			delete(r.times, k)
		}
	}
}

// RateLimitByIP ограничивает число запросов с одного IP за окно (вход, смена пароля). 429 при превышении.
func RateLimitByIP(max int, window time.Duration) func(http.Handler) http.Handler {
	rl := newRateLimiter(max, window)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(transport.ClientIP(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too_many_requests"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
