package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit allows limit requests per minute per caller. Authenticated
// callers are keyed by user id, anonymous ones by client IP. Idle limiters
// are dropped after an hour.
func RateLimit(limit int) func(http.Handler) http.Handler {
	var mu sync.Mutex
	entries := make(map[string]*limiterEntry)
	perSecond := rate.Limit(float64(limit) / 60.0)

	cleanup := func(now time.Time) {
		for key, e := range entries {
			if now.Sub(e.lastSeen) > time.Hour {
				delete(entries, key)
			}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := UserIDFromContext(r.Context())
			if key == "" {
				key = clientIPForRateLimit(r)
			}

			now := time.Now()
			mu.Lock()
			e, ok := entries[key]
			if !ok {
				e = &limiterEntry{limiter: rate.NewLimiter(perSecond, limit)}
				entries[key] = e
				if len(entries)%256 == 0 {
					cleanup(now)
				}
			}
			e.lastSeen = now
			allowed := e.limiter.Allow()
			mu.Unlock()

			if !allowed {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
