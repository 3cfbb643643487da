package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// fixedWindow counts requests per key in windows of length per.
type fixedWindow struct {
	mu        sync.Mutex
	limit     int
	per       time.Duration
	now       func() time.Time
	windows   map[string]*window
	nextSweep time.Time
}

func newFixedWindow(limit int, per time.Duration, now func() time.Time) *fixedWindow {
	return &fixedWindow{limit: limit, per: per, now: now, windows: make(map[string]*window)}
}

// allow records a hit for key and reports how long to wait when refused.
func (f *fixedWindow) allow(key string) (bool, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if now.After(f.nextSweep) {
		for k, w := range f.windows {
			if now.After(w.resetAt) {
				delete(f.windows, k)
			}
		}
		f.nextSweep = now.Add(f.per)
	}
	w, ok := f.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{resetAt: now.Add(f.per)}
		f.windows[key] = w
	}
	if w.count >= f.limit {
		return false, w.resetAt.Sub(now)
	}
	w.count++
	return true, 0
}

// RateLimit allows limit requests per window of length per. Authenticated
// callers are counted by owner, anonymous ones by client IP.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	fw := newFixedWindow(limit, per, time.Now)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := fw.allow(rateLimitKey(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(wait/time.Second)+1))
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if owner := OwnerIDFromContext(r.Context()); owner != "" {
		return "owner:" + owner
	}
	return "ip:" + ClientIP(r)
}
