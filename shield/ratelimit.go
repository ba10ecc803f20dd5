package shield

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter enforces a fixed-window request cap per client IP.
// Buckets live in memory; an expired bucket restarts its window on the
// next request. Call StartGC to sweep idle buckets in the background.
type RateLimiter struct {
	max     int
	window  time.Duration
	buckets sync.Map // ip -> *bucket
	exclude []string // path prefixes never limited
}

// NewRateLimiter creates a limiter allowing maxPerWindow requests per
// client IP within each window. Paths under excludePrefixes bypass it.
func NewRateLimiter(maxPerWindow int, window time.Duration, excludePrefixes ...string) *RateLimiter {
	return &RateLimiter{
		max:     maxPerWindow,
		window:  window,
		exclude: excludePrefixes,
	}
}

// StartGC sweeps expired buckets every interval until done is closed.
func (rl *RateLimiter) StartGC(done <-chan struct{}, interval time.Duration) {
	tick := time.NewTicker(interval)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				rl.gc()
			}
		}
	}()
}

func (rl *RateLimiter) gc() {
	now := time.Now()
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

// allow reports whether ip may proceed and, when blocked, how many
// seconds remain until its window resets.
func (rl *RateLimiter) allow(ip string) (bool, int) {
	now := time.Now()
	val, _ := rl.buckets.LoadOrStore(ip, &bucket{})
	b := val.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()

	if now.After(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(rl.window)
	}
	b.count++
	if b.count <= rl.max {
		return true, 0
	}
	retry := int(time.Until(b.resetAt).Seconds())
	if retry < 1 {
		retry = 1
	}
	return false, retry
}

// Middleware is the HTTP middleware that enforces the limit. Blocked
// requests get a 429 JSON response with a Retry-After header.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		ip := ExtractIP(r)
		ok, retry := rl.allow(ip)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		slog.Warn("shield: request blocked", "ip", ip, "path", r.URL.Path)

		w.Header().Set("Retry-After", strconv.Itoa(retry))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "rate limit exceeded",
		})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return strings.TrimSpace(xff[:i])
			}
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
