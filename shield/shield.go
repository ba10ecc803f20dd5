// Package shield provides HTTP protection middleware for the canvas API.
// It consolidates security headers, request body limits, and per-client
// rate limiting into a single importable package.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders(shield.APIHeaders()))
//	r.Use(shield.MaxBody(1 << 20))
//	r.Use(shield.NewRateLimiter(120, time.Minute).Middleware)
//
// Or apply the whole stack in one call:
//
//	for _, mw := range shield.APIStack(1<<20, 120) {
//	    r.Use(mw)
//	}
package shield

import (
	"net/http"
	"time"
)

// APIStack returns the standard middleware stack for a JSON API.
// Ordered: SecurityHeaders, MaxBody, RateLimiter. maxBody caps request
// bodies in bytes; perMinute caps requests per client IP per minute,
// zero or less disables rate limiting. Health probes under /v1/healthz
// bypass the limiter.
func APIStack(maxBody int64, perMinute int) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		SecurityHeaders(APIHeaders()),
		MaxBody(maxBody),
	}
	if perMinute > 0 {
		rl := NewRateLimiter(perMinute, time.Minute, "/v1/healthz")
		stack = append(stack, rl.Middleware)
	}
	return stack
}
