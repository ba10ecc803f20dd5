package shield

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(APIHeaders())(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/v1/tree", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
		"Cache-Control":          "no-store",
	}
	for header, val := range want {
		if got := w.Header().Get(header); got != val {
			t.Errorf("%s: got %q, want %q", header, got, val)
		}
	}
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(16)(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/v1/layers", strings.NewReader(strings.Repeat("x", 64))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body: got %d, want 413", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/v1/layers", strings.NewReader("{}")))
	if w.Code != http.StatusOK {
		t.Errorf("small body: got %d, want 200", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	h := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/v1/tree", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/v1/tree", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("blocked response missing Retry-After")
	}

	// A different client keeps its own bucket.
	req := httptest.NewRequest("GET", "/v1/tree", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.9")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("other client: got %d, want 200", w.Code)
	}
}

func TestRateLimiter_ExcludedPrefix(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, "/v1/healthz")
	h := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", "/v1/healthz", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("probe %d: got %d, want 200", i+1, w.Code)
		}
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)
	h := rl.Middleware(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/v1/tree", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request: got %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/v1/tree", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d, want 429", w.Code)
	}

	time.Sleep(20 * time.Millisecond)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/v1/tree", nil))
	if w.Code != http.StatusOK {
		t.Errorf("after window: got %d, want 200", w.Code)
	}
}

func TestAPIStack(t *testing.T) {
	if got := len(APIStack(1<<20, 0)); got != 2 {
		t.Errorf("stack without limiter: got %d middleware, want 2", got)
	}
	if got := len(APIStack(1<<20, 60)); got != 3 {
		t.Errorf("stack with limiter: got %d middleware, want 3", got)
	}
}

func TestExtractIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 198.51.100.2")
	if got := ExtractIP(r); got != "203.0.113.7" {
		t.Errorf("forwarded: got %q, want 203.0.113.7", got)
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "198.51.100.9:4444"
	if got := ExtractIP(r); got != "198.51.100.9" {
		t.Errorf("remote: got %q, want 198.51.100.9", got)
	}
}
