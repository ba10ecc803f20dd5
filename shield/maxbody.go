package shield

import (
	"encoding/json"
	"net/http"
)

// MaxBody returns middleware that caps request body size at maxBytes.
// Requests declaring a larger Content-Length are rejected with 413 before
// the handler runs; bodies of unknown length are wrapped with
// http.MaxBytesReader so the handler's decode fails past the cap.
// A maxBytes of zero or less disables the cap.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				if r.ContentLength > maxBytes {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusRequestEntityTooLarge)
					json.NewEncoder(w).Encode(map[string]string{"error": "request body too large"})
					return
				}
				if r.Body != nil {
					r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
