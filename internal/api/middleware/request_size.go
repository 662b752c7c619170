package middleware

import "net/http"

// DefaultMaxBodySize caps management and event payloads at 1MB.
const DefaultMaxBodySize int64 = 1 << 20

// RequestSize rejects request bodies larger than maxBytes with 413 via
// http.MaxBytesReader.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
