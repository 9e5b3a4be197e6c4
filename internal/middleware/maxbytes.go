package middleware

import "net/http"

// fallbackBodyBytes caps bodies at 1 MiB when no explicit limit is given,
// which is generous for any JSON payload this API accepts. Evidence uploads
// set their own larger limit at the route.
const fallbackBodyBytes int64 = 1 << 20

// MaxBytes wraps request bodies in http.MaxBytesReader so an oversized
// payload fails on first read with 413 instead of being buffered. A limit of
// zero or less selects the fallback cap.
func MaxBytes(limit int64) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = fallbackBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
