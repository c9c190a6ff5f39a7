package middleware

import (
	"mime"
	"net/http"
)

// DefaultMaxBodyBytes caps JSON bodies (1 MiB).
const DefaultMaxBodyBytes = 1 << 20

// BodyLimit caps request bodies: multipart uploads get uploadBytes, everything
// else jsonBytes. Bodies that declare a larger Content-Length are refused with
// 413 up front; the rest are cut off while reading.
func BodyLimit(jsonBytes, uploadBytes int64) func(http.Handler) http.Handler {
	if jsonBytes <= 0 {
		jsonBytes = DefaultMaxBodyBytes
	}
	if uploadBytes < jsonBytes {
		uploadBytes = jsonBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}
			limit := jsonBytes
			if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "multipart/form-data" {
				limit = uploadBytes
			}
			if r.ContentLength > limit {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
