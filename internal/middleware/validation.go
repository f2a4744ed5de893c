package middleware

import (
	"mime"
	"net/http"
	"strings"
)

// RequireContentType rejects bodies whose media type is not one of types
// with 415. Requests without a body pass through.
func RequireContentType(types ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[strings.ToLower(t)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r) {
				next.ServeHTTP(w, r)
				return
			}

			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err == nil {
				if _, ok := allowed[strings.ToLower(mediaType)]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
				"Content-Type must be one of: "+strings.Join(types, ", "))
		})
	}
}

// RequireJSON is RequireContentType for application/json.
func RequireJSON() func(http.Handler) http.Handler {
	return RequireContentType("application/json")
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions:
		return false
	}
	return r.ContentLength != 0
}
