package mw

import (
	"net/http"
	"strings"
)

// VersionPrefix rewrites unversioned API paths to their /v1 form before the
// mux dispatches, so /extract and /v1/extract are the same route. Probe and
// documentation paths are served unversioned and left alone.
func VersionPrefix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		switch {
		case p == "/v1" || strings.HasPrefix(p, "/v1/"):
		case p == "/healthz" || p == "/readyz":
		case p == "/openapi.json" || strings.HasPrefix(p, "/openapi."):
		case p == "/docs" || strings.HasPrefix(p, "/docs/"):
		case strings.HasPrefix(p, "/schemas"):
		default:
			r.URL.Path = "/v1" + p
		}
		next.ServeHTTP(w, r)
	})
}
