package mw

import (
	"net/http"

	"github.com/oklog/ulid/v2"
)

// RequestIDHeader is the header carrying the request id in responses and,
// optionally, in requests from trusted clients.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request a sortable unique id, echoing one supplied
// by the client when present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = ulid.Make().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}
