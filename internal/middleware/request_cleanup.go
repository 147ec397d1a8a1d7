package middleware

import (
	"io"
	"net/http"
)

// drained bodies larger than this are closed without reading the rest
const maxDrainBytes = 256 * 1024

// DrainAndCloseRequest drains what the handler left of the request body and
// closes it, so keep-alive connections can be reused.
func DrainAndCloseRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if r.Body != nil {
				_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, maxDrainBytes))
				_ = r.Body.Close()
			}
		})
	}
}
