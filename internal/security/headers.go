// Package security holds response hardening middleware for the development
// backend.
package security

import (
	"net/http"
	"strconv"
)

// Headers sets browser hardening headers. Uploaded images are served back
// from the same origin, so content sniffing and framing stay off.
type Headers struct {
	// HSTSMaxAge enables Strict-Transport-Security on TLS requests when > 0.
	HSTSMaxAge int
}

// Middleware implements chi middleware.
func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("X-Content-Type-Options", "nosniff")
		hdr.Set("X-Frame-Options", "DENY")
		hdr.Set("Referrer-Policy", "no-referrer")
		hdr.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'")
		if h.HSTSMaxAge > 0 && r.TLS != nil {
			hdr.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(h.HSTSMaxAge)+"; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}
