// Package middleware provides HTTP middleware for the helpdesk API.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/resolveq/helpdesk/internal/logger"
)

// RequestID is HTTP middleware that extracts the request ID header or
// generates a new one. The ID is stored in the context and set on the
// response header, and rides along on queue messages published while
// handling the request.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(logger.RequestIDHeader)
		if id == "" {
			id = generateID()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(logger.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateID returns a 16-byte random hex string (32 chars).
func generateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
