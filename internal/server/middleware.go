package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"nimbus/internal/constants"
	"nimbus/internal/logger"
)

// Chain applies middlewares in order. The first middleware is the outermost
// (runs first).
func Chain(handler http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// SecurityHeaders adds standard security headers to every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// RequestID generates a unique request ID and sets it on the response
// header. An incoming X-Request-ID is preserved.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(constants.HeaderXRequestID)
		if id == "" {
			id = generateRequestID()
		}
		w.Header().Set(constants.HeaderXRequestID, id)
		next.ServeHTTP(w, r)
	})
}

// RequestLogging logs one line per request at debug level.
func RequestLogging(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
		})
	}
}

// generateRequestID creates a random 16-byte hex string.
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

// requestIDOf returns the id the RequestID middleware stamped on the
// response.
func requestIDOf(w http.ResponseWriter) string {
	return w.Header().Get(constants.HeaderXRequestID)
}
