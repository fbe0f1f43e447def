// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"context"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// validRequestID bounds request ids accepted from clients.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(status int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func wrapWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

// RequestLogger returns a middleware that assigns request ids and logs HTTP requests.
// Requests are logged when verbose is set or when they fail.
func RequestLogger(verbose bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if !validRequestID.MatchString(requestID) {
				requestID = uuid.New().String()[:8]
			}
			w.Header().Set("X-Request-ID", requestID)

			wrapped := wrapWriter(w)
			ctx := context.WithValue(r.Context(), requestIDKey, requestID)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if verbose || wrapped.status >= 400 {
				subject := GetSubject(ctx)
				if subject == "" {
					subject = "-"
				}
				log.Printf("[%s] %s %s %d %d %v %s",
					requestID,
					r.Method,
					r.URL.Path,
					wrapped.status,
					wrapped.size,
					time.Since(start),
					subject,
				)
			}
		})
	}
}

// GetRequestID returns the request id assigned by RequestLogger.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return "-"
}
