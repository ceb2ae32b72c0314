package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/example/ec-storefront/internal/logger"
)

// RequestID propagates X-Request-ID, generating one when the client sent none
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(logger.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set(logger.RequestIDHeader, requestID)
		}
		w.Header().Set(logger.RequestIDHeader, requestID)
		next.ServeHTTP(w, r)
	})
}
