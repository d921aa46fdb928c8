package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"paylink/pkg/requestcontext"
)

// RequestID assigns every request a correlation ID. An incoming X-Request-ID
// header is trusted so IDs survive proxy hops; otherwise a fresh UUID is
// minted. The ID is echoed back on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
