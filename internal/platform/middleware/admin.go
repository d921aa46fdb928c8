package middleware

import (
	"log/slog"
	"net/http"

	"paylink/pkg/platform/secrets"
	"paylink/pkg/requestcontext"
)

// RequireAdminToken rejects requests whose X-Admin-Token header does not match
// the configured bcrypt hash. The acting operator identifies itself through
// X-Admin-Wallet so admin actions carry an accountable actor.
func RequireAdminToken(adminTokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if adminTokenHash == "" {
				logger.ErrorContext(ctx, "admin endpoint hit without admin token configured",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "admin endpoints are not configured")
				return
			}

			token := r.Header.Get("X-Admin-Token")
			if err := secrets.Verify(token, adminTokenHash); err != nil {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "admin token required")
				return
			}

			actor := r.Header.Get("X-Admin-Wallet")
			if actor == "" {
				actor = "admin"
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithAdminWallet(ctx, actor)))
		})
	}
}
