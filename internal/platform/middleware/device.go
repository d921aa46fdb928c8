package middleware

import (
	"fmt"
	"net/http"

	"github.com/mssola/useragent"

	"paylink/pkg/requestcontext"
)

// Device summarizes the client User-Agent ("Chrome 120 on Linux") and stores
// it in the context so audit metadata can record which device acted.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary := deviceSummary(r.Header.Get("User-Agent"))
		if summary != "" {
			r = r.WithContext(requestcontext.WithDevice(r.Context(), summary))
		}
		next.ServeHTTP(w, r)
	})
}

func deviceSummary(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	if ua.OS() == "" {
		return fmt.Sprintf("%s %s", name, version)
	}
	return fmt.Sprintf("%s %s on %s", name, version, ua.OS())
}
