package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

// InternalToken guards service-to-service endpoints with a shared secret in
// X-Internal-Token, compared in constant time. With no token configured the
// hardened flag decides: fail closed with 500, or log once and let the
// request through for local development.
func InternalToken(token string, hardened bool, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				if hardened {
					logger.Error("internal token not configured in hardened mode")
					http.Error(w, "server misconfigured", http.StatusInternalServerError)
					return
				}
				logger.Warn("internal token not configured, allowing request", "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get("X-Internal-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
