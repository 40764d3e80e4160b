package middleware

import (
	"net/http"
	"strings"

	"talento-local/internal/api/response"
	"talento-local/internal/common/auth"
	"talento-local/internal/common/errors"
	"talento-local/internal/common/logger"

	"github.com/gorilla/mux"
)

// Authenticate resolves the bearer token to an actor. Requests without a valid
// token never reach the handler.
func Authenticate(verifier auth.Verifier, log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Error(w, errors.NewUnauthorizedError("missing authorization header"))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
				response.Error(w, errors.NewUnauthorizedError("invalid authorization header"))
				return
			}

			identity, err := verifier.Verify(r.Context(), strings.TrimSpace(parts[1]))
			if err != nil {
				if !errors.Is(err, errors.ErrCodeUnauthorized) {
					log.Error("token verification failed", map[string]interface{}{
						"requestId": RequestIDFromContext(r.Context()),
						"error":     err.Error(),
					})
				}
				response.Error(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), identity.Actor())))
		})
	}
}
