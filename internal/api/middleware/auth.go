package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/CaioWing/iotgateway/internal/api/response"
	"github.com/CaioWing/iotgateway/internal/auth"
)

type contextKey string

const UserIDKey contextKey = "user_id"

const APIKeyHeader = "X-API-Key"

func ManagementAuth(jwtMgr *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				response.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			token := strings.TrimPrefix(header, "Bearer ")
			if token == header {
				response.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			subject, err := jwtMgr.Subject(token)
			if err != nil {
				response.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WebhookAuth rejects requests whose X-API-Key header does not match apiKey.
func WebhookAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.APIKeyMatches(r.Header.Get(APIKeyHeader), apiKey) {
				response.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
