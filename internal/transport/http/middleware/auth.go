package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"neon/internal/domain/auth"
	"neon/internal/requestctx"
	"neon/internal/transport/http/api"
)

// Auth attaches the bearer token's actor to the context. Requests without a
// valid token pass through anonymous; RequireUser rejects them.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Fields(authHeader)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				zap.L().Debug("bearer token rejected", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			ctx := requestctx.WithUser(r.Context(), claims.User())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); !ok {
			api.Unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	return requestctx.GetUser(ctx)
}
