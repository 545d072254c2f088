package middleware

import (
	"context"
	"net/http"

	"neon/internal/domain/auth"
	"neon/internal/domain/leave"
	"neon/internal/transport/http/api"
)

// PermissionChecker answers matrix questions for the current tenant.
type PermissionChecker interface {
	Allowed(ctx context.Context, user auth.UserContext, module, action string) (bool, error)
}

// RequirePermission gates a route on the effective permission matrix.
func RequirePermission(module, action string, checker PermissionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				api.Unauthorized(w, r)
				return
			}

			allowed, err := checker.Allowed(r.Context(), user, module, action)
			if err != nil {
				api.WriteError(w, r, leave.ClassifyStoreError(err))
				return
			}
			if !allowed {
				api.WriteError(w, r, &leave.AuthorizationError{Action: module + "." + action, Reason: "permission not granted to " + user.RoleName})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
