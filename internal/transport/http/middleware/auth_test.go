package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"neon/internal/domain/auth"
	"neon/internal/requestctx"
)

func TestAuthMiddlewareSetsUser(t *testing.T) {
	secret := "test-secret"
	token, err := auth.GenerateToken(secret, auth.Claims{UserID: "u1", TenantID: "t1", EmployeeID: "e1", RoleName: auth.RoleHR}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	called := false
	handler := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		user, ok := GetUser(r.Context())
		if !ok {
			t.Fatal("expected user in context")
		}
		if user.UserID != "u1" || user.EmployeeID != "e1" || user.RoleName != auth.RoleHR {
			t.Fatalf("unexpected user: %+v", user)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatal("expected handler to run")
	}
}

func TestAuthMiddlewareMissingOrBadToken(t *testing.T) {
	handler := Auth("secret")(RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("did not expect anonymous request to reach handler")
	})))

	for _, header := range []string{"", "Bearer not-a-token", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}

type stubChecker struct {
	allowed bool
	err     error
}

func (s stubChecker) Allowed(context.Context, auth.UserContext, string, string) (bool, error) {
	return s.allowed, s.err
}

func TestRequirePermission(t *testing.T) {
	cases := []struct {
		name    string
		checker stubChecker
		user    bool
		want    int
	}{
		{"granted", stubChecker{allowed: true}, true, http.StatusNoContent},
		{"denied", stubChecker{}, true, http.StatusForbidden},
		{"anonymous", stubChecker{allowed: true}, false, http.StatusUnauthorized},
		{"store failure", stubChecker{err: errors.New("boom")}, true, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := RequirePermission(auth.ModuleApprovals, auth.ActionApprove, tc.checker)(noContent())
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.user {
				req = req.WithContext(requestctx.WithUser(req.Context(), auth.UserContext{UserID: "u1", RoleName: auth.RoleEmployee}))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestRecovererReturnsEnvelope(t *testing.T) {
	handler := RequestID(Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected json envelope, got %q", rec.Header().Get("Content-Type"))
	}
}

func TestLocaleSetsContentLanguage(t *testing.T) {
	handler := Locale(noContent())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "es-MX,es;q=0.9")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Content-Language"); got != "es" {
		t.Fatalf("expected es, got %q", got)
	}
}
