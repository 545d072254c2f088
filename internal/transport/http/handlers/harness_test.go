package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"neon/internal/app/server"
	"neon/internal/domain/auth"
	"neon/internal/domain/core"
	"neon/internal/platform/config"
)

const testSecret = "test-secret"

type apiError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type response struct {
	Status int
	Header http.Header
	Body   envelope
}

// journey is a running app on an in-memory sqlite store with a small
// org chart: Mia manages Dana, Hana works in HR.
type journey struct {
	t      *testing.T
	app    *server.App
	srv    *httptest.Server
	tokens map[string]string
	emps   map[string]string
}

func testConfig() config.Config {
	return config.Config{
		Addr:               ":0",
		Environment:        "test",
		StoreDriver:        config.DriverSQLite,
		SQLitePath:         ":memory:",
		RunSeed:            true,
		SeedTenantName:     "Test Tenant",
		JWTSecret:          testSecret,
		MaxBodyBytes:       1 << 20,
		RateLimitPerMinute: 1000,
		MetricsEnabled:     true,
		DefaultLocale:      "en",
		Email:              config.EmailConfig{From: "no-reply@test.local"},
	}
}

func newJourney(t *testing.T) *journey {
	t.Helper()
	ctx := context.Background()

	app, err := server.New(ctx, testConfig())
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	t.Cleanup(app.Close)

	j := &journey{t: t, app: app, tokens: map[string]string{}, emps: map[string]string{}}

	people := []struct {
		name, user, role, manager string
	}{
		{"Mia", "u-mia", auth.RoleManager, ""},
		{"Dana", "u-dana", auth.RoleEmployee, "Mia"},
		{"Hana", "u-hana", auth.RoleHR, ""},
	}
	for _, p := range people {
		emp, err := app.SQLite.CreateEmployee(ctx, app.TenantID, core.Employee{
			UserID:             p.user,
			Name:               p.name,
			Email:              p.user + "@test.local",
			ReportingManagerID: j.emps[p.manager],
		})
		if err != nil {
			t.Fatalf("create employee %s: %v", p.name, err)
		}
		j.emps[p.name] = emp.ID
		j.tokens[p.name] = j.token(p.user, emp.ID, p.role)
	}
	j.tokens["Admin"] = j.token("u-admin", "", auth.RoleAdmin)

	j.srv = httptest.NewServer(app.Router)
	t.Cleanup(j.srv.Close)
	return j
}

func (j *journey) token(userID, employeeID, role string) string {
	j.t.Helper()
	tok, err := auth.GenerateToken(testSecret, auth.Claims{
		UserID:     userID,
		TenantID:   j.app.TenantID,
		EmployeeID: employeeID,
		RoleName:   role,
	}, time.Hour)
	if err != nil {
		j.t.Fatalf("generate token: %v", err)
	}
	return tok
}

func (j *journey) do(method, path, who string, body any, headers ...string) response {
	j.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			j.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, j.srv.URL+path, reader)
	if err != nil {
		j.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who != "" {
		req.Header.Set("Authorization", "Bearer "+j.tokens[who])
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := j.srv.Client().Do(req)
	if err != nil {
		j.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := response{Status: resp.StatusCode, Header: resp.Header}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(raw, &out.Body); err != nil {
			j.t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return out
}

// expect fails the test unless the response has the given status and, when
// dst is non-nil, decodes the data payload into it.
func (j *journey) expect(resp response, status int, dst any) {
	j.t.Helper()
	if resp.Status != status {
		j.t.Fatalf("expected status %d, got %d (error %+v)", status, resp.Status, resp.Body.Error)
	}
	if dst != nil {
		if err := json.Unmarshal(resp.Body.Data, dst); err != nil {
			j.t.Fatalf("decode data: %v", err)
		}
	}
}

func draftBody(leaveType, start, end, reason string) map[string]any {
	return map[string]any{
		"leaveType": leaveType,
		"startDate": start + "T00:00:00Z",
		"endDate":   end + "T00:00:00Z",
		"reason":    reason,
	}
}
