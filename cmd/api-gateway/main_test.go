package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/workdesk/app"
	"github.com/upb/workdesk/config"
	"github.com/upb/workdesk/internal/access"
	"github.com/upb/workdesk/repositories"
	"github.com/upb/workdesk/repositories/mocks"
	"github.com/upb/workdesk/routes"
	"go.uber.org/zap/zaptest"
)

type testServer struct {
	*httptest.Server
	deps *app.Dependencies
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	users := new(mocks.MockUserRepository)
	users.On("GetByCognitoSub", mock.Anything, mock.Anything).Return(nil, repositories.ErrNotFound).Maybe()
	users.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()
	auditRepo := new(mocks.MockAuditRepository)
	auditRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Maybe()

	repos := &repositories.Repositories{
		Users:           users,
		RolePermissions: new(mocks.MockRolePermissionRepository),
		AuditLogs:       auditRepo,
	}

	deps, err := app.NewDependenciesFromRepositories(ctx, testConfig(t), zaptest.NewLogger(t), repos, new(mocks.MockTransactionManager))
	require.NoError(t, err)

	ts := httptest.NewServer(routes.SetupRoutes(deps))
	t.Cleanup(func() {
		ts.Close()
		_ = deps.Close(ctx)
	})
	return &testServer{Server: ts, deps: deps}
}

// login creates a session directly in the store and returns its bearer token
func (s *testServer) login(t *testing.T, label string) string {
	t.Helper()
	sess, err := s.deps.Sessions.Create(context.Background(), access.Identity{
		Subject: "sub-" + strings.ToLower(strings.ReplaceAll(label, " ", "-")),
		Email:   "user@example.com",
		Name:    "Test User",
	}, label)
	require.NoError(t, err)
	return sess.ID.String()
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	t.Run("health check returns healthy", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/healthz", "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Data["status"])
	})

	t.Run("readiness reports audit pipeline", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/readyz", "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Data struct {
				Checks map[string]string `json:"checks"`
			} `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body.Data.Checks["audit"])
		assert.Equal(t, "healthy", body.Data.Checks["role_table"])
	})
}

func TestProtectedEndpoints_RequireSession(t *testing.T) {
	ts := newTestServer(t)

	testCases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/session"},
		{http.MethodPut, "/api/v1/session/role"},
		{http.MethodPost, "/api/v1/access/check"},
		{http.MethodGet, "/api/v1/access/catalog"},
		{http.MethodGet, "/api/v1/roles"},
		{http.MethodPut, "/api/v1/roles/manager/permissions"},
		{http.MethodGet, "/api/v1/audit/logs"},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp := ts.do(t, tc.method, tc.path, "", "")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			resp = ts.do(t, tc.method, tc.path, "00000000-0000-0000-0000-000000000000", "")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "unknown session id")
		})
	}
}

func TestRouteGuard(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "Admin")
	lead := ts.login(t, "Team Lead")
	member := ts.login(t, "Member")
	client := ts.login(t, "Client")

	testCases := []struct {
		name     string
		token    string
		path     string
		expected int
	}{
		{"admin reads role table", admin, "/api/v1/roles", http.StatusOK},
		{"manager cannot read role table", lead, "/api/v1/roles", http.StatusForbidden},
		{"employee cannot read role table", member, "/api/v1/roles", http.StatusForbidden},
		{"client cannot read audit logs", client, "/api/v1/audit/logs", http.StatusForbidden},
		{"manager cannot read audit logs", lead, "/api/v1/audit/logs", http.StatusForbidden},
		{"everyone reads the catalog", client, "/api/v1/access/catalog", http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodGet, tc.path, tc.token, "")
			assert.Equal(t, tc.expected, resp.StatusCode)
		})
	}
}

func TestSessionAndAccessCheck(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "Member")

	resp := ts.do(t, http.MethodGet, "/api/v1/session", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session struct {
		Data struct {
			Role        string   `json:"role"`
			Permissions []string `json:"permissions"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	assert.Equal(t, "employee", session.Data.Role)
	assert.Contains(t, session.Data.Permissions, "time.track")
	assert.NotContains(t, session.Data.Permissions, "invoices.view")

	resp = ts.do(t, http.MethodPost, "/api/v1/access/check", token,
		`{"permissions":["tasks.update","invoices.manage","not.a.permission"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var check struct {
		Data struct {
			Permissions map[string]bool `json:"permissions"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&check))
	assert.Equal(t, map[string]bool{
		"tasks.update":     true,
		"invoices.manage":  false,
		"not.a.permission": false,
	}, check.Data.Permissions)
}

func TestRoleSimulator(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "Admin")

	resp := ts.do(t, http.MethodPut, "/api/v1/session/role", admin, `{"role":"client"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// the simulated role now drives the route guard
	resp = ts.do(t, http.MethodGet, "/api/v1/roles", admin, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/v1/session/role", admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/roles", admin, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStaticRoleTableIsReadOnly(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "Admin")

	resp := ts.do(t, http.MethodPut, "/api/v1/roles/client/permissions", admin, `{"permissions":["dashboard.access"]}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/healthz", "", "")

	resp := ts.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "workdesk_http_requests_total")
	assert.Contains(t, string(body), `route="/healthz"`)
}

func TestCORSMiddleware(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/access/check", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/nonexistent", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not_found", body["error"])
}

func TestAuthEndpoints_NotConfigured(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/auth/login", "", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestAuthEndpoints_RateLimited(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp := ts.do(t, http.MethodGet, "/auth/logout", "", "")
		assert.NotEqual(t, http.StatusTooManyRequests, resp.StatusCode)
	}
	resp := ts.do(t, http.MethodGet, "/auth/logout", "", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// API routes are not limited
	resp = ts.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewServer(t *testing.T) {
	cfg := testConfig(t)
	srv := newServer(cfg, http.NotFoundHandler())

	assert.Equal(t, fmt.Sprintf("localhost:%d", cfg.Server.Port), srv.Addr)
	assert.Equal(t, cfg.Server.Address(), srv.Addr)
	assert.Equal(t, cfg.Server.ReadTimeout, srv.ReadTimeout)
	assert.Equal(t, cfg.Server.WriteTimeout, srv.WriteTimeout)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t)
	cfg := ts.deps.Config
	cfg.Server.Port = 0

	srv := newServer(cfg, http.NotFoundHandler())
	srv.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv, ts.deps) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	assert.False(t, ts.deps.Audit.GetStats().Started, "audit service stopped")
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			AllowedOrigins:  []string{"http://localhost:5173"},
		},
		Cognito: config.CognitoConfig{
			Region:      "us-east-1",
			UserPoolID:  "test-pool",
			ClientID:    "test-client",
			FrontEndURL: "http://localhost:5173",
		},
		Access: config.AccessConfig{
			UnknownRolePolicy:    access.UnknownRoleDeny,
			RoleSimulatorEnabled: true,
		},
		Sessions: config.SessionConfig{
			TTL:        time.Hour,
			MaxEntries: 100,
			CookieName: "session",
			HashKey:    "0123456789abcdef0123456789abcdef",
		},
		RateLimit: config.RateLimitConfig{
			Enabled: true,
			Auth:    "3-M",
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "error",
			LogFormat:      "json",
			MetricsEnabled: true,
			MetricsPath:    "/metrics",
		},
	}
}
