package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/workdesk/internal/access"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.False(t, cfg.Server.TLS.Enabled)
				assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "dev", cfg.Database.User)
				assert.Equal(t, 5, cfg.Database.ConnectRetries)
				assert.Nil(t, cfg.AuditDatabase)
				assert.True(t, cfg.RateLimit.Enabled)
				assert.Equal(t, "20-M", cfg.RateLimit.Auth)
			},
		},
		{
			name: "invalid auth rate limit",
			envVars: map[string]string{
				"RATE_LIMIT_AUTH": "often",
			},
			wantErr: true,
		},
		{
			name: "access defaults fail closed",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, access.UnknownRoleDeny, cfg.Access.UnknownRolePolicy)
				assert.True(t, cfg.Access.RoleSimulatorEnabled)
				assert.True(t, cfg.Access.PersistedTable)
				assert.Equal(t, 30*time.Second, cfg.Access.RefreshInterval)
			},
		},
		{
			name: "legacy unknown role mapping",
			envVars: map[string]string{
				"ACCESS_UNKNOWN_ROLE_POLICY": "employee",
				"ACCESS_PERSISTED_TABLE":     "false",
				"ACCESS_ROLE_SIMULATOR":      "false",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, access.UnknownRoleEmployee, cfg.Access.UnknownRolePolicy)
				assert.False(t, cfg.Access.RoleSimulatorEnabled)
				assert.False(t, cfg.Access.PersistedTable)
			},
		},
		{
			name: "invalid unknown role policy",
			envVars: map[string]string{
				"ACCESS_UNKNOWN_ROLE_POLICY": "admin",
			},
			wantErr: true,
		},
		{
			name: "production forces role simulator off",
			envVars: map[string]string{
				"ENVIRONMENT":           "production",
				"ACCESS_ROLE_SIMULATOR": "true",
				"COGNITO_USER_POOL_ID":  "us-east-1_xxxxx",
				"COGNITO_CLIENT_ID":     "client123",
				"SESSION_HASH_KEY":      "0123456789abcdef0123456789abcdef",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.False(t, cfg.Access.RoleSimulatorEnabled)
				assert.True(t, cfg.Sessions.CookieSecure)
			},
		},
		{
			name: "production configuration",
			envVars: map[string]string{
				"ENVIRONMENT":          "production",
				"SERVER_PORT":          "9000",
				"DB_HOST":              "prod-db.example.com",
				"DB_PORT":              "5433",
				"COGNITO_USER_POOL_ID": "us-east-1_xxxxx",
				"COGNITO_CLIENT_ID":    "client123",
				"SESSION_HASH_KEY":     "0123456789abcdef0123456789abcdef",
				"SESSION_BLOCK_KEY":    "abcdef0123456789",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.False(t, cfg.IsDevelopment())
				assert.Len(t, cfg.Sessions.BlockKey, 16)
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, "prod-db.example.com", cfg.Database.Host)
				assert.Equal(t, 5433, cfg.Database.Port)
				assert.NotEmpty(t, cfg.Cognito.UserPoolID)
			},
		},
		{
			name: "custom timeouts and pool settings",
			envVars: map[string]string{
				"SERVER_READ_TIMEOUT":  "60s",
				"SERVER_WRITE_TIMEOUT": "90s",
				"DB_MAX_OPEN_CONNS":    "50",
				"DB_MAX_IDLE_CONNS":    "10",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 90*time.Second, cfg.Server.WriteTimeout)
				assert.Equal(t, 50, cfg.Database.MaxOpenConns)
				assert.Equal(t, 10, cfg.Database.MaxIdleConns)
			},
		},
		{
			name: "session configuration",
			envVars: map[string]string{
				"SESSION_TTL":         "30m",
				"SESSION_MAX_ENTRIES": "250",
				"SESSION_COOKIE_NAME": "wd_session",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 30*time.Minute, cfg.Sessions.TTL)
				assert.Equal(t, 250, cfg.Sessions.MaxEntries)
				assert.Equal(t, "wd_session", cfg.Sessions.CookieName)
				assert.False(t, cfg.Sessions.CookieSecure)
			},
		},
		{
			name: "non-positive session size",
			envVars: map[string]string{
				"SESSION_MAX_ENTRIES": "0",
			},
			wantErr: true,
		},
		{
			name: "observability configuration",
			envVars: map[string]string{
				"LOG_LEVEL":       "debug",
				"LOG_FORMAT":      "console",
				"METRICS_ENABLED": "false",
				"METRICS_PATH":    "/internal/metrics",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Observability.LogLevel)
				assert.Equal(t, "console", cfg.Observability.LogFormat)
				assert.False(t, cfg.Observability.MetricsEnabled)
				assert.Equal(t, "/internal/metrics", cfg.Observability.MetricsPath)
			},
		},
		{
			name: "CORS origins list",
			envVars: map[string]string{
				"CORS_ALLOWED_ORIGINS": "https://a.example.com, https://b.example.com,,",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "DATABASE_URL and audit database",
			envVars: map[string]string{
				"DATABASE_URL":       "postgres://u:p@db:5432/workdesk?sslmode=disable",
				"DATABASE_URL_AUDIT": "postgres://u:p@audit:5432/audit?sslmode=disable",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgres://u:p@db:5432/workdesk?sslmode=disable", cfg.Database.DSN())
				assert.Equal(t, "host=db port=5432 database=workdesk", cfg.Database.LogString())
				require.NotNil(t, cfg.AuditDatabase)
				assert.Equal(t, "host=audit port=5432 database=audit", cfg.AuditDatabase.LogString())
			},
		},
		{
			name: "production without cognito config",
			envVars: map[string]string{
				"ENVIRONMENT": "production",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		Database: DatabaseConfig{
			Host:     "localhost",
			User:     "user",
			Database: "db",
		},
		Access: AccessConfig{
			UnknownRolePolicy: access.UnknownRoleDeny,
		},
		Sessions: SessionConfig{
			TTL:        time.Hour,
			MaxEntries: 10,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Auth:    "20-M",
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid development config",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing database host",
			mutate:  func(c *Config) { c.Database.Host = "" },
			wantErr: true,
			errMsg:  "database configuration required",
		},
		{
			name:    "missing database user",
			mutate:  func(c *Config) { c.Database.User = "" },
			wantErr: true,
			errMsg:  "database user is required",
		},
		{
			name:    "empty unknown role policy",
			mutate:  func(c *Config) { c.Access.UnknownRolePolicy = "" },
			wantErr: true,
			errMsg:  "unknown role policy",
		},
		{
			name: "role simulator in production",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.Cognito.UserPoolID = "pool"
				c.Cognito.ClientID = "client"
				c.Access.RoleSimulatorEnabled = true
				c.Sessions.HashKey = "0123456789abcdef0123456789abcdef"
			},
			wantErr: true,
			errMsg:  "role simulator",
		},
		{
			name: "short hash key in production",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.Cognito.UserPoolID = "pool"
				c.Cognito.ClientID = "client"
				c.Sessions.HashKey = "short"
			},
			wantErr: true,
			errMsg:  "session hash key",
		},
		{
			name:    "bad block key length",
			mutate:  func(c *Config) { c.Sessions.BlockKey = "tooshort" },
			wantErr: true,
			errMsg:  "block key",
		},
		{
			name:    "negative refresh interval",
			mutate:  func(c *Config) { c.Access.RefreshInterval = -time.Second },
			wantErr: true,
			errMsg:  "refresh interval",
		},
		{
			name:    "malformed auth rate",
			mutate:  func(c *Config) { c.RateLimit.Auth = "twenty per minute" },
			wantErr: true,
			errMsg:  "invalid auth rate limit",
		},
		{
			name: "malformed auth rate ignored when disabled",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = false
				c.RateLimit.Auth = "bogus"
			},
		},
		{
			name:    "negative connect retries",
			mutate:  func(c *Config) { c.Database.ConnectRetries = -1 },
			wantErr: true,
			errMsg:  "connect retries",
		},
		{
			name:    "zero session TTL",
			mutate:  func(c *Config) { c.Sessions.TTL = 0 },
			wantErr: true,
			errMsg:  "session TTL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		environment string
		want        bool
	}{
		{"production", true},
		{"prod", true},
		{"development", false},
		{"dev", false},
		{"staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.environment, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	assert.Equal(t, expected, cfg.DSN())
	assert.NotContains(t, cfg.LogString(), "testpass")
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "0.0.0.0", Port: 8080}
	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue int
		want         int
	}{
		{"valid int", "42", 10, 42},
		{"empty value", "", 10, 10},
		{"invalid int", "not-a-number", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_INT", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsInt("TEST_INT", tt.defaultValue))
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", "true", false, true},
		{"false", "false", true, false},
		{"empty value", "", true, true},
		{"invalid bool", "not-a-bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_BOOL", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsBool("TEST_BOOL", tt.defaultValue))
		})
	}
}
