package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TOLLGATE_SECRET", testSecret)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "tollgate", cfg.Issuer)
	require.Equal(t, 72*time.Hour, cfg.AccessTTL())
	require.Equal(t, 72*time.Hour, cfg.RefreshTTL())
	require.Equal(t, StoreSQLite, cfg.Store.Mode)
	require.Equal(t, RefreshSQLite, cfg.Refresh.Driver)
	require.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	require.Equal(t, "common", cfg.Providers.Microsoft.Tenant)
	require.Equal(t, "US", cfg.Phone.Region)
	require.Equal(t, 5, cfg.Lockout.MaxFailedAttempts)
	require.Equal(t, 5*time.Minute, cfg.Lockout.Duration)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 5, cfg.RateLimits.Strict.RequestsPerWindow)
	require.Equal(t, time.Minute, cfg.RateLimits.Strict.Window)
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
issuer: file-issuer
access_token_hours: 1
store:
  sqlite_file: /var/lib/tollgate/users.db
providers:
  google:
    client_id: google-client
    scopes: [openid, email]
  microsoft:
    client_id: ms-client
    tenant: contoso
    validate_issuer: true
signup:
  default_roles: [member]
rate_limits:
  strict:
    requests: 50
    window: 30s
    burst: 10
`), 0o600))

	t.Setenv("TOLLGATE_CONFIG", path)
	t.Setenv("TOLLGATE_SECRET", testSecret)
	t.Setenv("TOLLGATE_ISSUER", "env-issuer")
	t.Setenv("TOLLGATE_PROVIDERS__GOOGLE__CLIENT_SECRET", "google-secret")
	t.Setenv("TOLLGATE_PROVIDER_TIMEOUT", "3s")
	t.Setenv("TOLLGATE_BOOTSTRAP__USERNAME", "ops")
	t.Setenv("TOLLGATE_BOOTSTRAP__PASSWORD", "pw")
	t.Setenv("TOLLGATE_BOOTSTRAP__CLAIMS__TENANT", "acme")
	t.Setenv("TOLLGATE_TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.10")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "env-issuer", cfg.Issuer)
	require.Equal(t, time.Hour, cfg.AccessTTL())
	require.Equal(t, "/var/lib/tollgate/users.db", cfg.Store.SQLiteFile)
	require.Equal(t, "google-client", cfg.Providers.Google.ClientID)
	require.Equal(t, "google-secret", cfg.Providers.Google.ClientSecret)
	require.Equal(t, []string{"openid", "email"}, cfg.Providers.Google.Scopes)
	require.Equal(t, "ms-client", cfg.Providers.Microsoft.ClientID)
	require.Equal(t, "contoso", cfg.Providers.Microsoft.Tenant)
	require.True(t, cfg.Providers.Microsoft.ValidateIssuer)
	require.False(t, cfg.Providers.Facebook.Enabled())
	require.Equal(t, []string{"member"}, cfg.Signup.DefaultRoles)
	require.Equal(t, 3*time.Second, cfg.ProviderTimeout)
	require.Equal(t, 50, cfg.RateLimits.Strict.RequestsPerWindow)
	require.Equal(t, 30*time.Second, cfg.RateLimits.Strict.Window)
	require.Equal(t, 20, cfg.RateLimits.Moderate.RequestsPerWindow)
	require.Equal(t, "ops", cfg.Bootstrap.UserName)
	require.Equal(t, map[string]string{"tenant": "acme"}, cfg.Bootstrap.Claims)
	require.Equal(t, []string{"10.0.0.0/8", "192.0.2.10"}, cfg.TrustedProxies)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("TOLLGATE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("TOLLGATE_SECRET", testSecret)

	_, err := LoadConfig()
	require.Error(t, err)
}

func validConfig() Config {
	return Config{
		Issuer:            "tollgate",
		Audience:          "tollgate",
		Secret:            testSecret,
		AccessTokenHours:  72,
		RefreshTokenHours: 72,
		Store:             StoreConfig{Mode: StoreSQLite, SQLiteFile: "tollgate.db"},
		Refresh:           RefreshConfig{Driver: RefreshSQLite},
		ProviderTimeout:   10 * time.Second,
		Env:               "dev",
		Log:               LogConfig{Level: "info", Format: "json"},
		Port:              8080,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.Secret = "" }},
		{"short secret", func(c *Config) { c.Secret = "too-short" }},
		{"zero access lifetime", func(c *Config) { c.AccessTokenHours = 0 }},
		{"negative refresh lifetime", func(c *Config) { c.RefreshTokenHours = -1 }},
		{"bad port", func(c *Config) { c.Port = 70000 }},
		{"bad env", func(c *Config) { c.Env = "qa" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"unknown store mode", func(c *Config) { c.Store.Mode = "ldap" }},
		{"admin-only without admin", func(c *Config) { c.Store.Mode = StoreNone }},
		{"unknown refresh driver", func(c *Config) { c.Refresh.Driver = "memcached" }},
		{"postgres without dsn", func(c *Config) { c.Refresh.Driver = RefreshPostgres }},
		{"redis without addr", func(c *Config) { c.Refresh.Driver = RefreshRedis }},
		{"facebook without secret", func(c *Config) { c.Providers.Facebook.ClientID = "fb" }},
		{"bad trusted proxy", func(c *Config) { c.TrustedProxies = []string{"10.0.0.0/33"} }},
		{"bootstrap without password", func(c *Config) { c.Bootstrap.UserName = "ops" }},
		{"bootstrap in admin-only mode", func(c *Config) {
			c.Store.Mode = StoreNone
			c.Admin = AdminConfig{UserName: "root", Password: "toor"}
			c.Bootstrap = BootstrapConfig{UserName: "ops", Password: "pw"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	t.Run("admin-only", func(t *testing.T) {
		cfg := validConfig()
		cfg.Store.Mode = StoreNone
		cfg.Refresh.Driver = ""
		cfg.Admin = AdminConfig{UserName: "root", Password: "toor"}
		require.NoError(t, cfg.Validate())
	})
}

func TestTransformEnv(t *testing.T) {
	require.Equal(t, "providers.google.client_id", transformEnv("TOLLGATE_PROVIDERS__GOOGLE__CLIENT_ID"))
	require.Equal(t, "shutdown_grace_period", transformEnv("TOLLGATE_SHUTDOWN_GRACE_PERIOD"))
	require.Empty(t, transformEnv("TOLLGATE_CONFIG"))
}
