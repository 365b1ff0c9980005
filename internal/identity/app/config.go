package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/identity/store/drivers/redis"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override. "__" separates levels:
	// TOLLGATE_PROVIDERS__GOOGLE__CLIENT_ID sets providers.google.client_id.
	EnvPrefix = "TOLLGATE_"

	// ConfigFileEnv names the YAML file to load. DefaultConfigFile is used
	// when it is unset and the file exists.
	ConfigFileEnv     = "TOLLGATE_CONFIG"
	DefaultConfigFile = "tollgate.yaml"

	minSecretLength = 32
)

// Store modes.
const (
	StoreSQLite = "sqlite"
	StoreNone   = "none"
)

// Refresh token drivers.
const (
	RefreshSQLite   = "sqlite"
	RefreshPostgres = "postgres"
	RefreshRedis    = "redis"
)

type Config struct {
	Issuer            string `koanf:"issuer"`
	Audience          string `koanf:"audience"`
	Secret            string `koanf:"secret"`
	AccessTokenHours  int    `koanf:"access_token_hours"`
	RefreshTokenHours int    `koanf:"refresh_token_hours"`

	Store    StoreConfig    `koanf:"store"`
	Refresh  RefreshConfig  `koanf:"refresh"`
	Redis    redis.Config   `koanf:"redis"`
	Postgres PostgresConfig `koanf:"postgres"`

	Providers       ProvidersConfig `koanf:"providers"`
	ProviderTimeout time.Duration   `koanf:"provider_timeout"`

	Admin     AdminConfig     `koanf:"admin"`
	Bootstrap BootstrapConfig `koanf:"bootstrap"`
	Signup    SignupConfig    `koanf:"signup"`
	Transient TransientConfig `koanf:"transient"`
	Phone     PhoneConfig     `koanf:"phone"`
	Lockout   LockoutConfig   `koanf:"lockout"`

	// Pepper is appended to passwords before hashing.
	Pepper string `koanf:"pepper"`

	Env                  string                  `koanf:"env"` // dev, staging, prod
	Log                  LogConfig               `koanf:"log"`
	Port                 int                     `koanf:"port"`
	ShutdownGracePeriod  time.Duration           `koanf:"shutdown_grace_period"`
	HousekeepingInterval time.Duration           `koanf:"housekeeping_interval"`
	RateLimits           httpx.RateLimitProfiles `koanf:"rate_limits"`

	// TrustedProxies lists the addresses or CIDR ranges whose
	// X-Forwarded-For header is believed when keying rate limits.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

type StoreConfig struct {
	// Mode is sqlite for the built-in user store or none for admin-only.
	Mode       string `koanf:"mode"`
	SQLiteFile string `koanf:"sqlite_file"`
}

type RefreshConfig struct {
	Driver string `koanf:"driver"`
}

type PostgresConfig struct {
	DSN string `koanf:"dsn"`
}

type ProviderConfig struct {
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	Scopes       []string `koanf:"scopes"`
}

func (p ProviderConfig) Enabled() bool { return p.ClientID != "" }

type MicrosoftConfig struct {
	ProviderConfig `koanf:",squash"`
	Tenant         string `koanf:"tenant"`
	ValidateIssuer bool   `koanf:"validate_issuer"`
}

type ProvidersConfig struct {
	Facebook  ProviderConfig  `koanf:"facebook"`
	Google    ProviderConfig  `koanf:"google"`
	Microsoft MicrosoftConfig `koanf:"microsoft"`
}

type AdminConfig struct {
	UserName string `koanf:"username"`
	Password string `koanf:"password"`
}

// BootstrapConfig seeds one password user into the sqlite store at startup.
// An existing user of the same name is left untouched.
type BootstrapConfig struct {
	UserName        string            `koanf:"username"`
	Email           string            `koanf:"email"`
	Password        string            `koanf:"password"`
	Roles           []string          `koanf:"roles"`
	Claims          map[string]string `koanf:"claims"`
	TwoFactorSecret string            `koanf:"two_factor_secret"`
}

type SignupConfig struct {
	DefaultRoles []string `koanf:"default_roles"`
}

type TransientConfig struct {
	Roles []string `koanf:"roles"`
}

type PhoneConfig struct {
	Region string `koanf:"region"`
}

type LockoutConfig struct {
	MaxFailedAttempts int           `koanf:"max_failed_attempts"`
	Duration          time.Duration `koanf:"duration"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaults() map[string]any {
	limits := httpx.DefaultRateLimits()
	return map[string]any{
		"issuer":                      "tollgate",
		"audience":                    "tollgate",
		"access_token_hours":          72,
		"refresh_token_hours":         72,
		"store.mode":                  StoreSQLite,
		"store.sqlite_file":           "tollgate.db",
		"refresh.driver":              RefreshSQLite,
		"provider_timeout":            "10s",
		"providers.microsoft.tenant":  "common",
		"signup.default_roles":        []string{},
		"phone.region":                "US",
		"lockout.max_failed_attempts": 5,
		"lockout.duration":            "5m",
		"env":                         "dev",
		"log.level":                   "info",
		"log.format":                  "json",
		"port":                        8080,
		"shutdown_grace_period":       "10s",
		"housekeeping_interval":       "1h",

		"rate_limits.strict.requests":   limits.Strict.RequestsPerWindow,
		"rate_limits.strict.window":     limits.Strict.Window.String(),
		"rate_limits.strict.burst":      limits.Strict.Burst,
		"rate_limits.moderate.requests": limits.Moderate.RequestsPerWindow,
		"rate_limits.moderate.window":   limits.Moderate.Window.String(),
		"rate_limits.moderate.burst":    limits.Moderate.Burst,
		"rate_limits.lenient.requests":  limits.Lenient.RequestsPerWindow,
		"rate_limits.lenient.window":    limits.Lenient.Window.String(),
		"rate_limits.lenient.burst":     limits.Lenient.Burst,
	}
}

// LoadConfig layers defaults, the optional YAML file and TOLLGATE_
// environment variables, then validates the result.
func LoadConfig() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: defaults: %w", err)
	}

	path := os.Getenv(ConfigFileEnv)
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", transformEnv), nil); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// transformEnv maps TOLLGATE_STORE__SQLITE_FILE to store.sqlite_file.
// TOLLGATE_CONFIG only selects the file and is dropped.
func transformEnv(s string) string {
	if s == ConfigFileEnv {
		return ""
	}
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c Config) AccessTTL() time.Duration  { return time.Duration(c.AccessTokenHours) * time.Hour }
func (c Config) RefreshTTL() time.Duration { return time.Duration(c.RefreshTokenHours) * time.Hour }

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.Audience, validation.Required),
		validation.Field(&c.Secret, validation.Required, validation.Length(minSecretLength, 0)),
		validation.Field(&c.AccessTokenHours, validation.Required, validation.Min(1)),
		validation.Field(&c.RefreshTokenHours, validation.Required, validation.Min(1)),
		validation.Field(&c.ProviderTimeout, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Env, validation.In("dev", "test", "staging", "prod")),
	)
	if err != nil {
		return err
	}
	if err := validation.Validate(c.Log.Format, validation.In("json", "text")); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}

	switch c.Store.Mode {
	case StoreSQLite:
		if c.Store.SQLiteFile == "" {
			return errors.New("store.sqlite_file is required")
		}
	case StoreNone:
		if c.Admin.UserName == "" || c.Admin.Password == "" {
			return errors.New("admin.username and admin.password are required when store.mode is none")
		}
	default:
		return fmt.Errorf("store.mode %q is not one of sqlite, none", c.Store.Mode)
	}

	if c.Store.Mode == StoreSQLite {
		switch c.Refresh.Driver {
		case RefreshSQLite:
		case RefreshPostgres:
			if c.Postgres.DSN == "" {
				return errors.New("postgres.dsn is required for the postgres refresh driver")
			}
		case RefreshRedis:
			if c.Redis.Addr == "" {
				return errors.New("redis.addr is required for the redis refresh driver")
			}
		default:
			return fmt.Errorf("refresh.driver %q is not one of sqlite, postgres, redis", c.Refresh.Driver)
		}
	}

	if _, err := httpx.TrustedProxyKeyExtractor(c.TrustedProxies); err != nil {
		return fmt.Errorf("trusted_proxies: %w", err)
	}

	if c.Bootstrap.UserName != "" {
		if c.Store.Mode != StoreSQLite {
			return errors.New("bootstrap requires store.mode sqlite")
		}
		if c.Bootstrap.Password == "" {
			return errors.New("bootstrap.password is required with bootstrap.username")
		}
	}

	// Facebook introspection needs the app secret; Google and Microsoft only
	// need one for authorization codes.
	if c.Providers.Facebook.Enabled() && c.Providers.Facebook.ClientSecret == "" {
		return errors.New("providers.facebook.client_secret is required with a client_id")
	}
	return nil
}
