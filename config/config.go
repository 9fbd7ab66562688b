// Package config loads the runtime settings of the actor auth server from
// the environment.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration. It satisfies auth.Config.
type Config struct {
	AppEnv  string `envconfig:"APP_ENV" default:"development"`
	AppAddr string `envconfig:"APP_ADDR" default:":8080"`
	Debug   bool   `envconfig:"APP_DEBUG" default:"false"`

	ShutdownTimeout time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"10s"`

	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN    string `envconfig:"DB_DSN" default:"file:actors.db?cache=shared"`

	// Empty disables the redis backed login limiter and falls back to memory.
	RedisAddr        string        `envconfig:"REDIS_ADDR"`
	LoginRateMax     int           `envconfig:"LOGIN_RATE_MAX" default:"10"`
	LoginRateWindow  time.Duration `envconfig:"LOGIN_RATE_WINDOW" default:"1m"`
	LoginRateKeyBase string        `envconfig:"LOGIN_RATE_PREFIX" default:"actor-auth:login:"`

	SigningKey      string   `envconfig:"JWT_SECRET" required:"true"`
	SigningMethod   string   `envconfig:"JWT_SIGNING_METHOD" default:"HS256"`
	ContextKey      string   `envconfig:"JWT_CONTEXT_KEY" default:"jwt"`
	TokenExpiration int      `envconfig:"JWT_EXPIRATION_HOURS" default:"8"`
	TokenLookup     string   `envconfig:"JWT_TOKEN_LOOKUP" default:"header:Authorization"`
	AuthScheme      string   `envconfig:"JWT_AUTH_SCHEME" default:"Bearer"`
	Issuer          string   `envconfig:"JWT_ISSUER" default:"actor-auth"`
	Audience        []string `envconfig:"JWT_AUDIENCE"`
	SingleSession   bool     `envconfig:"AUTH_SINGLE_SESSION" default:"false"`

	AdminRootEmail     string `envconfig:"ADMIN_ROOT_EMAIL"`
	AdminRootPassword  string `envconfig:"ADMIN_ROOT_PASSWORD"`
	LandlordRootEmail  string `envconfig:"LANDLORD_ROOT_EMAIL"`
	LandlordRootPasswd string `envconfig:"LANDLORD_ROOT_PASSWORD"`
}

const minSigningKeyLength = 32

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.SigningKey) == "" {
		return errors.New("jwt secret must be provided")
	}
	if c.IsProduction() && len(c.SigningKey) < minSigningKeyLength {
		return errors.New("jwt secret must be at least 32 bytes in production")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return errors.New("db driver must be sqlite or postgres")
	}
	if c.TokenExpiration <= 0 {
		return errors.New("jwt expiration must be positive")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

func (c *Config) GetSigningKey() string    { return c.SigningKey }
func (c *Config) GetSigningMethod() string { return c.SigningMethod }
func (c *Config) GetContextKey() string    { return c.ContextKey }
func (c *Config) GetTokenExpiration() int  { return c.TokenExpiration }
func (c *Config) GetTokenLookup() string   { return c.TokenLookup }
func (c *Config) GetAuthScheme() string    { return c.AuthScheme }
func (c *Config) GetIssuer() string        { return c.Issuer }
func (c *Config) GetAudience() []string    { return c.Audience }
func (c *Config) GetSingleSession() bool   { return c.SingleSession }
