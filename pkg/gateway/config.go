package gateway

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/clients/postgres"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/clients/redis"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/ratelimit"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/usage"
)

// EnvPrefix is the environment prefix gatewayd loads configuration with.
const EnvPrefix = "GATEWAY"

// Backend names for the counter and credential stores.
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the root gatewayd configuration.
//
//	var cfg gateway.Config
//	err := config.New().WithEnvPrefix(gateway.EnvPrefix).WithFile(path).Load(&cfg)
type Config struct {
	Auth      AuthConfig      `env:"AUTH" yaml:"auth" json:"auth"`
	RateLimit RateLimitConfig `env:"RATELIMIT" yaml:"ratelimit" json:"ratelimit"`
	Usage     usage.Config    `env:"USAGE" yaml:"usage" json:"usage"`
	Redis     redis.Config    `env:"REDIS" yaml:"redis" json:"redis"`
	Postgres  postgres.Config `env:"POSTGRES" yaml:"postgres" json:"postgres"`
	HTTP      HTTPConfig      `env:"HTTP" yaml:"http" json:"http"`
	Log       LogConfig       `env:"LOG" yaml:"log" json:"log"`
}

// AuthConfig configures token signing, secret hashing and the credential
// caches.
type AuthConfig struct {
	TokenSecret     auth.Secret   `env:"TOKEN_SECRET" yaml:"token_secret" json:"token_secret" required:"true"`
	Issuer          string        `env:"ISSUER" envDefault:"seasonality-gateway" yaml:"issuer" json:"issuer"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m" yaml:"access_token_ttl" json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h" yaml:"refresh_token_ttl" json:"refresh_token_ttl"`
	HashCost        int           `env:"HASH_COST" envDefault:"12" yaml:"hash_cost" json:"hash_cost"`

	APIKeyFetchLimit int           `env:"API_KEY_FETCH_LIMIT" envDefault:"100" yaml:"api_key_fetch_limit" json:"api_key_fetch_limit"`
	IdentityCacheTTL time.Duration `env:"IDENTITY_CACHE_TTL" envDefault:"5m" yaml:"identity_cache_ttl" json:"identity_cache_ttl"`
	APIKeyCacheTTL   time.Duration `env:"API_KEY_CACHE_TTL" envDefault:"10m" yaml:"api_key_cache_ttl" json:"api_key_cache_ttl"`
	CacheMaxEntries  int           `env:"CACHE_MAX_ENTRIES" envDefault:"10000" yaml:"cache_max_entries" json:"cache_max_entries"`

	// CacheSweepInterval drops expired cache entries in the background.
	// Zero disables sweeping; entries still expire on read.
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"1m" yaml:"cache_sweep_interval" json:"cache_sweep_interval"`

	// Store selects the credential store backend: postgres or memory.
	Store string `env:"STORE" envDefault:"postgres" yaml:"store" json:"store"`
}

// RateLimitConfig configures admission.
type RateLimitConfig struct {
	// Tiers overrides entries of the default tier table, either as a
	// mapping or as "tier=window_ms:max,...".
	Tiers ratelimit.TierTable `env:"TIERS" yaml:"tiers" json:"tiers,omitempty"`

	// Issuance guards credential issuance endpoints, keyed by IP.
	Issuance ratelimit.Limits `env:"ISSUANCE" envDefault:"900000:5" yaml:"issuance" json:"issuance"`

	// General guards all API traffic, keyed by principal or IP.
	General ratelimit.Limits `env:"GENERAL" envDefault:"60000:100" yaml:"general" json:"general"`

	KeyPrefix string `env:"KEY_PREFIX" envDefault:"gw:rl:" yaml:"key_prefix" json:"key_prefix"`

	// Store selects the counter backend: redis or memory. Memory counters
	// are per process and only suit a single instance.
	Store string `env:"STORE" envDefault:"redis" yaml:"store" json:"store"`
}

// HTTPConfig configures the listeners and the upstream application.
type HTTPConfig struct {
	Addr string `env:"ADDR" envDefault:":8080" yaml:"addr" json:"addr"`

	// UpstreamURL is the application admitted requests are proxied to.
	// When empty the gateway answers with the caller's identity.
	UpstreamURL string `env:"UPSTREAM_URL" yaml:"upstream_url" json:"upstream_url,omitempty"`

	// TrustForwardedFor keys anonymous callers by the first
	// X-Forwarded-For hop. Enable only behind a trusted proxy.
	TrustForwardedFor bool `env:"TRUST_FORWARDED_FOR" yaml:"trust_forwarded_for" json:"trust_forwarded_for"`

	// MetricsAddr serves /metrics on a separate listener. Empty serves
	// metrics on Addr.
	MetricsAddr string `env:"METRICS_ADDR" yaml:"metrics_addr" json:"metrics_addr,omitempty"`

	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s" yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LogConfig selects the process log handler.
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info" yaml:"level" json:"level"`
	Format string `env:"FORMAT" envDefault:"json" yaml:"format" json:"format"`
}

// SlogLevel parses Level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if n := len(c.Auth.TokenSecret.Value()); n < auth.MinTokenSecretLen {
		return gwerr.Validationf("gateway: auth.token_secret must be at least %d bytes, got %d",
			auth.MinTokenSecretLen, n)
	}
	if c.Auth.HashCost < bcrypt.MinCost || c.Auth.HashCost > bcrypt.MaxCost {
		return gwerr.Validationf("gateway: auth.hash_cost must be between %d and %d",
			bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Auth.APIKeyFetchLimit <= 0 {
		return gwerr.Validationf("gateway: auth.api_key_fetch_limit must be positive")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return gwerr.Validationf("gateway: token TTLs must be positive")
	}
	if c.Auth.AccessTokenTTL >= c.Auth.RefreshTokenTTL {
		return gwerr.Validationf("gateway: auth.access_token_ttl must be shorter than auth.refresh_token_ttl")
	}
	switch c.Auth.Store {
	case StorePostgres, StoreMemory:
	default:
		return gwerr.Validationf("gateway: auth.store must be %q or %q, got %q",
			StorePostgres, StoreMemory, c.Auth.Store)
	}

	if c.RateLimit.Tiers != nil {
		if err := c.RateLimit.Tiers.Validate(); err != nil {
			return err
		}
	}
	if err := c.RateLimit.Issuance.Validate(); err != nil {
		return gwerr.Wrap(err, gwerr.CodeValidation, "gateway: ratelimit.issuance")
	}
	if err := c.RateLimit.General.Validate(); err != nil {
		return gwerr.Wrap(err, gwerr.CodeValidation, "gateway: ratelimit.general")
	}
	switch c.RateLimit.Store {
	case StoreRedis, StoreMemory:
	default:
		return gwerr.Validationf("gateway: ratelimit.store must be %q or %q, got %q",
			StoreRedis, StoreMemory, c.RateLimit.Store)
	}

	if c.RateLimit.Store == StoreRedis {
		if err := c.Redis.Validate(); err != nil {
			return gwerr.Wrap(err, gwerr.CodeValidation, "gateway: invalid redis config")
		}
	}
	if c.Auth.Store == StorePostgres {
		if err := c.Postgres.Validate(); err != nil {
			return gwerr.Wrap(err, gwerr.CodeValidation, "gateway: invalid postgres config")
		}
	}

	if c.HTTP.UpstreamURL != "" {
		u, err := url.Parse(c.HTTP.UpstreamURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return gwerr.Validationf("gateway: http.upstream_url %q must be an absolute http(s) URL",
				c.HTTP.UpstreamURL)
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return gwerr.Validationf("gateway: log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}
