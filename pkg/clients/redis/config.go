// Package redis provides the gateway's Redis client: a thin wrapper over
// go-redis (github.com/redis/go-redis/v9) that adds OpenTelemetry spans
// and classifies every driver failure as an upstream outage.
//
// The gateway uses Redis only as the shared counter store for admission
// control, so the client exposes the handful of commands that needs:
// server-side Lua scripts (EVALSHA with EVAL fallback), DEL and PING.
//
//	cfg := redis.DefaultConfig()
//	cfg.URI = "redis://localhost:6379/0"
//	client, err := redis.NewClient(ctx, *cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// For unit tests, inject a mock [Cmdable] with [NewFromClient].
package redis

import (
	"fmt"
	"net/url"
	"time"
)

// maxStatementTruncateLen bounds db.statement span attributes.
const maxStatementTruncateLen = 100

const (
	DefaultHost          = "localhost"
	DefaultPort          = 6379
	DefaultDB            = 0
	DefaultPoolSize      = 25
	DefaultMinIdleConns  = 5
	DefaultMaxRetries    = 3
	DefaultDialTimeout   = 5 * time.Second
	DefaultReadTimeout   = 2 * time.Second
	DefaultWriteTimeout  = 2 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// Secret holds a Redis password. It renders as "[REDACTED]" through fmt
// and text marshaling; use [Secret.Value] for the real string.
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string { return redacted }

func (s Secret) GoString() string { return redacted }

// Value returns the plaintext password.
func (s Secret) Value() string { return string(s) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Config holds Redis connection settings. When URI is set it takes
// precedence over Host, Port, DB and Password.
//
// Env tags are relative; the gateway nests this struct under
// GATEWAY_REDIS, giving GATEWAY_REDIS_URI and so on.
type Config struct {
	// URI is a redis:// or rediss:// connection string.
	URI string `env:"URI" yaml:"uri" json:"uri,omitempty"`

	Host     string `env:"HOST" yaml:"host" json:"host,omitempty"`
	Port     int    `env:"PORT" yaml:"port" json:"port,omitempty"`
	DB       int    `env:"DB" yaml:"db" json:"db"`
	Password Secret `env:"PASSWORD" yaml:"password" json:"-"`

	PoolSize     int `env:"POOL_SIZE" yaml:"pool_size" json:"pool_size,omitempty"`
	MinIdleConns int `env:"MIN_IDLE_CONNS" yaml:"min_idle_conns" json:"min_idle_conns,omitempty"`

	// MaxRetries of -1 disables retries.
	MaxRetries int `env:"MAX_RETRIES" yaml:"max_retries" json:"max_retries,omitempty"`

	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" yaml:"dial_timeout" json:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" yaml:"read_timeout" json:"read_timeout,omitempty"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" yaml:"write_timeout" json:"write_timeout,omitempty"`

	TLSEnabled bool `env:"TLS_ENABLED" yaml:"tls_enabled" json:"tls_enabled,omitempty"`
}

// DefaultConfig returns a Config pointing at localhost with the default
// pool and timeout settings.
func DefaultConfig() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		DB:           DefaultDB,
		PoolSize:     DefaultPoolSize,
		MinIdleConns: DefaultMinIdleConns,
		MaxRetries:   DefaultMaxRetries,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Validate applies defaults to zero-valued fields and returns the first
// invalid setting. Structured fields are not checked when URI is set.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: config URI is invalid: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: config URI scheme must be redis:// or rediss://, got %q", u.Scheme)
		}
		return nil
	}

	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: config port must be between 1 and 65535, got %d", c.Port)
	}
	if c.MinIdleConns < 0 {
		return fmt.Errorf("redis: config min_idle_conns must be >= 0, got %d", c.MinIdleConns)
	}
	if c.PoolSize < c.MinIdleConns {
		return fmt.Errorf("redis: config pool_size (%d) must be >= min_idle_conns (%d)", c.PoolSize, c.MinIdleConns)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("redis: config timeouts must not be negative")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = DefaultMinIdleConns
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// truncateStatement cuts s to maxStatementTruncateLen runes, appending
// "..." when it was longer.
func truncateStatement(s string) string {
	runes := []rune(s)
	if len(runes) <= maxStatementTruncateLen {
		return s
	}
	return string(runes[:maxStatementTruncateLen]) + "..."
}
