package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// ===========================================================================
// Test Types
// ===========================================================================

// testSecret mimics auth.Secret: a named string with a redacted String.
type testSecret string

func (s testSecret) String() string { return "[REDACTED]" }

// testWindow is a scalar with a compact text form ("60000:100"),
// standing in for the rate-limit tier table.
type testWindow struct {
	WindowMS    int64
	MaxRequests int64
}

func (w *testWindow) UnmarshalText(text []byte) error {
	ms, max, ok := strings.Cut(string(text), ":")
	if !ok {
		return fmt.Errorf("expected window_ms:max_requests, got %q", text)
	}
	var err error
	if w.WindowMS, err = strconv.ParseInt(ms, 10, 64); err != nil {
		return err
	}
	w.MaxRequests, err = strconv.ParseInt(max, 10, 64)
	return err
}

type listenConfig struct {
	Addr    string        `env:"ADDR" envDefault:":8080" yaml:"addr" json:"addr"`
	Trust   bool          `env:"TRUST_FORWARDED_FOR" envDefault:"false" yaml:"trust_forwarded_for" json:"trust_forwarded_for"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s" yaml:"timeout" json:"timeout"`
	Workers int           `env:"WORKERS" envDefault:"4" yaml:"workers" json:"workers"`
}

type authSection struct {
	Secret testSecret `env:"TOKEN_SECRET" yaml:"token_secret" required:"true"`
	Issuer string     `env:"ISSUER" envDefault:"gateway" yaml:"issuer"`
}

type gatewaySection struct {
	Auth    authSection  `env:"AUTH" yaml:"auth"`
	HTTP    listenConfig `env:"HTTP" yaml:"http"`
	General testWindow   `env:"GENERAL" envDefault:"60000:100" yaml:"general" json:"general"`
	Roles   []string     `env:"ROLES" envDefault:"standard, admin"`
	Conns   int32        `env:"MAX_CONNS" envDefault:"25"`
}

type portConfig struct {
	Port int `env:"PORT"`
}

func (c *portConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return gwerr.Newf(gwerr.CodeValidation,
			"config: port %d is out of range [1, 65535]", c.Port)
	}
	return nil
}

type plainValidatorConfig struct {
	Name string `env:"NAME"`
}

func (c *plainValidatorConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writeTestFile() error: %v", err)
	}
	return path
}

// ===========================================================================
// Input Validation
// ===========================================================================

func TestLoader_Load_RejectsNonStructPointers(t *testing.T) {
	n := 42
	cases := map[string]any{
		"nil pointer":    (*listenConfig)(nil),
		"struct value":   listenConfig{},
		"pointer to int": &n,
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			err := New().Load(target)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !gwerr.HasCode(err, gwerr.CodeInternalConfiguration) {
				t.Errorf("code = %q, want %q", gwerr.GetCode(err), gwerr.CodeInternalConfiguration)
			}
		})
	}
}

// ===========================================================================
// Defaults
// ===========================================================================

func TestLoader_Load_Defaults_Applied(t *testing.T) {
	var cfg listenConfig
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":8080")
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
}

func TestLoader_Load_Defaults_NotOverwriteExisting(t *testing.T) {
	cfg := listenConfig{Addr: ":9090"}
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, want %q (should not be overwritten)", cfg.Addr, ":9090")
	}
}

func TestLoader_Load_Defaults_NestedSliceAndText(t *testing.T) {
	t.Setenv("AUTH_TOKEN_SECRET", "s")

	var cfg gatewaySection
	if err := New().Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.Issuer != "gateway" {
		t.Errorf("Auth.Issuer = %q, want %q", cfg.Auth.Issuer, "gateway")
	}
	if len(cfg.Roles) != 2 || cfg.Roles[1] != "admin" {
		t.Errorf("Roles = %v, want [standard admin]", cfg.Roles)
	}
	if cfg.Conns != 25 {
		t.Errorf("Conns = %d, want 25", cfg.Conns)
	}
	if cfg.General != (testWindow{WindowMS: 60000, MaxRequests: 100}) {
		t.Errorf("General = %+v, want {60000 100}", cfg.General)
	}
}

// ===========================================================================
// Files
// ===========================================================================

func TestLoader_Load_YAMLFile(t *testing.T) {
	path := writeTestFile(t, "gateway.yaml", `
addr: ":7000"
trust_forwarded_for: true
timeout: 10s
`)

	var cfg listenConfig
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":7000")
	}
	if !cfg.Trust {
		t.Error("Trust = false, want true")
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want default 4", cfg.Workers)
	}
}

func TestLoader_Load_YAMLFile_TextUnmarshaler(t *testing.T) {
	path := writeTestFile(t, "gateway.yml", `
auth:
  token_secret: from-file
general: "900000:5"
`)

	var cfg gatewaySection
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.General != (testWindow{WindowMS: 900000, MaxRequests: 5}) {
		t.Errorf("General = %+v, want {900000 5}", cfg.General)
	}
	if string(cfg.Auth.Secret) != "from-file" {
		t.Error("Auth.Secret not loaded from file")
	}
}

func TestLoader_Load_JSONFile(t *testing.T) {
	path := writeTestFile(t, "gateway.json", `{"addr": ":4000", "workers": 8}`)

	var cfg listenConfig
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != ":4000" || cfg.Workers != 8 {
		t.Errorf("got Addr=%q Workers=%d, want :4000 and 8", cfg.Addr, cfg.Workers)
	}
}

func TestLoader_Load_MissingFile_NoError(t *testing.T) {
	var cfg listenConfig
	if err := New().WithFile("/nonexistent/gateway.yaml").Load(&cfg); err != nil {
		t.Fatalf("Load() with missing file error: %v (expected nil)", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want default", cfg.Addr)
	}
}

func TestLoader_Load_FileErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"unsupported extension", func(t *testing.T) string { return writeTestFile(t, "gateway.toml", `addr = "x"`) }},
		{"directory traversal", func(t *testing.T) string { return "../../../etc/passwd" }},
		{"invalid yaml", func(t *testing.T) string { return writeTestFile(t, "gateway.yaml", "addr: [unclosed") }},
		{"invalid json", func(t *testing.T) string { return writeTestFile(t, "gateway.json", `{"addr":`) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg listenConfig
			err := New().WithFile(tt.path(t)).Load(&cfg)
			if !gwerr.HasCode(err, gwerr.CodeInternalConfiguration) {
				t.Errorf("err = %v, want code %q", err, gwerr.CodeInternalConfiguration)
			}
		})
	}
}

// ===========================================================================
// Environment
// ===========================================================================

func TestLoader_Load_EnvOverridesFile(t *testing.T) {
	path := writeTestFile(t, "gateway.yaml", `
addr: ":3000"
workers: 2
`)
	t.Setenv("ADDR", ":5000")

	var cfg listenConfig
	if err := New().WithFile(path).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != ":5000" {
		t.Errorf("Addr = %q, want %q (env should override file)", cfg.Addr, ":5000")
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2 (unset env keeps file value)", cfg.Workers)
	}
}

func TestLoader_Load_EnvPrefix_Nested(t *testing.T) {
	t.Setenv("GATEWAY_AUTH_TOKEN_SECRET", "env-secret")
	t.Setenv("GATEWAY_HTTP_ADDR", ":6060")
	t.Setenv("GATEWAY_GENERAL", "1000:2")

	var cfg gatewaySection
	if err := New().WithEnvPrefix("gateway").Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if string(cfg.Auth.Secret) != "env-secret" {
		t.Error("Auth.Secret not loaded from prefixed env")
	}
	if cfg.HTTP.Addr != ":6060" {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.HTTP.Addr, ":6060")
	}
	if cfg.General != (testWindow{WindowMS: 1000, MaxRequests: 2}) {
		t.Errorf("General = %+v, want {1000 2}", cfg.General)
	}
}

func TestLoader_Load_InvalidEnvValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"WORKERS", "many"},
		{"TRUST_FORWARDED_FOR", "perhaps"},
		{"TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			var cfg listenConfig
			err := New().Load(&cfg)
			if !gwerr.HasCode(err, gwerr.CodeInternalConfiguration) {
				t.Errorf("err = %v, want code %q", err, gwerr.CodeInternalConfiguration)
			}
		})
	}
}

func TestLoader_Load_InvalidTextValue(t *testing.T) {
	t.Setenv("AUTH_TOKEN_SECRET", "s")
	t.Setenv("GENERAL", "not-a-window")

	var cfg gatewaySection
	err := New().Load(&cfg)
	if !gwerr.HasCode(err, gwerr.CodeInternalConfiguration) {
		t.Errorf("err = %v, want code %q", err, gwerr.CodeInternalConfiguration)
	}
}

// ===========================================================================
// Validation
// ===========================================================================

func TestLoader_Load_NestedRequiredField_Missing(t *testing.T) {
	var cfg gatewaySection
	err := New().Load(&cfg)
	if !gwerr.HasCode(err, gwerr.CodeValidationRequired) {
		t.Fatalf("err = %v, want code %q", err, gwerr.CodeValidationRequired)
	}
	if !strings.Contains(err.Error(), "Auth.Secret") {
		t.Errorf("error %q should name the field path Auth.Secret", err)
	}
}

func TestLoader_Load_Validator(t *testing.T) {
	t.Setenv("PORT", "70000")
	var cfg portConfig
	err := New().Load(&cfg)
	if !gwerr.HasCode(err, gwerr.CodeValidation) {
		t.Fatalf("err = %v, want code %q", err, gwerr.CodeValidation)
	}
	if !strings.Contains(err.Error(), "out of range") {
		t.Errorf("coded validator error should pass through unchanged, got %q", err)
	}
}

func TestLoader_Load_Validator_PlainErrorWrapped(t *testing.T) {
	var cfg plainValidatorConfig
	err := New().Load(&cfg)
	if !gwerr.HasCode(err, gwerr.CodeValidation) {
		t.Fatalf("err = %v, want code %q", err, gwerr.CodeValidation)
	}
}

func TestMustLoad(t *testing.T) {
	t.Setenv("PORT", "8443")
	cfg := MustLoad[portConfig](New())
	if cfg.Port != 8443 {
		t.Errorf("Port = %d, want 8443", cfg.Port)
	}

	t.Setenv("PORT", "0")
	defer func() {
		if recover() == nil {
			t.Error("MustLoad() did not panic on invalid config")
		}
	}()
	_ = MustLoad[portConfig](New())
}
