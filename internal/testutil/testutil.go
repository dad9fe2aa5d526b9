// Package testutil provides shared test helpers for the gateway test suite.
//
// Helpers accept [testing.TB] so they work from both tests and benchmarks.
// Functions that halt the test on failure use [require]; functions that
// record failures without stopping use [assert].
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// RequireErrorCode halts the test if err is nil, is not a *gwerr.Error,
// or does not carry the expected code.
//
//	_, err := resolver.Resolve(ctx, "sk_live_unknown")
//	testutil.RequireErrorCode(t, err, gwerr.CodeInvalidAPIKey)
func RequireErrorCode(t testing.TB, err error, code gwerr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	gwErr, ok := gwerr.AsError(err)
	require.True(t, ok, "expected *gwerr.Error, got %T: %v", err, err)
	require.Equal(t, code, gwErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		gwErr.Code, code, gwErr.Message)
}

// AssertErrorCode is the non-halting form of [RequireErrorCode], for
// table-driven tests that should report every failing row.
func AssertErrorCode(t testing.TB, err error, code gwerr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	gwErr, ok := gwerr.AsError(err)
	if !assert.True(t, ok, "expected *gwerr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, gwErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		gwErr.Code, code, gwErr.Message)
}

// TempConfigFile writes content to config<ext> inside t.TempDir() with
// mode 0600 and returns its path.
func TempConfigFile(t testing.TB, content, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config"+ext)
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err, "failed to write temp config file %s", path)
	return path
}

// SetEnv sets an environment variable and restores the previous value
// (or unsets it) when the test completes. Not safe with t.Parallel()
// unless each test uses a unique key.
func SetEnv(t testing.TB, key, value string) {
	t.Helper()
	prev, existed := os.LookupEnv(key)
	err := os.Setenv(key, value)
	require.NoError(t, err, "failed to set env var %s", key)
	t.Cleanup(func() {
		if existed {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

// UnsetEnv unsets an environment variable and restores it when the test
// completes.
func UnsetEnv(t testing.TB, key string) {
	t.Helper()
	prev, existed := os.LookupEnv(key)
	err := os.Unsetenv(key)
	require.NoError(t, err, "failed to unset env var %s", key)
	t.Cleanup(func() {
		if existed {
			_ = os.Setenv(key, prev)
		}
	})
}

// AssertJSONNotContains marshals v and asserts the output does not
// contain unexpected. Used to check that secrets never serialize.
func AssertJSONNotContains(t testing.TB, v any, unexpected string) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err, "json.Marshal failed")
	assert.NotContains(t, string(data), unexpected,
		"expected JSON to NOT contain %q, got: %s", unexpected, string(data))
}

// FakeClock is a manually advanced clock. It satisfies auth.Clock and
// ratelimit.Clock without importing either package.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a clock frozen at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
