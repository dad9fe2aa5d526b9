//go:build integration

// Integration tests for the Redis client against a real server started
// with testcontainers-go. Run with:
//
//	go test -v -race -tags=integration ./pkg/clients/redis/...
package redis_test

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/internal/testutil/containers"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/clients/redis"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// ===========================================================================
// Suite Definition
// ===========================================================================

// RedisIntegrationSuite shares one container across tests; each test
// uses its own key prefix.
type RedisIntegrationSuite struct {
	suite.Suite

	ctx         context.Context
	redisResult *containers.RedisResult
	client      *redis.Client
}

func (s *RedisIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	result, err := containers.StartRedis(s.ctx)
	require.NoError(s.T(), err, "failed to start Redis container")
	s.redisResult = result

	client, err := redis.NewClient(s.ctx, redis.Config{URI: result.ConnString, PoolSize: 10})
	require.NoError(s.T(), err, "failed to create Redis client")
	s.client = client
}

func (s *RedisIntegrationSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.redisResult != nil {
		if err := s.redisResult.Container.Terminate(s.ctx); err != nil {
			s.T().Logf("failed to terminate redis container: %v", err)
		}
	}
}

func TestRedisIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisIntegrationSuite))
}

// ===========================================================================
// Tests
// ===========================================================================

func (s *RedisIntegrationSuite) TestHealth() {
	require.NoError(s.T(), s.client.Health(s.ctx))
}

func (s *RedisIntegrationSuite) TestRunInt64s_WithoutPreload() {
	script := goredis.NewScript(`
local n = redis.call("INCRBY", KEYS[1], ARGV[1])
return {n, 7}
`)
	key := "it:run:nopreload"

	vals, err := s.client.RunInt64s(s.ctx, script, []string{key}, 5)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []int64{5, 7}, vals)

	vals, err = s.client.RunInt64s(s.ctx, script, []string{key}, 2)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []int64{7, 7}, vals)
}

func (s *RedisIntegrationSuite) TestLoadScript_ThenRun() {
	script := goredis.NewScript(`return {redis.call("INCR", KEYS[1])}`)
	require.NoError(s.T(), s.client.LoadScript(s.ctx, script))

	vals, err := s.client.RunInt64s(s.ctx, script, []string{"it:run:preload"})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []int64{1}, vals)
}

func (s *RedisIntegrationSuite) TestDel() {
	script := goredis.NewScript(`return {redis.call("INCR", KEYS[1])}`)
	key := "it:del:key"
	_, err := s.client.RunInt64s(s.ctx, script, []string{key})
	require.NoError(s.T(), err)

	n, err := s.client.Del(s.ctx, key, "it:del:missing")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), n)
}

func (s *RedisIntegrationSuite) TestNewClient_Unreachable() {
	_, err := redis.NewClient(s.ctx, redis.Config{URI: "redis://127.0.0.1:1/0", MaxRetries: -1})
	require.Error(s.T(), err)
	assert.True(s.T(), gwerr.IsUpstreamUnavailable(err))
}
