package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// ===========================================================================
// Mock Implementation
// ===========================================================================

type mockCmdable struct {
	mock.Mock
}

func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	ret := m.Called(ctx, script, keys, args)
	return ret.Get(0).(*redis.Cmd)
}

func (m *mockCmdable) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	ret := m.Called(ctx, sha1, keys, args)
	return ret.Get(0).(*redis.Cmd)
}

func (m *mockCmdable) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	ret := m.Called(ctx, script, keys, args)
	return ret.Get(0).(*redis.Cmd)
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	ret := m.Called(ctx, sha1, keys, args)
	return ret.Get(0).(*redis.Cmd)
}

func (m *mockCmdable) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	ret := m.Called(ctx, hashes)
	return ret.Get(0).(*redis.BoolSliceCmd)
}

func (m *mockCmdable) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	ret := m.Called(ctx, script)
	return ret.Get(0).(*redis.StringCmd)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	ret := m.Called(ctx, keys)
	return ret.Get(0).(*redis.IntCmd)
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	ret := m.Called(ctx)
	return ret.Get(0).(*redis.StatusCmd)
}

func (m *mockCmdable) Close() error {
	return m.Called().Error(0)
}

// ===========================================================================
// Command Result Helpers
// ===========================================================================

// serverError is a reply error as go-redis produces it; the RedisError
// marker is what redis.HasErrorPrefix looks for.
type serverError string

func (e serverError) Error() string { return string(e) }
func (serverError) RedisError()     {}

func newCmd(val interface{}, err error) *redis.Cmd {
	cmd := redis.NewCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func newStatusCmd(val string, err error) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func newStringCmd(val string, err error) *redis.StringCmd {
	cmd := redis.NewStringCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

func newIntCmd(val int64, err error) *redis.IntCmd {
	cmd := redis.NewIntCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

var testScript = redis.NewScript(`return {redis.call("INCR", KEYS[1]), 1000}`)

// ===========================================================================
// NewFromClient Tests
// ===========================================================================

func TestNewFromClient_WithConfig(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	cfg := &Config{DB: 3}

	client := NewFromClient(m, cfg)

	assert.Equal(t, cfg, client.config)
	assert.Equal(t, 3, client.dbIndex)
	assert.NotNil(t, client.tracer)
	assert.Same(t, m, client.Client())
}

func TestNewFromClient_NilConfig(t *testing.T) {
	t.Parallel()
	client := NewFromClient(new(mockCmdable), nil)
	require.NotNil(t, client.config)
	assert.Equal(t, 0, client.dbIndex)
}

// ===========================================================================
// RunInt64s Tests
// ===========================================================================

func TestClient_RunInt64s_EvalShaHit(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("EvalSha", mock.Anything, testScript.Hash(), []string{"rl:k"}, []interface{}{int64(1000)}).
		Return(newCmd([]interface{}{int64(1), int64(1000)}, nil))

	client := NewFromClient(m, nil)
	vals, err := client.RunInt64s(context.Background(), testScript, []string{"rl:k"}, int64(1000))

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1000}, vals)
	m.AssertNotCalled(t, "Eval", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.AssertExpectations(t)
}

func TestClient_RunInt64s_NoScriptFallsBackToEval(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("EvalSha", mock.Anything, testScript.Hash(), []string{"rl:k"}, mock.Anything).
		Return(newCmd(nil, serverError("NOSCRIPT No matching script. Please use EVAL.")))
	m.On("Eval", mock.Anything, mock.AnythingOfType("string"), []string{"rl:k"}, mock.Anything).
		Return(newCmd([]interface{}{int64(2), int64(900)}, nil))

	client := NewFromClient(m, nil)
	vals, err := client.RunInt64s(context.Background(), testScript, []string{"rl:k"})

	require.NoError(t, err)
	assert.Equal(t, []int64{2, 900}, vals)
	m.AssertExpectations(t)
}

func TestClient_RunInt64s_ErrorIsUpstreamUnavailable(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("EvalSha", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(newCmd(nil, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")))

	client := NewFromClient(m, nil)
	_, err := client.RunInt64s(context.Background(), testScript, []string{"rl:k"})

	require.Error(t, err)
	assert.Equal(t, gwerr.CodeUpstreamUnavailable, gwerr.GetCode(err))
	assert.True(t, gwerr.IsRetryable(err))
}

func TestClient_RunInt64s_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	m := new(mockCmdable)
	m.On("EvalSha", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(newCmd(nil, errors.New("i/o timeout")))

	client := NewFromClient(m, nil)
	client.tracer = tp.Tracer(tracerName)
	_, _ = client.RunInt64s(context.Background(), testScript, []string{"rl:k"})

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "redis.EvalSha", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

// ===========================================================================
// LoadScript / Del / Health Tests
// ===========================================================================

func TestClient_LoadScript(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("ScriptLoad", mock.Anything, mock.AnythingOfType("string")).
		Return(newStringCmd(testScript.Hash(), nil))

	require.NoError(t, NewFromClient(m, nil).LoadScript(context.Background(), testScript))
	m.AssertExpectations(t)
}

func TestClient_Del(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Del", mock.Anything, []string{"a", "b"}).Return(newIntCmd(1, nil))

	n, err := NewFromClient(m, nil).Del(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestClient_Health(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Ping", mock.Anything).Return(newStatusCmd("PONG", nil)).Once()
	m.On("Ping", mock.Anything).Return(newStatusCmd("", errors.New("connection refused"))).Once()

	client := NewFromClient(m, nil)
	require.NoError(t, client.Health(context.Background()))

	err := client.Health(context.Background())
	assert.True(t, gwerr.IsUpstreamUnavailable(err))
}

func TestClient_Close(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Close").Return(nil)
	require.NoError(t, NewFromClient(m, nil).Close())
	m.AssertExpectations(t)
}

// ===========================================================================
// wrapError Tests
// ===========================================================================

func TestWrapError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want gwerr.Code
	}{
		{"deadline", context.DeadlineExceeded, gwerr.CodeUpstreamUnavailable},
		{"canceled", context.Canceled, gwerr.CodeInternal},
		{"server error", serverError("LOADING Redis is loading the dataset in memory"), gwerr.CodeUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapError(tt.err, "op failed")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Code)
			assert.ErrorIs(t, got, tt.err)
		})
	}
	assert.Nil(t, wrapError(nil, "nothing"))
}
