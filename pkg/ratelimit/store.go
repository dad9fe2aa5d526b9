package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	redisclient "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/clients/redis"
)

// Window is the state of one fixed window after an increment.
type Window struct {
	// Count is the number of hits in the window, including this one.
	Count int64

	// ResetIn is the time left until the window closes.
	ResetIn time.Duration
}

// CounterStore holds admission windows. IncrementAndBound must add one to
// the counter at key and guarantee the key carries an expiry, as a single
// atomic step: the increment that opens a window always sets its expiry.
type CounterStore interface {
	IncrementAndBound(ctx context.Context, key string, window time.Duration) (Window, error)
	Reset(ctx context.Context, key string) error
}

// incrementScript returns {count, pttl}. PEXPIRE runs when the INCR
// created the key, or when the key somehow lost its expiry.
var incrementScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if n == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisStore is a [CounterStore] shared by every gateway instance
// pointing at the same Redis.
type RedisStore struct {
	client *redisclient.Client
}

var _ CounterStore = (*RedisStore)(nil)

// NewRedisStore returns a store over client.
func NewRedisStore(client *redisclient.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Preload uploads the increment script so the first admission is served
// by EVALSHA. Failing to preload is harmless; Run falls back to EVAL.
func (s *RedisStore) Preload(ctx context.Context) error {
	return s.client.LoadScript(ctx, incrementScript)
}

func (s *RedisStore) IncrementAndBound(ctx context.Context, key string, window time.Duration) (Window, error) {
	vals, err := s.client.RunInt64s(ctx, incrementScript, []string{key}, window.Milliseconds())
	if err != nil {
		return Window{}, err
	}
	if len(vals) != 2 {
		return Window{}, errUnexpectedReply(len(vals))
	}
	return Window{Count: vals[0], ResetIn: time.Duration(vals[1]) * time.Millisecond}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	_, err := s.client.Del(ctx, key)
	return err
}

// MemoryStore is a process-local [CounterStore] for single-instance
// deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]memWindow
	clock   auth.Clock
}

type memWindow struct {
	count     int64
	expiresAt time.Time
}

var _ CounterStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store. A nil clock uses wall time.
func NewMemoryStore(clock auth.Clock) *MemoryStore {
	if clock == nil {
		clock = auth.SystemClock{}
	}
	return &MemoryStore{windows: make(map[string]memWindow), clock: clock}
}

func (s *MemoryStore) IncrementAndBound(_ context.Context, key string, window time.Duration) (Window, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = memWindow{expiresAt: now.Add(window)}
	}
	w.count++
	s.windows[key] = w
	return Window{Count: w.count, ResetIn: w.expiresAt.Sub(now)}, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.windows, key)
	s.mu.Unlock()
	return nil
}

// Sweep drops closed windows and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, w := range s.windows {
		if !now.Before(w.expiresAt) {
			delete(s.windows, k)
			n++
		}
	}
	return n
}
