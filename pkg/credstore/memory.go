package credstore

import (
	"context"
	"sync"
	"time"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// Memory is an in-process credential store. Keys are returned in
// insertion order. It is safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	principals map[string]auth.Principal
	keys       []auth.APIKeyRecord
	clock      auth.Clock
}

var _ auth.CredentialStore = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory(clock auth.Clock) *Memory {
	if clock == nil {
		clock = auth.SystemClock{}
	}
	return &Memory{principals: make(map[string]auth.Principal), clock: clock}
}

func (m *Memory) FindPrincipalByID(_ context.Context, id string) (auth.Principal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.principals[id]
	if !ok {
		return auth.Principal{}, auth.ErrNotFound
	}
	return p, nil
}

func (m *Memory) FindActiveAPIKeys(_ context.Context, limit int) ([]auth.APIKeyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]auth.APIKeyRecord, 0, min(limit, len(m.keys)))
	for _, k := range m.keys {
		if len(out) == limit {
			break
		}
		if k.Active {
			k.Permissions = append([]string(nil), k.Permissions...)
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *Memory) IncrementAPIKeyUsage(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.keys {
		if m.keys[i].ID == id {
			m.keys[i].UsageToday++
			m.keys[i].UsageTotal++
			m.keys[i].LastUsedAt = stamp(m.clock)
			return nil
		}
	}
	return nil
}

func (m *Memory) ResetDailyAPIKeyUsage(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.keys {
		if m.keys[i].UsageToday != 0 {
			m.keys[i].UsageToday = 0
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateAPIKey(_ context.Context, rec auth.APIKeyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.ID == rec.ID {
			return gwerr.Newf(gwerr.CodeValidation, "credstore: API key %q already exists", rec.ID)
		}
	}
	m.keys = append(m.keys, rec)
	return nil
}

func (m *Memory) RevokeAPIKey(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.keys {
		if m.keys[i].ID == id && m.keys[i].Active {
			m.keys[i].Active = false
			return nil
		}
	}
	return gwerr.Newf(gwerr.CodeValidation, "credstore: no active API key %q", id)
}

func (m *Memory) UpsertPrincipal(_ context.Context, p auth.Principal) error {
	m.mu.Lock()
	m.principals[p.ID] = p
	m.mu.Unlock()
	return nil
}

// APIKey returns the stored record for id.
func (m *Memory) APIKey(id string) (auth.APIKeyRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.keys {
		if k.ID == id {
			return k, true
		}
	}
	return auth.APIKeyRecord{}, false
}

func (m *Memory) Health(context.Context) error { return nil }

func stamp(clock auth.Clock) *time.Time {
	t := clock.Now().UTC()
	return &t
}
