package auth

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/observability"
)

const tracerName = "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"

// DefaultIdentityTTL is how long a fetched principal is trusted. A
// deactivation in the store is observed at most one TTL later.
const DefaultIdentityTTL = 5 * time.Minute

// IdentityCache maps principal ids to principals fetched from a
// [CredentialStore]. Misses are never cached, so an absent principal is
// looked up again on the next request.
type IdentityCache struct {
	cache  *TTLCache[string, Principal]
	store  CredentialStore
	group  singleflight.Group
	tracer trace.Tracer
}

// NewIdentityCache returns a cache in front of store. A ttl of zero uses
// [DefaultIdentityTTL].
func NewIdentityCache(store CredentialStore, ttl time.Duration, maxSize int, clock Clock) *IdentityCache {
	if ttl == 0 {
		ttl = DefaultIdentityTTL
	}
	return &IdentityCache{
		cache:  NewTTLCache[string, Principal](ttl, maxSize, clock),
		store:  store,
		tracer: otel.Tracer(tracerName),
	}
}

// Get returns a cached principal without consulting the store.
func (c *IdentityCache) Get(id string) (Principal, bool) {
	return c.cache.Get(id)
}

// Put caches p under id.
func (c *IdentityCache) Put(id string, p Principal) {
	c.cache.Put(id, p)
}

// Lookup returns the principal for id, fetching and caching it on a miss.
// The boolean is false when the store has no such principal. Concurrent
// misses for one id share a single fetch, which runs detached from ctx
// cancellation so an aborted request still populates the cache.
func (c *IdentityCache) Lookup(ctx context.Context, id string) (Principal, bool, error) {
	if p, ok := c.cache.Get(id); ok {
		observability.CacheLookupsTotal.WithLabelValues(observability.CacheIdentity, observability.ResultHit).Inc()
		return p, true, nil
	}
	observability.CacheLookupsTotal.WithLabelValues(observability.CacheIdentity, observability.ResultMiss).Inc()

	ctx, span := c.tracer.Start(ctx, "auth.IdentityLookup")
	defer span.End()
	span.SetAttributes(attribute.String("auth.principal_id", id))

	fetchCtx := context.WithoutCancel(ctx)
	v, err, shared := c.group.Do(id, func() (any, error) {
		p, err := c.store.FindPrincipalByID(fetchCtx, id)
		if err != nil {
			return nil, err
		}
		c.cache.Put(id, p)
		return p, nil
	})
	span.SetAttributes(attribute.Bool("auth.shared_fetch", shared))

	if errors.Is(err, ErrNotFound) {
		return Principal{}, false, nil
	}
	if err != nil {
		err = storeFailure(err, "auth: credential store lookup failed")
		finishSpan(span, err)
		return Principal{}, false, err
	}
	return v.(Principal), true, nil
}

// Sweep drops expired entries.
func (c *IdentityCache) Sweep() int { return c.cache.Sweep() }

// RunSweeper sweeps every interval until ctx is done.
func (c *IdentityCache) RunSweeper(ctx context.Context, interval time.Duration) {
	c.cache.RunSweeper(ctx, interval)
}

// storeFailure reports a credential store error as UpstreamUnavailable,
// keeping one that is already classified that way.
func storeFailure(err error, message string) error {
	if gwerr.IsUpstreamUnavailable(err) {
		return err
	}
	return gwerr.UpstreamUnavailable(err, message)
}
