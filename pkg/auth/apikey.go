package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/observability"
)

const (
	// DefaultAPIKeyTTL is how long a verified key stays cached.
	DefaultAPIKeyTTL = 10 * time.Minute

	// DefaultAPIKeyFetchLimit caps the candidates compared on a miss.
	DefaultAPIKeyFetchLimit = 100

	// APIKeyPrefix starts every generated key.
	APIKeyPrefix = "sk_live_"

	apiKeyRandomBytes = 32
)

// APIKeyResolverConfig configures an [APIKeyResolver]. Zero values take
// the package defaults.
type APIKeyResolverConfig struct {
	TTL        time.Duration
	FetchLimit int
	MaxEntries int
}

type resolvedKey struct {
	principal Principal
	key       APIKey
}

// APIKeyResolver turns a raw API key into a principal. Verified keys are
// cached under the SHA-256 of the raw secret, so the bcrypt comparison is
// paid at most once per key per TTL. The raw secret itself is never
// stored or logged.
type APIKeyResolver struct {
	cache      *TTLCache[string, resolvedKey]
	store      CredentialStore
	hasher     Hasher
	fetchLimit int
	clock      Clock
	group      singleflight.Group
	tracer     trace.Tracer
}

// NewAPIKeyResolver returns a resolver over store.
func NewAPIKeyResolver(store CredentialStore, hasher Hasher, cfg APIKeyResolverConfig, clock Clock) *APIKeyResolver {
	if cfg.TTL == 0 {
		cfg.TTL = DefaultAPIKeyTTL
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = DefaultAPIKeyFetchLimit
	}
	clock = orSystemClock(clock)
	return &APIKeyResolver{
		cache:      NewTTLCache[string, resolvedKey](cfg.TTL, cfg.MaxEntries, clock),
		store:      store,
		hasher:     hasher,
		fetchLimit: cfg.FetchLimit,
		clock:      clock,
		tracer:     otel.Tracer(tracerName),
	}
}

// Resolve verifies rawSecret and returns the owning principal and the
// key's projection.
//
// On a cache hit no slow comparison runs; a cached key that has since
// expired is evicted and rejected. On a miss up to FetchLimit active keys
// are compared in store order and the first match wins.
func (r *APIKeyResolver) Resolve(ctx context.Context, rawSecret string) (Principal, APIKey, error) {
	if rawSecret == "" {
		return Principal{}, APIKey{}, gwerr.InvalidAPIKey()
	}
	digest := secretDigest(rawSecret)

	if hit, ok := r.cache.Get(digest); ok {
		observability.CacheLookupsTotal.WithLabelValues(observability.CacheAPIKey, observability.ResultHit).Inc()
		if hit.key.Expired(r.clock.Now()) {
			r.cache.Delete(digest)
			return Principal{}, APIKey{}, gwerr.APIKeyExpired()
		}
		return hit.principal, hit.key, nil
	}
	observability.CacheLookupsTotal.WithLabelValues(observability.CacheAPIKey, observability.ResultMiss).Inc()

	ctx, span := r.tracer.Start(ctx, "auth.ResolveAPIKey")
	defer span.End()

	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(digest, func() (any, error) {
		return r.verify(fetchCtx, rawSecret, digest, span)
	})
	if err != nil {
		finishSpan(span, err)
		return Principal{}, APIKey{}, err
	}
	res := v.(resolvedKey)
	span.SetAttributes(attribute.String("auth.api_key_id", res.key.ID))
	return res.principal, res.key, nil
}

func (r *APIKeyResolver) verify(ctx context.Context, rawSecret, digest string, span trace.Span) (resolvedKey, error) {
	records, err := r.store.FindActiveAPIKeys(ctx, r.fetchLimit)
	if err != nil {
		return resolvedKey{}, storeFailure(err, "auth: failed to load API keys")
	}
	span.SetAttributes(attribute.Int("auth.api_key_candidates", len(records)))

	var (
		match   APIKeyRecord
		matched bool
	)
	for _, rec := range records {
		if r.hasher.Compare(rawSecret, rec.SecretDigest) {
			match, matched = rec, true
			break
		}
	}
	if !matched || !match.Active {
		return resolvedKey{}, gwerr.InvalidAPIKey()
	}

	key := match.Projection()
	if key.Expired(r.clock.Now()) {
		return resolvedKey{}, gwerr.APIKeyExpired()
	}

	principal, err := r.store.FindPrincipalByID(ctx, match.PrincipalID)
	if errors.Is(err, ErrNotFound) {
		return resolvedKey{}, gwerr.InactivePrincipal()
	}
	if err != nil {
		return resolvedKey{}, storeFailure(err, "auth: credential store lookup failed")
	}
	if !principal.Active {
		return resolvedKey{}, gwerr.InactivePrincipal()
	}

	res := resolvedKey{principal: principal, key: key}
	r.cache.Put(digest, res)
	return res, nil
}

// Forget evicts any cached resolution of key id, so a revocation takes
// effect before the TTL runs out. It returns the number of entries removed.
func (r *APIKeyResolver) Forget(keyID string) int {
	return r.cache.DeleteFunc(func(_ string, v resolvedKey) bool {
		return v.key.ID == keyID
	})
}

// Sweep drops expired entries.
func (r *APIKeyResolver) Sweep() int { return r.cache.Sweep() }

// RunSweeper sweeps every interval until ctx is done.
func (r *APIKeyResolver) RunSweeper(ctx context.Context, interval time.Duration) {
	r.cache.RunSweeper(ctx, interval)
}

// secretDigest is the cache key for a raw secret.
func secretDigest(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// NewAPIKey describes a key to generate.
type NewAPIKey struct {
	PrincipalID string
	Permissions []string
	RateLimit   int64
	ExpiresAt   *time.Time
}

// GenerateAPIKey creates a random key for spec.PrincipalID. The raw secret
// is returned once; the record holds only its digest and is ready to be
// persisted.
func GenerateAPIKey(hasher Hasher, spec NewAPIKey) (string, APIKeyRecord, error) {
	if spec.PrincipalID == "" {
		return "", APIKeyRecord{}, gwerr.New(gwerr.CodeValidationRequired, "auth: principal id is required")
	}
	if spec.RateLimit < 0 {
		return "", APIKeyRecord{}, gwerr.New(gwerr.CodeValidation, "auth: rate limit must not be negative")
	}
	for _, p := range spec.Permissions {
		if _, err := ParsePermission(p); err != nil {
			return "", APIKeyRecord{}, gwerr.Wrap(err, gwerr.CodeValidation, "auth: invalid permission")
		}
	}

	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", APIKeyRecord{}, gwerr.Wrap(err, gwerr.CodeInternal, "auth: failed to generate API key")
	}
	raw := APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf)

	digest, err := hasher.Hash(raw)
	if err != nil {
		return "", APIKeyRecord{}, err
	}

	return raw, APIKeyRecord{
		ID:           uuid.NewString(),
		SecretDigest: digest,
		PrincipalID:  spec.PrincipalID,
		Permissions:  append([]string(nil), spec.Permissions...),
		RateLimit:    spec.RateLimit,
		ExpiresAt:    spec.ExpiresAt,
		CreatedAt:    time.Now().UTC(),
		Active:       true,
	}, nil
}
