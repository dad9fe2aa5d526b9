package auth

import (
	"context"
	"errors"
	"time"
)

// Role is a principal's authorization role.
type Role string

const (
	RoleStandard Role = "standard"
	RoleAdmin    Role = "admin"
)

func (r Role) String() string { return string(r) }

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleAdmin
}

// Tier is a subscription level. It selects the admission policy.
type Tier string

const (
	TierTrial   Tier = "trial"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

func (t Tier) String() string { return string(t) }

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t.Rank() > 0
}

// Rank orders tiers for "at least" comparisons. Unknown tiers rank 0.
func (t Tier) Rank() int {
	switch t {
	case TierTrial:
		return 1
	case TierBasic:
		return 2
	case TierPremium:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether t ranks at or above min.
func (t Tier) AtLeast(min Tier) bool {
	return t.Rank() >= min.Rank() && t.Rank() > 0
}

// Principal is a caller identity as stored in the credential store. The
// gateway only holds cache-scoped copies.
type Principal struct {
	ID          string
	DisplayName string
	Email       string
	Role        Role
	Tier        Tier

	// SubscriptionExpiresAt is nil for subscriptions that never lapse.
	SubscriptionExpiresAt *time.Time

	Active bool
}

// EffectiveTier returns the tier used for admission at now. A lapsed
// subscription counts as trial; the stored Tier is left as is.
func (p Principal) EffectiveTier(now time.Time) Tier {
	if p.SubscriptionExpiresAt != nil && !now.Before(*p.SubscriptionExpiresAt) {
		return TierTrial
	}
	return p.Tier
}

// IsAdmin reports whether p has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// APIKeyRecord is a stored API key. SecretDigest is a bcrypt digest and
// never leaves the credential store boundary except for comparison.
type APIKeyRecord struct {
	ID           string
	SecretDigest string
	PrincipalID  string
	Permissions  []string

	// RateLimit, when positive, replaces the tier ceiling for requests
	// made with this key.
	RateLimit int64

	UsageToday int64
	UsageTotal int64
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	Active     bool
}

// Projection returns the cacheable view of r, without the digest.
func (r APIKeyRecord) Projection() APIKey {
	return APIKey{
		ID:          r.ID,
		PrincipalID: r.PrincipalID,
		Permissions: ParsePermissions(r.Permissions),
		RateLimit:   r.RateLimit,
		UsageToday:  r.UsageToday,
		UsageTotal:  r.UsageTotal,
		LastUsedAt:  r.LastUsedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

// APIKey is the resolved, digest-free view of an API key attached to an
// authenticated request.
type APIKey struct {
	ID          string
	PrincipalID string
	Permissions []Permission
	RateLimit   int64
	UsageToday  int64
	UsageTotal  int64
	LastUsedAt  *time.Time
	ExpiresAt   *time.Time
}

// Expired reports whether the key has an expiry at or before now.
func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// HasPermission reports whether the key grants action on resource.
func (k APIKey) HasPermission(resource, action string) bool {
	return hasPermission(k.Permissions, resource, action)
}

// ErrNotFound is returned by a [CredentialStore] when a principal does
// not exist.
var ErrNotFound = errors.New("auth: not found")

// CredentialStore is the durable source of principals and API keys.
// Implementations report connectivity failures as errors; the gateway
// converts them to UpstreamUnavailable.
type CredentialStore interface {
	// FindPrincipalByID returns ErrNotFound when no principal has id.
	FindPrincipalByID(ctx context.Context, id string) (Principal, error)

	// FindActiveAPIKeys returns at most limit active keys in a stable order.
	FindActiveAPIKeys(ctx context.Context, limit int) ([]APIKeyRecord, error)

	// IncrementAPIKeyUsage bumps the daily and total counters and the
	// last-used timestamp of key id.
	IncrementAPIKeyUsage(ctx context.Context, id string) error
}
