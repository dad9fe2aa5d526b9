package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/internal/testutil"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/internal/testutil/fixtures"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// failingStore fails every call with err.
type failingStore struct{ err error }

func (s failingStore) IncrementAndBound(context.Context, string, time.Duration) (Window, error) {
	return Window{}, s.err
}

func (s failingStore) Reset(context.Context, string) error { return s.err }

func newTestAdmission(t *testing.T, tiers TierTable) (*Admission, *MemoryStore, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(fixtures.Epoch)
	store := NewMemoryStore(clock)
	adm, err := NewAdmission(AdmissionConfig{Tiers: tiers, Store: store, Clock: clock})
	require.NoError(t, err)
	return adm, store, clock
}

func standardSubject(tier auth.Tier) Subject {
	return Subject{PrincipalID: fixtures.PrincipalID, Role: auth.RoleStandard, Tier: tier, IP: "203.0.113.7"}
}

// ===========================================================================
// Construction Tests
// ===========================================================================

func TestNewAdmission_Validation(t *testing.T) {
	t.Parallel()
	_, err := NewAdmission(AdmissionConfig{})
	testutil.AssertErrorCode(t, err, gwerr.CodeInternalConfiguration)

	_, err = NewAdmission(AdmissionConfig{Store: NewMemoryStore(nil), Tiers: TierTable{auth.TierBasic: {1000, 1}}})
	testutil.AssertErrorCode(t, err, gwerr.CodeValidation)
}

// ===========================================================================
// Admit Tests
// ===========================================================================

func TestAdmit_TrialHourlyScenario(t *testing.T) {
	t.Parallel()
	adm, _, _ := newTestAdmission(t, TierTable{auth.TierTrial: {WindowMS: 3600000, MaxRequests: 100}})
	ctx := context.Background()
	subject := standardSubject(auth.TierTrial)

	for i := 1; i <= 100; i++ {
		d, err := adm.Admit(ctx, subject, "GET /v1/seasonality")
		require.NoError(t, err, "request %d", i)
		assert.Equal(t, int64(100-i), d.Quota.Remaining)
	}

	d, err := adm.Admit(ctx, subject, "GET /v1/seasonality")
	testutil.RequireErrorCode(t, err, gwerr.CodeRateLimitExceeded)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(0), d.Quota.Remaining)
	assert.Equal(t, fixtures.Epoch.Add(time.Hour), d.Quota.Reset)

	e, ok := gwerr.AsError(err)
	require.True(t, ok)
	require.NotNil(t, e.Quota)
	assert.Equal(t, int64(100), e.Quota.Limit)
}

func TestAdmit_EveryTierAdmitsUpToItsCeiling(t *testing.T) {
	t.Parallel()
	tiers := TierTable{
		auth.TierTrial:   {WindowMS: 60000, MaxRequests: 3},
		auth.TierBasic:   {WindowMS: 60000, MaxRequests: 5},
		auth.TierPremium: {WindowMS: 60000, MaxRequests: 8},
	}
	for tier, limits := range tiers {
		t.Run(string(tier), func(t *testing.T) {
			adm, _, _ := newTestAdmission(t, tiers)
			subject := standardSubject(tier)
			for i := int64(0); i < limits.MaxRequests; i++ {
				_, err := adm.Admit(context.Background(), subject, "r")
				require.NoError(t, err)
			}
			_, err := adm.Admit(context.Background(), subject, "r")
			testutil.RequireErrorCode(t, err, gwerr.CodeRateLimitExceeded)
		})
	}
}

func TestAdmit_WindowExpiryReopens(t *testing.T) {
	t.Parallel()
	adm, _, clock := newTestAdmission(t, TierTable{auth.TierTrial: {WindowMS: 60000, MaxRequests: 1}})
	subject := standardSubject(auth.TierTrial)

	_, err := adm.Admit(context.Background(), subject, "r")
	require.NoError(t, err)
	_, err = adm.Admit(context.Background(), subject, "r")
	require.Error(t, err)

	clock.Advance(time.Minute)
	_, err = adm.Admit(context.Background(), subject, "r")
	assert.NoError(t, err)
}

func TestAdmit_AdminBypass(t *testing.T) {
	t.Parallel()
	adm, store, _ := newTestAdmission(t, TierTable{auth.TierTrial: {WindowMS: 60000, MaxRequests: 1}})
	admin := Subject{PrincipalID: fixtures.AdminID, Role: auth.RoleAdmin, Tier: auth.TierTrial}

	for i := 0; i < 10; i++ {
		d, err := adm.Admit(context.Background(), admin, "r")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, PolicyAdmin, d.Policy)
	}
	assert.Equal(t, 0, adm.Limiters())
	assert.Empty(t, store.windows)
}

func TestAdmit_ExpiredSubscriptionUsesTrial(t *testing.T) {
	t.Parallel()
	tiers := TierTable{
		auth.TierTrial:   {WindowMS: 60000, MaxRequests: 1},
		auth.TierPremium: {WindowMS: 60000, MaxRequests: 100},
	}
	adm, _, _ := newTestAdmission(t, tiers)

	lapsed := fixtures.Epoch.Add(-time.Hour)
	p := auth.Principal{ID: fixtures.PrincipalID, Role: auth.RoleStandard, Tier: auth.TierPremium, SubscriptionExpiresAt: &lapsed, Active: true}
	authn := &auth.Authentication{Principal: p, Tier: p.EffectiveTier(fixtures.Epoch)}

	subject := SubjectFromAuthentication(authn, "198.51.100.1")
	d, err := adm.Admit(context.Background(), subject, "r")
	require.NoError(t, err)
	assert.Equal(t, "tier:trial", d.Policy)

	_, err = adm.Admit(context.Background(), subject, "r")
	testutil.RequireErrorCode(t, err, gwerr.CodeRateLimitExceeded)
	assert.Equal(t, auth.TierPremium, authn.Principal.Tier)
}

func TestAdmit_UnknownTierFallsBackToTrial(t *testing.T) {
	t.Parallel()
	adm, _, _ := newTestAdmission(t, nil)
	d, err := adm.Admit(context.Background(), standardSubject("gold"), "r")
	require.NoError(t, err)
	assert.Equal(t, "tier:trial", d.Policy)
	assert.Equal(t, int64(100), d.Quota.Limit)
}

func TestAdmit_KeyOverride(t *testing.T) {
	t.Parallel()
	adm, _, _ := newTestAdmission(t, nil)
	authn := &auth.Authentication{
		Principal: auth.Principal{ID: fixtures.PrincipalID, Role: auth.RoleStandard, Tier: auth.TierBasic, Active: true},
		Tier:      auth.TierBasic,
		APIKey:    &auth.APIKey{ID: fixtures.APIKeyID, RateLimit: 2},
	}
	subject := SubjectFromAuthentication(authn, "")

	for i := 0; i < 2; i++ {
		d, err := adm.Admit(context.Background(), subject, "r")
		require.NoError(t, err)
		assert.Equal(t, int64(2), d.Quota.Limit)
		assert.Equal(t, "tier:basic:key2", d.Policy)
	}
	_, err := adm.Admit(context.Background(), subject, "r")
	testutil.RequireErrorCode(t, err, gwerr.CodeRateLimitExceeded)
}

func TestAdmit_AnonymousKeyedByIP(t *testing.T) {
	t.Parallel()
	adm, _, _ := newTestAdmission(t, TierTable{auth.TierTrial: {WindowMS: 60000, MaxRequests: 1}})

	a := SubjectFromAuthentication(nil, "192.0.2.1")
	b := SubjectFromAuthentication(nil, "192.0.2.2")
	assert.Equal(t, "ip:192.0.2.1", a.Key())

	_, err := adm.Admit(context.Background(), a, "r")
	require.NoError(t, err)
	_, err = adm.Admit(context.Background(), b, "r")
	require.NoError(t, err, "separate IPs have separate windows")
	_, err = adm.Admit(context.Background(), a, "r")
	testutil.RequireErrorCode(t, err, gwerr.CodeRateLimitExceeded)
}

func TestAdmit_StoreFailureIsUpstream(t *testing.T) {
	t.Parallel()
	adm, err := NewAdmission(AdmissionConfig{Store: failingStore{errors.New("connection reset")}})
	require.NoError(t, err)

	_, err = adm.Admit(context.Background(), standardSubject(auth.TierBasic), "r")
	testutil.RequireErrorCode(t, err, gwerr.CodeUpstreamUnavailable)
	assert.True(t, gwerr.IsRetryable(err))
}

func TestAdmit_OneLimiterPerPolicy(t *testing.T) {
	t.Parallel()
	adm, _, _ := newTestAdmission(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tier := auth.TierBasic
			if i%2 == 0 {
				tier = auth.TierPremium
			}
			_, _ = adm.Admit(context.Background(), standardSubject(tier), "r")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 2, adm.Limiters())
	assert.Same(t, adm.limiterFor(standardSubject(auth.TierBasic)), adm.limiterFor(standardSubject(auth.TierBasic)))
}

// ===========================================================================
// Limiter Tests
// ===========================================================================

func TestLimiter_KeysAreNamespaced(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore(nil)
	issuance := NewLimiter("issuance", IssuanceLimits, store, "p:", nil)
	general := NewLimiter("general", GeneralLimits, store, "p:", nil)

	for i := 0; i < 5; i++ {
		_, err := issuance.Allow(context.Background(), "ip:1")
		require.NoError(t, err)
	}
	_, err := issuance.Allow(context.Background(), "ip:1")
	testutil.RequireErrorCode(t, err, gwerr.CodeRateLimitExceeded)

	_, err = general.Allow(context.Background(), "ip:1")
	assert.NoError(t, err)

	require.NoError(t, issuance.Reset(context.Background(), "ip:1"))
	_, err = issuance.Allow(context.Background(), "ip:1")
	assert.NoError(t, err)
}
