package auth

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/internal/testutil"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/internal/testutil/fixtures"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

type mockStore struct {
	mock.Mock
}

var _ CredentialStore = (*mockStore)(nil)

func (m *mockStore) FindPrincipalByID(ctx context.Context, id string) (Principal, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Principal), args.Error(1)
}

func (m *mockStore) FindActiveAPIKeys(ctx context.Context, limit int) ([]APIKeyRecord, error) {
	args := m.Called(ctx, limit)
	recs, _ := args.Get(0).([]APIKeyRecord)
	return recs, args.Error(1)
}

func (m *mockStore) IncrementAPIKeyUsage(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// countingHasher counts Compare calls on top of a cheap bcrypt hasher.
type countingHasher struct {
	*BcryptHasher
	compares atomic.Int64
}

func (h *countingHasher) Compare(secret, digest string) bool {
	h.compares.Add(1)
	return h.BcryptHasher.Compare(secret, digest)
}

func newCountingHasher(t *testing.T) *countingHasher {
	t.Helper()
	h, err := NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	return &countingHasher{BcryptHasher: h}
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func activePrincipal() Principal {
	return Principal{
		ID:          fixtures.PrincipalID,
		DisplayName: "Test Trader",
		Email:       fixtures.PrincipalEmail,
		Role:        RoleStandard,
		Tier:        TierBasic,
		Active:      true,
	}
}

func adminPrincipal() Principal {
	return Principal{ID: fixtures.AdminID, Role: RoleAdmin, Tier: TierTrial, Active: true}
}

func inactivePrincipal() Principal {
	p := activePrincipal()
	p.ID = fixtures.InactiveID
	p.Active = false
	return p
}

func keyRecord(t *testing.T, h Hasher, id, secret string) APIKeyRecord {
	t.Helper()
	digest, err := h.Hash(secret)
	require.NoError(t, err)
	return APIKeyRecord{
		ID:           id,
		SecretDigest: digest,
		PrincipalID:  fixtures.PrincipalID,
		Permissions:  []string{"seasonality:read"},
		Active:       true,
	}
}

func newTestCodec(t *testing.T, clock Clock) *TokenCodec {
	t.Helper()
	c, err := NewTokenCodec(TokenConfig{
		Secret: Secret(fixtures.TokenSecret),
		Issuer: fixtures.TokenIssuer,
	}, clock)
	require.NoError(t, err)
	return c
}

type authHarness struct {
	store  *mockStore
	hasher *countingHasher
	clock  *testutil.FakeClock
	codec  *TokenCodec
	authn  *Authenticator
}

func newAuthHarness(t *testing.T) *authHarness {
	t.Helper()
	h := &authHarness{
		store:  &mockStore{},
		hasher: newCountingHasher(t),
		clock:  testutil.NewFakeClock(fixtures.Epoch),
	}
	h.codec = newTestCodec(t, h.clock)
	authn, err := NewAuthenticator(AuthenticatorConfig{
		Tokens:     h.codec,
		Identities: NewIdentityCache(h.store, 5*time.Minute, 0, h.clock),
		APIKeys:    NewAPIKeyResolver(h.store, h.hasher, APIKeyResolverConfig{}, h.clock),
		Clock:      h.clock,
	})
	require.NoError(t, err)
	h.authn = authn
	return h
}

func (h *authHarness) accessToken(t *testing.T, principalID string) string {
	t.Helper()
	tok, err := h.codec.Issue(principalID, TokenAccess)
	require.NoError(t, err)
	return tok
}
