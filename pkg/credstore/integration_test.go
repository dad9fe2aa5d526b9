//go:build integration

// Integration tests for the PostgreSQL credential store. Run with:
//
//	go test -v -race -tags=integration ./pkg/credstore/...
package credstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/internal/testutil"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/internal/testutil/containers"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/internal/testutil/fixtures"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/clients/postgres"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/credstore"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

func setupStore(t *testing.T) *credstore.Postgres {
	t.Helper()
	ctx := context.Background()

	result, err := containers.StartPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = result.Container.Terminate(ctx) })

	client, err := postgres.NewClient(ctx, postgres.Config{URI: result.ConnString, MaxConns: 5})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	store := credstore.NewPostgres(client, nil)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx), "schema must be idempotent")
	return store
}

func TestPostgres_Integration(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertPrincipal(ctx, auth.Principal{
		ID: fixtures.PrincipalID, Email: fixtures.PrincipalEmail,
		Role: auth.RoleStandard, Tier: auth.TierBasic, Active: true,
	}))

	hasher, err := auth.NewBcryptHasher(4)
	require.NoError(t, err)
	expires := time.Now().Add(24 * time.Hour)
	secret, rec, err := auth.GenerateAPIKey(hasher, auth.NewAPIKey{
		PrincipalID: fixtures.PrincipalID,
		Permissions: []string{"read:data"},
		ExpiresAt:   &expires,
	})
	require.NoError(t, err)
	require.NoError(t, store.CreateAPIKey(ctx, rec))

	t.Run("principal round trip", func(t *testing.T) {
		p, err := store.FindPrincipalByID(ctx, fixtures.PrincipalID)
		require.NoError(t, err)
		assert.Equal(t, auth.TierBasic, p.Tier)
		assert.Nil(t, p.SubscriptionExpiresAt)

		_, err = store.FindPrincipalByID(ctx, "ghost")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("active keys verify against the issued secret", func(t *testing.T) {
		keys, err := store.FindActiveAPIKeys(ctx, 100)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.True(t, hasher.Compare(secret, keys[0].SecretDigest))
		assert.Equal(t, []string{"read:data"}, keys[0].Permissions)
	})

	t.Run("usage counters", func(t *testing.T) {
		require.NoError(t, store.IncrementAPIKeyUsage(ctx, rec.ID))
		require.NoError(t, store.IncrementAPIKeyUsage(ctx, rec.ID))

		keys, err := store.FindActiveAPIKeys(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(2), keys[0].UsageToday)
		assert.NotNil(t, keys[0].LastUsedAt)

		n, err := store.ResetDailyAPIKeyUsage(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("revoked keys are not listed", func(t *testing.T) {
		require.NoError(t, store.RevokeAPIKey(ctx, rec.ID))
		keys, err := store.FindActiveAPIKeys(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, keys)
		testutil.AssertErrorCode(t, store.RevokeAPIKey(ctx, rec.ID), gwerr.CodeValidation)
	})
}
