package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/internal/testutil/fixtures"
)

func principalHandler(ctx context.Context, _ any) (any, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return "anonymous", nil
	}
	return p.ID, nil
}

func incoming(pairs ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func TestUnaryServerInterceptor(t *testing.T) {
	t.Parallel()
	h := newAuthHarness(t)
	h.store.On("FindPrincipalByID", mock.Anything, fixtures.PrincipalID).Return(activePrincipal(), nil)
	interceptor := UnaryServerInterceptor(h.authn)
	info := &grpc.UnaryServerInfo{FullMethod: "/seasonality.v1.Seasonality/Get"}

	_, err := interceptor(context.Background(), nil, info, principalHandler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = interceptor(incoming("authorization", "Bearer bad"), nil, info, principalHandler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err := interceptor(
		incoming("authorization", "Bearer "+h.accessToken(t, fixtures.PrincipalID)),
		nil, info, principalHandler)
	require.NoError(t, err)
	assert.Equal(t, fixtures.PrincipalID, resp)
}

func TestUnaryServerInterceptor_APIKeyMetadata(t *testing.T) {
	t.Parallel()
	h := newAuthHarness(t)
	rec := keyRecord(t, h.hasher, fixtures.APIKeyID, fixtures.APIKeySecret)
	h.store.On("FindActiveAPIKeys", mock.Anything, DefaultAPIKeyFetchLimit).Return([]APIKeyRecord{rec}, nil)
	h.store.On("FindPrincipalByID", mock.Anything, fixtures.PrincipalID).Return(activePrincipal(), nil)

	resp, err := UnaryServerInterceptor(h.authn)(
		incoming("x-api-key", fixtures.APIKeySecret), nil, &grpc.UnaryServerInfo{}, principalHandler)
	require.NoError(t, err)
	assert.Equal(t, fixtures.PrincipalID, resp)
}

func TestOptionalUnaryServerInterceptor(t *testing.T) {
	t.Parallel()
	h := newAuthHarness(t)
	interceptor := OptionalUnaryServerInterceptor(h.authn)

	resp, err := interceptor(incoming("authorization", "Bearer bad"), nil, &grpc.UnaryServerInfo{}, principalHandler)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", resp)
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeServerStream) Context() context.Context { return s.ctx }

func TestStreamServerInterceptor(t *testing.T) {
	t.Parallel()
	h := newAuthHarness(t)
	h.store.On("FindPrincipalByID", mock.Anything, fixtures.PrincipalID).Return(activePrincipal(), nil)
	interceptor := StreamServerInterceptor(h.authn)

	var seen string
	handler := func(_ any, ss grpc.ServerStream) error {
		p := MustPrincipalFromContext(ss.Context())
		seen = p.ID
		return nil
	}

	err := interceptor(nil, &fakeServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{}, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := incoming("authorization", "Bearer "+h.accessToken(t, fixtures.PrincipalID))
	err = interceptor(nil, &fakeServerStream{ctx: ctx}, &grpc.StreamServerInfo{}, handler)
	require.NoError(t, err)
	assert.Equal(t, fixtures.PrincipalID, seen)
}
