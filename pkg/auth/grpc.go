package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// UnaryServerInterceptor authenticates unary calls from the
// "x-api-key" and "authorization" metadata. Rejections are returned as
// *errors.Error values, which gRPC renders through their GRPCStatus
// method (Unauthenticated, Unavailable, ...).
func UnaryServerInterceptor(a *Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticateGRPC(ctx, a, false)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming form of
// [UnaryServerInterceptor].
func StreamServerInterceptor(a *Authenticator) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticateGRPC(ss.Context(), a, false)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// OptionalUnaryServerInterceptor attaches an authentication when the
// call carries valid credentials and never rejects.
func OptionalUnaryServerInterceptor(a *Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, _ = authenticateGRPC(ctx, a, true)
		return handler(ctx, req)
	}
}

func authenticateGRPC(ctx context.Context, a *Authenticator, optional bool) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	creds := CredentialsFromMetadata(md)

	if optional {
		if res := a.AuthenticateOptional(ctx, creds); res != nil {
			ctx = ContextWithAuthentication(ctx, res)
		}
		return ctx, nil
	}

	res, err := a.Authenticate(ctx, creds)
	if err != nil {
		return ctx, err
	}
	return ContextWithAuthentication(ctx, res), nil
}

// wrappedServerStream overrides Context so handlers see the
// authentication added by the interceptor.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
