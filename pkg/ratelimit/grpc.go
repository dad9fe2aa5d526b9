package ratelimit

import (
	"context"
	"net"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// UnaryServerInterceptor applies tiered admission to unary calls. It
// must run after the auth interceptor. Quota values are sent as
// lowercase header metadata; a denial is returned as ResourceExhausted.
func UnaryServerInterceptor(adm *Admission) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		a, _ := auth.AuthenticationFromContext(ctx)
		d, err := adm.Admit(ctx, SubjectFromAuthentication(a, peerIP(ctx)), info.FullMethod)
		if d.Policy != PolicyAdmin && d.Quota.Limit > 0 {
			_ = grpc.SetHeader(ctx, quotaMetadata(d.Quota))
		}
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor applies tiered admission once per stream,
// when it opens. It must run after the auth stream interceptor.
func StreamServerInterceptor(adm *Admission) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()
		a, _ := auth.AuthenticationFromContext(ctx)
		d, err := adm.Admit(ctx, SubjectFromAuthentication(a, peerIP(ctx)), info.FullMethod)
		if d.Policy != PolicyAdmin && d.Quota.Limit > 0 {
			_ = ss.SetHeader(quotaMetadata(d.Quota))
		}
		if err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func quotaMetadata(q gwerr.Quota) metadata.MD {
	return metadata.Pairs(
		"x-ratelimit-limit", strconv.FormatInt(q.Limit, 10),
		"x-ratelimit-remaining", strconv.FormatInt(q.Remaining, 10),
		"x-ratelimit-reset", strconv.FormatInt(q.Reset.Unix(), 10),
	)
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}
