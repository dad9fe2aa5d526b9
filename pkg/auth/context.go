package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is unexported so keys cannot collide with other packages.
type contextKey int

const authenticationKey contextKey = iota

// ContextWithAuthentication returns a context carrying a.
func ContextWithAuthentication(ctx context.Context, a *Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey, a)
}

// AuthenticationFromContext returns the request's authentication, or nil
// and false for anonymous requests.
func AuthenticationFromContext(ctx context.Context) (*Authentication, bool) {
	a, ok := ctx.Value(authenticationKey).(*Authentication)
	return a, ok && a != nil
}

// PrincipalFromContext returns the authenticated principal.
//
//	p, ok := auth.PrincipalFromContext(r.Context())
//	if !ok {
//	    // anonymous
//	}
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	a, ok := AuthenticationFromContext(ctx)
	if !ok {
		return Principal{}, false
	}
	return a.Principal, true
}

// MustPrincipalFromContext panics when no principal is present. Use it
// only behind [Middleware].
func MustPrincipalFromContext(ctx context.Context) Principal {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		panic("auth: no principal in context; ensure authentication middleware is configured")
	}
	return p
}

// TraceIDFromContext returns the active OpenTelemetry trace id, if any,
// for correlating auth logs with traces.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return "", false
	}
	return sc.TraceID().String(), true
}
