// Package auth authenticates gateway requests by API key or bearer token.
//
// An [Authenticator] combines a [TokenCodec] for HS256 bearer tokens, an
// [IdentityCache] for principals named by those tokens, and an
// [APIKeyResolver] that verifies API keys against bcrypt digests. Both
// caches take an injected [Clock] and are owned by the gateway instance
// that builds them.
//
// HTTP callers use [Middleware] or [OptionalMiddleware] followed by the
// [RequireRole], [RequireTier] and [RequirePermission] guards; gRPC
// servers use [UnaryServerInterceptor] and [StreamServerInterceptor].
// Failures are *errors.Error values from the gateway taxonomy and render
// directly as HTTP responses or gRPC statuses.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/observability"
)

// Authentication is the result of a successful authentication.
type Authentication struct {
	Principal Principal

	// Tier is the principal's effective tier when the request was
	// authenticated. It stays fixed for the rest of the request.
	Tier Tier

	// APIKey is set when the request authenticated with an API key.
	APIKey *APIKey

	// Claims is set when the request authenticated with a bearer token.
	Claims *Claims

	Method string
}

// HasPermission reports whether the caller may perform action on
// resource. Admins may do anything. API key callers are limited to the
// key's grants; bearer callers get their role's default grants.
func (a *Authentication) HasPermission(resource, action string) bool {
	if a.Principal.IsAdmin() {
		return true
	}
	if a.APIKey != nil {
		return a.APIKey.HasPermission(resource, action)
	}
	return hasPermission(DefaultRolePermissions()[a.Principal.Role], resource, action)
}

// AuthenticatorConfig wires an [Authenticator].
type AuthenticatorConfig struct {
	Tokens     *TokenCodec
	Identities *IdentityCache
	APIKeys    *APIKeyResolver

	// Clock stamps the effective tier. Nil uses the wall clock.
	Clock Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Authenticator resolves request credentials to a principal. It is safe
// for concurrent use.
type Authenticator struct {
	tokens     *TokenCodec
	identities *IdentityCache
	apiKeys    *APIKeyResolver
	clock      Clock
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewAuthenticator returns an Authenticator over the configured
// components.
func NewAuthenticator(cfg AuthenticatorConfig) (*Authenticator, error) {
	if cfg.Tokens == nil || cfg.Identities == nil || cfg.APIKeys == nil {
		return nil, gwerr.New(gwerr.CodeInternalConfiguration,
			"auth: token codec, identity cache and API key resolver are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		tokens:     cfg.Tokens,
		identities: cfg.Identities,
		apiKeys:    cfg.APIKeys,
		clock:      orSystemClock(cfg.Clock),
		logger:     logger.With("component", "auth"),
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// Authenticate verifies creds. An API key header, when present, is used
// and any bearer token ignored; a blank one fails with InvalidAPIKey. With neither it fails with MissingCredential.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (*Authentication, error) {
	start := time.Now()
	method := creds.Method()

	ctx, span := a.tracer.Start(ctx, "auth.Authenticate",
		trace.WithAttributes(attribute.String("auth.method", method)))
	defer span.End()

	res, err := a.authenticate(ctx, creds)

	observability.AuthDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.AuthTotal.WithLabelValues(method, string(gwerr.GetCode(err))).Inc()
		finishSpan(span, err)
		return nil, err
	}
	observability.AuthTotal.WithLabelValues(method, observability.OutcomeOK).Inc()
	span.SetAttributes(
		attribute.String("auth.principal_id", res.Principal.ID),
		attribute.String("auth.tier", string(res.Tier)),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (a *Authenticator) authenticate(ctx context.Context, creds Credentials) (*Authentication, error) {
	switch {
	case creds.hasAPIKey():
		principal, key, err := a.apiKeys.Resolve(ctx, creds.APIKey)
		if err != nil {
			return nil, err
		}
		return a.result(principal, "api_key", &key, nil), nil

	case creds.BearerToken != "":
		claims, err := a.tokens.Verify(creds.BearerToken, TokenAccess)
		if err != nil {
			return nil, err
		}
		principal, found, err := a.identities.Lookup(ctx, claims.Subject)
		if err != nil {
			return nil, err
		}
		if !found || !principal.Active {
			return nil, gwerr.InactivePrincipal()
		}
		return a.result(principal, "bearer", nil, claims), nil

	default:
		return nil, gwerr.MissingCredential()
	}
}

func (a *Authenticator) result(p Principal, method string, key *APIKey, claims *Claims) *Authentication {
	return &Authentication{
		Principal: p,
		Tier:      p.EffectiveTier(a.clock.Now()),
		APIKey:    key,
		Claims:    claims,
		Method:    method,
	}
}

// AuthenticateOptional never fails. Absent or rejected credentials yield
// nil so the request continues anonymously. A store outage is logged and
// also yields nil.
func (a *Authenticator) AuthenticateOptional(ctx context.Context, creds Credentials) *Authentication {
	if creds.Empty() {
		return nil
	}
	res, err := a.Authenticate(ctx, creds)
	if err == nil {
		return res
	}
	if gwerr.IsUpstreamUnavailable(err) {
		a.logger.WarnContext(ctx, "auth: optional authentication skipped, credential store unavailable",
			"error", err,
			"method", creds.Method(),
		)
	} else {
		a.logger.DebugContext(ctx, "auth: optional authentication rejected",
			"code", gwerr.GetCode(err),
			"method", creds.Method(),
		)
	}
	return nil
}

// Tokens returns the codec used to verify bearer tokens.
func (a *Authenticator) Tokens() *TokenCodec { return a.tokens }

// APIKeys returns the resolver used for API keys.
func (a *Authenticator) APIKeys() *APIKeyResolver { return a.apiKeys }

// Identities returns the principal cache.
func (a *Authenticator) Identities() *IdentityCache { return a.identities }

func finishSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	var e *gwerr.Error
	if errors.As(err, &e) {
		span.SetAttributes(attribute.String("error.code", string(e.Code)))
	}
	span.SetStatus(codes.Error, err.Error())
}
