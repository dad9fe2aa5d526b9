package auth

import (
	"net/http"

	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// Middleware rejects requests that fail authentication and stores the
// [Authentication] in the request context otherwise. Failures are written
// as JSON error responses.
//
//	handler := auth.Middleware(authn)(auth.RequireTier(auth.TierBasic)(mux))
func Middleware(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := a.Authenticate(r.Context(), CredentialsFromHTTP(r.Header))
			if err != nil {
				gwerr.WriteHTTP(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithAuthentication(r.Context(), res)))
		})
	}
}

// OptionalMiddleware attaches an [Authentication] when the request carries
// valid credentials and passes every request through.
func OptionalMiddleware(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if res := a.AuthenticateOptional(r.Context(), CredentialsFromHTTP(r.Header)); res != nil {
				r = r.WithContext(ContextWithAuthentication(r.Context(), res))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole admits principals holding any of roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return guard(func(a *Authentication) error {
		for _, r := range roles {
			if a.Principal.Role == r {
				return nil
			}
		}
		return gwerr.InsufficientRole(names...)
	})
}

// RequireTier admits principals whose effective tier is at least min.
// Admins pass regardless of tier.
func RequireTier(min Tier) func(http.Handler) http.Handler {
	return guard(func(a *Authentication) error {
		if a.Principal.IsAdmin() || a.Tier.AtLeast(min) {
			return nil
		}
		return gwerr.InsufficientSubscription(string(min))
	})
}

// RequirePermission admits callers granted action on resource.
func RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return guard(func(a *Authentication) error {
		if a.HasPermission(resource, action) {
			return nil
		}
		return gwerr.InsufficientPermission(resource, action)
	})
}

// guard runs check against the request's authentication. Unauthenticated
// requests fail with MissingCredential.
func guard(check func(*Authentication) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := AuthenticationFromContext(r.Context())
			if !ok {
				gwerr.WriteHTTP(w, gwerr.MissingCredential())
				return
			}
			if err := check(a); err != nil {
				gwerr.WriteHTTP(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
