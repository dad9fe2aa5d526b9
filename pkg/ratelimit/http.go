package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// ClientIP returns the caller address. With trustForwarded set the first
// X-Forwarded-For hop wins; only enable it behind a proxy that sets the
// header.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// KeyFunc picks the counter key for a request.
type KeyFunc func(r *http.Request) string

// ByIP keys requests by caller address.
func ByIP(trustForwarded bool) KeyFunc {
	return func(r *http.Request) string {
		return "ip:" + ClientIP(r, trustForwarded)
	}
}

// ByPrincipalOrIP keys authenticated requests by principal id and the
// rest by caller address.
func ByPrincipalOrIP(trustForwarded bool) KeyFunc {
	return func(r *http.Request) string {
		a, _ := auth.AuthenticationFromContext(r.Context())
		return SubjectFromAuthentication(a, ClientIP(r, trustForwarded)).Key()
	}
}

// Middleware applies a single limiter keyed by key. Denials and store
// failures are written as JSON errors.
func Middleware(l *Limiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := l.Allow(r.Context(), key(r)); err != nil {
				gwerr.WriteHTTP(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdmissionMiddleware applies tiered admission to the request's
// authentication, or to the caller IP at trial limits when anonymous.
// Admitted responses carry the quota headers too.
func AdmissionMiddleware(adm *Admission, trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, _ := auth.AuthenticationFromContext(r.Context())
			subject := SubjectFromAuthentication(a, ClientIP(r, trustForwarded))

			d, err := adm.Admit(r.Context(), subject, r.Method+" "+r.URL.Path)
			if err != nil {
				gwerr.WriteHTTP(w, err)
				return
			}
			if d.Policy != PolicyAdmin {
				gwerr.SetQuotaHeaders(w.Header(), d.Quota)
			}
			next.ServeHTTP(w, r)
		})
	}
}
