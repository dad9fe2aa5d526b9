package gateway

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// Identity headers set on proxied requests. Inbound values are always
// discarded so callers cannot assert an identity.
const (
	HeaderPrincipalID   = "X-Principal-Id"
	HeaderPrincipalRole = "X-Principal-Role"
	HeaderPrincipalTier = "X-Principal-Tier"
)

// NewUpstreamProxy forwards admitted requests to target. The caller's
// credentials are stripped and replaced by the X-Principal-* headers.
func NewUpstreamProxy(target *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host

			h := pr.Out.Header
			h.Del(auth.HeaderAuthorization)
			h.Del(auth.HeaderAPIKey)
			h.Del(HeaderPrincipalID)
			h.Del(HeaderPrincipalRole)
			h.Del(HeaderPrincipalTier)

			if a, ok := auth.AuthenticationFromContext(pr.In.Context()); ok {
				h.Set(HeaderPrincipalID, a.Principal.ID)
				h.Set(HeaderPrincipalRole, string(a.Principal.Role))
				h.Set(HeaderPrincipalTier, string(a.Tier))
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.WarnContext(r.Context(), "gateway: upstream request failed",
				"path", r.URL.Path,
				"error", err,
			)
			gwerr.WriteHTTP(w, gwerr.UpstreamUnavailable(err, "gateway: upstream unavailable"))
		},
	}
}
