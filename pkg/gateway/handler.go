package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/observability"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/ratelimit"
)

const (
	// maxRefreshBody caps the refresh request body.
	maxRefreshBody = 8 << 10

	healthTimeout = 2 * time.Second
)

// Handler returns the gateway's HTTP handler:
//
//	GET  /healthz       liveness and backend health, unauthenticated
//	GET  /metrics       Prometheus metrics, unless http.metrics_addr is set
//	POST /auth/refresh  refresh token exchange, issuance-limited by IP
//	DELETE /admin/keys/{id}
//	                    revoke an API key, admins only
//	/                   authenticated, admitted, proxied upstream
func (g *Gateway) Handler() http.Handler {
	trust := g.cfg.HTTP.TrustForwardedFor

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(g.serveHealth))
	if g.cfg.HTTP.MetricsAddr == "" {
		mux.Handle("GET /metrics", observability.Handler())
	}
	mux.Handle("POST /auth/refresh",
		ratelimit.Middleware(g.issuance, ratelimit.ByIP(trust))(http.HandlerFunc(g.serveRefresh)))
	mux.Handle("DELETE /admin/keys/{id}",
		g.protected(auth.RequireRole(auth.RoleAdmin)(http.HandlerFunc(g.serveRevokeKey))))
	mux.Handle("/", g.protected(g.upstream))

	return observability.MetricsMiddleware(mux)
}

// protected wraps next in the authenticated pipeline. The general limiter
// runs after authentication so it can key by principal.
func (g *Gateway) protected(next http.Handler) http.Handler {
	trust := g.cfg.HTTP.TrustForwardedFor
	h := g.recordUsage(next)
	h = ratelimit.AdmissionMiddleware(g.admission, trust)(h)
	h = ratelimit.Middleware(g.general, ratelimit.ByPrincipalOrIP(trust))(h)
	return auth.Middleware(g.authn)(h)
}

// recordUsage hands API key usage to the accountant once the request has
// been admitted. It never waits on the store.
func (g *Gateway) recordUsage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a, ok := auth.AuthenticationFromContext(r.Context()); ok && a.APIKey != nil {
			g.accountant.RecordUsage(a.APIKey.ID)
		}
		next.ServeHTTP(w, r)
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// serveRefresh exchanges a refresh token for a new token pair. The
// principal must still exist and be active.
func (g *Gateway) serveRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRefreshBody))
	if err := dec.Decode(&req); err != nil || req.RefreshToken == "" {
		gwerr.WriteHTTP(w, gwerr.New(gwerr.CodeValidationRequired, "gateway: refresh_token is required"))
		return
	}

	pair, err := g.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		gwerr.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Refresh verifies a refresh token and issues a new pair for its
// subject.
func (g *Gateway) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	claims, err := g.tokens.Verify(refreshToken, auth.TokenRefresh)
	if err != nil {
		return auth.TokenPair{}, err
	}
	p, found, err := g.identities.Lookup(ctx, claims.Subject)
	if err != nil {
		return auth.TokenPair{}, err
	}
	if !found || !p.Active {
		return auth.TokenPair{}, gwerr.InactivePrincipal()
	}
	pair, err := g.tokens.IssuePair(p.ID)
	if err != nil {
		return auth.TokenPair{}, gwerr.Wrap(err, gwerr.CodeInternal, "gateway: failed to issue tokens")
	}
	return pair, nil
}

func (g *Gateway) serveRevokeKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := g.RevokeAPIKey(r.Context(), id); err != nil {
		gwerr.WriteHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeAPIKey deactivates key id in the credential store and evicts this
// instance's cached resolution of it, so the key is rejected on its next
// use here. Other instances reject it once their cached copy expires.
func (g *Gateway) RevokeAPIKey(ctx context.Context, id string) error {
	if id == "" {
		return gwerr.New(gwerr.CodeValidationRequired, "gateway: API key id is required")
	}
	if err := g.credentials.RevokeAPIKey(ctx, id); err != nil {
		return err
	}
	evicted := g.apiKeys.Forget(id)
	g.logger.InfoContext(ctx, "gateway: API key revoked", "api_key_id", id, "evicted", evicted)
	return nil
}

// HealthReport is the /healthz body.
type HealthReport struct {
	Status string            `json:"status"`
	State  string            `json:"state"`
	Checks map[string]string `json:"checks"`
}

// Health runs every backend check. The report is healthy only when all
// of them pass.
func (g *Gateway) Health(ctx context.Context) (HealthReport, bool) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	checks := make(map[string]func(context.Context) error, len(g.checks)+1)
	for name, check := range g.checks {
		checks[name] = check
	}
	checks["service"] = g.service.Health

	report := HealthReport{Status: "ok", State: g.service.State().String(), Checks: make(map[string]string, len(checks))}
	healthy := true
	for name, check := range checks {
		if err := check(ctx); err != nil {
			report.Checks[name] = err.Error()
			healthy = false
			continue
		}
		report.Checks[name] = "ok"
	}
	if !healthy {
		report.Status = "unavailable"
	}
	return report, healthy
}

func (g *Gateway) serveHealth(w http.ResponseWriter, r *http.Request) {
	report, healthy := g.Health(r.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// identityHandler answers admitted requests with the caller's identity
// when no upstream is configured.
func identityHandler() http.Handler {
	type identity struct {
		PrincipalID string `json:"principal_id"`
		Role        string `json:"role"`
		Tier        string `json:"tier"`
		Method      string `json:"method"`
		APIKeyID    string `json:"api_key_id,omitempty"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := auth.AuthenticationFromContext(r.Context())
		if !ok {
			gwerr.WriteHTTP(w, gwerr.MissingCredential())
			return
		}
		body := identity{
			PrincipalID: a.Principal.ID,
			Role:        string(a.Principal.Role),
			Tier:        string(a.Tier),
			Method:      a.Method,
		}
		if a.APIKey != nil {
			body.APIKeyID = a.APIKey.ID
		}
		writeJSON(w, http.StatusOK, body)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
