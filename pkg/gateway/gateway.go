// Package gateway assembles the authentication and admission pipeline in
// front of the upstream application.
//
// A request passes, in order:
//
//	metrics → authentication → general limiter → tiered admission →
//	usage accounting → upstream
//
// Credential issuance (POST /auth/refresh) bypasses authentication and is
// guarded by the IP-keyed issuance limiter instead.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/clients/postgres"
	redisclient "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/clients/redis"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/credstore"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/lifecycle"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/ratelimit"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/usage"
)

// ServiceName names the gateway in logs, spans and the health report.
const ServiceName = "gatewayd"

// CredentialStore is what the gateway needs from the credential backend.
type CredentialStore interface {
	auth.CredentialStore
	usage.Resetter
	RevokeAPIKey(ctx context.Context, id string) error
	Health(ctx context.Context) error
}

// Deps overrides components New would otherwise build from Config. Zero
// fields are built from configuration.
type Deps struct {
	Logger      *slog.Logger
	Clock       auth.Clock
	Credentials CredentialStore
	Counters    ratelimit.CounterStore

	// Redis replaces the client built from the redis section. The gateway
	// owns it: it backs the counters unless Counters is set, is
	// health-checked, and is closed on Stop.
	Redis *redisclient.Client

	// Upstream replaces the reverse proxy built from http.upstream_url.
	Upstream http.Handler

	Version string
}

// Gateway owns every component of the request pipeline and their
// background workers. Create one with New, then Start (or Run) it.
type Gateway struct {
	cfg    Config
	logger *slog.Logger
	clock  auth.Clock

	service *lifecycle.Service

	credentials CredentialStore
	counters    ratelimit.CounterStore
	redis       *redisclient.Client
	pg          *postgres.Client

	tokens     *auth.TokenCodec
	identities *auth.IdentityCache
	apiKeys    *auth.APIKeyResolver
	authn      *auth.Authenticator

	admission *ratelimit.Admission
	general   *ratelimit.Limiter
	issuance  *ratelimit.Limiter

	accountant *usage.Accountant
	reset      *usage.DailyReset

	upstream http.Handler

	// checks is fixed in New; Stop closes the clients behind it but never
	// swaps it.
	checks map[string]func(context.Context) error

	bgMu     sync.Mutex
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New validates cfg and wires the gateway. Backend clients are connected
// here; background workers start with [Gateway.Start].
func New(ctx context.Context, cfg Config, deps Deps) (_ *Gateway, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = auth.SystemClock{}
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	g := &Gateway{cfg: cfg, logger: logger.With("component", "gateway"), clock: clock}
	defer func() {
		if err != nil {
			g.closeClients()
		}
	}()

	if err := g.buildStores(ctx, deps); err != nil {
		return nil, err
	}
	g.checks = map[string]func(context.Context) error{
		"credentials": g.credentials.Health,
	}
	if g.redis != nil {
		g.checks["counters"] = g.redis.Health
	}
	if err := g.buildAuth(logger); err != nil {
		return nil, err
	}
	if err := g.buildAdmission(logger); err != nil {
		return nil, err
	}

	g.accountant = usage.NewAccountant(g.credentials, cfg.Usage, logger)
	g.reset, err = usage.NewDailyReset(g.credentials, cfg.Usage.ResetSchedule, 0, logger)
	if err != nil {
		return nil, err
	}

	g.upstream = deps.Upstream
	if g.upstream == nil {
		if cfg.HTTP.UpstreamURL != "" {
			target, err := url.Parse(cfg.HTTP.UpstreamURL)
			if err != nil {
				return nil, gwerr.Wrap(err, gwerr.CodeInternalConfiguration, "gateway: invalid upstream URL")
			}
			g.upstream = NewUpstreamProxy(target, g.logger)
		} else {
			g.upstream = identityHandler()
		}
	}

	g.service, err = lifecycle.NewBuilder(ServiceName, version).
		WithLogger(logger).
		WithOnStart(g.onStart).
		WithOnStop(g.onStop).
		OnStateChange(func(old, next lifecycle.State) {
			g.logger.Info("gateway: state changed", "from", old.String(), "to", next.String())
		}).
		Build()
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) buildStores(ctx context.Context, deps Deps) error {
	g.credentials = deps.Credentials
	if g.credentials == nil {
		switch g.cfg.Auth.Store {
		case StoreMemory:
			g.logger.Warn("gateway: using in-memory credential store; credentials are not persisted")
			g.credentials = credstore.NewMemory(g.clock)
		default:
			pg, err := postgres.NewClient(ctx, g.cfg.Postgres)
			if err != nil {
				return err
			}
			g.pg = pg
			g.credentials = credstore.NewPostgres(pg, g.clock)
		}
	}

	g.redis = deps.Redis
	g.counters = deps.Counters
	if g.counters == nil && g.redis != nil {
		g.counters = ratelimit.NewRedisStore(g.redis)
	}
	if g.counters == nil {
		switch g.cfg.RateLimit.Store {
		case StoreMemory:
			g.logger.Warn("gateway: using in-memory rate limit counters; limits are per instance")
			g.counters = ratelimit.NewMemoryStore(g.clock)
		default:
			rc, err := redisclient.NewClient(ctx, g.cfg.Redis)
			if err != nil {
				return err
			}
			g.redis = rc
			g.counters = ratelimit.NewRedisStore(rc)
		}
	}
	return nil
}

func (g *Gateway) buildAuth(logger *slog.Logger) error {
	a := g.cfg.Auth

	hasher, err := auth.NewBcryptHasher(a.HashCost)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret:     a.TokenSecret,
		Issuer:     a.Issuer,
		AccessTTL:  a.AccessTokenTTL,
		RefreshTTL: a.RefreshTokenTTL,
	}, g.clock)
	if err != nil {
		return err
	}

	g.tokens = tokens
	g.identities = auth.NewIdentityCache(g.credentials, a.IdentityCacheTTL, a.CacheMaxEntries, g.clock)
	g.apiKeys = auth.NewAPIKeyResolver(g.credentials, hasher, auth.APIKeyResolverConfig{
		TTL:        a.APIKeyCacheTTL,
		FetchLimit: a.APIKeyFetchLimit,
		MaxEntries: a.CacheMaxEntries,
	}, g.clock)

	g.authn, err = auth.NewAuthenticator(auth.AuthenticatorConfig{
		Tokens:     tokens,
		Identities: g.identities,
		APIKeys:    g.apiKeys,
		Clock:      g.clock,
		Logger:     logger,
	})
	return err
}

func (g *Gateway) buildAdmission(logger *slog.Logger) error {
	rl := g.cfg.RateLimit
	adm, err := ratelimit.NewAdmission(ratelimit.AdmissionConfig{
		Tiers:     rl.Tiers,
		Store:     g.counters,
		KeyPrefix: rl.KeyPrefix,
		Clock:     g.clock,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	g.admission = adm
	g.general = ratelimit.NewLimiter("general", rl.General, g.counters, rl.KeyPrefix, g.clock)
	g.issuance = ratelimit.NewLimiter("issuance", rl.Issuance, g.counters, rl.KeyPrefix, g.clock)
	return nil
}

// Start verifies the backends and launches the background workers.
func (g *Gateway) Start(ctx context.Context) error { return g.service.Start(ctx) }

// Stop drains usage accounting, stops background workers and closes the
// backend clients. It is safe to call more than once.
func (g *Gateway) Stop(ctx context.Context) error { return g.service.Stop(ctx) }

// State reports the gateway's lifecycle state.
func (g *Gateway) State() lifecycle.State { return g.service.State() }

func (g *Gateway) onStart(ctx context.Context) error {
	if err := g.credentials.Health(ctx); err != nil {
		return err
	}
	if rs, ok := g.counters.(*ratelimit.RedisStore); ok {
		if err := rs.Preload(ctx); err != nil {
			return err
		}
	}

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.bgMu.Lock()
	g.bgCancel = cancel
	g.bgMu.Unlock()

	if err := g.reset.Start(bg); err != nil {
		cancel()
		return err
	}
	g.accountant.Start()

	if interval := g.cfg.Auth.CacheSweepInterval; interval > 0 {
		g.goBackground(func() { g.identities.RunSweeper(bg, interval) })
		g.goBackground(func() { g.apiKeys.RunSweeper(bg, interval) })
		if ms, ok := g.counters.(*ratelimit.MemoryStore); ok {
			g.goBackground(func() { sweepCounters(bg, ms, interval) })
		}
	}
	return nil
}

func (g *Gateway) onStop(ctx context.Context) error {
	g.bgMu.Lock()
	cancel := g.bgCancel
	g.bgCancel = nil
	g.bgMu.Unlock()
	if cancel != nil {
		cancel()
	}
	g.reset.Stop()
	g.bgWG.Wait()

	err := g.accountant.Stop(ctx)
	g.closeClients()
	if err != nil {
		return gwerr.Wrap(err, gwerr.CodeInternal, "gateway: usage accounting did not drain")
	}
	return nil
}

func (g *Gateway) goBackground(fn func()) {
	g.bgWG.Add(1)
	go func() {
		defer g.bgWG.Done()
		fn()
	}()
}

func sweepCounters(ctx context.Context, ms *ratelimit.MemoryStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ms.Sweep()
		}
	}
}

func (g *Gateway) closeClients() {
	if g.redis != nil {
		if err := g.redis.Close(); err != nil {
			g.logger.Warn("gateway: failed to close redis client", "error", err)
		}
		g.redis = nil
	}
	if g.pg != nil {
		g.pg.Close()
		g.pg = nil
	}
}

// Authenticator exposes the configured authenticator, e.g. for gRPC
// interceptors.
func (g *Gateway) Authenticator() *auth.Authenticator { return g.authn }

// Admission exposes the tiered admission controller.
func (g *Gateway) Admission() *ratelimit.Admission { return g.admission }

// Tokens exposes the token codec used for issuance.
func (g *Gateway) Tokens() *auth.TokenCodec { return g.tokens }
