package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/observability"
)

// PolicyAdmin is the decision policy reported for admin bypasses.
const PolicyAdmin = "admin"

// Subject is who a request is counted against.
type Subject struct {
	// PrincipalID is empty for anonymous requests.
	PrincipalID string
	Role        auth.Role

	// Tier is the effective tier for this request.
	Tier auth.Tier

	// KeyRateLimit, when positive, replaces the tier ceiling. It comes
	// from the API key the request authenticated with.
	KeyRateLimit int64

	IP string
}

// SubjectFromAuthentication builds a subject from a request's
// authentication. A nil a gives an anonymous trial subject keyed by ip.
func SubjectFromAuthentication(a *auth.Authentication, ip string) Subject {
	if a == nil {
		return Subject{Tier: auth.TierTrial, IP: ip}
	}
	s := Subject{
		PrincipalID: a.Principal.ID,
		Role:        a.Principal.Role,
		Tier:        a.Tier,
		IP:          ip,
	}
	if a.APIKey != nil {
		s.KeyRateLimit = a.APIKey.RateLimit
	}
	return s
}

// Key is the counter identity: the principal id when authenticated,
// otherwise the caller IP.
func (s Subject) Key() string {
	if s.PrincipalID != "" {
		return s.PrincipalID
	}
	return "ip:" + s.IP
}

// AdmissionConfig configures an [Admission].
type AdmissionConfig struct {
	Tiers     TierTable
	Store     CounterStore
	KeyPrefix string
	Clock     auth.Clock
	Logger    *slog.Logger
}

// Admission enforces per-tier quotas. One [Limiter] is built per
// distinct policy on first use and shared afterwards. Concurrent first
// uses may each build one; only the first stored survives.
type Admission struct {
	tiers    TierTable
	store    CounterStore
	prefix   string
	clock    auth.Clock
	logger   *slog.Logger
	limiters sync.Map // policy name -> *Limiter
}

// NewAdmission validates cfg and returns an Admission. A nil tier table
// uses [DefaultTierTable].
func NewAdmission(cfg AdmissionConfig) (*Admission, error) {
	if cfg.Store == nil {
		return nil, gwerr.New(gwerr.CodeInternalConfiguration, "ratelimit: counter store is required")
	}
	if cfg.Tiers == nil {
		cfg.Tiers = DefaultTierTable()
	}
	if err := cfg.Tiers.Validate(); err != nil {
		return nil, err
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Admission{
		tiers:  cfg.Tiers,
		store:  cfg.Store,
		prefix: cfg.KeyPrefix,
		clock:  cfg.Clock,
		logger: logger.With("component", "ratelimit"),
	}, nil
}

// Admit counts the request against subject's policy. Admins are always
// admitted and never counted. A denial returns RateLimitExceeded along
// with the decision, so callers can still emit quota headers.
func (a *Admission) Admit(ctx context.Context, s Subject, route string) (Decision, error) {
	if s.Role == auth.RoleAdmin {
		observability.AdmissionTotal.WithLabelValues(PolicyAdmin, observability.DecisionBypass).Inc()
		return Decision{Allowed: true, Policy: PolicyAdmin}, nil
	}

	l := a.limiterFor(s)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("ratelimit.route", route),
		attribute.String("ratelimit.tier", string(s.Tier)),
	)

	d, err := l.Allow(ctx, s.Key())
	if err != nil && gwerr.IsUpstreamUnavailable(err) {
		a.logger.WarnContext(ctx, "ratelimit: counter store unavailable",
			"error", err,
			"policy", l.Name(),
			"route", route,
		)
	}
	return d, err
}

// limiterFor returns the shared limiter for s, building it on first use.
func (a *Admission) limiterFor(s Subject) *Limiter {
	limits := a.tiers.For(s.Tier)
	tier := s.Tier
	if _, ok := a.tiers[tier]; !ok {
		tier = auth.TierTrial
	}
	name := "tier:" + string(tier)
	if s.KeyRateLimit > 0 {
		limits.MaxRequests = s.KeyRateLimit
		name += ":key" + strconv.FormatInt(s.KeyRateLimit, 10)
	}

	if l, ok := a.limiters.Load(name); ok {
		return l.(*Limiter)
	}
	l, _ := a.limiters.LoadOrStore(name, NewLimiter(name, limits, a.store, a.prefix, a.clock))
	return l.(*Limiter)
}

// Limiters returns how many distinct policies have been built.
func (a *Admission) Limiters() int {
	n := 0
	a.limiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Tiers returns the tier table in force.
func (a *Admission) Tiers() TierTable { return a.tiers }
