// Package ratelimit admits or denies requests against fixed-window quotas
// held in a shared [CounterStore].
//
// A [Limiter] enforces one policy. [Admission] owns the per-tier
// limiters, building each lazily on first use and reusing it for the
// life of the process. Admins bypass admission entirely; an expired
// subscription is admitted under trial limits.
//
// The Redis store keeps every gateway instance on the same counters. Its
// increment is a single Lua script, so a window is never observed
// without an expiry.
package ratelimit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/auth"
	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
	"github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/observability"
)

const tracerName = "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/ratelimit"

// DefaultKeyPrefix namespaces counter keys in a shared store.
const DefaultKeyPrefix = "gw:rl:"

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool

	// Policy names the limiter that decided, or "admin" for a bypass.
	Policy string

	// Quota is the window state after this request. It is zero for
	// bypassed requests.
	Quota gwerr.Quota
}

// Limiter enforces one [Limits] policy. It is safe for concurrent use.
type Limiter struct {
	name   string
	limits Limits
	store  CounterStore
	prefix string
	clock  auth.Clock
	tracer trace.Tracer
}

// NewLimiter returns a limiter named name. Counter keys are
// prefix + name + ":" + subject key.
func NewLimiter(name string, limits Limits, store CounterStore, prefix string, clock auth.Clock) *Limiter {
	if clock == nil {
		clock = auth.SystemClock{}
	}
	return &Limiter{
		name:   name,
		limits: limits,
		store:  store,
		prefix: prefix,
		clock:  clock,
		tracer: otel.Tracer(tracerName),
	}
}

// Name returns the policy name.
func (l *Limiter) Name() string { return l.name }

// Limits returns the enforced policy.
func (l *Limiter) Limits() Limits { return l.limits }

// Allow counts one request for key. A request over the ceiling fails
// with RateLimitExceeded carrying the quota; a store failure fails with
// UpstreamUnavailable. The increment runs detached from ctx cancellation
// so an aborted request still counts.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	ctx, span := l.tracer.Start(ctx, "ratelimit.Allow", trace.WithAttributes(
		attribute.String("ratelimit.policy", l.name),
		attribute.Int64("ratelimit.limit", l.limits.MaxRequests),
	))
	defer span.End()

	w, err := l.store.IncrementAndBound(context.WithoutCancel(ctx), l.counterKey(key), l.limits.Window())
	if err != nil {
		observability.AdmissionTotal.WithLabelValues(l.name, observability.DecisionError).Inc()
		err = storeFailure(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Decision{Policy: l.name}, err
	}

	d := Decision{
		Allowed: w.Count <= l.limits.MaxRequests,
		Policy:  l.name,
		Quota: gwerr.Quota{
			Limit:     l.limits.MaxRequests,
			Remaining: max(l.limits.MaxRequests-w.Count, 0),
			Reset:     l.clock.Now().Add(w.ResetIn),
		},
	}
	span.SetAttributes(attribute.Int64("ratelimit.count", w.Count))

	if !d.Allowed {
		observability.AdmissionTotal.WithLabelValues(l.name, observability.DecisionDenied).Inc()
		span.SetAttributes(attribute.Bool("ratelimit.denied", true))
		return d, gwerr.RateLimitExceeded(d.Quota)
	}
	observability.AdmissionTotal.WithLabelValues(l.name, observability.DecisionAllowed).Inc()
	return d, nil
}

// Reset clears the window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.store.Reset(ctx, l.counterKey(key)); err != nil {
		return storeFailure(err)
	}
	return nil
}

func (l *Limiter) counterKey(key string) string {
	return l.prefix + l.name + ":" + key
}

// storeFailure keeps coded upstream errors from the Redis client and
// wraps anything else.
func storeFailure(err error) error {
	if gwerr.IsUpstreamUnavailable(err) {
		return err
	}
	return gwerr.UpstreamUnavailable(err, "ratelimit: counter store failed")
}

func errUnexpectedReply(n int) error {
	return gwerr.UpstreamUnavailable(fmt.Errorf("got %d values, want 2", n),
		"ratelimit: unexpected counter script reply")
}
