package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

const tracerName = "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/lifecycle"

// Hook runs during a transition. A non-nil error aborts the transition
// and moves the service to [StateFailed].
type Hook func(ctx context.Context) error

// StateChangeHandler observes every transition. Handlers run under the
// state mutex and must not call back into the service.
type StateChangeHandler func(old, new State)

// Info is a point-in-time snapshot of a service.
type Info struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	State     State         `json:"state"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime,omitempty"`
}

// Service is a named component with a validated lifecycle. It is safe for
// concurrent use. Build one with [NewBuilder].
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	tracer   trace.Tracer
	logger   *slog.Logger
	onStart  Hook
	onStop   Hook
	handlers []StateChangeHandler
}

// Builder configures a [Service].
//
//	svc, err := lifecycle.NewBuilder("gatewayd", version).
//	    WithOnStart(gw.start).
//	    WithOnStop(gw.stop).
//	    Build()
type Builder struct {
	name     string
	version  string
	logger   *slog.Logger
	onStart  Hook
	onStop   Hook
	handlers []StateChangeHandler
}

func NewBuilder(name, version string) *Builder {
	return &Builder{name: name, version: version}
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithOnStart sets the hook run between Starting and Running.
func (b *Builder) WithOnStart(h Hook) *Builder {
	b.onStart = h
	return b
}

// WithOnStop sets the hook run between Stopping and Stopped.
func (b *Builder) WithOnStop(h Hook) *Builder {
	b.onStop = h
	return b
}

// OnStateChange registers a transition observer. Handlers run in
// registration order.
func (b *Builder) OnStateChange(h StateChangeHandler) *Builder {
	b.handlers = append(b.handlers, h)
	return b
}

// Build validates the configuration and returns a service in
// [StateUnknown].
func (b *Builder) Build() (*Service, error) {
	if b.name == "" {
		return nil, gwerr.New(gwerr.CodeValidation, "lifecycle: service name must not be empty")
	}
	if b.version == "" {
		return nil, gwerr.New(gwerr.CodeValidation, "lifecycle: service version must not be empty")
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		name:     b.name,
		version:  b.version,
		state:    StateUnknown,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
		onStart:  b.onStart,
		onStop:   b.onStop,
		handlers: append([]StateChangeHandler(nil), b.handlers...),
	}, nil
}

func (s *Service) Name() string    { return s.name }
func (s *Service) Version() string { return s.version }

func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot. Uptime is zero unless the service is running.
func (s *Service) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := Info{Name: s.name, Version: s.version, State: s.state}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		info.StartedAt = &t
		info.Uptime = time.Since(t)
	}
	return info
}

// Health passes only in [StateRunning]. Any other state reports
// UpstreamUnavailable so load balancers stop routing to the instance.
func (s *Service) Health(context.Context) error {
	if state := s.State(); state != StateRunning {
		return gwerr.Newf(gwerr.CodeUpstreamUnavailable,
			"lifecycle: %s is not running, current state is %q", s.name, state)
	}
	return nil
}

// SetState moves the service to next. Disallowed transitions fail with
// CodeInternal.
func (s *Service) SetState(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, next) {
		return gwerr.Newf(gwerr.CodeInternal,
			"lifecycle: invalid state transition from %q to %q", old, next)
	}
	s.state = next
	if next != StateRunning {
		s.startedAt = nil
	}

	for _, h := range s.handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(next),
					)
				}
			}()
			h(old, next)
		}()
	}
	return nil
}

// Start runs Starting → OnStart → Running. It may be called from
// Unknown, Stopped or Failed.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Start",
		trace.WithAttributes(attribute.String("service.name", s.name)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return s.fail(span, gwerr.Wrap(err, gwerr.CodeInternal, "lifecycle: start canceled before execution"))
	}
	if err := s.SetState(StateStarting); err != nil {
		return s.fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: starting", "service", s.name, "version", s.version)

	if s.onStart != nil {
		if err := s.onStart(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed", "service", s.name, "error", err)
			_ = s.SetState(StateFailed)
			return s.fail(span, wrapHookError(err, "lifecycle: start hook failed"))
		}
	}

	if err := s.SetState(StateRunning); err != nil {
		return s.fail(span, err)
	}
	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: started", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Stop runs Stopping → OnStop → Stopped. Stopping a terminal service is
// a no-op, so Stop is safe to defer.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "lifecycle.Stop",
		trace.WithAttributes(attribute.String("service.name", s.name)))
	defer span.End()

	if s.State().IsTerminal() {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if err := s.SetState(StateStopping); err != nil {
		return s.fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: stopping", "service", s.name)

	if s.onStop != nil {
		if err := s.onStop(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed", "service", s.name, "error", err)
			_ = s.SetState(StateFailed)
			return s.fail(span, wrapHookError(err, "lifecycle: stop hook failed"))
		}
	}

	if err := s.SetState(StateStopped); err != nil {
		return s.fail(span, err)
	}
	s.logger.InfoContext(ctx, "lifecycle: stopped", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// wrapHookError keeps an already coded hook error and wraps anything else
// as internal.
func wrapHookError(err error, message string) error {
	if _, ok := gwerr.AsError(err); ok {
		return err
	}
	return gwerr.Wrap(err, gwerr.CodeInternal, message)
}
