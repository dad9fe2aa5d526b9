package errors

import (
	"fmt"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is the stable, caller-facing classification of an error. Response
// bodies expose the kind so clients can branch without parsing codes.
type Kind string

const (
	KindAuthentication Kind = "AuthenticationError"
	KindAuthorization  Kind = "AuthorizationError"
	KindRateLimit      Kind = "RateLimitError"
	KindUpstream       Kind = "UpstreamError"
	KindValidation     Kind = "ValidationError"
	KindInternal       Kind = "InternalError"
)

// Quota describes a fixed-window allowance at the moment of a decision.
// Reset is the instant the current window ends.
type Quota struct {
	Limit     int64
	Remaining int64
	Reset     time.Time
}

// RetryAfter returns the whole seconds until the window resets, relative to
// now, never less than one.
func (q Quota) RetryAfter(now time.Time) int64 {
	secs := int64(q.Reset.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Error is a structured error with a code, message, and optional cause.
// Errors are immutable after construction; the With* methods return copies.
type Error struct {
	// Code is the machine-readable error code (e.g., "AUTH_002").
	Code Code

	// Message is the human-readable message. It is shown to callers and
	// must never contain secrets or token material.
	Message string

	// Cause is the underlying error, if any.
	Cause error

	// Details carries additional structured data for logging.
	Details map[string]any

	// Quota is set on rate-limit denials.
	Quota *Quota
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Kind returns the stable kind of the error.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// HTTPStatus returns the HTTP status code for the error's category.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case "VAL":
		return http.StatusBadRequest
	case "AUTH":
		return http.StatusUnauthorized
	case "AUTHZ":
		return http.StatusForbidden
	case "RATE":
		return http.StatusTooManyRequests
	case "UNAVAIL":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GRPCStatus maps the error onto a gRPC status. status.FromError and
// status.Code recognise this method, so interceptors can return *Error
// directly.
func (e *Error) GRPCStatus() *status.Status {
	var c codes.Code
	switch e.Code.Category() {
	case "VAL":
		c = codes.InvalidArgument
	case "AUTH":
		c = codes.Unauthenticated
	case "AUTHZ":
		c = codes.PermissionDenied
	case "RATE":
		c = codes.ResourceExhausted
	case "UNAVAIL":
		c = codes.Unavailable
	default:
		c = codes.Internal
	}
	return status.New(c, fmt.Sprintf("%s: %s", e.Code, e.Message))
}

// WithDetail returns a copy of the error with one detail added.
func (e *Error) WithDetail(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	cp := *e
	cp.Details = details
	return &cp
}

// WithQuota returns a copy of the error carrying q.
func (e *Error) WithQuota(q Quota) *Error {
	cp := *e
	cp.Quota = &q
	return &cp
}

// Format implements fmt.Formatter. %+v prints details and the cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Quota != nil {
				fmt.Fprintf(s, ", Quota: %d/%d", e.Quota.Remaining, e.Quota.Limit)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
