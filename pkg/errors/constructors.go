package errors

import (
	"errors"
	"fmt"
	"strings"
)

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message. Wrap returns nil if err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps err with a code and formatted message. Wrapf returns nil if
// err is nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// MissingCredential reports a request with neither API key nor bearer token.
func MissingCredential() *Error {
	return New(CodeMissingCredential, "missing credential: provide an X-Api-Key header or an Authorization bearer token")
}

// InvalidToken reports a bearer token that failed verification. cause may be
// nil.
func InvalidToken(cause error) *Error {
	return &Error{Code: CodeInvalidToken, Message: "invalid token", Cause: cause}
}

// TokenExpired reports a bearer token past its expiry. cause may be nil.
func TokenExpired(cause error) *Error {
	return &Error{Code: CodeTokenExpired, Message: "token has expired", Cause: cause}
}

// InvalidAPIKey reports an API key that matched no active record.
func InvalidAPIKey() *Error {
	return New(CodeInvalidAPIKey, "invalid API key")
}

// APIKeyExpired reports an API key past its expiry.
func APIKeyExpired() *Error {
	return New(CodeAPIKeyExpired, "API key has expired")
}

// InactivePrincipal reports a principal that is absent or deactivated.
func InactivePrincipal() *Error {
	return New(CodeInactivePrincipal, "account is inactive or does not exist")
}

// InsufficientRole reports a principal lacking every one of the required
// roles.
func InsufficientRole(required ...string) *Error {
	return Newf(CodeInsufficientRole, "requires role %s", strings.Join(required, " or "))
}

// InsufficientSubscription reports an effective tier below required.
func InsufficientSubscription(required string) *Error {
	return Newf(CodeInsufficientSubscription, "requires a %s subscription or higher", required)
}

// InsufficientPermission reports an API key lacking resource:action.
func InsufficientPermission(resource, action string) *Error {
	return Newf(CodeInsufficientPermission, "API key lacks permission %s:%s", resource, action)
}

// RateLimitExceeded reports an exhausted quota.
func RateLimitExceeded(q Quota) *Error {
	return &Error{
		Code:    CodeRateLimitExceeded,
		Message: "rate limit exceeded, retry after the window resets",
		Quota:   &q,
	}
}

// UpstreamUnavailable wraps a credential or counter store failure. Unlike
// Wrap, it returns a non-nil error even if cause is nil.
func UpstreamUnavailable(cause error, message string) *Error {
	return &Error{Code: CodeUpstreamUnavailable, Message: message, Cause: cause}
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// FromError converts err into an *Error. An *Error anywhere in the chain is
// returned as-is; anything else is wrapped as an internal error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
