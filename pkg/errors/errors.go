// Package errors provides the coded error taxonomy shared by every layer of
// the gateway. Each error carries a machine-readable [Code], a
// human-readable message, an optional cause, and, for rate-limit denials,
// the [Quota] the caller exhausted.
//
// # Error Kinds
//
// Codes are grouped by category prefix. Each category maps to a stable
// [Kind] that is exposed to callers in response bodies:
//
//   - AUTH_xxx: AuthenticationError (401)
//   - AUTHZ_xxx: AuthorizationError (403)
//   - RATE_xxx: RateLimitError (429)
//   - UNAVAIL_xxx: UpstreamError (503)
//   - VAL_xxx: ValidationError (400)
//   - INT_xxx: InternalError (500)
//
// # Usage
//
// Construct taxonomy errors with the named constructors:
//
//	return errors.InvalidToken(err)
//
// Wrap a store failure:
//
//	return errors.UpstreamUnavailable(err, "credential store: lookup failed")
//
// Inspect an error:
//
//	if errors.IsRetryable(err) {
//	    // only UpstreamUnavailable is retryable
//	}
//
// Render an error onto an HTTP response:
//
//	errors.WriteHTTP(w, err)
package errors
