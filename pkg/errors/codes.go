package errors

// Code is a machine-readable error code of the form CATEGORY_NNN. Codes are
// stable once assigned; clients may branch on them.
type Code string

// Error code categories:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	AUTHZ_xxx   - Authorization errors (403 Forbidden)
//	RATE_xxx    - Rate limit errors (429 Too Many Requests)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Upstream unavailable (503 Service Unavailable)
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeMissingCredential indicates the request carried neither an API
	// key nor a bearer token.
	CodeMissingCredential Code = "AUTH_001"

	// CodeInvalidToken indicates a bearer token that is malformed, has a bad
	// signature, or is of the wrong kind.
	CodeInvalidToken Code = "AUTH_002"

	// CodeTokenExpired indicates a bearer token past its expiry.
	CodeTokenExpired Code = "AUTH_003"

	// CodeInvalidAPIKey indicates an API key that matched no active record.
	CodeInvalidAPIKey Code = "AUTH_004"

	// CodeAPIKeyExpired indicates an API key past its expiry.
	CodeAPIKeyExpired Code = "AUTH_005"

	// CodeInactivePrincipal indicates the principal is absent or deactivated.
	CodeInactivePrincipal Code = "AUTH_006"

	// CodeInsufficientRole indicates the principal lacks a required role.
	CodeInsufficientRole Code = "AUTHZ_001"

	// CodeInsufficientSubscription indicates the principal's effective tier
	// is below the one required.
	CodeInsufficientSubscription Code = "AUTHZ_002"

	// CodeInsufficientPermission indicates the API key lacks a permission.
	CodeInsufficientPermission Code = "AUTHZ_003"

	// CodeRateLimitExceeded indicates the caller exhausted its quota.
	CodeRateLimitExceeded Code = "RATE_001"

	// CodeInternal indicates an unexpected failure.
	CodeInternal Code = "INT_001"

	// CodeInternalConfiguration indicates invalid or unloadable configuration.
	CodeInternalConfiguration Code = "INT_002"

	// CodeUpstreamUnavailable indicates the credential store or counter
	// store failed or timed out.
	CodeUpstreamUnavailable Code = "UNAVAIL_001"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}

// Kind returns the stable kind for the code's category.
func (c Code) Kind() Kind {
	switch c.Category() {
	case "AUTH":
		return KindAuthentication
	case "AUTHZ":
		return KindAuthorization
	case "RATE":
		return KindRateLimit
	case "UNAVAIL":
		return KindUpstream
	case "VAL":
		return KindValidation
	default:
		return KindInternal
	}
}
