package auth

import (
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// Credential header names. gRPC metadata uses the lowercase forms.
const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "X-Api-Key"
)

const bearerPrefix = "Bearer "

// Credentials are the raw credentials presented with a request.
type Credentials struct {
	APIKey      string
	BearerToken string

	// APIKeyPresent is set when the API key header was sent, even blank.
	// A blank key is then rejected rather than falling back to the bearer
	// token.
	APIKeyPresent bool
}

// Empty reports whether neither credential is present.
func (c Credentials) Empty() bool {
	return !c.hasAPIKey() && c.BearerToken == ""
}

func (c Credentials) hasAPIKey() bool {
	return c.APIKey != "" || c.APIKeyPresent
}

// Method names the credential that authentication will use. API keys take
// precedence over bearer tokens.
func (c Credentials) Method() string {
	switch {
	case c.hasAPIKey():
		return "api_key"
	case c.BearerToken != "":
		return "bearer"
	default:
		return "none"
	}
}

// ExtractBearerToken returns the token from an Authorization value. The
// "Bearer " prefix is matched case-insensitively; anything else yields "".
func ExtractBearerToken(authHeader string) string {
	if len(authHeader) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}

// CredentialsFromHTTP reads credentials from request headers.
func CredentialsFromHTTP(h http.Header) Credentials {
	return Credentials{
		APIKey:        strings.TrimSpace(h.Get(HeaderAPIKey)),
		APIKeyPresent: len(h.Values(HeaderAPIKey)) > 0,
		BearerToken:   ExtractBearerToken(h.Get(HeaderAuthorization)),
	}
}

// CredentialsFromMetadata reads credentials from incoming gRPC metadata.
func CredentialsFromMetadata(md metadata.MD) Credentials {
	var c Credentials
	if v := md.Get(strings.ToLower(HeaderAPIKey)); len(v) > 0 {
		c.APIKey = strings.TrimSpace(v[0])
		c.APIKeyPresent = true
	}
	if v := md.Get(strings.ToLower(HeaderAuthorization)); len(v) > 0 {
		c.BearerToken = ExtractBearerToken(v[0])
	}
	return c
}
