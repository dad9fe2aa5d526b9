package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	gwerr "github.com/MananPoojara/new-seasonality-vibe-coded-sub004/pkg/errors"
)

// TokenKind discriminates access tokens from refresh tokens. It travels
// in the "typ" claim.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultTokenIssuer     = "seasonality-gateway"

	// MinTokenSecretLen is the minimum HS256 key length in bytes.
	MinTokenSecretLen = 32
)

// maxTokenSize rejects oversized bearer values before parsing.
const maxTokenSize = 8192

// Claims are the JWT claims issued by [TokenCodec].
type Claims struct {
	jwt.RegisteredClaims
	Type TokenKind `json:"typ"`
}

// TokenConfig configures a [TokenCodec].
type TokenConfig struct {
	Secret     Secret
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenPair is the result of [TokenCodec.IssuePair].
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenCodec signs and verifies HS256 bearer tokens.
//
// Only HS256 is accepted on verify, so a token signed with another
// algorithm cannot be replayed against the shared key.
type TokenCodec struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      Clock
	parser     *jwt.Parser
}

// NewTokenCodec validates cfg and returns a codec. Zero TTLs and issuer
// take the package defaults.
func NewTokenCodec(cfg TokenConfig, clock Clock) (*TokenCodec, error) {
	if len(cfg.Secret.Value()) < MinTokenSecretLen {
		return nil, gwerr.Newf(gwerr.CodeInternalConfiguration,
			"auth: token secret must be at least %d bytes", MinTokenSecretLen)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultTokenIssuer
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, gwerr.New(gwerr.CodeInternalConfiguration, "auth: token TTLs must be positive")
	}

	clock = orSystemClock(clock)
	return &TokenCodec{
		key:        []byte(cfg.Secret.Value()),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		clock:      clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clock.Now),
		),
	}, nil
}

// TTL returns the configured lifetime for kind.
func (c *TokenCodec) TTL(kind TokenKind) time.Duration {
	if kind == TokenRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Sign issues a token of kind for principalID that expires after ttl.
func (c *TokenCodec) Sign(principalID string, kind TokenKind, ttl time.Duration) (string, error) {
	if principalID == "" {
		return "", gwerr.New(gwerr.CodeValidationRequired, "auth: principal id is required")
	}
	if kind != TokenAccess && kind != TokenRefresh {
		return "", gwerr.Validationf("auth: unknown token kind %q", kind)
	}
	if ttl <= 0 {
		return "", gwerr.New(gwerr.CodeValidation, "auth: token ttl must be positive")
	}

	now := c.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Type: kind,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", gwerr.Wrap(err, gwerr.CodeInternal, "auth: failed to sign token")
	}
	return signed, nil
}

// Issue signs a token of kind with the configured TTL for that kind.
func (c *TokenCodec) Issue(principalID string, kind TokenKind) (string, error) {
	return c.Sign(principalID, kind, c.TTL(kind))
}

// IssuePair signs an access token and a refresh token for principalID.
func (c *TokenCodec) IssuePair(principalID string) (TokenPair, error) {
	now := c.clock.Now()
	access, err := c.Issue(principalID, TokenAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := c.Issue(principalID, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(c.accessTTL),
		RefreshExpiresAt: now.Add(c.refreshTTL),
	}, nil
}

// Verify checks signature, issuer and expiry and that the token is of
// kind. It fails with TokenExpired for an expired token and InvalidToken
// for everything else, including a refresh token presented as access.
func (c *TokenCodec) Verify(token string, kind TokenKind) (*Claims, error) {
	if token == "" {
		return nil, gwerr.InvalidToken(errors.New("empty token"))
	}
	if len(token) > maxTokenSize {
		return nil, gwerr.InvalidToken(errors.New("token exceeds maximum size"))
	}

	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if claims.Type != kind {
		return nil, gwerr.InvalidToken(errors.New("token type mismatch")).
			WithDetail("expected", string(kind)).
			WithDetail("actual", string(claims.Type))
	}
	if claims.Subject == "" {
		return nil, gwerr.InvalidToken(errors.New("token has no subject"))
	}
	return claims, nil
}

func classifyTokenError(err error) *gwerr.Error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return gwerr.TokenExpired(err)
	}
	return gwerr.InvalidToken(err)
}
