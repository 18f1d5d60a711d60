package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer   = "consorcia"
	defaultTokenTTL = 24 * time.Hour
	clockSkew       = 5 * time.Second
)

var errMissingSecret = errors.New("auth secret is not configured")

// Claims is the JWT payload. The role keeps the "rol" key used by existing clients.
type Claims struct {
	Role string `json:"rol"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(t *TokenIssuer) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			t.issuer = issuer
		}
	}
}

// WithTokenTTL configures token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokenIssuer builds an issuer around a shared secret.
func NewTokenIssuer(secret string, opts ...TokenOption) (*TokenIssuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errMissingSecret
	}
	t := &TokenIssuer{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Issue signs a token for the identity and reports its expiry.
func (t *TokenIssuer) Issue(id Identity) (string, time.Time, error) {
	if !id.Authenticated() {
		return "", time.Time{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := t.now().UTC()
	expires := now.Add(t.ttl)
	claims := Claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies the signature and claims and returns the caller identity.
// The role is not validated against the enum here: unknown roles are denied downstream.
func (t *TokenIssuer) Parse(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithLeeway(clockSkew))
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if err := t.validateClaims(claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}
	return Identity{UserID: userID, Role: Role(strings.TrimSpace(claims.Role))}, nil
}

func (t *TokenIssuer) validateClaims(claims *Claims) error {
	if claims.Issuer != t.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := t.now().UTC()
	if claims.IssuedAt.Time.After(now.Add(clockSkew)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
