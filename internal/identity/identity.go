// Package identity issues and verifies the bearer tokens that carry a
// caller's user id, and moves that id through a context.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
)

// MinSecretLength is the shortest HS256 secret accepted.
const MinSecretLength = 32

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the token claims. The subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	now    func() time.Time
	secret []byte
	issuer string
	ttl    time.Duration
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer for secret.
func NewIssuer(secret, issuer string, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: jwt secret must be at least %d bytes", common.ErrInvalidConfig, MinSecretLength)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	i := &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue returns a signed token for userID.
func (i *Issuer) Issue(userID, email string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", common.NewValidationError("userId", "is required")
	}
	now := i.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns its claims.
func (i *Issuer) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(i.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type userKey struct{}

// WithUser returns a context carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFrom returns the user id in ctx, if any.
func UserFrom(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userKey{}).(string)
	return userID, ok && userID != ""
}

// CurrentUser returns the user id in ctx or an authorization error when
// the context is anonymous.
func CurrentUser(ctx context.Context) (string, error) {
	userID, ok := UserFrom(ctx)
	if !ok {
		return "", &common.AuthorizationError{Resource: "request", Err: common.ErrUnauthenticated}
	}
	return userID, nil
}

// Static always returns the same user. The CLI runs as the configured local
// user this way.
type Static string

// CurrentUser implements the identity lookup for a fixed user.
func (s Static) CurrentUser(context.Context) (string, error) {
	if s == "" {
		return "", &common.AuthorizationError{Resource: "request", Err: common.ErrUnauthenticated}
	}
	return string(s), nil
}
