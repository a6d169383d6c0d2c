package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/common"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewIssuer(secret, "zenny", time.Hour)
	require.NoError(t, err)

	token, err := issuer.Issue("user-1", "ada@example.com")
	require.NoError(t, err)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestIssuer_Verify_Rejects(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewIssuer(secret, "zenny", time.Hour, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	valid, err := issuer.Issue("user-1", "")
	require.NoError(t, err)

	later, err := NewIssuer(secret, "zenny", time.Hour, WithClock(func() time.Time { return now.Add(2 * time.Hour) }))
	require.NoError(t, err)
	otherSecret, err := NewIssuer(secret+"x", "zenny", time.Hour, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	otherIssuer, err := NewIssuer(secret, "someone-else", time.Hour, WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "zenny",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		issuer *Issuer
		token  string
	}{
		{"expired", later, valid},
		{"wrong secret", otherSecret, valid},
		{"wrong issuer", otherIssuer, valid},
		{"alg none", issuer, unsigned},
		{"garbage", issuer, "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.issuer.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewIssuer_ShortSecret(t *testing.T) {
	_, err := NewIssuer("short", "zenny", time.Hour)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer   abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestCurrentUser(t *testing.T) {
	_, err := CurrentUser(context.Background())
	var authErr *common.AuthorizationError
	require.True(t, errors.As(err, &authErr))
	assert.ErrorIs(t, err, common.ErrUnauthenticated)

	userID, err := CurrentUser(WithUser(context.Background(), "user-9"))
	require.NoError(t, err)
	assert.Equal(t, "user-9", userID)

	userID, err = Static("local").CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "local", userID)
	_, err = Static("").CurrentUser(context.Background())
	assert.Error(t, err)
}
