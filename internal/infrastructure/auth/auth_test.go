package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-that-is-long-enough-for-hmac"

func TestIssueAndVerify(t *testing.T) {
	token, err := NewIssuer(secret).Issue("alice", []string{RoleUser}, time.Minute)
	require.NoError(t, err)

	p, err := NewVerifier(secret).Verify("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Subject)
	assert.Equal(t, []string{RoleUser}, p.Roles)
	assert.Equal(t, "Bearer "+token, p.Credential)
	assert.True(t, p.HasAnyRole(RoleUser, RoleAdmin))
	assert.False(t, p.HasAnyRole(RoleAdmin))
}

func TestVerifyRejects(t *testing.T) {
	good, err := NewIssuer(secret).Issue("alice", []string{RoleAdmin}, time.Minute)
	require.NoError(t, err)
	otherKey, err := NewIssuer("another-secret").Issue("alice", []string{RoleAdmin}, time.Minute)
	require.NoError(t, err)

	expiredIssuer := NewIssuer(secret)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := expiredIssuer.Issue("alice", []string{RoleAdmin}, time.Minute)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"}).SignedString(SigningKey(secret))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(time.Hour).Unix()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]struct {
		header string
		want   error
	}{
		"empty":        {"", ErrMissingCredential},
		"bearer only":  {"Bearer ", ErrMissingCredential},
		"basic scheme": {"Basic " + good, ErrInvalidCredential},
		"garbage":      {"Bearer not-a-jwt", ErrInvalidCredential},
		"wrong key":    {"Bearer " + otherKey, ErrInvalidCredential},
		"expired":      {"Bearer " + expired, ErrInvalidCredential},
		"no expiry":    {"Bearer " + noExp, ErrInvalidCredential},
		"alg none":     {"Bearer " + none, ErrInvalidCredential},
	}
	v := NewVerifier(secret)
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(tc.header)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSigningKeyIsBase64OfSecret(t *testing.T) {
	assert.Equal(t, []byte("YWJj"), SigningKey("abc"))
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), &Principal{Subject: "bob"})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "bob", p.Subject)
}
