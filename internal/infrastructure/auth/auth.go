// Package auth verifies and issues the HMAC-signed bearer tokens that guard the API.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"

	bearerPrefix = "Bearer "
)

var (
	ErrMissingCredential = errors.New("auth: missing bearer credential")
	ErrInvalidCredential = errors.New("auth: invalid bearer credential")
)

// Claims is the token payload: the standard subject plus a flat role list.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller. Credential is the Authorization header
// value exactly as received, kept for forwarding to downstream services.
type Principal struct {
	Subject    string
	Roles      []string
	Credential string
}

func (p *Principal) HasAnyRole(roles ...string) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if slices.Contains(p.Roles, r) {
			return true
		}
	}
	return false
}

// SigningKey derives the HMAC key from the shared secret: the key bytes are the
// base64 text of the secret, which keeps tokens interchangeable with the other
// services sharing it.
func SigningKey(secret string) []byte {
	return []byte(base64.StdEncoding.EncodeToString([]byte(secret)))
}

type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		key: SigningKey(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify checks an Authorization header value of the form "Bearer <jwt>".
func (v *Verifier) Verify(header string) (*Principal, error) {
	if header == "" {
		return nil, ErrMissingCredential
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return nil, fmt.Errorf("%w: expected bearer scheme", ErrInvalidCredential)
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if raw == "" {
		return nil, ErrMissingCredential
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidCredential)
	}
	return &Principal{
		Subject:    claims.Subject,
		Roles:      claims.Roles,
		Credential: header,
	}, nil
}

// Issuer mints tokens for local testing and service-to-service calls.
type Issuer struct {
	key []byte
	now func() time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{key: SigningKey(secret), now: time.Now}
}

// Issue returns a signed HS256 token valid for ttl.
func (i *Issuer) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("auth: subject is required")
	}
	now := i.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
