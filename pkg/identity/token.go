// Package identity issues and validates the signer credentials that
// authorization-constraint rules consume. A credential is a signed JWT whose
// subject is the hex identity the rule set names as a required signer.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Mindburn-Labs/spendgate/pkg/spend"
)

const (
	issuer   = "spendgate/identity"
	audience = "spendgate.internal"
)

var ErrEmptySecret = errors.New("identity: signing secret must not be empty")

// SignerClaims are the JWT claims carried by a signer credential.
type SignerClaims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes,omitempty"`
}

// TokenManager signs and validates signer credentials with a shared secret.
// It implements spend.SignerOracle.
type TokenManager struct {
	secret []byte
	clock  func() time.Time
}

func NewTokenManager(secret []byte) (*TokenManager, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	return &TokenManager{secret: secret, clock: time.Now}, nil
}

// WithClock overrides the clock for testing.
func (tm *TokenManager) WithClock(clock func() time.Time) *TokenManager {
	tm.clock = clock
	return tm
}

// Issue creates a signed credential for the given signer identity.
func (tm *TokenManager) Issue(signer spend.ID, duration time.Duration, scopes ...string) (string, error) {
	now := tm.clock().UTC()
	claims := SignerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   signer.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
		},
		Scopes: scopes,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

// Validate parses a credential and returns its claims.
func (tm *TokenManager) Validate(tokenStr string) (*SignerClaims, error) {
	claims := &SignerClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return tm.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(func() time.Time { return tm.clock() }),
	)
	if err != nil {
		return nil, fmt.Errorf("credential validation failed: %w", err)
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

// Authorized reports whether credential is a valid token issued to the given
// signer identity. It satisfies spend.SignerOracle. A malformed or expired
// token is a clean "no", not an error.
func (tm *TokenManager) Authorized(_ context.Context, signer spend.ID, credential string) (bool, error) {
	claims, err := tm.Validate(credential)
	if err != nil {
		return false, nil
	}
	return claims.Subject == signer.String(), nil
}

var _ spend.SignerOracle = (*TokenManager)(nil)
