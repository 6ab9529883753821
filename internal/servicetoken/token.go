// Package servicetoken issues and verifies short-lived HS256 tokens for
// service-to-service calls (account -> catalog internal endpoints).
package servicetoken

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway tolerates small clock skew between services.
const DefaultLeeway = 30 * time.Second

const defaultTTL = 2 * time.Minute

// Signer mints service tokens for a fixed issuer/audience pair.
type Signer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewSigner builds a signer from the shared secret.
func NewSigner(secret, issuer, audience string, ttl time.Duration) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("service token secret is required")
	}
	if strings.TrimSpace(issuer) == "" || strings.TrimSpace(audience) == "" {
		return nil, errors.New("service token issuer and audience are required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Signer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}, nil
}

// Token returns a freshly signed token.
func (s *Signer) Token() (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verifier validates service tokens for one audience.
type Verifier struct {
	secret         []byte
	audience       string
	allowedIssuers map[string]struct{}
	leeway         time.Duration
}

// NewVerifier builds a verifier from the shared secret.
func NewVerifier(secret, audience string, allowedIssuers []string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("service token secret is required")
	}
	if strings.TrimSpace(audience) == "" {
		return nil, errors.New("service token audience is required")
	}
	issuers := make(map[string]struct{}, len(allowedIssuers))
	for _, iss := range allowedIssuers {
		iss = strings.TrimSpace(iss)
		if iss != "" {
			issuers[iss] = struct{}{}
		}
	}
	if len(issuers) == 0 {
		return nil, errors.New("service token verifier requires at least one allowed issuer")
	}
	return &Verifier{
		secret:         []byte(secret),
		audience:       audience,
		allowedIssuers: issuers,
		leeway:         DefaultLeeway,
	}, nil
}

// Verify parses the token and returns its claims.
func (v *Verifier) Verify(token string) (jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, errors.New("invalid token format")
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return claims, err
	}
	if _, ok := v.allowedIssuers[claims.Issuer]; !ok {
		return claims, fmt.Errorf("issuer %q not allowed", claims.Issuer)
	}
	return claims, nil
}

// BearerToken extracts the bearer token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
