package auth

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access token payload. Subject carries the login identifier;
// UserID, Email and Role are repeated so authorization needs no lookup.
type Claims struct {
	UserID string `json:"uid,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Codec mints and parses HS256 access tokens. It holds no mutable state and
// is safe for concurrent use.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewCodec validates the signing secret up front so a bad key fails at
// startup rather than on the first login.
func NewCodec(secret []byte, issuer string) (*Codec, error) {
	if err := ValidateSecretKey(secret); err != nil {
		return nil, err
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Codec{secret: key, issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for subject valid for ttl from now. A non-positive ttl
// yields an already expired token.
func (c *Codec) Issue(subject string, claims Claims, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: empty token subject", common.ErrInvalidArgument)
	}

	now := c.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Parse verifies signature and structure only; expiry is deliberately not
// checked here so callers can tell an expired token from a forged one.
// Failures wrap common.ErrInvalidToken.
func (c *Codec) Parse(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	if claims.Subject == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing required claims", common.ErrInvalidToken)
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", common.ErrInvalidToken)
	}

	return claims, nil
}

// Expired reports whether the claims' expiry is at or before now.
func (c *Codec) Expired(claims *Claims) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return true
	}
	return !c.now().Before(claims.ExpiresAt.Time)
}

// IsExpired parses tokenString and compares its expiry to now. Tokens that do
// not parse count as expired.
func (c *Codec) IsExpired(tokenString string) bool {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return true
	}
	return c.Expired(claims)
}

// Validate is true iff the token parses, belongs to expectedSubject and has
// not expired.
func (c *Codec) Validate(tokenString, expectedSubject string) bool {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return false
	}
	return claims.Subject == expectedSubject && !c.Expired(claims)
}

// RemainingTTL is how long the token stays valid. Zero for expired tokens.
func (c *Codec) RemainingTTL(claims *Claims) time.Duration {
	if c.Expired(claims) {
		return 0
	}
	return claims.ExpiresAt.Time.Sub(c.now())
}
