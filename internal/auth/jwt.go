package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken     = errors.New("auth: no token")
	ErrInvalidRole = errors.New("auth: invalid role")
	ErrNoSubject   = errors.New("auth: missing subject")
)

// Claims are the gauge API token claims. Cards limits the token to those
// card ids; an empty list grants every card.
type Claims struct {
	Role  string   `json:"role"`
	Cards []string `json:"cards,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller.
type Identity struct {
	Subject string
	Role    Role
	Cards   []string
}

// CanRead reports whether the caller may see cardID.
func (i Identity) CanRead(cardID string) bool {
	if len(i.Cards) == 0 {
		return true
	}
	for _, id := range i.Cards {
		if id == cardID {
			return true
		}
	}
	return false
}

// Identity validates the claims and returns the caller they describe.
func (c Claims) Identity() (Identity, error) {
	if c.Subject == "" {
		return Identity{}, ErrNoSubject
	}
	role, ok := NormalizeRole(c.Role)
	if !ok {
		return Identity{}, fmt.Errorf("%w %q", ErrInvalidRole, c.Role)
	}
	return Identity{Subject: c.Subject, Role: role, Cards: c.Cards}, nil
}

// Verifier checks HS256 gauge API tokens.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier builds a verifier for secret. Tokens must carry an expiry.
func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}
	return &Verifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Verify parses token and returns the caller.
func (v *Verifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoToken
	}
	var claims Claims
	if _, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return Identity{}, fmt.Errorf("auth: %w", err)
	}
	return claims.Identity()
}
