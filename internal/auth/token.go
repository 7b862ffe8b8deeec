// Package auth turns bearer tokens into authenticated actors.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/ride-lifecycle/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the HS256 token claims; sub is the actor id.
type Claims struct {
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for actor valid for ttl. Used by tooling and tests;
// production tokens come from the identity service sharing the secret.
func (v *Verifier) Issue(actor models.Actor, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Role:  string(actor.Role),
		Name:  actor.Name,
		Phone: actor.Phone,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify parses a raw token, with or without the "Bearer " prefix.
func (v *Verifier) Verify(raw string) (models.Actor, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return models.Actor{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(v.now))
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	actor := models.Actor{
		ID:    claims.Subject,
		Role:  models.Role(strings.ToLower(claims.Role)),
		Name:  claims.Name,
		Phone: claims.Phone,
	}
	if actor.ID == "" {
		return models.Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if !actor.Role.Valid() {
		return models.Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return actor, nil
}
