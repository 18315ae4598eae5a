// Package auth issues and verifies the bearer tokens that carry a caller's
// identity and roles.
package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/bookable/internal/clock"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

const issuer = "bookable"

type Claims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewIssuer(secret string, ttl time.Duration, clk clock.Clock) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, clock: clk}
}

// Issue returns a signed token for user and its expiry.
func (i *Issuer) Issue(user *model.User) (string, time.Time, error) {
	now := i.clock.Now()
	expires := now.Add(i.ttl)

	roles := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		roles = append(roles, string(r))
	}

	claims := Claims{
		Username: user.Username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies tokenStr and resolves it to a Principal. Unknown roles are
// dropped.
func (i *Issuer) Parse(tokenStr string) (model.Principal, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return model.Principal{}, ErrInvalidToken
	}

	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	p := model.Principal{UserID: id}
	for _, r := range c.Roles {
		if role := model.Role(r); role.IsValid() {
			p.Roles = append(p.Roles, role)
		}
	}
	return p, nil
}
