// Package auth identifies browser clients. Each client carries a signed cookie whose subject
// is a random client id; the id keys the client's session storage.
//
// The cookie authenticates the browser to the gateway only. The backend token lives in the
// client's session and never leaves the server.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer   = "reliefboard"
	audience = "reliefboard-client"
)

// DefaultLifetime is how long an issued client cookie stays valid.
const DefaultLifetime = 30 * 24 * time.Hour

var ErrEmptySecret = errors.New("auth: empty cookie secret")

// Codec issues and verifies HS256-signed client tokens.
type Codec struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewCodec creates a Codec signing with secret.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	return &Codec{
		secret:   []byte(secret),
		lifetime: DefaultLifetime,
		now:      time.Now,
	}, nil
}

// SetLifetime sets the validity of issued tokens.
func (c *Codec) SetLifetime(d time.Duration) {
	c.lifetime = d
}

// Lifetime returns the validity of issued tokens.
func (c *Codec) Lifetime() time.Duration {
	return c.lifetime
}

// Issue signs a token for the given client id.
func (c *Codec) Issue(id uuid.UUID) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": issuer,
		"aud": audience,
		"sub": id.String(),
		"exp": now.Add(c.lifetime).Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"jti": uuid.New().String(),
	})

	return token.SignedString(c.secret)
}

// Parse verifies a token and returns its client id. ok is false for tokens that are
// malformed, expired, signed with another key or algorithm, or issued for another audience.
func (c *Codec) Parse(tokenString string) (id uuid.UUID, ok bool) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}

		return c.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid {
		return uuid.Nil, false
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, false
	}

	id, err = uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, false
	}

	return id, true
}
