package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sevenitynet/reliefboard/model"
)

// tokenClaims peeks into a backend token without verifying it. The backend's tokens are
// opaque to the dashboard; when one happens to be a JWT its exp and sub claims are used
// as hints, nothing more. ok is false for tokens that are not JWTs.
func tokenClaims(token string) (exp time.Time, sub model.ID, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, "", false
	}

	if e, err := claims.GetExpirationTime(); err == nil && e != nil {
		exp = e.Time
	}
	if s, err := claims.GetSubject(); err == nil {
		sub = model.ID(s)
	}

	return exp, sub, true
}

// tokenExpired reports whether token is a JWT whose exp lies before now.
func tokenExpired(token string, now time.Time) bool {
	exp, _, ok := tokenClaims(token)
	return ok && !exp.IsZero() && !exp.After(now)
}
