package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DefaultCookieName is the name of the client cookie.
const DefaultCookieName = "reliefboard_client"

// Cookie writes and reads the client cookie.
type Cookie struct {
	Codec  *Codec
	Name   string
	Domain string
	Secure bool
}

// Identify returns the client id carried by the request's cookie. When the cookie is
// missing or invalid a new id is issued and set on the response.
func (k Cookie) Identify(c *gin.Context) (uuid.UUID, error) {
	if value, err := c.Cookie(k.Name); err == nil && value != "" {
		if id, ok := k.Codec.Parse(value); ok {
			return id, nil
		}
	}

	id := uuid.New()
	token, err := k.Codec.Issue(id)
	if err != nil {
		return uuid.Nil, err
	}

	k.set(c, token, int(k.Codec.Lifetime().Seconds()))
	return id, nil
}

func (k Cookie) set(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		k.Name,   // name
		value,    // value
		maxAge,   // max age
		"/",      // path
		k.Domain, // domain
		k.Secure, // secure
		true,     // httpOnly
	)
}
