package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sevenitynet/reliefboard/auth"
	"github.com/sevenitynet/reliefboard/request"
	"github.com/sevenitynet/reliefboard/session"
)

// ClientSession identifies the client by its cookie, issuing one when needed, and attaches
// the client's session store to the request.
func ClientSession(cookie auth.Cookie, sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := cookie.Identify(c)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
			return
		}

		request.SetStore(c, sessions.Get(c.Request.Context(), id.String()))
		c.Next()
	}
}
