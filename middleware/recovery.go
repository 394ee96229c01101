package middleware

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sevenitynet/reliefboard/backend"
	"github.com/sevenitynet/reliefboard/errors"
)

// Recovery returns a middleware that recovers from panics.
//
// errors.FailedRequest answers its status and message, errors.Redirect redirects, and a
// *backend.Error answers the backend's 4xx status or 502 with the backend's message.
// Anything else is passed to emit and answers 500.
func Recovery(emit func(error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				switch v := r.(type) {
				case errors.FailedRequest:
					c.AbortWithStatusJSON(v.Status, gin.H{"error": v.Message})
					return
				case errors.Redirect:
					c.Redirect(v.Code(), v.Location)
					c.Abort()
					return
				case error:
					var be *backend.Error
					if stderrors.As(v, &be) {
						c.AbortWithStatusJSON(backendStatus(be), gin.H{"error": be.Message})
						return
					}
				}

				if emit != nil {
					emit(errors.Error(fmt.Errorf("internal server error: %v", r)))
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
			}
		}()
		c.Next()
	}
}

func backendStatus(e *backend.Error) int {
	if e.Status >= 400 && e.Status < 500 {
		return e.Status
	}
	return http.StatusBadGateway
}
