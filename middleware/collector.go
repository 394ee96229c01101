package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// ErrorCollector returns a middleware that passes errors attached to the Gin context to emit.
func ErrorCollector(emit func(error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && emit != nil {
			emit(fmt.Errorf("gin error: %s", c.Errors.String()))
		}
	}
}
