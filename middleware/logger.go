package middleware

import "github.com/gin-gonic/gin"

// Logger returns Gin's access logger, skipping the given paths.
func Logger(skipPaths ...string) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{SkipPaths: skipPaths})
}
