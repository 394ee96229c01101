package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// CSPConfig holds Content Security Policy directives.
type CSPConfig struct {
	DefaultSrc     []string
	ScriptSrc      []string
	StyleSrc       []string
	ImgSrc         []string
	ConnectSrc     []string
	FormAction     []string
	FrameAncestors []string
	ReportOnly     bool
}

// Build compiles the directives into a policy string, skipping empty ones.
func (c CSPConfig) Build() string {
	directives := []struct {
		name   string
		values []string
	}{
		{"default-src", c.DefaultSrc},
		{"script-src", c.ScriptSrc},
		{"style-src", c.StyleSrc},
		{"img-src", c.ImgSrc},
		{"connect-src", c.ConnectSrc},
		{"form-action", c.FormAction},
		{"frame-ancestors", c.FrameAncestors},
	}

	var parts []string
	for _, d := range directives {
		if len(d.values) == 0 {
			continue
		}
		parts = append(parts, d.name+" "+strings.Join(d.values, " "))
	}

	return strings.Join(parts, "; ")
}

// DefaultCSP returns the policy for the dashboard's JSON responses.
func DefaultCSP() CSPConfig {
	return CSPConfig{
		DefaultSrc:     []string{"'none'"},
		FormAction:     []string{"'self'"},
		FrameAncestors: []string{"'none'"},
	}
}

// SecurityHeaders returns middleware that sets the Content-Security-Policy built from cfg,
// or override verbatim when it is not empty, plus nosniff and referrer headers.
func SecurityHeaders(cfg CSPConfig, override string) gin.HandlerFunc {
	policy := cfg.Build()
	if override != "" {
		policy = override
	}

	headerName := "Content-Security-Policy"
	if cfg.ReportOnly {
		headerName = "Content-Security-Policy-Report-Only"
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		if policy != "" {
			h.Set(headerName, policy)
		}
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "same-origin")
		c.Next()
	}
}
