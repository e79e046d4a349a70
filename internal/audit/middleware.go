package audit

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RequireBearerMiddleware protects /api/* and the swagger UI with a static
// API key. An empty key disables the check.
func RequireBearerMiddleware(apiKey string) gin.HandlerFunc {
	apiKey = strings.TrimSpace(apiKey)
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		p := c.Request.URL.Path
		// Infra endpoints and broker-facing webhooks stay open.
		if p == "/healthz" || p == "/readyz" || p == "/metrics" || strings.HasPrefix(p, "/webhook/") {
			c.Next()
			return
		}
		if strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/swagger") {
			auth := strings.TrimSpace(c.GetHeader("Authorization"))
			if !strings.HasPrefix(auth, "Bearer ") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing bearer token"})
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid bearer token"})
				return
			}
		}
		c.Next()
	}
}

// WriteAuditMiddleware records every non-GET request under /api/ and /webhook/.
func WriteAuditMiddleware(p *Client) gin.HandlerFunc {
	if p == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		method := strings.ToUpper(c.Request.Method)
		if !(strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/webhook/")) {
			return
		}
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return
		}

		status := c.Writer.Status()
		p.Record(c.Request.Context(), "http_write", LevelFromStatus(status), map[string]any{
			"method":     method,
			"path":       path,
			"route":      c.FullPath(),
			"status":     status,
			"duration":   time.Since(start).String(),
			"request_id": c.GetString("request_id"),
			"client_ip":  c.ClientIP(),
		})
	}
}
