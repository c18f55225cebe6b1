package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/playchess/backend/internal/config"
)

// InternalTokenHeader carries the shared secret of trusted services.
const InternalTokenHeader = "X-Internal-Token"

// InternalOnly admits a request only when it carries cfg.InternalToken. With
// no token configured the route is open, which is meant for development.
func InternalOnly(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.InternalToken == "" {
			c.Next()
			return
		}
		got := c.GetHeader(InternalTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.InternalToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "internal token required"})
			return
		}
		c.Next()
	}
}
