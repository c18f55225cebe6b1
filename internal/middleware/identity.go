package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/playchess/backend/internal/config"
)

// PlayerIDKey is the gin context key holding the authenticated player id.
const PlayerIDKey = "player_id"

// Identity reads the bearer token issued by the auth service. A valid token
// stores its player_id (or sub) claim in the context. Without a token the
// request passes through unless cfg.AuthRequired is set.
func Identity(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == "" || token == header {
			if cfg.AuthRequired {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
				return
			}
			c.Next()
			return
		}

		playerID, err := parsePlayerToken(token, cfg.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(PlayerIDKey, playerID)
		c.Next()
	}
}

func parsePlayerToken(token, secret string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("parse token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}

	switch v := claims["player_id"].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("token has no player id")
}

// AuthorizePlayer aborts with 403 when an authenticated caller acts for a
// different player. Unauthenticated requests are allowed through.
func AuthorizePlayer(c *gin.Context, playerID string) bool {
	v, ok := c.Get(PlayerIDKey)
	if !ok {
		return true
	}
	if id, _ := v.(string); id != playerID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token does not match playerId"})
		return false
	}
	return true
}
