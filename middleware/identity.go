package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// NewIdentityMiddleware extracts the caller's identity key from a bearer
// token and sets it as identityKey. Who issues the tokens is someone
// else's problem, the handlers only ever see the key string
func NewIdentityMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetString("requestID")

		auth := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":      "error",
				"code":        "ERR_UNAUTHORIZED",
				"description": "Missing bearer token.",
				"requestID":   requestID,
			})
			return
		}

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
			}

			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":      "error",
				"code":        "ERR_UNAUTHORIZED",
				"description": "Invalid bearer token.",
				"requestID":   requestID,
			})

			zap.L().Debug("Rejected bearer token", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":      "error",
				"code":        "ERR_UNAUTHORIZED",
				"description": "Invalid bearer token.",
				"requestID":   requestID,
			})
			return
		}

		identityKey, ok := claims["identity_key"].(string)
		if !ok || identityKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":      "error",
				"code":        "ERR_UNAUTHORIZED",
				"description": "Token carries no identity key.",
				"requestID":   requestID,
			})
			return
		}

		if exp, ok := claims["exp"].(float64); ok && time.Now().Unix() >= int64(exp) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":      "error",
				"code":        "ERR_UNAUTHORIZED",
				"description": "Token expired.",
				"requestID":   requestID,
			})
			return
		}

		c.Set("identityKey", identityKey)
		c.Next()
	}
}
