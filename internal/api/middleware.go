package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "user_id"

// Auth validates the bearer token and stashes the caller's user ID in the
// request context. Tokens are HS256 with a numeric user_id claim.
func Auth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortError(c, http.StatusUnauthorized, "unauthorized", "authorization header is missing")
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			abortError(c, http.StatusUnauthorized, "unauthorized", "token is expired or invalid")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abortError(c, http.StatusUnauthorized, "unauthorized", "invalid token claims")
			return
		}
		id, ok := claims[userIDKey].(float64)
		if !ok {
			abortError(c, http.StatusUnauthorized, "unauthorized", "missing user_id claim")
			return
		}

		c.Set(userIDKey, int64(id))
		c.Next()
	}
}

func currentUser(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}

func abortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}
