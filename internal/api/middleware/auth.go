package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/martijn/vmorch/internal/api/dto"
	"github.com/martijn/vmorch/internal/core/service"
)

const (
	AuthHeaderKey  = "Authorization"
	AuthContextKey = "auth"
	// TokenQueryKey carries the token for SSE and WebSocket clients that
	// cannot set headers.
	TokenQueryKey = "token"
)

// AuthMiddleware creates a JWT authentication middleware. It lets every
// request through when tokens is not enabled.
func AuthMiddleware(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens == nil || !tokens.Enabled() {
			c.Next()
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "Invalid authorization header format. Expected 'Bearer <token>'")
			return
		}
		if token == "" {
			unauthorized(c, "Missing authorization header")
			return
		}

		// Validate token
		claims, err := tokens.Validate(token)
		if err != nil {
			unauthorized(c, "Invalid or expired token")
			return
		}

		// Store claims in context
		c.Set(AuthContextKey, claims)

		c.Next()
	}
}

// bearerToken returns the token from the Authorization header or the token
// query parameter. ok is false when the header is present but malformed.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader(AuthHeaderKey)
	if authHeader == "" {
		return c.Query(TokenQueryKey), true
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

func unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
		Error:   "Unauthorized",
		Message: message,
		Code:    http.StatusUnauthorized,
	})
	c.Abort()
}

// GetAuthClaims retrieves auth claims from context
func GetAuthClaims(c *gin.Context) (*service.TokenClaims, bool) {
	claims, exists := c.Get(AuthContextKey)
	if !exists {
		return nil, false
	}

	tokenClaims, ok := claims.(*service.TokenClaims)
	return tokenClaims, ok
}
