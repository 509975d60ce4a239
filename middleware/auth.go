package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperr "github.com/phillip/hela-fund-go/apperr"
	config "github.com/phillip/hela-fund-go/config"
	models "github.com/phillip/hela-fund-go/models"
	utils "github.com/phillip/hela-fund-go/utils"
)

// Keys set on the gin context for authenticated callers.
const (
	UserIDKey = "user_id"
	RoleKey   = "role"
)

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			utils.RespondError(c, cfg.Logger, apperr.Authentication("missing or invalid authorization header"))
			return
		}
		id, err := cfg.Auth.Authenticate(token)
		if err != nil {
			utils.RespondError(c, cfg.Logger, err)
			return
		}
		c.Set(UserIDKey, id.UserID.Hex())
		c.Set(RoleKey, string(id.Role))
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present and lets
// anonymous callers through otherwise.
func OptionalAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if id, err := cfg.Auth.Authenticate(token); err == nil {
				c.Set(UserIDKey, id.UserID.Hex())
				c.Set(RoleKey, string(id.Role))
			}
		}
		c.Next()
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(cfg *config.Config, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if models.Role(c.GetString(RoleKey)) != role {
			utils.RespondError(c, cfg.Logger, apperr.Authorization("this action requires the %s role", role))
			return
		}
		c.Next()
	}
}
