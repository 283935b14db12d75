package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cuaderno-api/internal/models"
	appErrors "github.com/noah-isme/cuaderno-api/pkg/errors"
	"github.com/noah-isme/cuaderno-api/pkg/response"
)

// ContextUserKey is the gin context key storing the resolved *models.Identity.
const ContextUserKey = "currentUser"

type identityResolver interface {
	Resolve(ctx context.Context, token string) (*models.Identity, error)
}

// JWT protects routes by requiring a bearer token that resolves to a stored user.
func JWT(resolver identityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "token required"))
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			return
		}

		identity, err := resolver.Resolve(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			response.Abort(c, err)
			return
		}

		c.Set(ContextUserKey, identity)
		c.Next()
	}
}

// CurrentIdentity returns the caller attached by JWT.
func CurrentIdentity(c *gin.Context) (*models.Identity, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*models.Identity)
	return identity, ok && identity != nil
}
