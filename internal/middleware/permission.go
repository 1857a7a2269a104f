package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lockgate/pkg/errors"
	"github.com/charlesng35/lockgate/pkg/response"
)

// SuperuserChecker reports superuser status for a user id.
type SuperuserChecker interface {
	IsSuperuser(ctx context.Context, userID string) (bool, error)
}

// RequireSuperuser restricts a route group to active superusers.
func RequireSuperuser(checker SuperuserChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		if userID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		ok, err := checker.IsSuperuser(c.Request.Context(), userID)
		if err != nil {
			response.Error(c, errors.ErrInternalServer.WithInternal(err))
			c.Abort()
			return
		}
		if !ok {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
