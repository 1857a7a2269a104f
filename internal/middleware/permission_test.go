package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type stubSuperuserChecker struct {
	superusers map[string]bool
	err        error
}

func (s stubSuperuserChecker) IsSuperuser(_ context.Context, userID string) (bool, error) {
	return s.superusers[userID], s.err
}

func TestRequireSuperuser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	build := func(checker SuperuserChecker, userID string) *gin.Engine {
		r := gin.New()
		r.GET("/admin", func(c *gin.Context) {
			if userID != "" {
				c.Set(CtxUserIDKey, userID)
			}
			c.Next()
		}, RequireSuperuser(checker), func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	checker := stubSuperuserChecker{superusers: map[string]bool{"root": true}}

	require.Equal(t, http.StatusUnauthorized, serve(build(checker, ""), http.MethodGet, "/admin", nil).Code)
	require.Equal(t, http.StatusForbidden, serve(build(checker, "alice"), http.MethodGet, "/admin", nil).Code)
	require.Equal(t, http.StatusOK, serve(build(checker, "root"), http.MethodGet, "/admin", nil).Code)

	failing := stubSuperuserChecker{err: errors.New("db down")}
	require.Equal(t, http.StatusInternalServerError, serve(build(failing, "root"), http.MethodGet, "/admin", nil).Code)
}
