package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/internal/realtime"
	"github.com/charlesng35/lockgate/internal/services"
	"github.com/charlesng35/lockgate/pkg/errors"
	"github.com/charlesng35/lockgate/pkg/response"
)

// RealtimeHandler streams a lock's access events over WebSocket to anyone who
// may read the lock.
type RealtimeHandler struct {
	hub   *realtime.Hub
	jwt   *iauth.JWTService
	locks *services.LockService
}

func NewRealtimeHandler(hub *realtime.Hub, jwt *iauth.JWTService, locks *services.LockService) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, jwt: jwt, locks: locks}
}

// GET /api/locks/:uuid/events
// Browsers cannot set headers on a WebSocket handshake, so the access token
// may also arrive as ?token=.
func (h *RealtimeHandler) LockEvents(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		authz := c.GetHeader("Authorization")
		if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
	}
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	lock, err := h.locks.Get(requestContext(c), claims.UserID, c.Param("uuid"))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.hub.Serve(claims.UserID, lock.UUID, c.Writer, c.Request)
}
