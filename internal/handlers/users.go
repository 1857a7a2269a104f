package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/lockgate/internal/auth"
	"github.com/charlesng35/lockgate/internal/services"
	"github.com/charlesng35/lockgate/pkg/errors"
	"github.com/charlesng35/lockgate/pkg/response"
)

// UserHandler lets superusers manage accounts.
type UserHandler struct {
	users    *services.UserService
	sessions *iauth.SessionService
}

func NewUserHandler(users *services.UserService, sessions *iauth.SessionService) *UserHandler {
	return &UserHandler{users: users, sessions: sessions}
}

type updateUserRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// PATCH /api/admin/users/:id
// Deactivating an account also revokes its refresh sessions.
func (h *UserHandler) Update(c *gin.Context) {
	callerID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req updateUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	targetID := c.Param("id")
	if targetID == callerID && !*req.IsActive {
		response.Error(c, errors.NewBadRequest("superusers cannot deactivate their own account"))
		return
	}

	ctx := requestContext(c)
	if err := h.users.SetActive(ctx, targetID, *req.IsActive); err != nil {
		response.Error(c, err)
		return
	}
	if !*req.IsActive && h.sessions != nil {
		if _, err := h.sessions.RevokeUserSessions(ctx, targetID); err != nil {
			response.Error(c, errors.ErrInternalServer.WithInternal(err))
			return
		}
	}

	user, err := h.users.GetByID(ctx, targetID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, userPayload(user))
}
