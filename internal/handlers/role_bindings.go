package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lockgate/internal/services"
	"github.com/charlesng35/lockgate/pkg/errors"
	"github.com/charlesng35/lockgate/pkg/response"
)

// RoleBindingHandler grants and revokes per-lock roles.
type RoleBindingHandler struct {
	svc *services.RoleBindingService
}

func NewRoleBindingHandler(svc *services.RoleBindingService) *RoleBindingHandler {
	return &RoleBindingHandler{svc: svc}
}

type createRoleBindingRequest struct {
	User string `json:"user" validate:"required,uuid"`
	Role string `json:"role" validate:"required"`
	Lock string `json:"lock" validate:"required,uuid"`
}

// POST /api/role-bindings
func (h *RoleBindingHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req createRoleBindingRequest
	if !bindAndValidate(c, &req) {
		return
	}

	binding, err := h.svc.Create(requestContext(c), userID, services.CreateRoleBindingInput{
		UserID:   req.User,
		Role:     req.Role,
		LockUUID: req.Lock,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, binding)
}

// GET /api/role-bindings/:id
func (h *RoleBindingHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	binding, err := h.svc.Get(requestContext(c), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, binding)
}

// DELETE /api/role-bindings/:id
func (h *RoleBindingHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.svc.Delete(requestContext(c), userID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
