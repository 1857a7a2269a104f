package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lockgate/internal/services"
	"github.com/charlesng35/lockgate/pkg/errors"
	"github.com/charlesng35/lockgate/pkg/response"
)

// PinHandler manages lock pins.
type PinHandler struct {
	svc *services.PinService
}

func NewPinHandler(svc *services.PinService) *PinHandler {
	return &PinHandler{svc: svc}
}

type createPinRequest struct {
	Lock        string     `json:"lock" validate:"required,uuid"`
	Code        string     `json:"code" validate:"required,pincode"`
	IsTemporary bool       `json:"is_temporary"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
}

type updatePinRequest struct {
	Code        *string    `json:"code" validate:"omitempty,pincode"`
	IsTemporary *bool      `json:"is_temporary"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	IsActive    *bool      `json:"is_active"`
}

// POST /api/pins
func (h *PinHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req createPinRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pin, err := h.svc.Create(requestContext(c), userID, services.CreatePinInput{
		LockUUID:    req.Lock,
		Code:        req.Code,
		IsTemporary: req.IsTemporary,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, pin)
}

// GET /api/pins/:id
func (h *PinHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	pin, err := h.svc.Get(requestContext(c), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pin)
}

// PATCH /api/pins/:id
func (h *PinHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req updatePinRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pin, err := h.svc.Update(requestContext(c), userID, c.Param("id"), services.UpdatePinInput{
		Code:        req.Code,
		IsTemporary: req.IsTemporary,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsActive:    req.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pin)
}

// DELETE /api/pins/:id
func (h *PinHandler) Delete(c *gin.Context) {
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
