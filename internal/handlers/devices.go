package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lockgate/internal/models"
	"github.com/charlesng35/lockgate/internal/services"
	"github.com/charlesng35/lockgate/pkg/errors"
	"github.com/charlesng35/lockgate/pkg/response"
)

// DeviceHandler manages credentialed devices. The API key is only
// returned by Create.
type DeviceHandler struct {
	svc *services.DeviceService
}

func NewDeviceHandler(svc *services.DeviceService) *DeviceHandler {
	return &DeviceHandler{svc: svc}
}

type createDeviceRequest struct {
	Lock       string `json:"lock" validate:"required,uuid"`
	DeviceType string `json:"device_type" validate:"required"`
	UID        string `json:"uid" validate:"required,max=255"`
	Name       string `json:"name" validate:"required,max=255"`
}

type updateDeviceRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=255"`
	IsActive *bool   `json:"is_active"`
}

// POST /api/devices
func (h *DeviceHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req createDeviceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	device, err := h.svc.Create(requestContext(c), userID, services.CreateDeviceInput{
		LockUUID:   req.Lock,
		DeviceType: models.DeviceType(req.DeviceType),
		UID:        req.UID,
		Name:       req.Name,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, device)
}

// GET /api/devices/:id
func (h *DeviceHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	device, err := h.svc.Get(requestContext(c), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, device)
}

// PATCH /api/devices/:id
func (h *DeviceHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req updateDeviceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	device, err := h.svc.Update(requestContext(c), userID, c.Param("id"), services.UpdateDeviceInput{
		Name:     req.Name,
		IsActive: req.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, device)
}

// DELETE /api/devices/:id
func (h *DeviceHandler) Delete(c *gin.Context) {
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
