package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lockgate/internal/middleware"
	"github.com/charlesng35/lockgate/internal/services"
	"github.com/charlesng35/lockgate/pkg/errors"
	"github.com/charlesng35/lockgate/pkg/response"
)

// LockHandler serves lock lifecycle, network configuration and device PIN checks.
type LockHandler struct {
	locks      *services.LockService
	network    *services.NetworkConfigService
	validation *services.PinValidationService
	now        func() time.Time
}

func NewLockHandler(locks *services.LockService, network *services.NetworkConfigService, validation *services.PinValidationService) *LockHandler {
	return &LockHandler{locks: locks, network: network, validation: validation, now: time.Now}
}

type createLockRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Location string `json:"location" validate:"max=255"`
}

type claimLockRequest struct {
	UUID     string `json:"uuid" validate:"required,uuid"`
	Name     string `json:"name" validate:"required,max=255"`
	Location string `json:"location" validate:"required,max=255"`
}

type updateLockRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=255"`
	Location *string `json:"location" validate:"omitempty,max=255"`
	IsActive *bool   `json:"is_active"`
}

type networkRequest struct {
	SSID          string `json:"ssid" validate:"max=32"`
	Password      string `json:"password" validate:"max=64"`
	BluetoothName string `json:"bluetooth_name" validate:"max=64"`
}

type validatePinRequest struct {
	Code string `json:"code"`
}

// POST /api/locks
func (h *LockHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req createLockRequest
	if !bindAndValidate(c, &req) {
		return
	}

	lock, err := h.locks.Create(requestContext(c), userID, services.CreateLockInput{Name: req.Name, Location: req.Location})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, lock)
}

// POST /api/admin/locks
// Provisioned locks have no owner until claimed.
func (h *LockHandler) Provision(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req createLockRequest
	if !bindAndValidate(c, &req) {
		return
	}

	lock, err := h.locks.Provision(requestContext(c), userID, services.CreateLockInput{Name: req.Name, Location: req.Location})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, lock)
}

// POST /api/locks/claim
func (h *LockHandler) Claim(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req claimLockRequest
	if !bindAndValidate(c, &req) {
		return
	}

	lock, err := h.locks.Claim(requestContext(c), userID, services.ClaimLockInput{
		UUID:     req.UUID,
		Name:     req.Name,
		Location: req.Location,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, lock)
}

// GET /api/locks/:uuid
func (h *LockHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	lock, err := h.locks.Get(requestContext(c), userID, c.Param("uuid"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, lock)
}

// PATCH /api/locks/:uuid
func (h *LockHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req updateLockRequest
	if !bindAndValidate(c, &req) {
		return
	}

	lock, err := h.locks.Update(requestContext(c), userID, c.Param("uuid"), services.UpdateLockInput{
		Name:     req.Name,
		Location: req.Location,
		IsActive: req.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, lock)
}

// DELETE /api/locks/:uuid
func (h *LockHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.locks.Delete(requestContext(c), userID, c.Param("uuid")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// PUT /api/locks/:uuid/network
func (h *LockHandler) PutNetwork(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req networkRequest
	if !bindAndValidate(c, &req) {
		return
	}

	view, err := h.network.Upsert(requestContext(c), userID, c.Param("uuid"), services.NetworkConfigInput{
		SSID:          req.SSID,
		Password:      req.Password,
		BluetoothName: req.BluetoothName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// GET /api/locks/:uuid/network
func (h *LockHandler) GetNetwork(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	view, err := h.network.Get(requestContext(c), userID, c.Param("uuid"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// POST /api/locks/:uuid/validate_pin
// Grant and deny use a flat {success, detail} body that lock firmware parses directly.
func (h *LockHandler) ValidatePin(c *gin.Context) {
	device, ok := middleware.DeviceFromContext(c)
	if !ok {
		response.Error(c, errors.ErrDeviceUnauthorized)
		return
	}

	var req validatePinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errors.NewBadRequest("invalid JSON payload"))
		return
	}

	ctx := requestContext(c)
	lock, err := h.locks.FindByUUID(ctx, c.Param("uuid"))
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.validation.Check(ctx, services.CheckInput{
		Lock:      lock,
		Device:    device,
		Code:      req.Code,
		Now:       h.now(),
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if !result.Granted {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "detail": "Access denied"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "detail": "Access granted"})
}
