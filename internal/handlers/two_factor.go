package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lockgate/internal/auth/mfa"
	"github.com/charlesng35/lockgate/pkg/errors"
	"github.com/charlesng35/lockgate/pkg/response"
)

// TwoFactorHandler exposes TOTP enrolment for the authenticated user.
type TwoFactorHandler struct {
	svc *mfa.TwoFactorService
}

func NewTwoFactorHandler(svc *mfa.TwoFactorService) *TwoFactorHandler {
	return &TwoFactorHandler{svc: svc}
}

type twoFactorCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

// POST /api/2fa/setup
// Repeated calls return the same secret until it is confirmed.
func (h *TwoFactorHandler) Setup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	provisioning, err := h.svc.Setup(requestContext(c), userID)
	if err != nil {
		response.Error(c, twoFactorError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"otpauth_url": provisioning.URI,
		"qr_code":     "data:image/png;base64," + base64.StdEncoding.EncodeToString(provisioning.QRCode),
		"enabled":     provisioning.Enabled,
	})
}

// POST /api/2fa/confirm
func (h *TwoFactorHandler) Confirm(c *gin.Context) {
	h.toggle(c, true)
}

// POST /api/2fa/disable
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	h.toggle(c, false)
}

func (h *TwoFactorHandler) toggle(c *gin.Context, enable bool) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req twoFactorCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	code := strings.TrimSpace(req.Code)

	var err error
	if enable {
		err = h.svc.Confirm(ctx, userID, code)
	} else {
		err = h.svc.Disable(ctx, userID, code)
	}
	if err != nil {
		response.Error(c, twoFactorError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"enabled": enable})
}
