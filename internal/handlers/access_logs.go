package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lockgate/internal/services"
	"github.com/charlesng35/lockgate/pkg/errors"
	"github.com/charlesng35/lockgate/pkg/response"
)

// AccessLogHandler exposes read access to recorded access attempts.
type AccessLogHandler struct {
	svc *services.AccessLogService
}

func NewAccessLogHandler(svc *services.AccessLogService) *AccessLogHandler {
	return &AccessLogHandler{svc: svc}
}

// GET /api/access-logs/:id
func (h *AccessLogHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	entry, err := h.svc.Get(requestContext(c), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, entry)
}
