package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/lockgate/internal/security"
	"github.com/charlesng35/lockgate/pkg/response"
)

// SecurityHandler exposes the configuration audit to superusers.
type SecurityHandler struct {
	audit *security.AuditService
}

func NewSecurityHandler(audit *security.AuditService) *SecurityHandler {
	return &SecurityHandler{audit: audit}
}

// GET /api/admin/security/audit
func (h *SecurityHandler) Audit(c *gin.Context) {
	response.Success(c, http.StatusOK, h.audit.Run(requestContext(c)))
}
