package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/srms-dev/srms-api/internal/models"
	"github.com/srms-dev/srms-api/internal/service"
	"github.com/srms-dev/srms-api/pkg/response"
)

// AuditHandler exposes the audit trail to administrators.
type AuditHandler struct {
	audit *service.AuditService
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit *service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List godoc
// @Summary List audit log entries
// @Tags Audit
// @Produce json
// @Param actorId query string false "Filter by actor"
// @Param action query string false "Filter by action"
// @Param resourceType query string false "Filter by resource type"
// @Param resourceId query string false "Filter by resource"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) List(c *gin.Context) {
	var filter models.AuditFilter
	filter.ActorID = c.Query("actorId")
	filter.Action = c.Query("action")
	filter.ResourceType = c.Query("resourceType")
	filter.ResourceID = c.Query("resourceId")
	filter.From = timeQuery(c, "from")
	filter.To = timeQuery(c, "to")
	filter.Page, filter.PageSize = pageParams(c)

	entries, pagination, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
