package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/srms-dev/srms-api/internal/models"
	"github.com/srms-dev/srms-api/internal/service"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
	"github.com/srms-dev/srms-api/pkg/response"
)

// ConfigHandler exposes runtime configuration endpoints.
type ConfigHandler struct {
	config *service.ConfigService
}

// NewConfigHandler constructs ConfigHandler.
func NewConfigHandler(config *service.ConfigService) *ConfigHandler {
	return &ConfigHandler{config: config}
}

// List godoc
// @Summary List configuration entries
// @Tags Configuration
// @Produce json
// @Param category query string false "Filter by category"
// @Success 200 {object} response.Envelope
// @Router /config [get]
func (h *ConfigHandler) List(c *gin.Context) {
	entries, err := h.config.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Get godoc
// @Summary Get a configuration entry
// @Tags Configuration
// @Produce json
// @Param key path string true "Config key"
// @Success 200 {object} response.Envelope
// @Router /config/{key} [get]
func (h *ConfigHandler) Get(c *gin.Context) {
	entry, err := h.config.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Upsert godoc
// @Summary Create or replace a configuration entry
// @Description GRADE_MAPPING values are validated as a grade scale before acceptance
// @Tags Configuration
// @Accept json
// @Produce json
// @Param payload body models.UpsertConfigRequest true "Config payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /config [put]
func (h *ConfigHandler) Upsert(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.UpsertConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid config payload"))
		return
	}

	entry, err := h.config.Upsert(c.Request.Context(), user.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Delete godoc
// @Summary Delete a configuration entry
// @Tags Configuration
// @Produce json
// @Param key path string true "Config key"
// @Success 204
// @Router /config/{key} [delete]
func (h *ConfigHandler) Delete(c *gin.Context) {
	if err := h.config.Delete(c.Request.Context(), c.Param("key")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
