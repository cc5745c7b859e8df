package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/srms-dev/srms-api/internal/models"
	"github.com/srms-dev/srms-api/internal/service"
	"github.com/srms-dev/srms-api/pkg/response"
)

// AnalyticsHandler exposes aggregate reporting endpoints.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs AnalyticsHandler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// TopPerformers godoc
// @Summary Top performers by average marks
// @Tags Analytics
// @Produce json
// @Param classId query string false "Filter by class"
// @Param semester query int false "Filter by semester"
// @Param limit query int false "Result count, capped at 50"
// @Success 200 {object} response.Envelope
// @Router /analytics/top-performers [get]
func (h *AnalyticsHandler) TopPerformers(c *gin.Context) {
	var filter models.TopPerformersFilter
	filter.ClassID = c.Query("classId")
	filter.Semester = intQuery(c, "semester")
	if limit := intQuery(c, "limit"); limit != nil {
		filter.Limit = *limit
	}

	performers, err := h.analytics.TopPerformers(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, performers, nil)
}

// Distribution godoc
// @Summary Grade distribution for a subject
// @Tags Analytics
// @Produce json
// @Param subjectId path string true "Subject ID"
// @Param semester query int false "Filter by semester"
// @Success 200 {object} response.Envelope
// @Router /analytics/subjects/{subjectId}/distribution [get]
func (h *AnalyticsHandler) Distribution(c *gin.Context) {
	filter := models.DistributionFilter{
		SubjectID: c.Param("subjectId"),
		Semester:  intQuery(c, "semester"),
	}

	distribution, err := h.analytics.SubjectDistribution(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, distribution, nil)
}

// Trends godoc
// @Summary Monthly performance trends
// @Tags Analytics
// @Produce json
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param classId query string false "Filter by class"
// @Param subjectId query string false "Filter by subject"
// @Success 200 {object} response.Envelope
// @Router /analytics/trends [get]
func (h *AnalyticsHandler) Trends(c *gin.Context) {
	filter := models.TrendsFilter{
		From:      timeQuery(c, "from"),
		To:        timeQuery(c, "to"),
		ClassID:   c.Query("classId"),
		SubjectID: c.Query("subjectId"),
	}

	trends, err := h.analytics.Trends(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trends, nil)
}

// SystemMetrics godoc
// @Summary Process and cache metrics snapshot
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) SystemMetrics(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.analytics.SystemMetrics(), nil)
}
