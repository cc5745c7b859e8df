package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/srms-dev/srms-api/internal/models"
	"github.com/srms-dev/srms-api/internal/service"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
	"github.com/srms-dev/srms-api/pkg/response"
)

// ResultHandler exposes result endpoints.
type ResultHandler struct {
	results *service.ResultService
}

// NewResultHandler constructs ResultHandler.
func NewResultHandler(results *service.ResultService) *ResultHandler {
	return &ResultHandler{results: results}
}

// EnterMarks godoc
// @Summary Enter marks in bulk
// @Description Each entry is processed independently; existing unapproved entries are replaced and failures are reported per index
// @Tags Results
// @Accept json
// @Produce json
// @Param payload body service.EnterMarksRequest true "Marks payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope "Partial success"
// @Failure 400 {object} response.Envelope
// @Router /results [post]
func (h *ResultHandler) EnterMarks(c *gin.Context) {
	var req service.EnterMarksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid marks payload"))
		return
	}

	res, err := h.results.EnterMarks(c.Request.Context(), currentUser(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusCreated
	if res.Failed > 0 || res.Created == 0 {
		status = http.StatusOK
	}
	response.JSON(c, status, res, nil)
}

// List godoc
// @Summary List results
// @Tags Results
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param subjectId query string false "Filter by subject"
// @Param semester query int false "Filter by semester"
// @Param examType query string false "Filter by exam type"
// @Param approved query bool false "Filter by approval state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /results [get]
func (h *ResultHandler) List(c *gin.Context) {
	var filter models.ResultFilter
	filter.StudentID = c.Query("studentId")
	filter.SubjectID = c.Query("subjectId")
	filter.Semester = intQuery(c, "semester")
	filter.ExamType = c.Query("examType")
	filter.Approved = boolQuery(c, "approved")
	filter.Page, filter.PageSize = pageParams(c)

	results, pagination, err := h.results.List(c.Request.Context(), currentUser(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, pagination)
}

// Get godoc
// @Summary Get result detail
// @Tags Results
// @Produce json
// @Param id path string true "Result ID"
// @Success 200 {object} response.Envelope
// @Router /results/{id} [get]
func (h *ResultHandler) Get(c *gin.Context) {
	result, err := h.results.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Update godoc
// @Summary Update result marks
// @Description Approved results are immutable; derived fields are recomputed
// @Tags Results
// @Accept json
// @Produce json
// @Param id path string true "Result ID"
// @Param payload body service.UpdateResultRequest true "Result payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /results/{id} [put]
func (h *ResultHandler) Update(c *gin.Context) {
	var req service.UpdateResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.results.Update(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Approve godoc
// @Summary Approve result
// @Description Locks the result and notifies the student
// @Tags Results
// @Produce json
// @Param id path string true "Result ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /results/{id}/approve [post]
func (h *ResultHandler) Approve(c *gin.Context) {
	result, err := h.results.Approve(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Delete result
// @Description Approved results cannot be deleted
// @Tags Results
// @Produce json
// @Param id path string true "Result ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /results/{id} [delete]
func (h *ResultHandler) Delete(c *gin.Context) {
	if err := h.results.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
