package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/srms-dev/srms-api/internal/service"
	appErrors "github.com/srms-dev/srms-api/pkg/errors"
	"github.com/srms-dev/srms-api/pkg/response"
)

// ReportHandler exposes report card, class report and export endpoints.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// StudentReport godoc
// @Summary Consolidated report card for a student
// @Tags Reports
// @Produce json
// @Param studentId path string true "Student ID"
// @Param semester query int false "Restrict to one semester"
// @Success 200 {object} response.Envelope
// @Router /reports/students/{studentId} [get]
func (h *ReportHandler) StudentReport(c *gin.Context) {
	report, err := h.reports.StudentReport(c.Request.Context(), c.Param("studentId"), intQuery(c, "semester"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ClassReport godoc
// @Summary Aggregate performance report for a class
// @Tags Reports
// @Produce json
// @Param classId path string true "Class ID"
// @Param semester query int false "Restrict to one semester"
// @Success 200 {object} response.Envelope
// @Router /reports/classes/{classId} [get]
func (h *ReportHandler) ClassReport(c *gin.Context) {
	report, err := h.reports.ClassReport(c.Request.Context(), c.Param("classId"), intQuery(c, "semester"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Queue a report export
// @Description Returns the job immediately; rendering happens in the background
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body service.ExportReportRequest true "Export payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reports/export [post]
func (h *ReportHandler) Export(c *gin.Context) {
	var req service.ExportReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}

	job, err := h.reports.QueueExport(c.Request.Context(), currentUser(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// GetJob godoc
// @Summary Get export job status
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/jobs/{id} [get]
func (h *ReportHandler) GetJob(c *gin.Context) {
	job, err := h.reports.GetJob(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// ListJobs godoc
// @Summary List export jobs for the current user
// @Tags Reports
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /reports/jobs [get]
func (h *ReportHandler) ListJobs(c *gin.Context) {
	page, size := pageParams(c)
	jobs, pagination, err := h.reports.ListJobs(c.Request.Context(), currentUser(c), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, pagination)
}

// Download godoc
// @Summary Download an exported report
// @Description The token embeds the file path and an expiry signed at export time
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/download/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	file, err := h.reports.OpenDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	path := file.Name()
	file.Close()

	c.FileAttachment(path, filepath.Base(path))
}
