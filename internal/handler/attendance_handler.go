package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cuaderno-api/internal/dto"
	"github.com/noah-isme/cuaderno-api/internal/middleware"
	"github.com/noah-isme/cuaderno-api/internal/models"
	appErrors "github.com/noah-isme/cuaderno-api/pkg/errors"
	"github.com/noah-isme/cuaderno-api/pkg/response"
)

type attendanceService interface {
	Mark(ctx context.Context, actor models.Identity, req dto.MarkAttendanceRequest) (int, error)
	History(ctx context.Context, query dto.AttendanceHistoryQuery) (*dto.AttendanceHistoryResponse, error)
	Summary(ctx context.Context, query dto.AttendanceSummaryQuery) ([]models.AttendanceSummaryRow, error)
	ExportSummary(ctx context.Context, query dto.AttendanceSummaryQuery, format string) (*dto.ExportFile, error)
}

// AttendanceHandler exposes attendance marking and reporting endpoints.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// Mark godoc
// @Summary Mark attendance for a day
// @Description Upserts one record per student for the given date (defaults to today).
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.MarkAttendanceRequest true "Attendance batch"
// @Success 200 {object} dto.MarkAttendanceResponse
// @Failure 400 {object} response.ErrorEnvelope
// @Failure 404 {object} response.ErrorEnvelope
// @Failure 409 {object} response.ErrorEnvelope
// @Security BearerAuth
// @Router /attendance/mark [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	actor, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}

	count, err := h.attendance.Mark(c.Request.Context(), *actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, response.Payload{"count": count})
}

// History godoc
// @Summary Attendance history
// @Tags Attendance
// @Produce json
// @Param studentId query string false "Student ID"
// @Param course query int false "Course"
// @Param section query string false "Section"
// @Param dateFrom query string false "Inclusive start date"
// @Param dateTo query string false "Inclusive end date"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} dto.AttendanceHistoryResponse
// @Failure 400 {object} response.ErrorEnvelope
// @Security BearerAuth
// @Router /attendance/history [get]
func (h *AttendanceHandler) History(c *gin.Context) {
	var query dto.AttendanceHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	page, err := h.attendance.History(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, response.Payload{
		"total":    page.Total,
		"page":     page.Page,
		"pageSize": page.PageSize,
		"items":    page.Items,
	})
}

// Summary godoc
// @Summary Attendance summary per student
// @Tags Attendance
// @Produce json
// @Param course query int false "Course"
// @Param section query string false "Section"
// @Param dateFrom query string false "Inclusive start date"
// @Param dateTo query string false "Inclusive end date"
// @Success 200 {object} dto.AttendanceSummaryResponse
// @Failure 400 {object} response.ErrorEnvelope
// @Security BearerAuth
// @Router /attendance/summary [get]
func (h *AttendanceHandler) Summary(c *gin.Context) {
	var query dto.AttendanceSummaryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	rows, err := h.attendance.Summary(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, response.Payload{"count": len(rows), "summary": rows})
}

// ExportSummary godoc
// @Summary Export attendance summary
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Param course query int false "Course"
// @Param section query string false "Section"
// @Param dateFrom query string false "Inclusive start date"
// @Param dateTo query string false "Inclusive end date"
// @Success 200 {file} file
// @Failure 400 {object} response.ErrorEnvelope
// @Security BearerAuth
// @Router /attendance/summary/export [get]
func (h *AttendanceHandler) ExportSummary(c *gin.Context) {
	var query dto.AttendanceSummaryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	file, err := h.attendance.ExportSummary(c.Request.Context(), query, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Body)
}
