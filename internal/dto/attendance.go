package dto

import "github.com/noah-isme/cuaderno-api/internal/models"

// MarkAttendanceItem is one student entry of a marking batch.
type MarkAttendanceItem struct {
	StudentID string `json:"studentId" validate:"required"`
	Status    string `json:"status" validate:"required,attendance_status"`
}

// MarkAttendanceRequest is the body of POST /attendance/mark. Date accepts
// YYYY-MM-DD or RFC3339 and defaults to today.
type MarkAttendanceRequest struct {
	Date  string               `json:"date"`
	Items []MarkAttendanceItem `json:"items" validate:"required,min=1,dive"`
}

// MarkAttendanceResponse reports how many records were created or modified.
type MarkAttendanceResponse struct {
	Count int `json:"count"`
}

// AttendanceHistoryQuery captures the raw query string of GET /attendance/history.
type AttendanceHistoryQuery struct {
	StudentID string `form:"studentId"`
	Course    string `form:"course"`
	Section   string `form:"section"`
	DateFrom  string `form:"dateFrom"`
	DateTo    string `form:"dateTo"`
	Page      string `form:"page"`
	PageSize  string `form:"pageSize"`
	Limit     string `form:"limit"`
}

// AttendanceHistoryResponse is one page of history.
type AttendanceHistoryResponse struct {
	Total    int                       `json:"total"`
	Page     int                       `json:"page"`
	PageSize int                       `json:"pageSize"`
	Items    []models.AttendanceRecord `json:"items"`
}

// AttendanceSummaryQuery captures the raw query string of GET /attendance/summary.
type AttendanceSummaryQuery struct {
	Course   string `form:"course"`
	Section  string `form:"section"`
	DateFrom string `form:"dateFrom"`
	DateTo   string `form:"dateTo"`
}

// AttendanceSummaryResponse wraps the per-student counters.
type AttendanceSummaryResponse struct {
	Count   int                           `json:"count"`
	Summary []models.AttendanceSummaryRow `json:"summary"`
}

// ExportFormat selects the summary export renderer.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered document ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}
