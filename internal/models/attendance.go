package models

import (
	"strings"
	"time"
)

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "Present"
	AttendanceStatusAbsent  AttendanceStatus = "Absent"
	AttendanceStatusLate    AttendanceStatus = "Late"
	AttendanceStatusExcused AttendanceStatus = "Excused"
)

// AttendanceStatuses lists the supported statuses in display order.
var AttendanceStatuses = []AttendanceStatus{
	AttendanceStatusPresent,
	AttendanceStatusAbsent,
	AttendanceStatusLate,
	AttendanceStatusExcused,
}

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// ParseAttendanceStatus matches raw case-insensitively and returns the canonical status.
func ParseAttendanceStatus(raw string) (AttendanceStatus, bool) {
	raw = strings.TrimSpace(raw)
	for _, status := range AttendanceStatuses {
		if strings.EqualFold(raw, string(status)) {
			return status, true
		}
	}
	return "", false
}

// AttendanceRecord is the single attendance row per (student, day). Student and Author
// are only populated on read paths.
type AttendanceRecord struct {
	ID        string           `db:"id" bson:"-" json:"id"`
	Date      time.Time        `db:"date" bson:"date" json:"date"`
	StudentID string           `db:"student_id" bson:"-" json:"studentId"`
	Status    AttendanceStatus `db:"status" bson:"status" json:"status"`
	Course    int              `db:"course" bson:"course" json:"course"`
	Section   string           `db:"section" bson:"section" json:"section"`
	AuthorID  string           `db:"author_id" bson:"-" json:"authorId"`
	CreatedAt time.Time        `db:"created_at" bson:"createdAt" json:"createdAt"`

	Student *StudentRef `db:"student" bson:"-" json:"student"`
	Author  *AuthorRef  `db:"author" bson:"-" json:"author"`
}

// StudentRef is the student projection joined onto attendance reads.
type StudentRef struct {
	Name    string `db:"name" bson:"name" json:"name"`
	Course  int    `db:"course" bson:"course" json:"course"`
	Section string `db:"section" bson:"section" json:"section"`
	Code    string `db:"code" bson:"code" json:"code"`
}

// AuthorRef is the identity projection joined onto attendance reads.
type AuthorRef struct {
	Name  string   `db:"name" bson:"name" json:"name"`
	Role  UserRole `db:"role" bson:"role" json:"role"`
	Email string   `db:"email" bson:"email" json:"email"`
}

// AttendanceMark is one validated upsert keyed by (StudentID, Date).
type AttendanceMark struct {
	StudentID string
	Date      time.Time
	Status    AttendanceStatus
	Course    int
	Section   string
	AuthorID  string
	MarkedAt  time.Time
}

// BulkMarkResult reports the outcome of an unordered batch of upserts.
type BulkMarkResult struct {
	Upserted int
	Modified int
	Failures []MarkFailure
}

// Affected is the number of records created or modified.
func (r BulkMarkResult) Affected() int {
	return r.Upserted + r.Modified
}

// MarkFailure records a batch element the store refused.
type MarkFailure struct {
	Index     int
	StudentID string
	Err       error
}

// AttendanceFilter scopes history queries. Zero values mean "no constraint".
type AttendanceFilter struct {
	StudentID string
	Course    *int
	Section   string
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

// Offset returns the number of rows skipped for the current page.
func (f AttendanceFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// AttendanceSummaryFilter scopes summary aggregation. Zero values mean "no constraint".
type AttendanceSummaryFilter struct {
	Course   *int
	Section  string
	DateFrom *time.Time
	DateTo   *time.Time
}

// AttendanceSummaryRow holds the per-student status counters.
type AttendanceSummaryRow struct {
	StudentID    string     `db:"student_id" bson:"-" json:"studentId"`
	Student      StudentRef `db:"student" bson:"student" json:"student"`
	PresentCount int        `db:"present_count" bson:"presentCount" json:"presentCount"`
	AbsentCount  int        `db:"absent_count" bson:"absentCount" json:"absentCount"`
	LateCount    int        `db:"late_count" bson:"lateCount" json:"lateCount"`
	ExcusedCount int        `db:"excused_count" bson:"excusedCount" json:"excusedCount"`
}

// Total returns the number of records counted for the student.
func (r AttendanceSummaryRow) Total() int {
	return r.PresentCount + r.AbsentCount + r.LateCount + r.ExcusedCount
}
