package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cuaderno-api/internal/models"
)

// AttendanceRepository persists attendance records in PostgreSQL.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const upsertAttendanceQuery = `INSERT INTO attendance (id, student_id, date, status, course, section, author_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id, date) DO UPDATE SET
    status = EXCLUDED.status,
    course = EXCLUDED.course,
    section = EXCLUDED.section,
    author_id = EXCLUDED.author_id,
    created_at = EXCLUDED.created_at
RETURNING (xmax = 0) AS inserted`

// UpsertMany writes every mark keyed by (student, date). Statements run independently so
// a failing element never prevents the others from being attempted; failures are
// reported in the result rather than as the returned error.
func (r *AttendanceRepository) UpsertMany(ctx context.Context, marks []models.AttendanceMark) (models.BulkMarkResult, error) {
	var result models.BulkMarkResult
	for i, mark := range marks {
		var inserted bool
		err := r.db.QueryRowxContext(ctx, upsertAttendanceQuery,
			uuid.NewString(),
			mark.StudentID,
			mark.Date,
			string(mark.Status),
			mark.Course,
			mark.Section,
			mark.AuthorID,
			mark.MarkedAt,
		).Scan(&inserted)
		if err != nil {
			result.Failures = append(result.Failures, models.MarkFailure{
				Index:     i,
				StudentID: mark.StudentID,
				Err:       fmt.Errorf("upsert attendance: %w", err),
			})
			continue
		}
		if inserted {
			result.Upserted++
		} else {
			result.Modified++
		}
	}
	return result, nil
}

type attendanceRow struct {
	ID          string         `db:"id"`
	Date        time.Time      `db:"date"`
	StudentID   string         `db:"student_id"`
	Status      string         `db:"status"`
	Course      int            `db:"course"`
	Section     string         `db:"section"`
	AuthorID    string         `db:"author_id"`
	CreatedAt   time.Time      `db:"created_at"`
	StudentName sql.NullString `db:"student_name"`
	StudentCrs  sql.NullInt64  `db:"student_course"`
	StudentSect sql.NullString `db:"student_section"`
	StudentCode sql.NullString `db:"student_code"`
	AuthorName  sql.NullString `db:"author_name"`
	AuthorRole  sql.NullString `db:"author_role"`
	AuthorEmail sql.NullString `db:"author_email"`
}

func (row attendanceRow) record() models.AttendanceRecord {
	rec := models.AttendanceRecord{
		ID:        row.ID,
		Date:      row.Date,
		StudentID: row.StudentID,
		Status:    models.AttendanceStatus(row.Status),
		Course:    row.Course,
		Section:   row.Section,
		AuthorID:  row.AuthorID,
		CreatedAt: row.CreatedAt,
	}
	if row.StudentName.Valid {
		rec.Student = &models.StudentRef{
			Name:    row.StudentName.String,
			Course:  int(row.StudentCrs.Int64),
			Section: row.StudentSect.String,
			Code:    row.StudentCode.String,
		}
	}
	if row.AuthorName.Valid {
		rec.Author = &models.AuthorRef{
			Name:  row.AuthorName.String,
			Role:  models.UserRole(row.AuthorRole.String),
			Email: row.AuthorEmail.String,
		}
	}
	return rec
}

func attendanceConditions(studentID string, course *int, section string, from, to *time.Time) (string, []interface{}) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if studentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, studentID)
	}
	if course != nil {
		conditions = append(conditions, fmt.Sprintf("a.course = $%d", len(args)+1))
		args = append(args, *course)
	}
	if section != "" {
		conditions = append(conditions, fmt.Sprintf("a.section = $%d", len(args)+1))
		args = append(args, section)
	}
	if from != nil {
		conditions = append(conditions, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *from)
	}
	if to != nil {
		conditions = append(conditions, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *to)
	}
	return strings.Join(conditions, " AND "), args
}

// List returns one page of attendance ordered by date descending, enriched with the
// student and author projections.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	where, args := attendanceConditions(filter.StudentID, filter.Course, filter.Section, filter.DateFrom, filter.DateTo)
	query := fmt.Sprintf(`SELECT a.id, a.date, a.student_id, a.status, a.course, a.section, a.author_id, a.created_at,
        s.name AS student_name, s.course AS student_course, s.section AS student_section, s.code AS student_code,
        u.name AS author_name, u.role AS author_role, u.email AS author_email
        FROM attendance a
        LEFT JOIN students s ON s.id = a.student_id
        LEFT JOIN users u ON u.id = a.author_id
        WHERE %s ORDER BY a.date DESC, a.id DESC LIMIT %d OFFSET %d`, where, filter.PageSize, filter.Offset())

	var rows []attendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	records := make([]models.AttendanceRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

// Count returns the number of records matching the filter, ignoring pagination.
func (r *AttendanceRepository) Count(ctx context.Context, filter models.AttendanceFilter) (int, error) {
	where, args := attendanceConditions(filter.StudentID, filter.Course, filter.Section, filter.DateFrom, filter.DateTo)
	query := fmt.Sprintf("SELECT COUNT(*) FROM attendance a WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return total, nil
}

type summaryRow struct {
	StudentID      string `db:"student_id"`
	StudentName    string `db:"student_name"`
	StudentCourse  int    `db:"student_course"`
	StudentSection string `db:"student_section"`
	StudentCode    string `db:"student_code"`
	PresentCount   int    `db:"present_count"`
	AbsentCount    int    `db:"absent_count"`
	LateCount      int    `db:"late_count"`
	ExcusedCount   int    `db:"excused_count"`
}

// Summary aggregates status counters per student. The inner join drops records whose
// student no longer exists.
func (r *AttendanceRepository) Summary(ctx context.Context, filter models.AttendanceSummaryFilter) ([]models.AttendanceSummaryRow, error) {
	where, args := attendanceConditions("", filter.Course, filter.Section, filter.DateFrom, filter.DateTo)
	query := fmt.Sprintf(`SELECT a.student_id,
        s.name AS student_name, s.course AS student_course, s.section AS student_section, s.code AS student_code,
        COUNT(*) FILTER (WHERE a.status = 'Present') AS present_count,
        COUNT(*) FILTER (WHERE a.status = 'Absent') AS absent_count,
        COUNT(*) FILTER (WHERE a.status = 'Late') AS late_count,
        COUNT(*) FILTER (WHERE a.status = 'Excused') AS excused_count
        FROM attendance a
        JOIN students s ON s.id = a.student_id
        WHERE %s
        GROUP BY a.student_id, s.name, s.course, s.section, s.code
        ORDER BY s.name ASC, a.student_id ASC`, where)

	var rows []summaryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("summarize attendance: %w", err)
	}
	out := make([]models.AttendanceSummaryRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.AttendanceSummaryRow{
			StudentID: row.StudentID,
			Student: models.StudentRef{
				Name:    row.StudentName,
				Course:  row.StudentCourse,
				Section: row.StudentSection,
				Code:    row.StudentCode,
			},
			PresentCount: row.PresentCount,
			AbsentCount:  row.AbsentCount,
			LateCount:    row.LateCount,
			ExcusedCount: row.ExcusedCount,
		})
	}
	return out, nil
}
