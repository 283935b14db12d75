package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/cuaderno-api/internal/dto"
	"github.com/noah-isme/cuaderno-api/internal/models"
	appErrors "github.com/noah-isme/cuaderno-api/pkg/errors"
	"github.com/noah-isme/cuaderno-api/pkg/export"
)

const (
	summaryCachePrefix        = "attendance:summary:"
	summaryGenerationCacheKey = "attendance:summary-generation"
)

type attendanceStore interface {
	UpsertMany(ctx context.Context, marks []models.AttendanceMark) (models.BulkMarkResult, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
	Count(ctx context.Context, filter models.AttendanceFilter) (int, error)
	Summary(ctx context.Context, filter models.AttendanceSummaryFilter) ([]models.AttendanceSummaryRow, error)
}

type studentDirectory interface {
	ValidID(id string) bool
	FindByIDs(ctx context.Context, ids []string) ([]models.Student, error)
}

type tableExporter interface {
	ContentType() string
	Extension() string
	Render(table export.Table) ([]byte, error)
}

// AttendanceConfig tunes the attendance service.
type AttendanceConfig struct {
	Location        *time.Location
	SummaryCacheTTL time.Duration
}

// AttendanceService marks, queries and summarises daily attendance.
type AttendanceService struct {
	store     attendanceStore
	students  studentDirectory
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	loc       *time.Location
	cacheTTL  time.Duration
	exporters map[dto.ExportFormat]tableExporter
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service. cache and metrics may be nil.
func NewAttendanceService(store attendanceStore, students studentDirectory, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg AttendanceConfig) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	svc := &AttendanceService{
		store:     store,
		students:  students,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		loc:       loc,
		cacheTTL:  cfg.SummaryCacheTTL,
		exporters: map[dto.ExportFormat]tableExporter{
			dto.ExportFormatCSV: export.NewCSVExporter(),
			dto.ExportFormatPDF: export.NewPDFExporter(),
		},
		now: time.Now,
	}
	_ = svc.validator.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseAttendanceStatus(fl.Field().String())
		return ok
	})
	return svc
}

// Mark upserts one record per item for the requested day. Every item is validated and
// every student resolved before the first write. The returned count is the number of
// records created or modified.
func (s *AttendanceService) Mark(ctx context.Context, actor models.Identity, req dto.MarkAttendanceRequest) (int, error) {
	if len(req.Items) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "items must contain at least one entry")
	}
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	day, err := s.markDay(req.Date)
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(req.Items))
	statuses := make([]models.AttendanceStatus, 0, len(req.Items))
	seen := make(map[string]struct{}, len(req.Items))
	for i, item := range req.Items {
		id := strings.TrimSpace(item.StudentID)
		if !s.students.ValidID(id) {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("items[%d].studentId is not a valid id", i))
		}
		if _, dup := seen[id]; dup {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s appears more than once", id))
		}
		seen[id] = struct{}{}
		status, ok := models.ParseAttendanceStatus(item.Status)
		if !ok {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("items[%d].status is not supported", i))
		}
		ids = append(ids, id)
		statuses = append(statuses, status)
	}

	found, err := s.students.FindByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("load students for marking failed", zap.Error(err))
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	byID := make(map[string]models.Student, len(found))
	for _, student := range found {
		byID[student.ID] = student
	}

	markedAt := s.now()
	marks := make([]models.AttendanceMark, 0, len(ids))
	for i, id := range ids {
		student, ok := byID[id]
		if !ok {
			return 0, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %s not found", id))
		}
		marks = append(marks, models.AttendanceMark{
			StudentID: id,
			Date:      day,
			Status:    statuses[i],
			Course:    student.Course,
			Section:   student.Section,
			AuthorID:  actor.UserID,
			MarkedAt:  markedAt,
		})
	}

	start := time.Now()
	result, err := s.store.UpsertMany(ctx, marks)
	s.metrics.ObserveStoreQuery("attendance_mark", time.Since(start))
	if result.Affected() > 0 {
		s.invalidateSummaries(ctx)
	}
	if err != nil {
		return 0, s.storeError(err, "failed to mark attendance")
	}
	if len(result.Failures) > 0 {
		return 0, s.markFailure(result)
	}

	s.recordMarked(marks)
	s.logger.Info("attendance marked",
		zap.String("author_id", actor.UserID),
		zap.Time("date", day),
		zap.Int("items", len(marks)),
		zap.Int("upserted", result.Upserted),
		zap.Int("modified", result.Modified),
	)
	return result.Affected(), nil
}

// markDay resolves the day a batch applies to. An empty value means today.
func (s *AttendanceService) markDay(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return startOfDay(s.now(), s.loc), nil
	}
	day, err := parseDay(raw, s.loc)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date is not a valid date")
	}
	return day, nil
}

func (s *AttendanceService) markFailure(result models.BulkMarkResult) error {
	for _, failure := range result.Failures {
		s.logger.Warn("attendance upsert failed",
			zap.Int("index", failure.Index),
			zap.String("student_id", failure.StudentID),
			zap.Error(failure.Err),
		)
	}
	for _, failure := range result.Failures {
		if appErrors.IsDuplicateKey(failure.Err) {
			return appErrors.Wrap(failure.Err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "duplicate attendance detected")
		}
	}
	return appErrors.Wrap(result.Failures[0].Err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
}

func (s *AttendanceService) storeError(err error, message string) error {
	if appErrors.IsDuplicateKey(err) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "duplicate attendance detected")
	}
	s.logger.Error(message, zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *AttendanceService) recordMarked(marks []models.AttendanceMark) {
	counts := make(map[models.AttendanceStatus]int, len(models.AttendanceStatuses))
	for _, mark := range marks {
		counts[mark.Status]++
	}
	for status, n := range counts {
		s.metrics.RecordAttendanceMarked(status, n)
	}
}

// invalidateSummaries moves summaries to a new generation before dropping the old
// entries, so a summary computed concurrently with the mark is stored under a key
// that is never read again.
func (s *AttendanceService) invalidateSummaries(ctx context.Context) {
	_ = s.cache.Incr(ctx, summaryGenerationCacheKey)
	_ = s.cache.Invalidate(ctx, summaryCachePrefix+"*")
}

// History returns one page of records, newest first, with the total matching count.
func (s *AttendanceService) History(ctx context.Context, query dto.AttendanceHistoryQuery) (*dto.AttendanceHistoryResponse, error) {
	filter, err := NewHistoryFilter(query, s.loc, s.students.ValidID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	records, err := s.store.List(ctx, filter)
	s.metrics.ObserveStoreQuery("attendance_history", time.Since(start))
	if err != nil {
		return nil, s.storeError(err, "failed to load attendance history")
	}

	start = time.Now()
	total, err := s.store.Count(ctx, filter)
	s.metrics.ObserveStoreQuery("attendance_count", time.Since(start))
	if err != nil {
		return nil, s.storeError(err, "failed to count attendance history")
	}

	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return &dto.AttendanceHistoryResponse{
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Items:    records,
	}, nil
}

// Summary returns per-student status counters ordered by student name. Cache failures
// fall back to the store.
func (s *AttendanceService) Summary(ctx context.Context, query dto.AttendanceSummaryQuery) ([]models.AttendanceSummaryRow, error) {
	filter, err := NewSummaryFilter(query, s.loc)
	if err != nil {
		return nil, err
	}

	generation, genErr := s.cache.Counter(ctx, summaryGenerationCacheKey)
	key := summaryCacheKey(generation, filter)
	if genErr == nil {
		var cached []models.AttendanceSummaryRow
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	start := time.Now()
	rows, err := s.store.Summary(ctx, filter)
	s.metrics.ObserveStoreQuery("attendance_summary", time.Since(start))
	if err != nil {
		return nil, s.storeError(err, "failed to summarize attendance")
	}
	if rows == nil {
		rows = []models.AttendanceSummaryRow{}
	}

	if genErr == nil {
		_ = s.cache.Set(ctx, key, rows, s.cacheTTL)
	}
	return rows, nil
}

// ExportSummary renders the summary for the query as a CSV or PDF document.
func (s *AttendanceService) ExportSummary(ctx context.Context, query dto.AttendanceSummaryQuery, format string) (*dto.ExportFile, error) {
	exportFormat := dto.ExportFormat(strings.ToLower(strings.TrimSpace(format)))
	if exportFormat == "" {
		exportFormat = dto.ExportFormatCSV
	}
	exporter, ok := s.exporters[exportFormat]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	rows, err := s.Summary(ctx, query)
	if err != nil {
		return nil, err
	}

	body, err := exporter.Render(summaryTable(rows))
	if err != nil {
		s.logger.Error("render attendance summary failed", zap.String("format", string(exportFormat)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export attendance summary")
	}
	return &dto.ExportFile{
		Filename:    fmt.Sprintf("attendance-summary-%s.%s", s.now().In(s.loc).Format("20060102"), exporter.Extension()),
		ContentType: exporter.ContentType(),
		Body:        body,
	}, nil
}

func summaryTable(rows []models.AttendanceSummaryRow) export.Table {
	table := export.Table{
		Title: "Attendance summary",
		Columns: []export.Column{
			{Key: "student", Title: "Student", Width: 3},
			{Key: "code", Title: "Code", Width: 1.5},
			{Key: "course", Title: "Course"},
			{Key: "section", Title: "Section"},
			{Key: "present", Title: "Present"},
			{Key: "absent", Title: "Absent"},
			{Key: "late", Title: "Late"},
			{Key: "excused", Title: "Excused"},
			{Key: "total", Title: "Total"},
		},
		Rows: make([]map[string]string, 0, len(rows)),
	}
	for _, row := range rows {
		table.Rows = append(table.Rows, map[string]string{
			"student": row.Student.Name,
			"code":    row.Student.Code,
			"course":  strconv.Itoa(row.Student.Course),
			"section": row.Student.Section,
			"present": strconv.Itoa(row.PresentCount),
			"absent":  strconv.Itoa(row.AbsentCount),
			"late":    strconv.Itoa(row.LateCount),
			"excused": strconv.Itoa(row.ExcusedCount),
			"total":   strconv.Itoa(row.Total()),
		})
	}
	return table
}
