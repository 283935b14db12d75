package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/cuaderno-api/internal/dto"
	"github.com/noah-isme/cuaderno-api/internal/models"
	appErrors "github.com/noah-isme/cuaderno-api/pkg/errors"
)

const (
	defaultHistoryPage     = 1
	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 200
)

var dayLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseDay reads a date in one of the accepted layouts and returns midnight of that
// calendar day in loc. Layouts without a zone are read in loc.
func parseDay(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dayLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return startOfDay(t, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", raw)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// endOfDay returns the last millisecond of the day that starts at day.
func endOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, day.Location()).Add(-time.Millisecond)
}

func parseOptionalInt(name, raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be a number", name))
	}
	return &v, nil
}

func parseDateRange(rawFrom, rawTo string, loc *time.Location) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if strings.TrimSpace(rawFrom) != "" {
		day, err := parseDay(rawFrom, loc)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "dateFrom is not a valid date")
		}
		from = &day
	}
	if strings.TrimSpace(rawTo) != "" {
		day, err := parseDay(rawTo, loc)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "dateTo is not a valid date")
		}
		end := endOfDay(day)
		to = &end
	}
	return from, to, nil
}

// NewHistoryFilter validates a history query. Empty parameters impose no constraint;
// malformed ones are rejected. validID checks the student id format of the active store.
func NewHistoryFilter(query dto.AttendanceHistoryQuery, loc *time.Location, validID func(string) bool) (models.AttendanceFilter, error) {
	filter := models.AttendanceFilter{
		StudentID: strings.TrimSpace(query.StudentID),
		Section:   strings.TrimSpace(query.Section),
		Page:      defaultHistoryPage,
		PageSize:  defaultHistoryPageSize,
	}
	if filter.StudentID != "" && validID != nil && !validID(filter.StudentID) {
		return models.AttendanceFilter{}, appErrors.Clone(appErrors.ErrValidation, "studentId is not a valid id")
	}

	course, err := parseOptionalInt("course", query.Course)
	if err != nil {
		return models.AttendanceFilter{}, err
	}
	filter.Course = course

	page, err := parseOptionalInt("page", query.Page)
	if err != nil {
		return models.AttendanceFilter{}, err
	}
	if page != nil && *page > 1 {
		filter.Page = *page
	}

	rawSize := query.PageSize
	if strings.TrimSpace(rawSize) == "" {
		rawSize = query.Limit
	}
	size, err := parseOptionalInt("pageSize", rawSize)
	if err != nil {
		return models.AttendanceFilter{}, err
	}
	if size != nil && *size > 0 {
		filter.PageSize = *size
	}
	if filter.PageSize > maxHistoryPageSize {
		filter.PageSize = maxHistoryPageSize
	}
	if filter.Page > math.MaxInt32/filter.PageSize {
		return models.AttendanceFilter{}, appErrors.Clone(appErrors.ErrValidation, "page is out of range")
	}

	filter.DateFrom, filter.DateTo, err = parseDateRange(query.DateFrom, query.DateTo, loc)
	if err != nil {
		return models.AttendanceFilter{}, err
	}
	return filter, nil
}

// NewSummaryFilter validates a summary query with the same rules as history filters.
func NewSummaryFilter(query dto.AttendanceSummaryQuery, loc *time.Location) (models.AttendanceSummaryFilter, error) {
	course, err := parseOptionalInt("course", query.Course)
	if err != nil {
		return models.AttendanceSummaryFilter{}, err
	}
	from, to, err := parseDateRange(query.DateFrom, query.DateTo, loc)
	if err != nil {
		return models.AttendanceSummaryFilter{}, err
	}
	return models.AttendanceSummaryFilter{
		Course:   course,
		Section:  strings.TrimSpace(query.Section),
		DateFrom: from,
		DateTo:   to,
	}, nil
}

// summaryCacheKey renders the normalised filter so equivalent queries share an entry.
// Present values are quoted so they never collide with the "*" of an absent one.
// generation changes on every mark, so entries computed before a mark are never read again.
func summaryCacheKey(generation int64, filter models.AttendanceSummaryFilter) string {
	course := "*"
	if filter.Course != nil {
		course = strconv.Quote(strconv.Itoa(*filter.Course))
	}
	section := "*"
	if filter.Section != "" {
		section = strconv.Quote(filter.Section)
	}
	from, to := "*", "*"
	if filter.DateFrom != nil {
		from = strconv.Quote(filter.DateFrom.UTC().Format(time.RFC3339))
	}
	if filter.DateTo != nil {
		to = strconv.Quote(filter.DateTo.UTC().Format(time.RFC3339Nano))
	}
	return fmt.Sprintf("%s%d:%s:%s:%s:%s", summaryCachePrefix, generation, course, section, from, to)
}
