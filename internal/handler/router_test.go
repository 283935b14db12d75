package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cuaderno-api/internal/dto"
	"github.com/noah-isme/cuaderno-api/internal/models"
	"github.com/noah-isme/cuaderno-api/internal/service"
	appErrors "github.com/noah-isme/cuaderno-api/pkg/errors"
)

// roleResolver treats the bearer token as the caller's role.
type roleResolver struct{}

func (roleResolver) Resolve(ctx context.Context, token string) (*models.Identity, error) {
	role := models.UserRole(token)
	if !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return &models.Identity{UserID: "user-" + token, Role: role, Name: "Test " + token}, nil
}

type attendanceServiceMock struct {
	marked    []dto.MarkAttendanceRequest
	actor     models.Identity
	markErr   error
	history   dto.AttendanceHistoryQuery
	summary   []models.AttendanceSummaryRow
	exportFmt string
}

func (m *attendanceServiceMock) Mark(ctx context.Context, actor models.Identity, req dto.MarkAttendanceRequest) (int, error) {
	if m.markErr != nil {
		return 0, m.markErr
	}
	m.actor = actor
	m.marked = append(m.marked, req)
	return len(req.Items), nil
}

func (m *attendanceServiceMock) History(ctx context.Context, query dto.AttendanceHistoryQuery) (*dto.AttendanceHistoryResponse, error) {
	m.history = query
	if query.Course == "abc" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course must be a number")
	}
	return &dto.AttendanceHistoryResponse{
		Total:    1,
		Page:     1,
		PageSize: 20,
		Items: []models.AttendanceRecord{{
			ID:        "rec-1",
			StudentID: "s1",
			Status:    models.AttendanceStatusPresent,
			Student:   &models.StudentRef{Name: "Ana"},
		}},
	}, nil
}

func (m *attendanceServiceMock) Summary(ctx context.Context, query dto.AttendanceSummaryQuery) ([]models.AttendanceSummaryRow, error) {
	return m.summary, nil
}

func (m *attendanceServiceMock) ExportSummary(ctx context.Context, query dto.AttendanceSummaryQuery, format string) (*dto.ExportFile, error) {
	m.exportFmt = format
	if format == "xml" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	return &dto.ExportFile{Filename: "attendance-summary-20240304.csv", ContentType: "text/csv", Body: []byte("student,present\n")}, nil
}

type studentServiceMock struct{}

func (studentServiceMock) List(ctx context.Context, query dto.StudentListQuery) ([]models.Student, error) {
	return []models.Student{{ID: "s1", Name: "Ana", Course: 3, Section: "A"}}, nil
}

func (studentServiceMock) Get(ctx context.Context, id string) (*models.Student, error) {
	if id != "s1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return &models.Student{ID: "s1", Name: "Ana", Course: 3, Section: "A"}, nil
}

type pingerStub struct{ err error }

func (p pingerStub) PingContext(ctx context.Context) error { return p.err }

func buildTestRouter(attendance *attendanceServiceMock, store Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{APIPrefix: "/api"}, RouterDeps{
		Metrics:    service.NewMetricsService(),
		Identity:   roleResolver{},
		Attendance: NewAttendanceHandler(attendance),
		Students:   NewStudentHandler(studentServiceMock{}),
		Probes:     NewMetricsHandler(service.NewMetricsService(), store, "postgres"),
	})
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func authorized(req *http.Request, role models.UserRole) *http.Request {
	req.Header.Set("Authorization", "Bearer "+string(role))
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAttendanceRoutesAccess(t *testing.T) {
	router := buildTestRouter(&attendanceServiceMock{}, pingerStub{})

	cases := []struct {
		name   string
		role   models.UserRole
		status int
	}{
		{name: "admin allowed", role: models.RoleAdmin, status: http.StatusOK},
		{name: "teacher allowed", role: models.RoleTeacher, status: http.StatusOK},
		{name: "family forbidden", role: models.RoleFamily, status: http.StatusForbidden},
		{name: "anonymous rejected", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/api/attendance/history", nil)
			if tc.role != "" {
				authorized(req, tc.role)
			}
			resp := performRequest(router, req)
			require.Equal(t, tc.status, resp.Code)
			body := decode(t, resp)
			assert.Equal(t, tc.status == http.StatusOK, body["ok"])
		})
	}
}

func TestMarkAttendanceHandler(t *testing.T) {
	t.Run("success passes the caller", func(t *testing.T) {
		svc := &attendanceServiceMock{}
		router := buildTestRouter(svc, pingerStub{})
		payload := `{"date":"2024-03-04","items":[{"studentId":"s1","status":"Present"},{"studentId":"s2","status":"Absent"}]}`
		req, _ := http.NewRequest(http.MethodPost, "/api/attendance/mark", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, authorized(req, models.RoleTeacher))

		require.Equal(t, http.StatusOK, resp.Code)
		body := decode(t, resp)
		assert.Equal(t, true, body["ok"])
		assert.Equal(t, float64(2), body["count"])
		require.Len(t, svc.marked, 1)
		assert.Equal(t, "2024-03-04", svc.marked[0].Date)
		assert.Equal(t, "user-teacher", svc.actor.UserID)
	})

	t.Run("malformed body", func(t *testing.T) {
		router := buildTestRouter(&attendanceServiceMock{}, pingerStub{})
		req, _ := http.NewRequest(http.MethodPost, "/api/attendance/mark", bytes.NewBufferString(`{"items":`))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, authorized(req, models.RoleAdmin))

		require.Equal(t, http.StatusBadRequest, resp.Code)
		body := decode(t, resp)
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, appErrors.ErrValidation.Code, body["code"])
	})

	t.Run("service error status is preserved", func(t *testing.T) {
		svc := &attendanceServiceMock{markErr: appErrors.Clone(appErrors.ErrNotFound, "student not found")}
		router := buildTestRouter(svc, pingerStub{})
		req, _ := http.NewRequest(http.MethodPost, "/api/attendance/mark", bytes.NewBufferString(`{"items":[{"studentId":"x","status":"Present"}]}`))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, authorized(req, models.RoleAdmin))

		require.Equal(t, http.StatusNotFound, resp.Code)
		assert.Equal(t, "student not found", decode(t, resp)["message"])
	})

	t.Run("internal causes are hidden", func(t *testing.T) {
		svc := &attendanceServiceMock{markErr: errors.New("pq: connection refused")}
		router := buildTestRouter(svc, pingerStub{})
		req, _ := http.NewRequest(http.MethodPost, "/api/attendance/mark", bytes.NewBufferString(`{"items":[{"studentId":"x","status":"Present"}]}`))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, authorized(req, models.RoleAdmin))

		require.Equal(t, http.StatusInternalServerError, resp.Code)
		assert.NotContains(t, resp.Body.String(), "connection refused")
	})
}

func TestHistoryHandler(t *testing.T) {
	svc := &attendanceServiceMock{}
	router := buildTestRouter(svc, pingerStub{})

	req, _ := http.NewRequest(http.MethodGet, "/api/attendance/history?studentId=s1&limit=5&dateFrom=2024-03-01", nil)
	resp := performRequest(router, authorized(req, models.RoleAdmin))
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(20), body["pageSize"])
	items, ok := body["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "s1", svc.history.StudentID)
	assert.Equal(t, "5", svc.history.Limit)
	assert.Equal(t, "2024-03-01", svc.history.DateFrom)

	req, _ = http.NewRequest(http.MethodGet, "/api/attendance/history?course=abc", nil)
	resp = performRequest(router, authorized(req, models.RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSummaryHandlers(t *testing.T) {
	svc := &attendanceServiceMock{summary: []models.AttendanceSummaryRow{
		{StudentID: "s1", Student: models.StudentRef{Name: "Ana"}, PresentCount: 3, AbsentCount: 1},
	}}
	router := buildTestRouter(svc, pingerStub{})

	req, _ := http.NewRequest(http.MethodGet, "/api/attendance/summary?course=3", nil)
	resp := performRequest(router, authorized(req, models.RoleTeacher))
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode(t, resp)
	assert.Equal(t, float64(1), body["count"])
	summary := body["summary"].([]interface{})
	row := summary[0].(map[string]interface{})
	assert.Equal(t, float64(3), row["presentCount"])
	assert.Equal(t, float64(1), row["absentCount"])

	req, _ = http.NewRequest(http.MethodGet, "/api/attendance/summary/export?format=csv", nil)
	resp = performRequest(router, authorized(req, models.RoleTeacher))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/csv", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "attendance-summary-20240304.csv")
	assert.Equal(t, "csv", svc.exportFmt)

	req, _ = http.NewRequest(http.MethodGet, "/api/attendance/summary/export?format=xml", nil)
	resp = performRequest(router, authorized(req, models.RoleTeacher))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStudentRoutes(t *testing.T) {
	router := buildTestRouter(&attendanceServiceMock{}, pingerStub{})

	req, _ := http.NewRequest(http.MethodGet, "/api/students?course=3", nil)
	resp := performRequest(router, authorized(req, models.RoleTeacher))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(1), decode(t, resp)["count"])

	req, _ = http.NewRequest(http.MethodGet, "/api/students/s1", nil)
	resp = performRequest(router, authorized(req, models.RoleTeacher))
	require.Equal(t, http.StatusOK, resp.Code)
	student := decode(t, resp)["student"].(map[string]interface{})
	assert.Equal(t, "Ana", student["name"])

	req, _ = http.NewRequest(http.MethodGet, "/api/students/missing", nil)
	resp = performRequest(router, authorized(req, models.RoleTeacher))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestProbesAndFallback(t *testing.T) {
	t.Run("health reports store state", func(t *testing.T) {
		router := buildTestRouter(&attendanceServiceMock{}, pingerStub{})
		req, _ := http.NewRequest(http.MethodGet, "/api/health", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		body := decode(t, resp)
		assert.Equal(t, true, body["ok"])
		assert.Equal(t, "connected", body["store"])
		assert.Contains(t, body, "uptime")
		_, err := time.Parse(time.RFC3339Nano, body["timestamp"].(string))
		assert.NoError(t, err)
	})

	t.Run("ready fails when store is down", func(t *testing.T) {
		router := buildTestRouter(&attendanceServiceMock{}, pingerStub{err: errors.New("down")})
		req, _ := http.NewRequest(http.MethodGet, "/api/ready", nil)
		resp := performRequest(router, req)
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)

		req, _ = http.NewRequest(http.MethodGet, "/api/health", nil)
		resp = performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "disconnected", decode(t, resp)["store"])
	})

	t.Run("metrics exposition", func(t *testing.T) {
		router := buildTestRouter(&attendanceServiceMock{}, pingerStub{})
		req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
		resp := performRequest(router, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	})

	t.Run("unknown route", func(t *testing.T) {
		router := buildTestRouter(&attendanceServiceMock{}, pingerStub{})
		req, _ := http.NewRequest(http.MethodGet, "/api/unknown", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNotFound, resp.Code)
		body := decode(t, resp)
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, "resource not found", body["message"])
	})
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "/", normalizePrefix(""))
	assert.Equal(t, "/api", normalizePrefix("api/"))
	assert.Equal(t, "/api/v1", normalizePrefix("/api/v1"))
}
