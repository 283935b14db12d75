package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cuaderno-api/internal/dto"
	"github.com/noah-isme/cuaderno-api/internal/models"
	"github.com/noah-isme/cuaderno-api/internal/repository"
)

type mockStudentRepo struct {
	*memAttendanceStore
	lastFilter models.StudentFilter
	err        error
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.students[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	out := []models.Student{}
	for _, s := range m.students {
		if filter.Course != nil && s.Course != *filter.Course {
			continue
		}
		if filter.Section != "" && s.Section != filter.Section {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func TestStudentServiceList(t *testing.T) {
	repo := &mockStudentRepo{memAttendanceStore: newMemStore(defaultStudents()...)}
	svc := NewStudentService(repo, nil)

	students, err := svc.List(context.Background(), dto.StudentListQuery{Course: "3", Section: " A"})
	require.NoError(t, err)
	assert.Len(t, students, 2)
	require.NotNil(t, repo.lastFilter.Course)
	assert.Equal(t, 3, *repo.lastFilter.Course)
	assert.Equal(t, "A", repo.lastFilter.Section)

	_, err = svc.List(context.Background(), dto.StudentListQuery{Course: "tercero"})
	assertAppError(t, err, http.StatusBadRequest)

	repo.err = errors.New("boom")
	_, err = svc.List(context.Background(), dto.StudentListQuery{})
	assertAppError(t, err, http.StatusInternalServerError)
}

func TestStudentServiceGet(t *testing.T) {
	repo := &mockStudentRepo{memAttendanceStore: newMemStore(defaultStudents()...)}
	svc := NewStudentService(repo, nil)

	student, err := svc.Get(context.Background(), studentCarla)
	require.NoError(t, err)
	assert.Equal(t, "Carla", student.Name)

	_, err = svc.Get(context.Background(), "not-an-id")
	assertAppError(t, err, http.StatusNotFound)

	_, err = svc.Get(context.Background(), "0b0f7a3e-5c5d-4a43-9f1e-3f0d6f0a0fff")
	assertAppError(t, err, http.StatusNotFound)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest("GET", "/", 200, 0)
	m.RecordCacheOperation(true, 0)
	m.ObserveStoreQuery("x", 0)
	m.RecordAttendanceMarked(models.AttendanceStatusPresent, 1)
	assert.Nil(t, m.Registry())
}

func TestMetricsServiceCountsMarks(t *testing.T) {
	m := NewMetricsService()
	m.RecordAttendanceMarked(models.AttendanceStatusLate, 2)
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, family := range families {
		if family.GetName() == "attendance_marked_total" {
			found = true
			require.Len(t, family.GetMetric(), 1)
			assert.Equal(t, 2.0, family.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}
