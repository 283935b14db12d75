package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/cuaderno-api/internal/dto"
	"github.com/noah-isme/cuaderno-api/internal/models"
	"github.com/noah-isme/cuaderno-api/internal/repository"
	appErrors "github.com/noah-isme/cuaderno-api/pkg/errors"
)

type studentRepository interface {
	ValidID(id string) bool
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
}

// StudentService exposes the read-only student directory.
type StudentService struct {
	repo   studentRepository
	logger *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, logger: logger}
}

// List returns the students of a course and section. Both filters are optional.
func (s *StudentService) List(ctx context.Context, query dto.StudentListQuery) ([]models.Student, error) {
	filter := models.StudentFilter{Section: strings.TrimSpace(query.Section)}
	if raw := strings.TrimSpace(query.Course); raw != "" {
		course, err := strconv.Atoi(raw)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course must be a number")
		}
		filter.Course = &course
	}

	students, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("list students failed", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	id = strings.TrimSpace(id)
	if !s.repo.ValidID(id) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}
