package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cuaderno-api/internal/models"
)

var studentRowColumns = []string{"id", "name", "course", "section", "code", "code_used"}

func TestStudentRepositoryValidID(t *testing.T) {
	repo := NewStudentRepository(nil)
	assert.True(t, repo.ValidID("0f8d0c9e-6b8b-4b55-9a52-8e1e0d1e6c11"))
	assert.False(t, repo.ValidID("65f0c0ffee0000000000abcd"))
	assert.False(t, repo.ValidID(""))
}

func TestStudentRepositoryFindByIDs(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, course, section, code, code_used FROM students WHERE id = ANY($1)")).
		WillReturnRows(sqlmock.NewRows(studentRowColumns).AddRow("s1", "Ana", 3, "A", "ABC-12-345", false))

	students, err := repo.FindByIDs(context.Background(), []string{"s1", "s2"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "Ana", students[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByIDsEmpty(t *testing.T) {
	repo := NewStudentRepository(nil)
	students, err := repo.FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, students)
}

func TestStudentRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("FROM students WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStudentRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	course := 2
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE 1=1 AND course = $1 AND section = $2 ORDER BY course, section, name")).
		WithArgs(2, "B").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).
			AddRow("s1", "Ana", 2, "B", "ABC-12-345", false).
			AddRow("s2", "Bruno", 2, "B", "ABD-12-346", true))

	students, err := repo.List(context.Background(), models.StudentFilter{Course: &course, Section: "B"})
	require.NoError(t, err)
	assert.Len(t, students, 2)
	assert.True(t, students[1].CodeUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
