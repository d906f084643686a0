package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendance-api/internal/models"
)

func TestRecipientRepositoryUserIDsByRoles(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRecipientRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE active = TRUE AND role = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("adm-1").AddRow("mgr-1"))

	ids, err := repo.UserIDsByRoles(context.Background(), models.RoleAdmin, models.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, []string{"adm-1", "mgr-1"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientRepositorySubjectTeacherMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRecipientRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT t.user_id FROM subjects sub")).
		WithArgs("sub-1").
		WillReturnError(sql.ErrNoRows)

	id, err := repo.SubjectTeacherUserID(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Empty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientRepositoryGroupTeachers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRecipientRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT t.user_id")).
		WithArgs("grp-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("tch-usr-1").AddRow("tch-usr-2"))

	ids, err := repo.GroupTeacherUserIDs(context.Background(), "grp-1")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientRepositoryGroupStudents(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRecipientRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id FROM students WHERE group_id = $1")).
		WithArgs("grp-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("stu-user-1"))

	ids, err := repo.GroupStudentUserIDs(context.Background(), "grp-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"stu-user-1"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
