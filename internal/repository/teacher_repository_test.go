package repository

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestTeacherRepositoryDeleteByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTeacherRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM teachers WHERE id = $1")).
		WithArgs("tea-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM teachers WHERE id = $1")).
		WithArgs("tea-2").
		WillReturnResult(sqlmock.NewErrorResult(fmt.Errorf("driver gave up")))

	found, err := repo.DeleteByID(context.Background(), "tea-1")
	require.NoError(t, err)
	require.True(t, found)

	found, err = repo.DeleteByID(context.Background(), "tea-2")
	require.Error(t, err)
	require.Contains(t, err.Error(), "driver gave up")
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryListEmployeeNos(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTeacherRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT employee_no FROM teachers")).
		WillReturnRows(sqlmock.NewRows([]string{"employee_no"}).AddRow("SOA4K92T").AddRow("SOA7Q31M"))

	nos, err := repo.ListEmployeeNos(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"SOA4K92T", "SOA7Q31M"}, nos)
	require.NoError(t, mock.ExpectationsWereMet())
}
