package tasks

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/taskmanager/internal/common"
	"github.com/dmitrijs2005/taskmanager/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock, db
}

var joinedColumns = []string{"id", "title", "status", "user_id", "created_at", "updated_at", "id", "username", "email"}

const (
	listQuery   = `(?s)^SELECT\s+t\.id,.*FROM\s+tasks\s+t\s+JOIN\s+users\s+u\s+ON\s+u\.id\s*=\s*t\.user_id\s+WHERE\s+t\.user_id\s*=\s*\$1\s+ORDER\s+BY\s+t\.id\s*$`
	getQuery    = `(?s)^SELECT\s+t\.id,.*WHERE\s+t\.id\s*=\s*\$1\s+AND\s+t\.user_id\s*=\s*\$2\s*$`
	insertQuery = `(?s)^INSERT\s+INTO\s+tasks\s*\(title,\s*status,\s*user_id\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*RETURNING\s+id,\s*created_at,\s*updated_at\s*$`
	updateQuery = `(?s)^UPDATE\s+tasks\s+SET\s+title\s*=\s*COALESCE\(NULLIF\(\$1,\s*''\),\s*title\),\s*status\s*=\s*COALESCE\(NULLIF\(\$2,\s*''\),\s*status\),.*WHERE\s+id\s*=\s*\$3\s+AND\s+user_id\s*=\s*\$4\s+RETURNING.*$`
	deleteQuery = `(?s)^DELETE\s+FROM\s+tasks\s+WHERE\s+id\s*=\s*\$1\s+AND\s+user_id\s*=\s*\$2\s*$`
)

func TestListByUser(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	now := time.Now()
	mock.ExpectQuery(listQuery).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(joinedColumns).
			AddRow(int64(1), "Buy milk", "todo", int64(42), now, now, int64(42), "alice", "a@x.com").
			AddRow(int64(2), "Walk dog", "done", int64(42), now, now, int64(42), "alice", "a@x.com"))

	got, err := repo.ListByUser(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Buy milk", got[0].Title)
	assert.Equal(t, &models.TaskOwner{ID: 42, Username: "alice", Email: "a@x.com"}, got[1].User)
}

func TestListByUser_EmptyIsNotNil(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectQuery(listQuery).WithArgs(int64(5)).WillReturnRows(sqlmock.NewRows(joinedColumns))

	got, err := repo.ListByUser(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListByUser_DBError(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectQuery(listQuery).WithArgs(int64(5)).WillReturnError(errors.New("db down"))

	_, err := repo.ListByUser(context.Background(), 5)
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
}

func TestCreate(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	now := time.Now()
	mock.ExpectQuery(insertQuery).
		WithArgs("Buy milk", "todo", int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(9), now, now))

	got, err := repo.Create(context.Background(), &models.Task{Title: "Buy milk", Status: "todo", UserID: 42})
	require.NoError(t, err)
	assert.Equal(t, int64(9), got.ID)
	assert.Equal(t, int64(42), got.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForUser(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	now := time.Now()
	mock.ExpectQuery(getQuery).
		WithArgs(int64(1), int64(42)).
		WillReturnRows(sqlmock.NewRows(joinedColumns).
			AddRow(int64(1), "Buy milk", "todo", int64(42), now, now, int64(42), "alice", "a@x.com"))

	got, err := repo.GetForUser(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)

	mock.ExpectQuery(getQuery).WithArgs(int64(1), int64(7)).WillReturnError(sql.ErrNoRows)
	_, err = repo.GetForUser(context.Background(), 1, 7)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdateForUser(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	now := time.Now()
	mock.ExpectQuery(updateQuery).
		WithArgs("", "done", int64(1), int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status", "user_id", "created_at", "updated_at"}).
			AddRow(int64(1), "Buy milk", "done", int64(42), now, now))

	got, err := repo.UpdateForUser(context.Background(), 1, 42, "", "done")
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", got.Title)
	assert.Equal(t, "done", got.Status)

	mock.ExpectQuery(updateQuery).WithArgs("x", "", int64(1), int64(7)).WillReturnError(sql.ErrNoRows)
	_, err = repo.UpdateForUser(context.Background(), 1, 7, "x", "")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDeleteForUser(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectExec(deleteQuery).WithArgs(int64(1), int64(42)).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeleteForUser(context.Background(), 1, 42))

	mock.ExpectExec(deleteQuery).WithArgs(int64(1), int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.DeleteForUser(context.Background(), 1, 7), common.ErrorNotFound)

	mock.ExpectExec(deleteQuery).WithArgs(int64(2), int64(42)).WillReturnError(errors.New("db err"))
	err := repo.DeleteForUser(context.Background(), 2, 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error: db err")
}
