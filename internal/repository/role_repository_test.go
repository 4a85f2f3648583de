package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agromarket-api/internal/models"
)

func TestUpsertByNameInsertsThenLocks(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoleRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (name) DO NOTHING")).
		WithArgs("Agent", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM roles WHERE name = $1 FOR UPDATE")).
		WithArgs("Agent").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "is_default", "permissions", "created_at", "updated_at"}).
			AddRow(int64(2), "Agent", false, int64(30|64), now, now))

	role, err := repo.UpsertByName(context.Background(), "Agent")
	require.NoError(t, err)
	assert.Equal(t, int64(2), role.ID)
	assert.Equal(t, models.Permission(94), role.Permissions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRole(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRoleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE roles SET is_default = $1, permissions = $2, updated_at = $3 WHERE id = $4")).
		WithArgs(true, models.Permission(6), sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Save(context.Background(), &models.Role{ID: 1, Name: "User", IsDefault: true, Permissions: 6})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
