package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agromarket-api/internal/models"
)

func TestListAllCooperativesOrderedByName(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCooperativeRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY c.id ORDER BY c.name")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "purpose", "products", "location", "created_at", "member_count"}).
			AddRow("c-1", "Alpha", "grain", "maize", "Jos", now, 2).
			AddRow("c-2", "Beta", "tubers", "yam", "Benue", now, 0))

	coops, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, coops, 2)
	assert.Equal(t, "Alpha", coops[0].Name)
	assert.Equal(t, 2, coops[0].MemberCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCooperativeDuplicateName(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCooperativeRepository(db)

	mock.ExpectExec("INSERT INTO cooperatives").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "cooperatives_name_key"})

	err := repo.Create(context.Background(), &models.Cooperative{Name: "Alpha"})
	assert.ErrorIs(t, err, ErrDuplicateName)
}
