package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agromarket-api/internal/models"
)

var productRowColumns = []string{"id", "name", "type", "variety", "location", "description", "price", "is_available",
	"supplier_id", "owner_id", "image", "created_at", "updated_at"}

func productRows(id string, owner interface{}, price int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(productRowColumns).
		AddRow(id, "Maize", "grain", "yellow", "Jos", "", price, true, "supplier-1", owner, models.DefaultProductImage, now, now)
}

func TestListAvailableFiltersUnowned(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProductRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE owner_id IS NULL ORDER BY created_at DESC")).
		WillReturnRows(productRows("p-1", nil, 100))

	products, err := repo.ListAvailable(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.True(t, products[0].OnMarket())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetForUpdateLocksRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProductRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = $1 FOR UPDATE")).
		WithArgs("p-1").
		WillReturnRows(productRows("p-1", "buyer-1", 100))

	product, err := repo.GetForUpdate(context.Background(), "p-1")
	require.NoError(t, err)
	assert.True(t, product.OwnedBy("buyer-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNameExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProductRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM products WHERE LOWER(name) = LOWER($1)")).
		WithArgs("Maize", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.NameExists(context.Background(), "Maize", "")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSetOwnerMissingProduct(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProductRepository(db)

	mock.ExpectExec("UPDATE products SET owner_id").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetOwner(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDeleteProduct(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewProductRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM products WHERE id = $1")).WithArgs("p-1").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "p-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerCommitsPurchaseUnit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	manager := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = $1 FOR UPDATE")).
		WithArgs("p-1").
		WillReturnRows(productRows("p-1", nil, 100))
	mock.ExpectExec("UPDATE products SET owner_id").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET wallet").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := manager.Execute(context.Background(), func(scope Scope) error {
		product, err := scope.Products().GetForUpdate(context.Background(), "p-1")
		if err != nil {
			return err
		}
		buyer := "buyer-1"
		if err := scope.Products().SetOwner(context.Background(), product.ID, &buyer); err != nil {
			return err
		}
		return scope.Users().AdjustBalance(context.Background(), buyer, -product.Price, models.RewardPoints(product.Price))
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	manager := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE products SET owner_id").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := manager.Execute(context.Background(), func(scope Scope) error {
		if err := scope.Products().SetOwner(context.Background(), "p-1", nil); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerSerializesNamedInsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	manager := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext(LOWER($1)))")).
		WithArgs("Maize").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM products WHERE LOWER(name) = LOWER($1)")).
		WithArgs("Maize", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO products").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := manager.Execute(context.Background(), func(scope Scope) error {
		if err := scope.Products().LockName(context.Background(), "Maize"); err != nil {
			return err
		}
		exists, err := scope.Products().NameExists(context.Background(), "Maize", "")
		if err != nil || exists {
			return errors.New("name taken")
		}
		return scope.Products().Create(context.Background(), &models.Product{Name: "Maize", Price: 100, SupplierID: "supplier-1"})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProductInsideTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	manager := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = $1 FOR UPDATE")).
		WithArgs("p-1").
		WillReturnRows(productRows("p-1", "owner-1", 100))
	mock.ExpectExec("UPDATE products SET name").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := manager.Execute(context.Background(), func(scope Scope) error {
		product, err := scope.Products().GetForUpdate(context.Background(), "p-1")
		if err != nil {
			return err
		}
		product.Price = 150
		return scope.Products().Update(context.Background(), product)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
