package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agromarket-api/internal/models"
)

const productColumns = `id, name, type, variety, location, description, price, is_available, supplier_id, owner_id, image, created_at, updated_at`

// ProductRepository provides database access for the product ledger.
type ProductRepository struct {
	db sqlx.ExtContext
}

// NewProductRepository creates a product repository bound to a database or transaction.
func NewProductRepository(db sqlx.ExtContext) *ProductRepository {
	return &ProductRepository{db: db}
}

// ListAvailable returns products nobody owns, newest first.
func (r *ProductRepository) ListAvailable(ctx context.Context) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE owner_id IS NULL ORDER BY created_at DESC`
	var products []models.Product
	if err := sqlx.SelectContext(ctx, r.db, &products, query); err != nil {
		return nil, fmt.Errorf("list available products: %w", err)
	}
	return products, nil
}

// ListOwnedBy returns the products owned by userID, newest first.
func (r *ProductRepository) ListOwnedBy(ctx context.Context, userID string) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE owner_id = $1 ORDER BY created_at DESC`
	var products []models.Product
	if err := sqlx.SelectContext(ctx, r.db, &products, query, userID); err != nil {
		return nil, fmt.Errorf("list owned products: %w", err)
	}
	return products, nil
}

// FindByID returns a product by identifier.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 LIMIT 1`
	var product models.Product
	if err := sqlx.GetContext(ctx, r.db, &product, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find product: %w", err)
	}
	return &product, nil
}

// GetForUpdate returns the product row locked until the surrounding transaction ends.
func (r *ProductRepository) GetForUpdate(ctx context.Context, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`
	var product models.Product
	if err := sqlx.GetContext(ctx, r.db, &product, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}
	return &product, nil
}

// LockName takes a transaction-scoped advisory lock on the case-folded name so
// that a name check and the write that follows it cannot interleave with
// another writer using the same name.
func (r *ProductRepository) LockName(ctx context.Context, name string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext(LOWER($1)))`
	if _, err := r.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("lock product name: %w", err)
	}
	return nil
}

// NameExists reports whether another product already uses name.
func (r *ProductRepository) NameExists(ctx context.Context, name, excludeID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM products WHERE LOWER(name) = LOWER($1) AND id::text <> $2)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, query, name, excludeID); err != nil {
		return false, fmt.Errorf("check product name: %w", err)
	}
	return exists, nil
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	const query = `INSERT INTO products (id, name, type, variety, location, description, price, is_available, supplier_id, owner_id, image, created_at, updated_at)
VALUES (:id, :name, :type, :variety, :location, :description, :price, :is_available, :supplier_id, :owner_id, :image, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, product); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// Update writes every editable column of product in one statement.
func (r *ProductRepository) Update(ctx context.Context, product *models.Product) error {
	product.UpdatedAt = time.Now().UTC()
	const query = `UPDATE products SET name = :name, type = :type, variety = :variety, location = :location,
description = :description, price = :price, is_available = :is_available, image = :image, updated_at = :updated_at
WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.db, query, product)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return expectAffected(res, "update product")
}

// SetOwner transfers ownership. A nil ownerID returns the product to the market.
func (r *ProductRepository) SetOwner(ctx context.Context, id string, ownerID *string) error {
	const query = `UPDATE products SET owner_id = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, ownerID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set product owner: %w", err)
	}
	return expectAffected(res, "set product owner")
}

// Delete removes a product permanently.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM products WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return expectAffected(res, "delete product")
}
