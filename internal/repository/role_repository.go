package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agromarket-api/internal/models"
)

const roleColumns = `id, name, is_default, permissions, created_at, updated_at`

// RoleRepository provides database access for roles.
type RoleRepository struct {
	db sqlx.ExtContext
}

// NewRoleRepository creates a role repository bound to a database or transaction.
func NewRoleRepository(db sqlx.ExtContext) *RoleRepository {
	return &RoleRepository{db: db}
}

// List returns every role ordered by id.
func (r *RoleRepository) List(ctx context.Context) ([]models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles ORDER BY id`
	var roles []models.Role
	if err := sqlx.SelectContext(ctx, r.db, &roles, query); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// FindByName returns a role by its unique name.
func (r *RoleRepository) FindByName(ctx context.Context, name string) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE name = $1 LIMIT 1`
	var role models.Role
	if err := sqlx.GetContext(ctx, r.db, &role, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find role by name: %w", err)
	}
	return &role, nil
}

// FindDefault returns the role flagged as default.
func (r *RoleRepository) FindDefault(ctx context.Context) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE is_default = TRUE LIMIT 1`
	var role models.Role
	if err := sqlx.GetContext(ctx, r.db, &role, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find default role: %w", err)
	}
	return &role, nil
}

// UpsertByName inserts the role if missing and returns the stored row locked
// for the rest of the transaction.
func (r *RoleRepository) UpsertByName(ctx context.Context, name string) (*models.Role, error) {
	const insertQuery = `INSERT INTO roles (name, created_at, updated_at) VALUES ($1, $2, $2) ON CONFLICT (name) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insertQuery, name, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert role: %w", err)
	}
	query := `SELECT ` + roleColumns + ` FROM roles WHERE name = $1 FOR UPDATE`
	var role models.Role
	if err := sqlx.GetContext(ctx, r.db, &role, query, name); err != nil {
		return nil, fmt.Errorf("lock role: %w", err)
	}
	return &role, nil
}

// ClearDefaults unsets the default flag on every role.
func (r *RoleRepository) ClearDefaults(ctx context.Context) error {
	const query = `UPDATE roles SET is_default = FALSE WHERE is_default = TRUE`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("clear default roles: %w", err)
	}
	return nil
}

// Save persists the permission bitmask and default flag of role.
func (r *RoleRepository) Save(ctx context.Context, role *models.Role) error {
	role.UpdatedAt = time.Now().UTC()
	const query = `UPDATE roles SET is_default = :is_default, permissions = :permissions, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, role); err != nil {
		return fmt.Errorf("save role: %w", err)
	}
	return nil
}
