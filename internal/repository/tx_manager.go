package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agromarket-api/internal/models"
)

// RoleTx is the role surface available inside a transaction.
type RoleTx interface {
	UpsertByName(ctx context.Context, name string) (*models.Role, error)
	ClearDefaults(ctx context.Context) error
	Save(ctx context.Context, role *models.Role) error
}

// UserTx is the user surface available inside a transaction.
type UserTx interface {
	GetForUpdate(ctx context.Context, id string) (*models.User, error)
	AdjustBalance(ctx context.Context, id string, walletDelta, pointsDelta int64) error
}

// ProductTx is the product surface available inside a transaction.
type ProductTx interface {
	GetForUpdate(ctx context.Context, id string) (*models.Product, error)
	SetOwner(ctx context.Context, id string, ownerID *string) error
	LockName(ctx context.Context, name string) error
	NameExists(ctx context.Context, name, excludeID string) (bool, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
}

// ForumTx is the forum surface available inside a transaction.
type ForumTx interface {
	CreatePost(ctx context.Context, post *models.Post) error
	IncrementPostCount(ctx context.Context, forumID string) error
}

// Scope hands out repositories bound to a single transaction.
type Scope interface {
	Roles() RoleTx
	Users() UserTx
	Products() ProductTx
	Forums() ForumTx
}

// TxManager runs units of work in a read-committed transaction.
type TxManager struct {
	db   *sqlx.DB
	opts *sql.TxOptions
}

// NewTxManager constructs a transaction manager.
func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

// Execute runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise, including on panic.
func (m *TxManager) Execute(ctx context.Context, fn func(Scope) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, m.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(txScope{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txScope struct {
	tx *sqlx.Tx
}

func (s txScope) Roles() RoleTx       { return NewRoleRepository(s.tx) }
func (s txScope) Users() UserTx       { return NewUserRepository(s.tx) }
func (s txScope) Products() ProductTx { return NewProductRepository(s.tx) }
func (s txScope) Forums() ForumTx     { return NewForumRepository(s.tx) }
