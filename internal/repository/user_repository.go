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

const userSelect = `SELECT u.id, u.email, u.password_hash, u.role_id, r.name AS role_name, r.permissions AS role_permissions,
u.confirmed, u.firstname, u.lastname, u.mobile_no, u.location, u.date_of_birth, u.state_of_origin, u.country,
u.about_me, u.avatar_hash, u.cooperative_id, u.wallet, u.points, u.member_since, u.last_seen
FROM users u JOIN roles r ON r.id = u.role_id`

// UserRepository provides database access for the user directory.
type UserRepository struct {
	db sqlx.ExtContext
}

// NewUserRepository creates a user repository bound to a database or transaction.
func NewUserRepository(db sqlx.ExtContext) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) getOne(ctx context.Context, op, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	if err := sqlx.GetContext(ctx, r.db, &user, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "find user by id", userSelect+` WHERE u.id = $1 LIMIT 1`, id)
}

// FindByEmail returns a user by email, compared case-insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "find user by email", userSelect+` WHERE LOWER(u.email) = LOWER($1) LIMIT 1`, email)
}

// FindByMobile returns a user by mobile number.
func (r *UserRepository) FindByMobile(ctx context.Context, mobileNo string) (*models.User, error) {
	return r.getOne(ctx, "find user by mobile", userSelect+` WHERE u.mobile_no = $1 LIMIT 1`, mobileNo)
}

// GetForUpdate returns the user row locked until the surrounding transaction ends.
func (r *UserRepository) GetForUpdate(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, "lock user", userSelect+` WHERE u.id = $1 FOR UPDATE OF u`, id)
}

// Create inserts a new user. Unique violations map to ErrDuplicateEmail or
// ErrDuplicatePhone.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.MemberSince.IsZero() {
		user.MemberSince = now
	}
	if user.LastSeen.IsZero() {
		user.LastSeen = now
	}

	const query = `INSERT INTO users (id, email, password_hash, role_id, confirmed, firstname, lastname, mobile_no, location,
avatar_hash, wallet, points, member_since, last_seen)
VALUES (:id, :email, :password_hash, :role_id, :confirmed, :firstname, :lastname, :mobile_no, :location,
:avatar_hash, :wallet, :points, :member_since, :last_seen)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, user); err != nil {
		if dup := mapUserConflict(err); dup != nil {
			return dup
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateProfile persists the editable profile columns of user.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	const query = `UPDATE users SET firstname = :firstname, lastname = :lastname, location = :location,
date_of_birth = :date_of_birth, state_of_origin = :state_of_origin, country = :country, about_me = :about_me
WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, user); err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	return nil
}

// UpdateRole replaces the role of a user.
func (r *UserRepository) UpdateRole(ctx context.Context, id string, roleID int64) error {
	const query = `UPDATE users SET role_id = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, roleID)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	return expectAffected(res, "update user role")
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `UPDATE users SET password_hash = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Touch records the last time a user was seen.
func (r *UserRepository) Touch(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_seen = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	return nil
}

// SetCooperative links a user to a cooperative.
func (r *UserRepository) SetCooperative(ctx context.Context, id, cooperativeID string) error {
	const query = `UPDATE users SET cooperative_id = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, cooperativeID)
	if err != nil {
		return fmt.Errorf("set user cooperative: %w", err)
	}
	return expectAffected(res, "set user cooperative")
}

// ListByCooperative returns the members of a cooperative ordered by name.
func (r *UserRepository) ListByCooperative(ctx context.Context, cooperativeID string) ([]models.User, error) {
	query := userSelect + ` WHERE u.cooperative_id = $1 ORDER BY u.firstname, u.lastname`
	var users []models.User
	if err := sqlx.SelectContext(ctx, r.db, &users, query, cooperativeID); err != nil {
		return nil, fmt.Errorf("list cooperative members: %w", err)
	}
	return users, nil
}

// AdjustBalance adds the deltas to the wallet and points of a user.
func (r *UserRepository) AdjustBalance(ctx context.Context, id string, walletDelta, pointsDelta int64) error {
	const query = `UPDATE users SET wallet = wallet + $2, points = points + $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, walletDelta, pointsDelta)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	return expectAffected(res, "adjust balance")
}

// AddFarmer records that agentID manages farmerID. Existing edges are kept.
func (r *UserRepository) AddFarmer(ctx context.Context, agentID, farmerID string) error {
	const query = `INSERT INTO registered_farmers (agent_id, farmer_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (agent_id, farmer_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, agentID, farmerID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add registered farmer: %w", err)
	}
	return nil
}

// ListFarmers returns the farmers managed by an agent.
func (r *UserRepository) ListFarmers(ctx context.Context, agentID string) ([]models.User, error) {
	query := userSelect + ` JOIN registered_farmers rf ON rf.farmer_id = u.id WHERE rf.agent_id = $1 ORDER BY rf.created_at`
	var users []models.User
	if err := sqlx.SelectContext(ctx, r.db, &users, query, agentID); err != nil {
		return nil, fmt.Errorf("list farmers: %w", err)
	}
	return users, nil
}

// ListAgents returns the agents managing a farmer.
func (r *UserRepository) ListAgents(ctx context.Context, farmerID string) ([]models.User, error) {
	query := userSelect + ` JOIN registered_farmers rf ON rf.agent_id = u.id WHERE rf.farmer_id = $1 ORDER BY rf.created_at`
	var users []models.User
	if err := sqlx.SelectContext(ctx, r.db, &users, query, farmerID); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return users, nil
}

// CreateRefreshToken persists a refresh token entry.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent) VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :revoked_at, :ip_address, :user_agent)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by token string.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := sqlx.GetContext(ctx, r.db, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token as revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes all refresh tokens for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// CreateAuditLog stores an audit log entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// expectAffected turns a zero-row update into sql.ErrNoRows.
func expectAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
