package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/agromarket-api/internal/models"
	"github.com/noah-isme/agromarket-api/internal/repository"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
	"github.com/noah-isme/agromarket-api/pkg/middleware/requestid"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByMobile(ctx context.Context, mobileNo string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdateRole(ctx context.Context, id string, roleID int64) error
	Touch(ctx context.Context, id string, ts time.Time) error
	AddFarmer(ctx context.Context, agentID, farmerID string) error
	ListFarmers(ctx context.Context, agentID string) ([]models.User, error)
	ListAgents(ctx context.Context, farmerID string) ([]models.User, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type roleLookup interface {
	Role(name string) (*models.Role, bool)
	Default() (*models.Role, bool)
}

// AuthFailureReason distinguishes why credentials were rejected.
type AuthFailureReason string

const (
	AuthUnknownEmail  AuthFailureReason = "unknown_email"
	AuthWrongPassword AuthFailureReason = "wrong_password"
)

// AuthError is returned by Authenticate. Callers that only need the public
// kind can match it with errors.Is(err, errors.ErrAuthFailure).
type AuthError struct {
	Reason AuthFailureReason
}

func (e *AuthError) Error() string {
	return "authentication failed: " + string(e.Reason)
}

// Unwrap exposes the public AUTH_FAILURE kind.
func (e *AuthError) Unwrap() error {
	return appErrors.ErrAuthFailure
}

// DirectoryConfig carries deployment specific registration rules.
type DirectoryConfig struct {
	BootstrapAdminPhones []string
	StartingWallet       int64
}

// UserService is the user directory: registration, credentials, roles and the
// agent to farmer relation.
type UserService struct {
	repo      userRepository
	roles     roleLookup
	hasher    PasswordHasher
	validator *validator.Validate
	logger    *zap.Logger
	cfg       DirectoryConfig
	bootstrap map[string]struct{}
	now       func() time.Time
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, roles roleLookup, hasher PasswordHasher, validate *validator.Validate, logger *zap.Logger, cfg DirectoryConfig) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	if cfg.StartingWallet < 0 {
		cfg.StartingWallet = 0
	}
	bootstrap := make(map[string]struct{}, len(cfg.BootstrapAdminPhones))
	for _, phone := range cfg.BootstrapAdminPhones {
		bootstrap[strings.TrimSpace(phone)] = struct{}{}
	}
	return &UserService{
		repo:      repo,
		roles:     roles,
		hasher:    hasher,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		bootstrap: bootstrap,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a confirmed user with the starting wallet and the default
// role, or Administrator for bootstrap phone numbers.
func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.MobileNo = strings.TrimSpace(req.MobileNo)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEmail, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check email")
	}
	if _, err := s.repo.FindByMobile(ctx, req.MobileNo); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicatePhone, "mobile number already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Internal(err, "failed to check mobile number")
	}

	role, err := s.roleFor(req.MobileNo)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	now := s.now()
	user := &models.User{
		Email:           req.Email,
		PasswordHash:    hash,
		RoleID:          role.ID,
		RoleName:        role.Name,
		RolePermissions: role.Permissions,
		Confirmed:       true,
		Firstname:       req.Firstname,
		Lastname:        req.Lastname,
		MobileNo:        req.MobileNo,
		Location:        req.Location,
		AvatarHash:      models.EmailHash(req.Email),
		Wallet:          s.cfg.StartingWallet,
		Points:          0,
		MemberSince:     now,
		LastSeen:        now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, appErrors.Clone(appErrors.ErrDuplicateEmail, "email already registered")
		case errors.Is(err, repository.ErrDuplicatePhone):
			return nil, appErrors.Clone(appErrors.ErrDuplicatePhone, "mobile number already registered")
		}
		return nil, appErrors.Internal(err, "failed to create user")
	}

	s.audit(ctx, user.ID, models.AuditActionRegister, "user", user.ID, map[string]interface{}{"role": role.Name})
	return user, nil
}

func (s *UserService) roleFor(mobileNo string) (*models.Role, error) {
	if _, ok := s.bootstrap[mobileNo]; ok {
		if role, ok := s.roles.Role(models.RoleNameAdministrator); ok {
			return role, nil
		}
		s.logger.Warn("bootstrap phone registered before administrator role exists", zap.String("mobile_no", mobileNo))
	}
	role, ok := s.roles.Default()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInternal, "default role is not seeded")
	}
	return role, nil
}

// Authenticate verifies an email and password pair. Failures are *AuthError.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &AuthError{Reason: AuthUnknownEmail}
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, &AuthError{Reason: AuthWrongPassword}
	}
	return user, nil
}

// Can reports whether user's role grants perm. A user without a role can do nothing.
func (s *UserService) Can(user *models.User, perm models.Permission) bool {
	return user.Role().HasPermission(perm)
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	return user, nil
}

// AssignRole replaces the role of userID. Only administrators may call it and
// the target always ends up with exactly one role.
func (s *UserService) AssignRole(ctx context.Context, actor *models.User, userID, roleName string) (*models.User, error) {
	if !s.Can(actor, models.PermAdmin) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "only administrators can assign roles")
	}
	if err := s.validator.Struct(models.AssignRoleRequest{Role: roleName}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role")
	}
	role, ok := s.roles.Role(roleName)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "role not found")
	}
	target, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	previous := target.RoleName
	if err := s.repo.UpdateRole(ctx, userID, role.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to assign role")
	}
	target.RoleID = role.ID
	target.RoleName = role.Name
	target.RolePermissions = role.Permissions

	s.audit(ctx, actor.ID, models.AuditActionRoleAssign, "user", userID, map[string]interface{}{"from": previous, "to": role.Name})
	return target, nil
}

// Manage records that agent manages farmerID. The agent needs REGISTER and an
// existing edge is left untouched.
func (s *UserService) Manage(ctx context.Context, agent *models.User, farmerID string) error {
	if !s.Can(agent, models.PermRegister) {
		return appErrors.Clone(appErrors.ErrPermissionDenied, "registering farmers requires an agent role")
	}
	if _, err := s.Get(ctx, farmerID); err != nil {
		return err
	}
	if err := s.repo.AddFarmer(ctx, agent.ID, farmerID); err != nil {
		return appErrors.Internal(err, "failed to register farmer")
	}
	s.audit(ctx, agent.ID, models.AuditActionFarmerManage, "user", farmerID, nil)
	return nil
}

// ListFarmers returns the farmers managed by agentID.
func (s *UserService) ListFarmers(ctx context.Context, agentID string) ([]models.User, error) {
	users, err := s.repo.ListFarmers(ctx, agentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list farmers")
	}
	return users, nil
}

// ListAgents returns the agents managing farmerID.
func (s *UserService) ListAgents(ctx context.Context, farmerID string) ([]models.User, error) {
	users, err := s.repo.ListAgents(ctx, farmerID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list agents")
	}
	return users, nil
}

// UpdateProfile applies the non-nil profile fields of req.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	if req.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no profile fields supplied")
	}
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Firstname != nil {
		user.Firstname = *req.Firstname
	}
	if req.Lastname != nil {
		user.Lastname = *req.Lastname
	}
	if req.Location != nil {
		user.Location = *req.Location
	}
	if req.DateOfBirth != nil {
		user.DateOfBirth = req.DateOfBirth
	}
	if req.StateOfOrigin != nil {
		user.StateOfOrigin = req.StateOfOrigin
	}
	if req.Country != nil {
		user.Country = req.Country
	}
	if req.AboutMe != nil {
		user.AboutMe = req.AboutMe
	}
	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, appErrors.Internal(err, "failed to update profile")
	}
	return user, nil
}

// Ping records that the user was just seen.
func (s *UserService) Ping(ctx context.Context, userID string) {
	if err := s.repo.Touch(ctx, userID, s.now()); err != nil {
		s.logger.Warn("failed to update last seen", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *UserService) audit(ctx context.Context, actorID, action, resource, resourceID string, values map[string]interface{}) {
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
	}
	if values != nil {
		if payload, err := json.Marshal(values); err == nil {
			entry.NewValues = payload
		}
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.String("request_id", requestid.FromContext(ctx)), zap.Error(err))
	}
}
