package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/agromarket-api/internal/models"
	"github.com/noah-isme/agromarket-api/internal/repository"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
)

type roleRepository interface {
	List(ctx context.Context) ([]models.Role, error)
}

type transactor interface {
	Execute(ctx context.Context, fn func(repository.Scope) error) error
}

// RoleService seeds the fixed roles and serves a read-only snapshot of them.
type RoleService struct {
	repo   roleRepository
	tx     transactor
	logger *zap.Logger

	mu    sync.RWMutex
	roles map[string]models.Role
}

// NewRoleService constructs a RoleService.
func NewRoleService(repo roleRepository, tx transactor, logger *zap.Logger) *RoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleService{repo: repo, tx: tx, logger: logger, roles: map[string]models.Role{}}
}

// Seed upserts User, Agent and Administrator in one transaction. Each role's
// bitmask is reset before its fixed permissions are re-added, and only User is
// left as default. Running it again yields the same rows.
func (s *RoleService) Seed(ctx context.Context) error {
	err := s.tx.Execute(ctx, func(scope repository.Scope) error {
		roles := scope.Roles()
		if err := roles.ClearDefaults(ctx); err != nil {
			return err
		}
		for _, def := range models.SeedRoles {
			role, err := roles.UpsertByName(ctx, def.Name)
			if err != nil {
				return err
			}
			role.ResetPermissions()
			for _, perm := range def.Permissions {
				role.AddPermission(perm)
			}
			role.IsDefault = role.Name == models.DefaultRoleName
			if err := roles.Save(ctx, role); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return appErrors.Internal(err, "failed to seed roles")
	}
	return s.Refresh(ctx)
}

// Refresh reloads the role snapshot from storage.
func (s *RoleService) Refresh(ctx context.Context) error {
	list, err := s.repo.List(ctx)
	if err != nil {
		return appErrors.Internal(err, "failed to load roles")
	}
	snapshot := make(map[string]models.Role, len(list))
	for _, role := range list {
		snapshot[role.Name] = role
	}
	s.mu.Lock()
	s.roles = snapshot
	s.mu.Unlock()
	s.logger.Info("roles loaded", zap.Int("count", len(snapshot)))
	return nil
}

// Roles returns a copy of the snapshot keyed by role name.
func (s *RoleService) Roles() map[string]models.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Role, len(s.roles))
	for name, role := range s.roles {
		out[name] = role
	}
	return out
}

// Role looks up a role by name.
func (s *RoleService) Role(name string) (*models.Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[name]
	if !ok {
		return nil, false
	}
	return &role, true
}

// Default returns the role flagged as default.
func (s *RoleService) Default() (*models.Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, role := range s.roles {
		if role.IsDefault {
			r := role
			return &r, true
		}
	}
	return nil, false
}
