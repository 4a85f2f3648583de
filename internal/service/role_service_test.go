package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agromarket-api/internal/models"
)

func TestRoleServiceSeedCreatesFixedRoles(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewRoleService(memRoles{store}, &fakeTx{store: store}, nil)

	require.NoError(t, svc.Seed(ctx))

	roles := svc.Roles()
	require.Len(t, roles, 3)
	assert.Equal(t, models.Permission(6), roles[models.RoleNameUser].Permissions)
	assert.Equal(t, models.Permission(30), roles[models.RoleNameAgent].Permissions)
	assert.Equal(t, models.Permission(62), roles[models.RoleNameAdministrator].Permissions)

	def, ok := svc.Default()
	require.True(t, ok)
	assert.Equal(t, models.RoleNameUser, def.Name)
	assert.False(t, roles[models.RoleNameAgent].IsDefault)
	assert.False(t, roles[models.RoleNameAdministrator].IsDefault)
}

func TestRoleServiceSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewRoleService(memRoles{store}, &fakeTx{store: store}, nil)

	require.NoError(t, svc.Seed(ctx))
	first := svc.Roles()
	require.NoError(t, svc.Seed(ctx))
	second := svc.Roles()

	assert.Equal(t, first, second)
	assert.Len(t, store.roles, 3)
}

func TestRoleServiceSeedResetsDriftedRows(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.nextRoleID = 1
	store.roles[models.RoleNameAgent] = &models.Role{ID: 1, Name: models.RoleNameAgent, IsDefault: true, Permissions: models.PermAdmin | models.PermComment}
	svc := NewRoleService(memRoles{store}, &fakeTx{store: store}, nil)

	require.NoError(t, svc.Seed(ctx))

	agent, ok := svc.Role(models.RoleNameAgent)
	require.True(t, ok)
	assert.Equal(t, int64(1), agent.ID)
	assert.Equal(t, models.Permission(30), agent.Permissions)
	assert.False(t, agent.IsDefault)
	assert.False(t, agent.HasPermission(models.PermAdmin))
}

func TestRoleServiceRoleUnknown(t *testing.T) {
	store := newMemStore()
	svc := NewRoleService(memRoles{store}, &fakeTx{store: store}, nil)

	_, ok := svc.Role("Guest")
	assert.False(t, ok)
	_, ok = svc.Default()
	assert.False(t, ok)
}
