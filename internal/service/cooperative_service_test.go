package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agromarket-api/internal/models"
	"github.com/noah-isme/agromarket-api/internal/repository"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
)

type mockCooperativeRepo struct {
	coops     map[string]*models.Cooperative
	listCalls int
	members   func(coopID string) int
}

func (m *mockCooperativeRepo) counted(c *models.Cooperative) models.Cooperative {
	out := *c
	if m.members != nil {
		out.MemberCount = m.members(c.ID)
	}
	return out
}

func (m *mockCooperativeRepo) ListAll(ctx context.Context) ([]models.Cooperative, error) {
	m.listCalls++
	var out []models.Cooperative
	for _, c := range m.coops {
		out = append(out, m.counted(c))
	}
	return out, nil
}

func (m *mockCooperativeRepo) FindByID(ctx context.Context, id string) (*models.Cooperative, error) {
	if c, ok := m.coops[id]; ok {
		out := m.counted(c)
		return &out, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCooperativeRepo) Create(ctx context.Context, coop *models.Cooperative) error {
	for _, c := range m.coops {
		if strings.EqualFold(c.Name, coop.Name) {
			return repository.ErrDuplicateName
		}
	}
	coop.ID = uuid.NewString()
	stored := *coop
	m.coops[coop.ID] = &stored
	return nil
}

// mapCacheRepo is an in-process CacheRepository keyed by exact key or prefix*.
type mapCacheRepo struct {
	values  map[string][]byte
	deletes []string
}

func newMapCacheRepo() *mapCacheRepo {
	return &mapCacheRepo{values: map[string][]byte{}}
}

func (m *mapCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mapCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *mapCacheRepo) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	if raw, ok := m.values[key]; ok {
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, err
		}
	}
	n++
	m.values[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (m *mapCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deletes = append(m.deletes, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.values {
		if key == pattern || (strings.HasSuffix(pattern, "*") && strings.HasPrefix(key, prefix)) {
			delete(m.values, key)
		}
	}
	return nil
}

func newCooperativeFixture(t *testing.T) (*CooperativeService, *mockCooperativeRepo, *marketFixture) {
	t.Helper()
	f := newDirectory(t, DirectoryConfig{})
	repo := &mockCooperativeRepo{coops: map[string]*models.Cooperative{}}
	repo.members = func(coopID string) int {
		f.store.mu.Lock()
		defer f.store.mu.Unlock()
		n := 0
		for _, u := range f.store.users {
			if u.CooperativeID != nil && *u.CooperativeID == coopID {
				n++
			}
		}
		return n
	}
	cacheSvc := NewCacheService(newMapCacheRepo(), NewMetricsService(), time.Minute, nil, true)
	return NewCooperativeService(repo, f.userRepo, cacheSvc, nil, nil), repo, f
}

func cooperativeRequest(name string) models.CreateCooperativeRequest {
	return models.CreateCooperativeRequest{Name: name, Purpose: "Shared storage", Products: "Maize, Yam", Location: "Jos"}
}

func TestCooperativeCreateRejectsDuplicateName(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newCooperativeFixture(t)

	coop, err := svc.Create(ctx, cooperativeRequest("  Plateau Growers "))
	require.NoError(t, err)
	assert.Equal(t, "Plateau Growers", coop.Name)

	_, err = svc.Create(ctx, cooperativeRequest("plateau growers"))
	assert.ErrorIs(t, err, appErrors.ErrDuplicateName)

	_, err = svc.Create(ctx, models.CreateCooperativeRequest{Name: "Empty"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCooperativeJoinAndMembers(t *testing.T) {
	ctx := context.Background()
	svc, _, f := newCooperativeFixture(t)
	coop, err := svc.Create(ctx, cooperativeRequest("Plateau Growers"))
	require.NoError(t, err)
	user := f.mustRegister(t, "member@example.com")

	joined, err := svc.Join(ctx, user.ID, coop.ID)
	require.NoError(t, err)
	assert.Equal(t, coop.ID, joined.ID)
	require.NotNil(t, f.user(ctx, user.ID).CooperativeID)
	assert.Equal(t, coop.ID, *f.user(ctx, user.ID).CooperativeID)

	members, err := svc.Members(ctx, coop.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, user.ID, members[0].ID)
}

func TestCooperativeJoinReportsActualMemberCount(t *testing.T) {
	ctx := context.Background()
	svc, _, f := newCooperativeFixture(t)
	north, err := svc.Create(ctx, cooperativeRequest("Plateau Growers"))
	require.NoError(t, err)
	south, err := svc.Create(ctx, cooperativeRequest("Benue Tubers"))
	require.NoError(t, err)
	user := f.mustRegister(t, "member@example.com")

	joined, err := svc.Join(ctx, user.ID, north.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, joined.MemberCount)

	again, err := svc.Join(ctx, user.ID, north.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.MemberCount, "rejoining must not inflate the count")

	moved, err := svc.Join(ctx, user.ID, south.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, moved.MemberCount)
	left, err := svc.Get(ctx, north.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, left.MemberCount)
}

func TestCooperativeJoinNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, f := newCooperativeFixture(t)
	coop, err := svc.Create(ctx, cooperativeRequest("Plateau Growers"))
	require.NoError(t, err)
	user := f.mustRegister(t, "member@example.com")

	_, err = svc.Join(ctx, user.ID, uuid.NewString())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Nil(t, f.user(ctx, user.ID).CooperativeID)

	_, err = svc.Join(ctx, "ghost", coop.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Members(ctx, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCooperativeListAllIsCachedUntilWrite(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newCooperativeFixture(t)
	_, err := svc.Create(ctx, cooperativeRequest("Plateau Growers"))
	require.NoError(t, err)

	first, err := svc.ListAll(ctx)
	require.NoError(t, err)
	second, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.Create(ctx, cooperativeRequest("Benue Tubers"))
	require.NoError(t, err)
	third, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, third, 2)
	assert.Equal(t, 2, repo.listCalls)
}
