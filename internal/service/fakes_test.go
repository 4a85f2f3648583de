package service

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/agromarket-api/internal/models"
	"github.com/noah-isme/agromarket-api/internal/repository"
)

// memStore is an in-memory stand-in for Postgres. Exported-style methods on
// the adapters lock mu; the tx scope runs with mu already held by fakeTx.
type memStore struct {
	mu         sync.Mutex
	roles      map[string]*models.Role
	nextRoleID int64
	users      map[string]*models.User
	products   map[string]*models.Product
	edges      map[[2]string]time.Time
	coops      map[string]*models.Cooperative
	forums     map[string]*models.Forum
	posts      map[string]*models.Post
	comments   map[string]*models.Comment
	audit      []*models.AuditLog
	tokens     map[string]*models.RefreshToken
	failSetOwn bool
}

func newMemStore() *memStore {
	return &memStore{
		roles:    map[string]*models.Role{},
		users:    map[string]*models.User{},
		products: map[string]*models.Product{},
		edges:    map[[2]string]time.Time{},
		coops:    map[string]*models.Cooperative{},
		forums:   map[string]*models.Forum{},
		posts:    map[string]*models.Post{},
		comments: map[string]*models.Comment{},
		tokens:   map[string]*models.RefreshToken{},
	}
}

type memSnapshot struct {
	roles    map[string]models.Role
	users    map[string]models.User
	products map[string]models.Product
	forums   map[string]models.Forum
	posts    map[string]models.Post
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		roles:    map[string]models.Role{},
		users:    map[string]models.User{},
		products: map[string]models.Product{},
		forums:   map[string]models.Forum{},
		posts:    map[string]models.Post{},
	}
	for k, v := range s.roles {
		snap.roles[k] = *v
	}
	for k, v := range s.users {
		snap.users[k] = *v
	}
	for k, v := range s.products {
		snap.products[k] = *v
	}
	for k, v := range s.forums {
		snap.forums[k] = *v
	}
	for k, v := range s.posts {
		snap.posts[k] = *v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.roles = map[string]*models.Role{}
	for k, v := range snap.roles {
		r := v
		s.roles[k] = &r
	}
	s.users = map[string]*models.User{}
	for k, v := range snap.users {
		u := v
		s.users[k] = &u
	}
	s.products = map[string]*models.Product{}
	for k, v := range snap.products {
		p := v
		s.products[k] = &p
	}
	s.forums = map[string]*models.Forum{}
	for k, v := range snap.forums {
		f := v
		s.forums[k] = &f
	}
	s.posts = map[string]*models.Post{}
	for k, v := range snap.posts {
		p := v
		s.posts[k] = &p
	}
}

func (s *memStore) roleByID(id int64) *models.Role {
	for _, r := range s.roles {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// joined returns a copy of the user with role columns refreshed.
func (s *memStore) joined(u *models.User) *models.User {
	out := *u
	if role := s.roleByID(u.RoleID); role != nil {
		out.RoleName = role.Name
		out.RolePermissions = role.Permissions
	}
	return &out
}

// fakeTx serializes units of work and restores the store when fn fails.
// onBegin, when set, runs once before the next unit of work takes the lock.
type fakeTx struct {
	store   *memStore
	calls   int
	onBegin func()
}

func (f *fakeTx) Execute(ctx context.Context, fn func(repository.Scope) error) error {
	if hook := f.onBegin; hook != nil {
		f.onBegin = nil
		hook()
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.calls++
	snap := f.store.snapshot()
	if err := fn(memScope{s: f.store}); err != nil {
		f.store.restore(snap)
		return err
	}
	return nil
}

type memScope struct{ s *memStore }

func (m memScope) Roles() repository.RoleTx       { return memRoleTx{m.s} }
func (m memScope) Users() repository.UserTx       { return memUserTx{m.s} }
func (m memScope) Products() repository.ProductTx { return memProductTx{m.s} }
func (m memScope) Forums() repository.ForumTx     { return memForumTx{m.s} }

type memRoleTx struct{ s *memStore }

func (r memRoleTx) UpsertByName(ctx context.Context, name string) (*models.Role, error) {
	role, ok := r.s.roles[name]
	if !ok {
		r.s.nextRoleID++
		role = &models.Role{ID: r.s.nextRoleID, Name: name}
		r.s.roles[name] = role
	}
	copy := *role
	return &copy, nil
}

func (r memRoleTx) ClearDefaults(ctx context.Context) error {
	for _, role := range r.s.roles {
		role.IsDefault = false
	}
	return nil
}

func (r memRoleTx) Save(ctx context.Context, role *models.Role) error {
	stored := *role
	r.s.roles[role.Name] = &stored
	return nil
}

type memUserTx struct{ s *memStore }

func (u memUserTx) GetForUpdate(ctx context.Context, id string) (*models.User, error) {
	user, ok := u.s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u.s.joined(user), nil
}

func (u memUserTx) AdjustBalance(ctx context.Context, id string, walletDelta, pointsDelta int64) error {
	user, ok := u.s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.Wallet += walletDelta
	user.Points += pointsDelta
	return nil
}

type memProductTx struct{ s *memStore }

func (p memProductTx) GetForUpdate(ctx context.Context, id string) (*models.Product, error) {
	product, ok := p.s.products[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *product
	return &out, nil
}

func (p memProductTx) SetOwner(ctx context.Context, id string, ownerID *string) error {
	if p.s.failSetOwn {
		return sql.ErrConnDone
	}
	product, ok := p.s.products[id]
	if !ok {
		return sql.ErrNoRows
	}
	if ownerID == nil {
		product.OwnerID = nil
	} else {
		owner := *ownerID
		product.OwnerID = &owner
	}
	return nil
}

func (p memProductTx) LockName(ctx context.Context, name string) error { return nil }

func (p memProductTx) NameExists(ctx context.Context, name, excludeID string) (bool, error) {
	return p.s.nameExists(name, excludeID), nil
}

func (p memProductTx) Create(ctx context.Context, product *models.Product) error {
	p.s.putProduct(product)
	return nil
}

func (p memProductTx) Update(ctx context.Context, product *models.Product) error {
	if _, ok := p.s.products[product.ID]; !ok {
		return sql.ErrNoRows
	}
	p.s.putProduct(product)
	return nil
}

func (s *memStore) nameExists(name, excludeID string) bool {
	for _, product := range s.products {
		if strings.EqualFold(product.Name, name) && product.ID != excludeID {
			return true
		}
	}
	return false
}

func (s *memStore) putProduct(product *models.Product) {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	stored := *product
	s.products[product.ID] = &stored
}

type memForumTx struct{ s *memStore }

func (f memForumTx) CreatePost(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	stored := *post
	f.s.posts[post.ID] = &stored
	return nil
}

func (f memForumTx) IncrementPostCount(ctx context.Context, forumID string) error {
	forum, ok := f.s.forums[forumID]
	if !ok {
		return sql.ErrNoRows
	}
	forum.PostCount++
	return nil
}

// memRoles backs roleRepository.
type memRoles struct{ s *memStore }

func (r memRoles) List(ctx context.Context) ([]models.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Role
	for _, role := range r.s.roles {
		out = append(out, *role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// memUsers backs userRepository, authUserRepository and memberRepository.
type memUsers struct {
	s         *memStore
	createErr error
}

func (u *memUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u.s.joined(user), nil
}

func (u *memUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if strings.EqualFold(user.Email, email) {
			return u.s.joined(user), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (u *memUsers) FindByMobile(ctx context.Context, mobileNo string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if user.MobileNo == mobileNo {
			return u.s.joined(user), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (u *memUsers) Create(ctx context.Context, user *models.User) error {
	if u.createErr != nil {
		return u.createErr
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	stored := *user
	u.s.users[user.ID] = &stored
	return nil
}

func (u *memUsers) UpdateProfile(ctx context.Context, user *models.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	stored := *user
	u.s.users[user.ID] = &stored
	return nil
}

func (u *memUsers) UpdateRole(ctx context.Context, id string, roleID int64) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.RoleID = roleID
	return nil
}

func (u *memUsers) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	return nil
}

func (u *memUsers) Touch(ctx context.Context, id string, ts time.Time) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if user, ok := u.s.users[id]; ok {
		user.LastSeen = ts
	}
	return nil
}

func (u *memUsers) SetCooperative(ctx context.Context, id, cooperativeID string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	coop := cooperativeID
	user.CooperativeID = &coop
	return nil
}

func (u *memUsers) ListByCooperative(ctx context.Context, cooperativeID string) ([]models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	var out []models.User
	for _, user := range u.s.users {
		if user.CooperativeID != nil && *user.CooperativeID == cooperativeID {
			out = append(out, *u.s.joined(user))
		}
	}
	return out, nil
}

func (u *memUsers) AddFarmer(ctx context.Context, agentID, farmerID string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	key := [2]string{agentID, farmerID}
	if _, ok := u.s.edges[key]; !ok {
		u.s.edges[key] = time.Now()
	}
	return nil
}

func (u *memUsers) ListFarmers(ctx context.Context, agentID string) ([]models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	var out []models.User
	for edge := range u.s.edges {
		if edge[0] == agentID {
			out = append(out, *u.s.joined(u.s.users[edge[1]]))
		}
	}
	return out, nil
}

func (u *memUsers) ListAgents(ctx context.Context, farmerID string) ([]models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	var out []models.User
	for edge := range u.s.edges {
		if edge[1] == farmerID {
			out = append(out, *u.s.joined(u.s.users[edge[0]]))
		}
	}
	return out, nil
}

func (u *memUsers) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	stored := *token
	u.s.tokens[token.Token] = &stored
	return nil
}

func (u *memUsers) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	rt, ok := u.s.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *rt
	return &out, nil
}

func (u *memUsers) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, rt := range u.s.tokens {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (u *memUsers) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, rt := range u.s.tokens {
		if rt.UserID == userID {
			rt.Revoked = true
		}
	}
	return nil
}

func (u *memUsers) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	u.s.audit = append(u.s.audit, log)
	return nil
}

// memProducts backs productRepository.
type memProducts struct{ s *memStore }

func (p memProducts) list(match func(*models.Product) bool) []models.Product {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	var out []models.Product
	for _, product := range p.s.products {
		if match(product) {
			out = append(out, *product)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (p memProducts) ListAvailable(ctx context.Context) ([]models.Product, error) {
	return p.list(func(pr *models.Product) bool { return pr.OwnerID == nil }), nil
}

func (p memProducts) ListOwnedBy(ctx context.Context, userID string) ([]models.Product, error) {
	return p.list(func(pr *models.Product) bool { return pr.OwnedBy(userID) }), nil
}

func (p memProducts) FindByID(ctx context.Context, id string) (*models.Product, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	product, ok := p.s.products[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *product
	return &out, nil
}

func (p memProducts) Delete(ctx context.Context, id string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.products[id]; !ok {
		return sql.ErrNoRows
	}
	delete(p.s.products, id)
	return nil
}

// plainHasher keeps tests fast; bcrypt is covered separately.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }
func (plainHasher) Verify(hash, password string) bool    { return hash == "hashed:"+password }

// marketFixture wires seeded roles, a directory and a ledger over one memStore.
type marketFixture struct {
	store    *memStore
	tx       *fakeTx
	roles    *RoleService
	users    *UserService
	userRepo *memUsers
	products *ProductService
	metrics  *MetricsService
}

func newMarketFixture(ctx context.Context, cfg DirectoryConfig, productCfg ProductConfig) (*marketFixture, error) {
	store := newMemStore()
	tx := &fakeTx{store: store}
	roles := NewRoleService(memRoles{store}, tx, nil)
	if err := roles.Seed(ctx); err != nil {
		return nil, err
	}
	if cfg.StartingWallet == 0 {
		cfg.StartingWallet = 1000
	}
	userRepo := &memUsers{s: store}
	users := NewUserService(userRepo, roles, plainHasher{}, nil, nil, cfg)
	metrics := NewMetricsService()
	products := NewProductService(memProducts{store}, tx, userRepo, nil, nil, metrics, nil, nil, productCfg)
	return &marketFixture{store: store, tx: tx, roles: roles, users: users, userRepo: userRepo, products: products, metrics: metrics}, nil
}

var phoneSeq int64 = 8030000000

func (f *marketFixture) register(ctx context.Context, email string) (*models.User, error) {
	phone := "0" + strconv.FormatInt(atomic.AddInt64(&phoneSeq, 1), 10)
	return f.users.Register(ctx, models.RegisterRequest{
		Email:     email,
		Password:  "secret123",
		Firstname: "Ada",
		Lastname:  "Obi",
		MobileNo:  phone,
		Location:  "Jos",
	})
}

func (f *marketFixture) promote(ctx context.Context, userID, roleName string) *models.User {
	role, _ := f.roles.Role(roleName)
	_ = f.userRepo.UpdateRole(ctx, userID, role.ID)
	user, _ := f.userRepo.FindByID(ctx, userID)
	return user
}

func (f *marketFixture) user(ctx context.Context, id string) *models.User {
	user, _ := f.userRepo.FindByID(ctx, id)
	return user
}
